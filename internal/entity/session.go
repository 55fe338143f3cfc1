package entity

import (
	"fmt"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// SessionStatus is the state of a non-terminal session row. Terminal
// sessions have no row: stop and the inactivity penalty delete it.
type SessionStatus string

const (
	SessionActive  SessionStatus = "Active"
	SessionBreak   SessionStatus = "Break"
	SessionWarning SessionStatus = "Warning"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionBreak, SessionWarning:
		return true
	}
	return false
}

type Session struct {
	Ref          store.RecordRef
	ID           string
	UserID       string
	Username     string
	StartTime    time.Time
	LastActivity time.Time
	Status       SessionStatus
	BreakEndTime time.Time
	// TotalBreakMinutes is the accumulated break time, in minutes.
	TotalBreakMinutes int
}

func SessionFromRecord(r store.Record, loc *time.Location) (Session, error) {
	d := decoder{r: r, loc: loc}
	s := Session{
		Ref:               r.Ref,
		ID:                d.required("SessionID"),
		UserID:            d.required("UserID"),
		Username:          d.str("Username"),
		StartTime:         d.time("StartTime"),
		Status:            SessionStatus(d.str("Status")),
		BreakEndTime:      d.optTime("BreakEndTime"),
		TotalBreakMinutes: d.int("TotalBreakTime"),
	}
	s.LastActivity = d.optTime("LastActivity")
	if s.LastActivity.IsZero() {
		s.LastActivity = s.StartTime
	}
	if d.err == nil && !s.Status.Valid() {
		d.fail("Status", string(s.Status), fmt.Errorf("unknown session status"))
	}
	return s, d.err
}

func (s Session) Fields(loc *time.Location) map[string]string {
	return map[string]string{
		"SessionID":      s.ID,
		"UserID":         s.UserID,
		"Username":       s.Username,
		"StartTime":      FormatTime(s.StartTime, loc),
		"LastActivity":   FormatTime(s.LastActivity, loc),
		"Status":         string(s.Status),
		"BreakEndTime":   FormatTime(s.BreakEndTime, loc),
		"TotalBreakTime": itoa(s.TotalBreakMinutes),
	}
}

// IdleSince is the instant inactivity is measured from: the last activity,
// or the end of a break that ran past it. BreakEndTime is cleared when the
// user resumes, so it also holds for a break that went into Warning.
func (s Session) IdleSince() time.Time {
	if s.BreakEndTime.After(s.LastActivity) {
		return s.BreakEndTime
	}
	return s.LastActivity
}
