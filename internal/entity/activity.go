package entity

import (
	"fmt"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// Action is the kind of a ledger entry.
type Action string

const (
	ActionAttendance        Action = "Attendance"
	ActionStudySession      Action = "StudySession"
	ActionTaskCompleted     Action = "TaskCompleted"
	ActionGoalCompleted     Action = "GoalCompleted"
	ActionInactivityPenalty Action = "InactivityPenalty"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAttendance, ActionStudySession, ActionTaskCompleted, ActionGoalCompleted, ActionInactivityPenalty:
		return true
	}
	return false
}

// Activity is one append-only ledger row.
type Activity struct {
	Ref      store.RecordRef
	ID       string
	UserID   string
	Username string
	Action   Action
	XPEarned int
	// Duration is in minutes.
	Duration    int
	Description string
	Timestamp   time.Time
	Month       string
}

func ActivityFromRecord(r store.Record, loc *time.Location) (Activity, error) {
	d := decoder{r: r, loc: loc}
	a := Activity{
		Ref:         r.Ref,
		ID:          d.required("ActivityID"),
		UserID:      d.required("UserID"),
		Username:    d.str("Username"),
		Action:      Action(d.str("Action")),
		XPEarned:    d.int("XPEarned"),
		Duration:    d.int("Duration"),
		Description: d.str("Description"),
		Timestamp:   d.time("Timestamp"),
		Month:       d.str("Month"),
	}
	if d.err == nil && !a.Action.Valid() {
		d.fail("Action", string(a.Action), fmt.Errorf("unknown action"))
	}
	if d.err == nil && a.Month == "" {
		a.Month = MonthKey(a.Timestamp, loc)
	}
	return a, d.err
}

func (a Activity) Fields(loc *time.Location) map[string]string {
	month := a.Month
	if month == "" {
		month = MonthKey(a.Timestamp, loc)
	}
	return map[string]string{
		"ActivityID":  a.ID,
		"UserID":      a.UserID,
		"Username":    a.Username,
		"Action":      string(a.Action),
		"XPEarned":    itoa(a.XPEarned),
		"Duration":    itoa(a.Duration),
		"Description": a.Description,
		"Timestamp":   FormatTime(a.Timestamp, loc),
		"Month":       month,
	}
}
