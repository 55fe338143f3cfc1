package entity

import (
	"fmt"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

const (
	ReminderPending = "Pending"
	ReminderSent    = "Sent"
)

// ReminderType says which command created a reminder.
type ReminderType string

const (
	ReminderBreak  ReminderType = "break"
	ReminderCustom ReminderType = "custom"
	ReminderFocus  ReminderType = "focus"
)

type Reminder struct {
	Ref      store.RecordRef
	ID       string
	UserID   string
	Username string
	Message  string
	At       time.Time
	Status   string
	Type     ReminderType
}

func ReminderFromRecord(r store.Record, loc *time.Location) (Reminder, error) {
	d := decoder{r: r, loc: loc}
	rm := Reminder{
		Ref:      r.Ref,
		ID:       d.required("ReminderID"),
		UserID:   d.required("UserID"),
		Username: d.str("Username"),
		Message:  d.str("Message"),
		At:       d.time("ReminderTime"),
		Status:   d.required("Status"),
		Type:     ReminderType(d.str("Type")),
	}
	switch rm.Status {
	case ReminderPending, ReminderSent:
	default:
		d.fail("Status", rm.Status, fmt.Errorf("unknown reminder status"))
	}
	return rm, d.err
}

func (r Reminder) Fields(loc *time.Location) map[string]string {
	return map[string]string{
		"ReminderID":   r.ID,
		"UserID":       r.UserID,
		"Username":     r.Username,
		"Message":      r.Message,
		"ReminderTime": FormatTime(r.At, loc),
		"Status":       r.Status,
		"Type":         string(r.Type),
	}
}
