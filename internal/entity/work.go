package entity

import (
	"fmt"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

const (
	TaskActive    = "Active"
	TaskCompleted = "Completed"
	TaskRemoved   = "Removed"

	GoalActive    = "Active"
	GoalCompleted = "Completed"
)

type Task struct {
	Ref           store.RecordRef
	ID            string
	UserID        string
	Username      string
	Name          string
	Status        string
	CreatedDate   time.Time
	CompletedDate time.Time
	XPEarned      int
}

func TaskFromRecord(r store.Record, loc *time.Location) (Task, error) {
	d := decoder{r: r, loc: loc}
	t := Task{
		Ref:           r.Ref,
		ID:            d.required("TaskID"),
		UserID:        d.required("UserID"),
		Username:      d.str("Username"),
		Name:          d.str("TaskName"),
		Status:        d.required("Status"),
		CreatedDate:   d.time("CreatedDate"),
		CompletedDate: d.optTime("CompletedDate"),
		XPEarned:      d.int("XPEarned"),
	}
	switch t.Status {
	case TaskActive, TaskCompleted, TaskRemoved:
	default:
		d.fail("Status", t.Status, fmt.Errorf("unknown task status"))
	}
	return t, d.err
}

func (t Task) Fields(loc *time.Location) map[string]string {
	return map[string]string{
		"TaskID":        t.ID,
		"UserID":        t.UserID,
		"Username":      t.Username,
		"TaskName":      t.Name,
		"Status":        t.Status,
		"CreatedDate":   FormatTime(t.CreatedDate, loc),
		"CompletedDate": FormatTime(t.CompletedDate, loc),
		"XPEarned":      itoa(t.XPEarned),
	}
}

type Goal struct {
	Ref         store.RecordRef
	ID          string
	UserID      string
	Username    string
	Text        string
	CreatedDate time.Time
	Status      string
}

func GoalFromRecord(r store.Record, loc *time.Location) (Goal, error) {
	d := decoder{r: r, loc: loc}
	g := Goal{
		Ref:         r.Ref,
		ID:          d.required("GoalID"),
		UserID:      d.required("UserID"),
		Username:    d.str("Username"),
		Text:        d.str("Goal"),
		CreatedDate: d.time("CreatedDate"),
		Status:      d.required("Status"),
	}
	switch g.Status {
	case GoalActive, GoalCompleted:
	default:
		d.fail("Status", g.Status, fmt.Errorf("unknown goal status"))
	}
	return g, d.err
}

func (g Goal) Fields(loc *time.Location) map[string]string {
	return map[string]string{
		"GoalID":      g.ID,
		"UserID":      g.UserID,
		"Username":    g.Username,
		"Goal":        g.Text,
		"CreatedDate": FormatTime(g.CreatedDate, loc),
		"Status":      g.Status,
	}
}

type Plan struct {
	Ref         store.RecordRef
	ID          string
	UserID      string
	Username    string
	Text        string
	CreatedDate time.Time
}

func PlanFromRecord(r store.Record, loc *time.Location) (Plan, error) {
	d := decoder{r: r, loc: loc}
	p := Plan{
		Ref:         r.Ref,
		ID:          d.required("PlanID"),
		UserID:      d.required("UserID"),
		Username:    d.str("Username"),
		Text:        d.str("Plan"),
		CreatedDate: d.time("CreatedDate"),
	}
	return p, d.err
}

func (p Plan) Fields(loc *time.Location) map[string]string {
	return map[string]string{
		"PlanID":      p.ID,
		"UserID":      p.UserID,
		"Username":    p.Username,
		"Plan":        p.Text,
		"CreatedDate": FormatTime(p.CreatedDate, loc),
	}
}

// Report is a user-filed report about another user.
type Report struct {
	Ref        store.RecordRef
	ID         string
	ReporterID string
	Reporter   string
	Target     string
	Reason     string
	Timestamp  time.Time
}

func (r Report) Fields(loc *time.Location) map[string]string {
	return map[string]string{
		"ReportID":   r.ID,
		"ReporterID": r.ReporterID,
		"Reporter":   r.Reporter,
		"Target":     r.Target,
		"Reason":     r.Reason,
		"Timestamp":  FormatTime(r.Timestamp, loc),
	}
}
