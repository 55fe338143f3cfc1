package store

import "fmt"

// Table names a logical table of the remote store.
type Table string

const (
	Users      Table = "Users"
	Sessions   Table = "Sessions"
	Activities Table = "Activities"
	Tasks      Table = "Tasks"
	Goals      Table = "Goals"
	Reminders  Table = "Reminders"
	Plans      Table = "Plans"
	Reports    Table = "Reports"
)

// Column order matters: it is the positional layout of the remote sheet.
var columns = map[Table][]string{
	Users:      {"UserID", "Username", "TotalXP", "CurrentStreak", "TotalStudyMinutes", "Rank", "JoinDate", "LastActive", "Status", "Badges"},
	Sessions:   {"SessionID", "UserID", "Username", "StartTime", "LastActivity", "Status", "BreakEndTime", "TotalBreakTime"},
	Activities: {"ActivityID", "UserID", "Username", "Action", "XPEarned", "Duration", "Description", "Timestamp", "Month"},
	Tasks:      {"TaskID", "UserID", "Username", "TaskName", "Status", "CreatedDate", "CompletedDate", "XPEarned"},
	Goals:      {"GoalID", "UserID", "Username", "Goal", "CreatedDate", "Status"},
	Reminders:  {"ReminderID", "UserID", "Username", "Message", "ReminderTime", "Status", "Type"},
	Plans:      {"PlanID", "UserID", "Username", "Plan", "CreatedDate"},
	Reports:    {"ReportID", "ReporterID", "Reporter", "Target", "Reason", "Timestamp"},
}

// AllTables lists every table in a stable order.
var AllTables = []Table{Users, Sessions, Activities, Tasks, Goals, Reminders, Plans, Reports}

// Columns returns the canonical column list of t.
func Columns(t Table) []string {
	return columns[t]
}

// OwnerColumn is the column joins on user identity use for t.
func OwnerColumn(t Table) string {
	if t == Reports {
		return "ReporterID"
	}
	return "UserID"
}

// HasColumn reports whether field is a canonical column of t.
func HasColumn(t Table, field string) bool {
	for _, c := range columns[t] {
		if c == field {
			return true
		}
	}
	return false
}

func checkTable(t Table) error {
	if _, ok := columns[t]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, string(t))
	}
	return nil
}

// normalizeFields keeps only canonical columns, filling missing ones with "".
func normalizeFields(t Table, fields map[string]string) (map[string]string, error) {
	if err := checkTable(t); err != nil {
		return nil, err
	}
	for k := range fields {
		if !HasColumn(t, k) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t, k)
		}
	}
	out := make(map[string]string, len(columns[t]))
	for _, c := range columns[t] {
		out[c] = fields[c]
	}
	return out, nil
}
