package entity

import (
	"strings"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

const UserStatusActive = "Active"

const badgeSeparator = ", "

// User is the per-user projection row. TotalXP, TotalStudyMinutes,
// CurrentStreak, Rank and Badges are derived from the ledger and cached here.
type User struct {
	Ref               store.RecordRef
	ID                string
	Username          string
	TotalXP           int
	CurrentStreak     int
	TotalStudyMinutes int
	Rank              string
	JoinDate          time.Time
	LastActive        time.Time
	Status            string
	Badges            []string
}

func UserFromRecord(r store.Record, loc *time.Location) (User, error) {
	d := decoder{r: r, loc: loc}
	u := User{
		Ref:               r.Ref,
		ID:                d.required("UserID"),
		Username:          d.str("Username"),
		TotalXP:           d.int("TotalXP"),
		CurrentStreak:     d.int("CurrentStreak"),
		TotalStudyMinutes: d.int("TotalStudyMinutes"),
		Rank:              d.str("Rank"),
		JoinDate:          d.optTime("JoinDate"),
		LastActive:        d.optTime("LastActive"),
		Status:            d.str("Status"),
		Badges:            SplitBadges(d.str("Badges")),
	}
	return u, d.err
}

func (u User) Fields(loc *time.Location) map[string]string {
	return map[string]string{
		"UserID":            u.ID,
		"Username":          u.Username,
		"TotalXP":           itoa(u.TotalXP),
		"CurrentStreak":     itoa(u.CurrentStreak),
		"TotalStudyMinutes": itoa(u.TotalStudyMinutes),
		"Rank":              u.Rank,
		"JoinDate":          FormatTime(u.JoinDate, loc),
		"LastActive":        FormatTime(u.LastActive, loc),
		"Status":            u.Status,
		"Badges":            JoinBadges(u.Badges),
	}
}

func JoinBadges(badges []string) string { return strings.Join(badges, badgeSeparator) }

func SplitBadges(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
