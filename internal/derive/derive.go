// Package derive holds the pure computations over the activity ledger and
// the user projection: rank, badges, streak, leaderboards and XP totals.
package derive

import (
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
)

// Threshold pairs a minimum value with the label it unlocks.
type Threshold struct {
	Min  int
	Name string
}

// Ranks is ordered by descending XP.
var Ranks = []Threshold{
	{500, "📘 Scholar"},
	{300, "📗 Master"},
	{150, "📙 Intermediate"},
	{50, "📕 Beginner"},
	{0, "🍼 Newbie"},
}

// BadgeTable is ordered by ascending study minutes.
var BadgeTable = []Threshold{
	{50, "🥉 Bronze Mind"},
	{110, "🥈 Silver Brain"},
	{150, "🥇 Golden Genius"},
	{240, "🔷 Diamond Crown"},
	{500, "🏆 Study Legend"},
}

// Rank returns the label of the highest rank threshold not above xp.
// Negative XP gets the lowest rank.
func Rank(xp int) string {
	for _, r := range Ranks {
		if xp >= r.Min {
			return r.Name
		}
	}
	return Ranks[len(Ranks)-1].Name
}

// Badges returns every badge unlocked at totalMinutes, ascending.
func Badges(totalMinutes int) []string {
	var out []string
	for _, b := range BadgeTable {
		if totalMinutes >= b.Min {
			out = append(out, b.Name)
		}
	}
	return out
}

// NewlyUnlocked returns the highest badge unlocked at next that was not
// unlocked at prev.
func NewlyUnlocked(prev, next int) (string, bool) {
	for i := len(BadgeTable) - 1; i >= 0; i-- {
		b := BadgeTable[i]
		if next >= b.Min && prev < b.Min {
			return b.Name, true
		}
	}
	return "", false
}

// Consistent reports whether the cached rank and badges of u match the
// values derived from its XP and study minutes.
func Consistent(u entity.User) bool {
	return u.Rank == Rank(u.TotalXP) && slices.Equal(u.Badges, Badges(u.TotalStudyMinutes))
}

// Streak counts consecutive calendar days with attendance ending at the day
// of now in loc. It is 0 when there is no attendance today.
func Streak(ledger []entity.Activity, now time.Time, loc *time.Location) int {
	days := make(map[string]struct{})
	for _, a := range ledger {
		if a.Action == entity.ActionAttendance {
			days[a.Timestamp.In(loc).Format(entity.DateLayout)] = struct{}{}
		}
	}
	n := 0
	day := now.In(loc)
	for {
		if _, ok := days[day.Format(entity.DateLayout)]; !ok {
			return n
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
}

// AttendedOn reports whether the ledger has an attendance entry on the day
// of now.
func AttendedOn(ledger []entity.Activity, now time.Time, loc *time.Location) bool {
	today := now.In(loc).Format(entity.DateLayout)
	for _, a := range ledger {
		if a.Action == entity.ActionAttendance && a.Timestamp.In(loc).Format(entity.DateLayout) == today {
			return true
		}
	}
	return false
}

// TotalXP replays the ledger in order. Only penalties are clamped: a
// penalty never pushes the running total below floor.
func TotalXP(ledger []entity.Activity, floor int) int {
	total := 0
	for _, a := range ledger {
		total += a.XPEarned
		if a.Action == entity.ActionInactivityPenalty && total < floor {
			total = floor
		}
	}
	return total
}

// StudyMinutes sums the duration of completed study sessions.
func StudyMinutes(ledger []entity.Activity) int {
	total := 0
	for _, a := range ledger {
		if a.Action == entity.ActionStudySession {
			total += a.Duration
		}
	}
	return total
}

// Window selects the ledger entries a leaderboard counts.
type Window int

const (
	AllTime Window = iota
	Weekly
	Monthly
)

func (w Window) String() string {
	switch w {
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "all-time"
	}
}

func (w Window) contains(a entity.Activity, now time.Time, loc *time.Location) bool {
	switch w {
	case Weekly:
		return !a.Timestamp.Before(now.Add(-7*24*time.Hour)) && !a.Timestamp.After(now)
	case Monthly:
		return a.Month == entity.MonthKey(now, loc)
	default:
		return true
	}
}

type Entry struct {
	Name string
	XP   int
}

// Leaderboard sums ledger XP per username inside the window, sorted by XP
// descending. Penalties are clamped at floor as in TotalXP, so the
// all-time board agrees with each user's TotalXP. Ties keep the order in
// which names first appear in the ledger. Names are grouped by their NFC
// form.
func Leaderboard(ledger []entity.Activity, w Window, now time.Time, loc *time.Location, topN, floor int) []Entry {
	index := make(map[string]int)
	var entries []Entry
	for _, a := range ledger {
		if !w.contains(a, now, loc) {
			continue
		}
		name := strings.TrimSpace(a.Username)
		if name == "" {
			name = a.UserID
		}
		key := norm.NFC.String(name)
		i, ok := index[key]
		if !ok {
			i = len(entries)
			index[key] = i
			entries = append(entries, Entry{Name: name})
		}
		entries[i].XP += a.XPEarned
		if a.Action == entity.ActionInactivityPenalty && entries[i].XP < floor {
			entries[i].XP = floor
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].XP > entries[j].XP })
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}
