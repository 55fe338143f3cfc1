package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeRe = regexp.MustCompile(`(?i)^(?:in\s+)?(\d+)\s*(m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days)\b\s*(.*)$`)
	clockRe    = regexp.MustCompile(`(?i)^(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b\s*(.*)$`)
	clock24Re  = regexp.MustCompile(`(?i)^(?:at\s+)?(\d{1,2}):(\d{2})\b\s*(.*)$`)
)

// MaxLead is the furthest ahead a reminder, break or focus block can be set.
const MaxLead = 365 * 24 * time.Hour

// Span returns n units as a duration. It is false when n is not positive or
// the span exceeds MaxLead.
func Span(n int, unit time.Duration) (time.Duration, bool) {
	if n <= 0 || unit <= 0 || int64(n) > int64(MaxLead/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// Parsed is a time phrase resolved against a reference instant.
type Parsed struct {
	At      time.Time
	Message string
	// Matched is false when the phrase was not understood and the fallback
	// delay was used.
	Matched bool
}

// ParsePhrase reads a leading time phrase from text: a relative duration
// ("10 min", "in 2 hours", "1 day") or a clock time ("5pm", "at 7:30 am",
// "18:30"). A clock time already past today means tomorrow. Anything else,
// including spans beyond MaxLead, resolves to now+fallback with the whole
// text as the message.
func ParsePhrase(text string, now time.Time, fallback time.Duration) Parsed {
	text = strings.TrimSpace(text)
	if m := relativeRe.FindStringSubmatch(text); m != nil {
		var unit time.Duration
		switch strings.ToLower(m[2])[0] {
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		default:
			unit = 24 * time.Hour
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			if d, ok := Span(n, unit); ok {
				return Parsed{At: now.Add(d), Message: strings.TrimSpace(m[3]), Matched: true}
			}
		}
	}
	if m := clockRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour >= 1 && hour <= 12 && minute < 60 {
			hour %= 12
			if strings.EqualFold(m[3], "pm") {
				hour += 12
			}
			return Parsed{At: nextClock(now, hour, minute), Message: strings.TrimSpace(m[4]), Matched: true}
		}
	}
	if m := clock24Re.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour < 24 && minute < 60 {
			return Parsed{At: nextClock(now, hour, minute), Message: strings.TrimSpace(m[3]), Matched: true}
		}
	}
	return Parsed{At: now.Add(fallback), Message: text}
}

// nextClock is the next hour:minute on the wall clock of now's zone.
func nextClock(now time.Time, hour, minute int) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
