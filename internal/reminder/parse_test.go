package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePhrase(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 20, 0, 0, time.UTC)
	fallback := 50 * time.Minute

	tests := []struct {
		in      string
		at      time.Time
		msg     string
		matched bool
	}{
		{"10 min drink water", now.Add(10 * time.Minute), "drink water", true},
		{"2hours stretch", now.Add(2 * time.Hour), "stretch", true},
		{"1 day review notes", now.Add(24 * time.Hour), "review notes", true},
		{"5pm call mom", time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC), "call mom", true},
		{"7:30 AM revise", time.Date(2025, 3, 11, 7, 30, 0, 0, time.UTC), "revise", true},
		{"12am sleep", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), "sleep", true},
		{"12:15 pm lunch", time.Date(2025, 3, 11, 12, 15, 0, 0, time.UTC), "lunch", true},
		{"tomorrow maybe", now.Add(fallback), "tomorrow maybe", false},
		{"13pm nope", now.Add(fallback), "13pm nope", false},
		{"0 min now", now.Add(fallback), "0 min now", false},
		{"", now.Add(fallback), "", false},
		{"in 10 min stretch", now.Add(10 * time.Minute), "stretch", true},
		{"at 5pm call mom", time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC), "call mom", true},
		{"18:30 dinner", time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC), "dinner", true},
		{"at 09:05 standup", time.Date(2025, 3, 11, 9, 5, 0, 0, time.UTC), "standup", true},
		{"24:00 nope", now.Add(fallback), "24:00 nope", false},
		{"365 days anniversary", now.Add(365 * 24 * time.Hour), "anniversary", true},
		{"366 days study", now.Add(fallback), "366 days study", false},
		{"200000 days study", now.Add(fallback), "200000 days study", false},
		{"9999999999 hours x", now.Add(fallback), "9999999999 hours x", false},
		{"99999999999999999999 min x", now.Add(fallback), "99999999999999999999 min x", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParsePhrase(tt.in, now, fallback)
			assert.Equal(t, tt.at, got.At)
			assert.Equal(t, tt.msg, got.Message)
			assert.Equal(t, tt.matched, got.Matched)
		})
	}
}

func TestSpan(t *testing.T) {
	d, ok := Span(90, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Minute, d)

	d, ok = Span(365, 24*time.Hour)
	assert.True(t, ok)
	assert.Equal(t, MaxLead, d)

	for _, n := range []int{0, -5, 365*24*60 + 1, 99999999999999} {
		_, ok := Span(n, time.Minute)
		assert.False(t, ok, "n=%d", n)
	}
}
