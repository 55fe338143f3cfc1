// Package entity maps store rows onto typed values. Rows come from a store
// without schema enforcement, so decoding is strict and callers skip rows
// that fail with ErrMalformedRecord.
package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// TimeLayout is the persisted timestamp format (local wall time, no zone).
const TimeLayout = "2006-01-02 15:04:05"

// MonthLayout is the bucket key of the Activities.Month column.
const MonthLayout = "2006-01"

// DateLayout renders calendar days.
const DateLayout = "2006-01-02"

var ErrMalformedRecord = errors.New("malformed record")

// FormatTime renders t in loc; the zero time renders as "".
func FormatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(TimeLayout)
}

// ParseTime reads a persisted timestamp as wall time in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, strings.TrimSpace(s), loc)
}

// MonthKey is the Month bucket of t in loc.
func MonthKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(MonthLayout)
}

// decoder accumulates the first decoding error of a row.
type decoder struct {
	r   store.Record
	loc *time.Location
	err error
}

func (d *decoder) fail(field, value string, cause error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s=%q: %v", ErrMalformedRecord, field, value, cause)
	}
}

func (d *decoder) str(field string) string {
	return strings.TrimSpace(d.r.Get(field))
}

func (d *decoder) required(field string) string {
	v := d.str(field)
	if v == "" {
		d.fail(field, v, errors.New("empty"))
	}
	return v
}

// int reads an integer cell; a blank cell counts as 0.
func (d *decoder) int(field string) int {
	v := d.str(field)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		d.fail(field, v, err)
	}
	return n
}

func (d *decoder) time(field string) time.Time {
	v := d.str(field)
	t, err := ParseTime(v, d.loc)
	if err != nil {
		d.fail(field, v, err)
	}
	return t
}

// optTime reads a timestamp that may be blank.
func (d *decoder) optTime(field string) time.Time {
	if d.str(field) == "" {
		return time.Time{}
	}
	return d.time(field)
}

func itoa(n int) string { return strconv.Itoa(n) }
