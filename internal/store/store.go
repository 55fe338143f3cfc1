package store

import (
	"context"
	"errors"
	"strconv"
)

// sentinel errors for common failure modes
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreRateLimited = errors.New("store rate limited")
	ErrRecordNotFound   = errors.New("record not found")
	ErrUnknownField     = errors.New("unknown field")
	ErrUnknownTable     = errors.New("unknown table")
)

// RecordRef identifies a stored row. It is issued by an Adapter and must be
// handed back unchanged; callers never derive one from a row position.
type RecordRef struct {
	id int64
}

func (r RecordRef) IsZero() bool { return r.id == 0 }

func (r RecordRef) String() string { return strconv.FormatInt(r.id, 10) }

// Record is one row of a table. Cell values are kept as strings, the way the
// remote sheet stores them; typed decoding happens in the entity package.
type Record struct {
	Ref    RecordRef
	Fields map[string]string
}

// Get returns the cell value for field, or "" when the cell is empty.
func (r Record) Get(field string) string {
	return r.Fields[field]
}

// With returns a copy of r with field set to value.
func (r Record) With(field, value string) Record {
	fields := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields[field] = value
	return Record{Ref: r.Ref, Fields: fields}
}

// Adapter is the uniform row API over a named table. There are no
// transactions: a multi-field change is a sequence of UpdateField calls and
// readers may observe a row half way through it.
type Adapter interface {
	// GetAll returns every row of table in insertion order.
	GetAll(ctx context.Context, table Table) ([]Record, error)
	Append(ctx context.Context, table Table, fields map[string]string) (RecordRef, error)
	UpdateField(ctx context.Context, table Table, ref RecordRef, field, value string) error
	Delete(ctx context.Context, table Table, ref RecordRef) error
}

// IsTransient reports whether err is worth one more attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreRateLimited)
}
