package store

import (
	"context"
	"fmt"
	"sync"
)

// FaultFunc lets tests inject store failures. It is called before every
// operation with the operation name ("get", "append", "update", "delete").
type FaultFunc func(op string, table Table) error

type memRow struct {
	id     int64
	fields map[string]string
}

// MemoryAdapter keeps every table in process memory. It backs the
// "memory" driver and the tests of every layer above the adapter.
type MemoryAdapter struct {
	mu     sync.Mutex
	nextID int64
	tables map[Table][]memRow
	fault  FaultFunc
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{tables: make(map[Table][]memRow)}
}

// SetFault installs (or clears, with nil) a fault injection hook.
func (m *MemoryAdapter) SetFault(f FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

func (m *MemoryAdapter) check(op string, table Table) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if m.fault != nil {
		return m.fault(op, table)
	}
	return nil
}

func (m *MemoryAdapter) GetAll(ctx context.Context, table Table) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get", table); err != nil {
		return nil, err
	}
	rows := m.tables[table]
	out := make([]Record, len(rows))
	for i, r := range rows {
		fields := make(map[string]string, len(r.fields))
		for k, v := range r.fields {
			fields[k] = v
		}
		out[i] = Record{Ref: RecordRef{id: r.id}, Fields: fields}
	}
	return out, nil
}

func (m *MemoryAdapter) Append(ctx context.Context, table Table, fields map[string]string) (RecordRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("append", table); err != nil {
		return RecordRef{}, err
	}
	norm, err := normalizeFields(table, fields)
	if err != nil {
		return RecordRef{}, err
	}
	m.nextID++
	m.tables[table] = append(m.tables[table], memRow{id: m.nextID, fields: norm})
	return RecordRef{id: m.nextID}, nil
}

func (m *MemoryAdapter) UpdateField(ctx context.Context, table Table, ref RecordRef, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update", table); err != nil {
		return err
	}
	if !HasColumn(table, field) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, table, field)
	}
	for _, r := range m.tables[table] {
		if r.id == ref.id {
			r.fields[field] = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, ref)
}

func (m *MemoryAdapter) Delete(ctx context.Context, table Table, ref RecordRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete", table); err != nil {
		return err
	}
	rows := m.tables[table]
	for i, r := range rows {
		if r.id == ref.id {
			m.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, ref)
}

// Len returns the row count of table.
func (m *MemoryAdapter) Len(table Table) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}
