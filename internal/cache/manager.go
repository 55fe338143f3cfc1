package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// Reader is the read side of the cache. Handlers only ever see a Reader;
// writes go through the dispatcher.
type Reader interface {
	Get(ctx context.Context, table store.Table) ([]store.Record, error)
	GetForUser(ctx context.Context, table store.Table, userID string) ([]store.Record, error)
	Find(ctx context.Context, table store.Table, ref store.RecordRef) (store.Record, bool, error)
}

// tableCache is the snapshot of one table. mu also serialises every store
// call for the table.
type tableCache struct {
	mu            sync.Mutex
	name          store.Table
	records       []store.Record
	loaded        bool
	lastRefreshed time.Time
	byUser        map[string][]int
}

// Manager keeps a TTL-bounded snapshot per table plus a per-user index of
// record positions. Invalidate drops one user's index entry so the next
// GetForUser re-derives it from the snapshot; staleness against the store is
// bounded by the TTL.
type Manager struct {
	adapter store.Adapter
	clock   clockwork.Clock
	ttl     time.Duration
	logger  *zap.SugaredLogger
	tables  map[store.Table]*tableCache
	memo    *Memo
}

type Options struct {
	TTL      time.Duration
	MemoSize int
	MemoTTL  time.Duration
}

func NewManager(adapter store.Adapter, clock clockwork.Clock, logger *zap.SugaredLogger, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	tables := make(map[store.Table]*tableCache, len(store.AllTables))
	for _, t := range store.AllTables {
		tables[t] = &tableCache{name: t, byUser: map[string][]int{}}
	}
	return &Manager{
		adapter: adapter,
		clock:   clock,
		ttl:     opts.TTL,
		logger:  logger,
		tables:  tables,
		memo:    NewMemo(opts.MemoSize, opts.MemoTTL),
	}
}

// Memo returns the derived-value cache owned by the manager.
func (m *Manager) Memo() *Memo { return m.memo }

func (m *Manager) table(t store.Table) (*tableCache, error) {
	tc, ok := m.tables[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownTable, string(t))
	}
	return tc, nil
}

// ensureFresh reloads the snapshot when it was never loaded or is older than
// the TTL. A failed reload keeps serving the previous snapshot if there is
// one. Caller holds tc.mu.
func (m *Manager) ensureFresh(ctx context.Context, tc *tableCache) error {
	if tc.loaded && m.clock.Since(tc.lastRefreshed) <= m.ttl {
		return nil
	}
	if err := m.reload(ctx, tc); err != nil {
		if tc.loaded {
			m.logger.Warnw("cache refresh failed, serving stale snapshot", "table", tc.name, "err", err)
			return nil
		}
		return err
	}
	return nil
}

// reload fetches the whole table and rebuilds the per-user index. Caller holds tc.mu.
func (m *Manager) reload(ctx context.Context, tc *tableCache) error {
	records, err := m.adapter.GetAll(ctx, tc.name)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", tc.name, err)
	}
	owner := store.OwnerColumn(tc.name)
	byUser := make(map[string][]int)
	for i, r := range records {
		uid := r.Get(owner)
		byUser[uid] = append(byUser[uid], i)
	}
	tc.records = records
	tc.byUser = byUser
	tc.loaded = true
	tc.lastRefreshed = m.clock.Now()
	m.logger.Debugw("cache refreshed", "table", tc.name, "rows", len(records))
	return nil
}

// Get returns the table snapshot. The returned slice must not be modified.
func (m *Manager) Get(ctx context.Context, t store.Table) ([]store.Record, error) {
	tc, err := m.table(t)
	if err != nil {
		return nil, err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := m.ensureFresh(ctx, tc); err != nil {
		return nil, err
	}
	n := len(tc.records)
	return tc.records[:n:n], nil
}

// GetForUser returns the rows of t owned by userID, in table order.
func (m *Manager) GetForUser(ctx context.Context, t store.Table, userID string) ([]store.Record, error) {
	tc, err := m.table(t)
	if err != nil {
		return nil, err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := m.ensureFresh(ctx, tc); err != nil {
		return nil, err
	}
	positions, ok := tc.byUser[userID]
	if !ok {
		owner := store.OwnerColumn(t)
		positions = []int{}
		for i, r := range tc.records {
			if r.Get(owner) == userID {
				positions = append(positions, i)
			}
		}
		tc.byUser[userID] = positions
	}
	out := make([]store.Record, 0, len(positions))
	for _, p := range positions {
		out = append(out, tc.records[p])
	}
	return out, nil
}

// Find looks a row up by ref in the current snapshot.
func (m *Manager) Find(ctx context.Context, t store.Table, ref store.RecordRef) (store.Record, bool, error) {
	tc, err := m.table(t)
	if err != nil {
		return store.Record{}, false, err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := m.ensureFresh(ctx, tc); err != nil {
		return store.Record{}, false, err
	}
	for _, r := range tc.records {
		if r.Ref == ref {
			return r, true, nil
		}
	}
	return store.Record{}, false, nil
}

// Invalidate drops userID's index entry in every table along with the
// user's memoised derived values.
func (m *Manager) Invalidate(userID string) {
	for _, tc := range m.tables {
		tc.mu.Lock()
		delete(tc.byUser, userID)
		tc.mu.Unlock()
	}
	m.memo.Forget(userID)
}

// Refresh forces a blocking reload of t.
func (m *Manager) Refresh(ctx context.Context, t store.Table) error {
	tc, err := m.table(t)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return m.reload(ctx, tc)
}

// Append writes a row through to the store and patches the snapshot so the
// writer reads its own write before the TTL expires.
func (m *Manager) Append(ctx context.Context, t store.Table, fields map[string]string) (store.Record, error) {
	tc, err := m.table(t)
	if err != nil {
		return store.Record{}, err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	ref, err := m.adapter.Append(ctx, t, fields)
	if err != nil {
		return store.Record{}, err
	}
	rec := store.Record{Ref: ref, Fields: copyFields(t, fields)}
	if tc.loaded {
		tc.records = append(tc.records, rec)
		uid := rec.Get(store.OwnerColumn(t))
		if positions, ok := tc.byUser[uid]; ok {
			tc.byUser[uid] = append(positions[:len(positions):len(positions)], len(tc.records)-1)
		}
	}
	return rec, nil
}

// UpdateField writes one cell through to the store and patches the
// snapshot copy-on-write; slices already handed to readers are untouched.
func (m *Manager) UpdateField(ctx context.Context, t store.Table, ref store.RecordRef, field, value string) error {
	tc, err := m.table(t)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := m.adapter.UpdateField(ctx, t, ref, field, value); err != nil {
		return err
	}
	if !tc.loaded {
		return nil
	}
	for i, r := range tc.records {
		if r.Ref == ref {
			next := make([]store.Record, len(tc.records))
			copy(next, tc.records)
			next[i] = r.With(field, value)
			tc.records = next
			break
		}
	}
	return nil
}

// Delete removes a row and reloads the whole table: a deletion shifts the
// positions of every later row, not just the owner's.
func (m *Manager) Delete(ctx context.Context, t store.Table, ref store.RecordRef) error {
	tc, err := m.table(t)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := m.adapter.Delete(ctx, t, ref); err != nil {
		return err
	}
	if err := m.reload(ctx, tc); err != nil {
		// next read refetches
		tc.loaded = false
		m.logger.Warnw("refresh after delete failed", "table", t, "err", err)
	}
	return nil
}

func copyFields(t store.Table, fields map[string]string) map[string]string {
	out := make(map[string]string, len(store.Columns(t)))
	for _, c := range store.Columns(t) {
		out[c] = fields[c]
	}
	return out
}
