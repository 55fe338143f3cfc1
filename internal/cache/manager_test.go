package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// countingAdapter counts GetAll calls per table.
type countingAdapter struct {
	*store.MemoryAdapter
	gets atomic.Int64
}

func (c *countingAdapter) GetAll(ctx context.Context, t store.Table) ([]store.Record, error) {
	c.gets.Add(1)
	return c.MemoryAdapter.GetAll(ctx, t)
}

func newTestManager(t *testing.T) (*Manager, *countingAdapter, *clockwork.FakeClock) {
	t.Helper()
	adapter := &countingAdapter{MemoryAdapter: store.NewMemoryAdapter()}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local))
	m := NewManager(adapter, clock, zaptest.NewLogger(t).Sugar(), Options{TTL: time.Minute})
	return m, adapter, clock
}

func seed(t *testing.T, a store.Adapter, table store.Table, rows ...map[string]string) {
	t.Helper()
	for _, r := range rows {
		_, err := a.Append(context.Background(), table, r)
		require.NoError(t, err)
	}
}

func TestGet_ServesSnapshotWithinTTL(t *testing.T) {
	m, a, clock := newTestManager(t)
	seed(t, a, store.Users, map[string]string{"UserID": "u1"})
	ctx := context.Background()

	rows, err := m.Get(ctx, store.Users)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// a row written behind the cache's back stays invisible until the TTL passes
	seed(t, a, store.Users, map[string]string{"UserID": "u2"})
	clock.Advance(30 * time.Second)
	rows, err = m.Get(ctx, store.Users)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.EqualValues(t, 1, a.gets.Load())

	clock.Advance(31 * time.Second)
	rows, err = m.Get(ctx, store.Users)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.EqualValues(t, 2, a.gets.Load())
}

func TestGetForUser_UsesIndex(t *testing.T) {
	m, a, _ := newTestManager(t)
	seed(t, a, store.Tasks,
		map[string]string{"TaskID": "t1", "UserID": "u1"},
		map[string]string{"TaskID": "t2", "UserID": "u2"},
		map[string]string{"TaskID": "t3", "UserID": "u1"},
	)

	rows, err := m.GetForUser(context.Background(), store.Tasks, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "t1", rows[0].Get("TaskID"))
	assert.Equal(t, "t3", rows[1].Get("TaskID"))

	none, err := m.GetForUser(context.Background(), store.Tasks, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetForUser_ReportsUseReporterColumn(t *testing.T) {
	m, a, _ := newTestManager(t)
	seed(t, a, store.Reports, map[string]string{"ReportID": "r1", "ReporterID": "u1"})

	rows, err := m.GetForUser(context.Background(), store.Reports, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAppend_WritesThroughSnapshot(t *testing.T) {
	m, a, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.GetForUser(ctx, store.Tasks, "u1")
	require.NoError(t, err)

	rec, err := m.Append(ctx, store.Tasks, map[string]string{"TaskID": "t1", "UserID": "u1"})
	require.NoError(t, err)
	assert.False(t, rec.Ref.IsZero())

	rows, err := m.GetForUser(ctx, store.Tasks, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0].Get("TaskID"))
	assert.EqualValues(t, 1, a.gets.Load(), "append must not trigger a refetch")
}

func TestUpdateField_CopyOnWrite(t *testing.T) {
	m, a, _ := newTestManager(t)
	seed(t, a, store.Sessions, map[string]string{"SessionID": "s1", "UserID": "u1", "Status": "Active"})
	ctx := context.Background()

	before, err := m.Get(ctx, store.Sessions)
	require.NoError(t, err)

	require.NoError(t, m.UpdateField(ctx, store.Sessions, before[0].Ref, "Status", "Break"))

	after, err := m.Get(ctx, store.Sessions)
	require.NoError(t, err)
	assert.Equal(t, "Break", after[0].Get("Status"))
	assert.Equal(t, "Active", before[0].Get("Status"), "reader snapshot must not change under it")
}

func TestDelete_RefreshesWholeTable(t *testing.T) {
	m, a, _ := newTestManager(t)
	seed(t, a, store.Sessions,
		map[string]string{"SessionID": "s1", "UserID": "u1"},
		map[string]string{"SessionID": "s2", "UserID": "u2"},
	)
	ctx := context.Background()
	rows, err := m.Get(ctx, store.Sessions)
	require.NoError(t, err)
	// warm u2's index entry so a stale position would be observable
	_, err = m.GetForUser(ctx, store.Sessions, "u2")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, store.Sessions, rows[0].Ref))

	u2, err := m.GetForUser(ctx, store.Sessions, "u2")
	require.NoError(t, err)
	require.Len(t, u2, 1)
	assert.Equal(t, "s2", u2[0].Get("SessionID"))
	assert.EqualValues(t, 2, a.gets.Load())
}

func TestInvalidate_RederivesFromSnapshot(t *testing.T) {
	m, a, _ := newTestManager(t)
	seed(t, a, store.Goals, map[string]string{"GoalID": "g1", "UserID": "u1"})
	ctx := context.Background()
	_, err := m.GetForUser(ctx, store.Goals, "u1")
	require.NoError(t, err)

	m.Invalidate("u1")
	rows, err := m.GetForUser(ctx, store.Goals, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.EqualValues(t, 1, a.gets.Load(), "invalidation does not force a remote fetch")
}

func TestFind(t *testing.T) {
	m, a, _ := newTestManager(t)
	seed(t, a, store.Reminders, map[string]string{"ReminderID": "r1"})
	ctx := context.Background()
	rows, err := m.Get(ctx, store.Reminders)
	require.NoError(t, err)

	got, ok, err := m.Find(ctx, store.Reminders, rows[0].Ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", got.Get("ReminderID"))

	_, ok, err = m.Find(ctx, store.Reminders, store.RecordRef{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_StaleSnapshotOnRefreshFailure(t *testing.T) {
	m, a, clock := newTestManager(t)
	seed(t, a, store.Users, map[string]string{"UserID": "u1"})
	ctx := context.Background()
	_, err := m.Get(ctx, store.Users)
	require.NoError(t, err)

	a.SetFault(func(op string, table store.Table) error { return store.ErrStoreUnavailable })
	clock.Advance(2 * time.Minute)
	rows, err := m.Get(ctx, store.Users)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGet_ColdFailureSurfaces(t *testing.T) {
	m, a, _ := newTestManager(t)
	a.SetFault(func(op string, table store.Table) error { return store.ErrStoreUnavailable })

	_, err := m.Get(context.Background(), store.Users)
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
}

func TestGet_UnknownTable(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Get(context.Background(), store.Table("Nope"))
	assert.True(t, errors.Is(err, store.ErrUnknownTable))
}
