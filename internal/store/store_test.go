package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestSQLAdapter opens a SQLite-backed adapter in a temp dir.
func createTestSQLAdapter(t *testing.T) *SQLAdapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	a := NewSQLAdapter(db)
	require.NoError(t, a.EnsureTable(context.Background()))
	return a
}

func adapters(t *testing.T) map[string]Adapter {
	return map[string]Adapter{
		"memory": NewMemoryAdapter(),
		"sqlite": createTestSQLAdapter(t),
	}
}

func TestAdapter_AppendGetAllPreservesOrder(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"u1", "u2", "u3"} {
				_, err := a.Append(ctx, Users, map[string]string{"UserID": id, "Username": "name-" + id})
				require.NoError(t, err)
			}

			rows, err := a.GetAll(ctx, Users)
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, "u1", rows[0].Get("UserID"))
			assert.Equal(t, "u2", rows[1].Get("UserID"))
			assert.Equal(t, "u3", rows[2].Get("UserID"))
			// missing canonical columns are stored empty
			assert.Equal(t, "", rows[0].Get("TotalXP"))
			assert.Contains(t, rows[0].Fields, "Badges")
		})
	}
}

func TestAdapter_TablesAreIsolated(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := a.Append(ctx, Tasks, map[string]string{"TaskID": "t1"})
			require.NoError(t, err)

			rows, err := a.GetAll(ctx, Goals)
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestAdapter_UpdateField(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref, err := a.Append(ctx, Sessions, map[string]string{"SessionID": "s1", "Status": "Active"})
			require.NoError(t, err)

			require.NoError(t, a.UpdateField(ctx, Sessions, ref, "Status", "Break"))

			rows, err := a.GetAll(ctx, Sessions)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Break", rows[0].Get("Status"))
			assert.Equal(t, "s1", rows[0].Get("SessionID"))
			assert.Equal(t, ref, rows[0].Ref)
		})
	}
}

func TestAdapter_UpdateUnknownFieldFails(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref, err := a.Append(ctx, Sessions, map[string]string{"SessionID": "s1"})
			require.NoError(t, err)

			err = a.UpdateField(ctx, Sessions, ref, "Nope", "x")
			assert.True(t, errors.Is(err, ErrUnknownField))
		})
	}
}

func TestAdapter_AppendUnknownFieldFails(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := a.Append(context.Background(), Goals, map[string]string{"TaskName": "x"})
			assert.True(t, errors.Is(err, ErrUnknownField))
		})
	}
}

func TestAdapter_DeleteKeepsOtherRefsValid(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r1, err := a.Append(ctx, Tasks, map[string]string{"TaskID": "t1"})
			require.NoError(t, err)
			r2, err := a.Append(ctx, Tasks, map[string]string{"TaskID": "t2"})
			require.NoError(t, err)
			r3, err := a.Append(ctx, Tasks, map[string]string{"TaskID": "t3"})
			require.NoError(t, err)

			require.NoError(t, a.Delete(ctx, Tasks, r1))
			// r3 is still addressable after an earlier row disappeared
			require.NoError(t, a.UpdateField(ctx, Tasks, r3, "Status", "Completed"))

			rows, err := a.GetAll(ctx, Tasks)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, r2, rows[0].Ref)
			assert.Equal(t, "Completed", rows[1].Get("Status"))
		})
	}
}

func TestAdapter_MissingRef(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref, err := a.Append(ctx, Plans, map[string]string{"PlanID": "p1"})
			require.NoError(t, err)
			require.NoError(t, a.Delete(ctx, Plans, ref))

			assert.True(t, errors.Is(a.Delete(ctx, Plans, ref), ErrRecordNotFound))
			assert.True(t, errors.Is(a.UpdateField(ctx, Plans, ref, "Plan", "x"), ErrRecordNotFound))
		})
	}
}

func TestAdapter_UnknownTable(t *testing.T) {
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := a.GetAll(context.Background(), Table("Nope"))
			assert.True(t, errors.Is(err, ErrUnknownTable))
		})
	}
}

func TestSQLAdapter_EnsureTableIdempotent(t *testing.T) {
	a := createTestSQLAdapter(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.EnsureTable(context.Background()))
	}
}

func TestMemoryAdapter_FaultInjection(t *testing.T) {
	a := NewMemoryAdapter()
	a.SetFault(func(op string, table Table) error {
		if op == "append" {
			return ErrStoreUnavailable
		}
		return nil
	})

	_, err := a.Append(context.Background(), Users, map[string]string{"UserID": "u1"})
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, IsTransient(err))
	assert.Equal(t, 0, a.Len(Users))

	a.SetFault(nil)
	_, err = a.Append(context.Background(), Users, map[string]string{"UserID": "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len(Users))
}

func TestMemoryAdapter_GetAllReturnsCopies(t *testing.T) {
	a := NewMemoryAdapter()
	ctx := context.Background()
	_, err := a.Append(ctx, Users, map[string]string{"UserID": "u1", "TotalXP": "5"})
	require.NoError(t, err)

	rows, err := a.GetAll(ctx, Users)
	require.NoError(t, err)
	rows[0].Fields["TotalXP"] = "999"

	again, err := a.GetAll(ctx, Users)
	require.NoError(t, err)
	assert.Equal(t, "5", again[0].Get("TotalXP"))
}

func TestThrottle_WritesOverQuotaAreRateLimited(t *testing.T) {
	a := Throttle(NewMemoryAdapter(), 0.001, 1)
	ctx := context.Background()

	_, err := a.Append(ctx, Users, map[string]string{"UserID": "u1"})
	require.NoError(t, err)

	_, err = a.Append(ctx, Users, map[string]string{"UserID": "u2"})
	assert.True(t, errors.Is(err, ErrStoreRateLimited))
	assert.True(t, IsTransient(err))
}

func TestRecord_WithCopies(t *testing.T) {
	r := Record{Fields: map[string]string{"A": "1"}}
	r2 := r.With("A", "2")
	assert.Equal(t, "1", r.Get("A"))
	assert.Equal(t, "2", r2.Get("A"))
}
