package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoize_ReusesValueForSameStamp(t *testing.T) {
	m := NewMemo(16, time.Hour)
	calls := 0
	compute := func() (int, error) { calls++; return 7, nil }

	v, err := Memoize(m, "u1", "streak", "2026-03-01", compute)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	v, err = Memoize(m, "u1", "streak", "2026-03-01", compute)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, calls)

	_, err = Memoize(m, "u1", "streak", "2026-03-02", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "new stamp recomputes")
}

func TestMemo_ForgetDropsOnlyThatUser(t *testing.T) {
	m := NewMemo(16, time.Hour)
	_, _ = Memoize(m, "u1", "rank", "10", func() (string, error) { return "a", nil })
	_, _ = Memoize(m, "u1", "badges", "10", func() ([]string, error) { return nil, nil })
	_, _ = Memoize(m, "u10", "rank", "10", func() (string, error) { return "b", nil })

	m.Forget("u1")
	assert.Equal(t, 1, m.Len())
}

func TestMemoize_ErrorsAreNotCached(t *testing.T) {
	m := NewMemo(16, time.Hour)
	boom := errors.New("boom")
	_, err := Memoize(m, "u1", "streak", "s", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())
}

func TestMemo_IsSized(t *testing.T) {
	m := NewMemo(2, time.Hour)
	for _, u := range []string{"a", "b", "c"} {
		_, _ = Memoize(m, u, "rank", "0", func() (string, error) { return u, nil })
	}
	assert.Equal(t, 2, m.Len())
}
