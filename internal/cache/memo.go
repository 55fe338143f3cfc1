package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoEntry struct {
	stamp string
	value any
}

// Memo is a sized, time-bounded cache for values derived from one user's
// records (rank, badges, streak). Entries carry a stamp describing their
// inputs; a lookup with a different stamp recomputes.
type Memo struct {
	lru *expirable.LRU[string, memoEntry]
}

func NewMemo(size int, ttl time.Duration) *Memo {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Memo{lru: expirable.NewLRU[string, memoEntry](size, nil, ttl)}
}

func memoKey(userID, kind string) string { return userID + "|" + kind }

// Forget drops every entry of userID.
func (m *Memo) Forget(userID string) {
	prefix := userID + "|"
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.lru.Remove(k)
		}
	}
}

func (m *Memo) Len() int { return m.lru.Len() }

// Memoize returns the cached value of (userID, kind) if it was computed for
// the same stamp, otherwise computes and stores it. Errors are not cached.
func Memoize[T any](m *Memo, userID, kind, stamp string, compute func() (T, error)) (T, error) {
	key := memoKey(userID, kind)
	if e, ok := m.lru.Get(key); ok && e.stamp == stamp {
		if v, ok := e.value.(T); ok {
			return v, nil
		}
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	m.lru.Add(key, memoEntry{stamp: stamp, value: v})
	return v, nil
}
