// Package cache holds per-user read caches and their invalidation hooks.
package cache

import (
	"context"
	"sync"
	"time"
)

// ListCache keeps one value per user for a bounded time. Every Invalidate
// advances the user's generation; a Put carrying an older generation is
// dropped so a read that raced a mutation cannot restore stale data.
type ListCache[T any] struct {
	mu          sync.Mutex
	ttl         time.Duration
	now         func() time.Time
	entries     map[string]listEntry[T]
	generations map[string]uint64
}

type listEntry[T any] struct {
	value   T
	expires time.Time
}

// NewListCache builds a cache whose entries go stale after ttl. A non-positive
// ttl disables caching.
func NewListCache[T any](ttl time.Duration) *ListCache[T] {
	return &ListCache[T]{
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[string]listEntry[T]),
		generations: make(map[string]uint64),
	}
}

// Get returns the cached value while it is fresh.
func (c *ListCache[T]) Get(userID string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	entry, ok := c.entries[userID]
	if !ok {
		return zero, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, userID)
		return zero, false
	}
	return entry.value, true
}

// Generation returns the user's current generation. Read it before loading
// the value that will be passed to Put.
func (c *ListCache[T]) Generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// Put stores value for the user unless the user was invalidated after
// generation was read. It reports whether the value was kept.
func (c *ListCache[T]) Put(userID string, generation uint64, value T) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != generation {
		return false
	}
	c.entries[userID] = listEntry[T]{value: value, expires: c.now().Add(c.ttl)}
	return true
}

// Invalidate drops the user's entry and advances the generation.
func (c *ListCache[T]) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.generations[userID]++
	return nil
}

// Len reports how many entries are held, stale ones included.
func (c *ListCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
