// Package cache implements a typed in-memory cache whose entries remember when
// they were written. Freshness is decided by the caller at read time; there
// is no background sweep and no capacity bound.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value and the instant it was last written.
type Entry[V any] struct {
	Value    V
	CachedAt time.Time
}

// Age returns how long ago the entry was written. The second result is false
// when now is before CachedAt (the clock moved backwards).
func (e Entry[V]) Age(now time.Time) (time.Duration, bool) {
	if now.Before(e.CachedAt) {
		return 0, false
	}
	return now.Sub(e.CachedAt), true
}

// IsStale reports whether the entry is older than ttl. An entry whose age
// cannot be computed is stale.
func (e Entry[V]) IsStale(ttl time.Duration, now time.Time) bool {
	age, ok := e.Age(now)
	if !ok {
		return true
	}
	return age > ttl
}

// Cache maps keys to timestamped values. It is safe for concurrent use; each
// method is atomic for its key and the last completed Insert wins.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]Entry[V]
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New returns an empty cache.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{entries: make(map[K]Entry[V]), now: o.now}
}

// Now returns the cache's notion of the current time.
func (c *Cache[K, V]) Now() time.Time { return c.now() }

// Get returns the entry for key without judging its freshness.
func (c *Cache[K, V]) Get(key K) (Entry[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return e, ok
}

// Insert stores value under key and stamps it with the current time.
func (c *Cache[K, V]) Insert(key K, value V) {
	e := Entry[V]{Value: value, CachedAt: c.now()}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Remove drops key. Removing an absent key is a no-op.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, fresh or stale.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
