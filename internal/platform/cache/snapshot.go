// Package cache provides the display-layer snapshot cache used by the
// availability endpoints. It only ever serves reads for display; the booking
// commit path always goes to the store directly.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// entry holds a cached value and its expiration time.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// SnapshotCache is a thread-safe in-memory cache with lazy expiration and
// scope-based invalidation. Keys are namespaced "scope:rest"; Invalidate
// removes every key under a scope so a successful commit or cancellation for
// a location immediately drops all cached availability for it.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a SnapshotCache with the given TTL. A TTL of zero disables
// caching entirely: Get always misses and Set is a no-op.
func New(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key builds a namespaced cache key from a scope and a remainder.
func Key(scope, rest string) string {
	return scope + ":" + rest
}

// Get retrieves a value. Performs lazy expiration: deletes the entry and
// returns a miss if it has expired.
func (c *SnapshotCache) Get(key string) (interface{}, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value under the cache TTL.
func (c *SnapshotCache) Set(key string, value interface{}) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate removes every entry whose key belongs to the given scope.
func (c *SnapshotCache) Invalidate(scope string) {
	prefix := scope + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll removes all entries.
func (c *SnapshotCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// StartCleanup runs a background goroutine that periodically removes expired
// entries. It stops when the context is cancelled.
func (c *SnapshotCache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				now := c.now()
				for k, e := range c.entries {
					if now.After(e.expiresAt) {
						delete(c.entries, k)
					}
				}
				c.mu.Unlock()
			}
		}
	}()
}
