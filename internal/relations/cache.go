package relations

import (
	"sync"
	"time"
)

// Tier cache TTLs. Each tier ages out independently.
const (
	basicTTL     = time.Hour
	detailedTTL  = 6 * time.Hour
	franchiseTTL = 24 * time.Hour
)

type cacheEntry[T any] struct {
	value    T
	cachedAt time.Time
}

// tierCache is a small per-tier TTL cache keyed by anime id. Staleness is
// checked against the stored timestamp on every read.
type tierCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[T]
}

func newTierCache[T any](ttl time.Duration) *tierCache[T] {
	return &tierCache[T]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[T]),
	}
}

func (c *tierCache[T]) get(key string) (T, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	var zero T
	if !ok {
		return zero, false
	}
	if time.Since(entry.cachedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return zero, false
	}
	return entry.value, true
}

func (c *tierCache[T]) set(key string, value T) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: value, cachedAt: time.Now()}
	c.mu.Unlock()
}

func (c *tierCache[T]) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
