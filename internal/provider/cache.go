package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kitsurai/torii/internal/anime"
)

// Cache is a TTL response cache for provider queries, keyed per provider
// and operation. Empty payloads (miss responses) are kept on a shorter TTL
// so transient provider gaps heal quickly. In-flight markers let concurrent
// callers of the same key wait briefly for the first request instead of
// duplicating it upstream.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	inFlight    map[string]time.Time
	defaultTTL  time.Duration
	notFoundTTL time.Duration
	maxEntries  int
	logger      *slog.Logger

	hits   int64
	misses int64
}

type cacheEntry struct {
	records   []anime.Record
	createdAt time.Time
	expiresAt time.Time
}

// inFlightWait is how long a caller waits for another goroutine's request
// for the same key before issuing its own.
const inFlightWait = 150 * time.Millisecond

// inFlightExpiry bounds how long a stale marker can suppress requests if
// the owning goroutine died without clearing it.
const inFlightExpiry = 30 * time.Second

// NewCache creates a provider response cache.
func NewCache(defaultTTL, notFoundTTL time.Duration, maxEntries int, logger *slog.Logger) *Cache {
	return &Cache{
		entries:     make(map[string]*cacheEntry),
		inFlight:    make(map[string]time.Time),
		defaultTTL:  defaultTTL,
		notFoundTTL: notFoundTTL,
		maxEntries:  maxEntries,
		logger:      logger.With(slog.String("component", "provider-cache")),
	}
}

// CacheKey builds a cache key from a provider, operation, and its
// arguments. String arguments are lowercased so query casing does not
// fragment the cache.
func CacheKey(provider Name, op string, args ...any) string {
	var b strings.Builder
	b.WriteString(string(provider))
	b.WriteByte(':')
	b.WriteString(op)
	for _, arg := range args {
		b.WriteByte(':')
		if s, ok := arg.(string); ok {
			b.WriteString(strings.ToLower(s))
		} else {
			fmt.Fprintf(&b, "%v", arg)
		}
	}
	return b.String()
}

// Get returns the cached records for a key. Expired entries are removed
// lazily on read.
func (c *Cache) Get(key string) ([]anime.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.records, true
}

// Set stores records for a key and releases its in-flight marker. An empty
// payload is cached on the shorter not-found TTL.
func (c *Cache) Set(key string, records []anime.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.defaultTTL
	if len(records) == 0 {
		ttl = c.notFoundTTL
	}
	now := time.Now()
	c.entries[key] = &cacheEntry{
		records:   records,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	delete(c.inFlight, key)

	if len(c.entries) > c.maxEntries {
		c.evictLocked()
	}
}

// TryMarkInFlight claims the in-flight marker for a key. It returns true
// when the caller should perform the upstream request, false when another
// goroutine already holds the marker.
func (c *Cache) TryMarkInFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if marked, ok := c.inFlight[key]; ok && time.Since(marked) < inFlightExpiry {
		return false
	}
	c.inFlight[key] = time.Now()
	return true
}

// ClearInFlight releases the marker without storing a result, letting
// waiters proceed with their own requests.
func (c *Cache) ClearInFlight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}

// WaitInFlight pauses briefly for an in-flight request on the same key and
// returns whatever is cached afterwards. Returns false if nothing landed.
func (c *Cache) WaitInFlight(ctx context.Context, key string) ([]anime.Record, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(inFlightWait):
	}
	return c.Get(key)
}

// evictLocked drops oldest-created entries until the cache is at 90% of
// capacity. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	target := c.maxEntries * 9 / 10
	if target < 1 {
		target = 1
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, aged{key, entry.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })

	evicted := 0
	for _, a := range all {
		if len(c.entries) <= target {
			break
		}
		delete(c.entries, a.key)
		evicted++
	}
	c.logger.Debug("evicted cache entries", slog.Int("count", evicted), slog.Int("remaining", len(c.entries)))
}

// Sweep removes expired entries and stale in-flight markers. Called
// periodically by the daemon.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	for key, marked := range c.inFlight {
		if now.Sub(marked) >= inFlightExpiry {
			delete(c.inFlight, key)
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired cache entries", slog.Int("count", removed))
	}
	return removed
}

// Stats reports cache occupancy and hit counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// CacheStats is a point-in-time cache snapshot.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
