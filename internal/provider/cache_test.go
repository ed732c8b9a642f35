package provider

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/kitsurai/torii/internal/anime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testRecords(titles ...string) []anime.Record {
	out := make([]anime.Record, 0, len(titles))
	for _, title := range titles {
		out = append(out, anime.Record{Titles: anime.Titles{Main: title}})
	}
	return out
}

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute, time.Second, 10, testLogger())

	key := CacheKey(NameJikan, "search", "Naruto", 5)
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(key, testRecords("Naruto"))
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(got) != 1 || got[0].Titles.Main != "Naruto" {
		t.Errorf("got %v", got)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}
}

func TestCacheKeyNormalizesCase(t *testing.T) {
	a := CacheKey(NameJikan, "search", "Naruto", 5)
	b := CacheKey(NameJikan, "search", "naruto", 5)
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(20*time.Millisecond, 5*time.Millisecond, 10, testLogger())

	c.Set("found", testRecords("X"))
	c.Set("empty", nil)

	time.Sleep(10 * time.Millisecond)
	// Not-found TTL is shorter, so the empty entry expires first.
	if _, ok := c.Get("empty"); ok {
		t.Error("empty entry should have expired on not-found TTL")
	}
	if _, ok := c.Get("found"); !ok {
		t.Error("found entry should still be cached")
	}

	time.Sleep(15 * time.Millisecond)
	if _, ok := c.Get("found"); ok {
		t.Error("found entry should have expired")
	}
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := NewCache(time.Minute, time.Minute, 10, testLogger())

	for i := 0; i < 11; i++ {
		c.Set(fmt.Sprintf("key-%d", i), testRecords("X"))
		time.Sleep(time.Millisecond)
	}

	if got := c.Stats().Entries; got > 10 {
		t.Errorf("entries = %d, want <= 10 after eviction", got)
	}
	// Oldest keys go first.
	if _, ok := c.Get("key-0"); ok {
		t.Error("key-0 should have been evicted")
	}
	if _, ok := c.Get("key-10"); !ok {
		t.Error("key-10 should survive eviction")
	}
}

func TestCacheInFlightMarkers(t *testing.T) {
	c := NewCache(time.Minute, time.Minute, 10, testLogger())

	if !c.TryMarkInFlight("k") {
		t.Fatal("first mark should succeed")
	}
	if c.TryMarkInFlight("k") {
		t.Fatal("second mark should fail while in flight")
	}

	c.Set("k", testRecords("X"))
	// Set releases the marker.
	if !c.TryMarkInFlight("k") {
		t.Error("mark should succeed after Set released it")
	}

	c.ClearInFlight("k")
	if !c.TryMarkInFlight("k") {
		t.Error("mark should succeed after ClearInFlight")
	}
}

func TestCacheSweep(t *testing.T) {
	c := NewCache(time.Millisecond, time.Millisecond, 10, testLogger())
	c.Set("a", testRecords("A"))
	c.Set("b", testRecords("B"))

	time.Sleep(5 * time.Millisecond)
	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d after sweep, want 0", got)
	}
}
