package cache

import (
	"testing"
	"time"
)

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](size, ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to be cached")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("got %q,%v want 1,true", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d, want 2", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	*now = now.Add(2 * time.Minute)
	c.Set("c", "3")

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Fatalf("got %q,%v want 3,true", v, ok)
	}
}

func TestLRUCache_DeletePrefixAndClear(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("u1\x00Food", "x")
	c.Set("u1\x00Gym", "y")
	c.Set("u2\x00Gym", "z")

	if n := c.DeletePrefix("u1\x00"); n != 2 {
		t.Fatalf("DeletePrefix = %d, want 2", n)
	}
	if _, ok := c.Get("u2\x00Gym"); !ok {
		t.Fatalf("expected u2 entry to survive")
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("size after Clear = %d", c.Size())
	}
}

type countingCleaner struct{ calls int }

func (c *countingCleaner) CleanExpired() int {
	c.calls++
	return 1
}

func TestManager_Sweep(t *testing.T) {
	m := NewManager()
	a, b := &countingCleaner{}, &countingCleaner{}
	m.Register(a)
	m.Register(b)

	if n := m.Sweep(); n != 2 {
		t.Fatalf("Sweep = %d, want 2", n)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("calls = %d,%d", a.calls, b.calls)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
