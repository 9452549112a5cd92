package client

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCache_GetPut(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewCache(clock.Now)

	if _, ok := c.Get("k"); ok {
		t.Fatal("Get() on empty cache returned a value")
	}

	c.Put("k", "ep", json.RawMessage(`1`), time.Second)
	if v, ok := c.Get("k"); !ok || string(v) != "1" {
		t.Errorf("Get() = (%s, %v), want (1, true)", v, ok)
	}

	clock.Advance(999 * time.Millisecond)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should still be fresh just before its TTL")
	}

	clock.Advance(time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should expire once now - capturedAt reaches TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", c.Len())
	}
}

func TestCache_ZeroTTLStoresNothing(t *testing.T) {
	c := NewCache(nil)
	c.Put("k", "ep", json.RawMessage(`1`), 0)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_InvalidateEndpoint(t *testing.T) {
	c := NewCache(nil)
	c.Put("a?1", "a", json.RawMessage(`1`), time.Minute)
	c.Put("a?2", "a", json.RawMessage(`2`), time.Minute)
	c.Put("b", "b", json.RawMessage(`3`), time.Minute)

	if n := c.InvalidateEndpoint("a"); n != 2 {
		t.Errorf("InvalidateEndpoint() = %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.Invalidate("missing")
	c.Invalidate("b")
	c.Invalidate("b")
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_PurgeAndStats(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewCache(clock.Now)
	c.Put("short", "ep", json.RawMessage(`1`), time.Second)
	c.Put("long", "ep", json.RawMessage(`2`), time.Hour)

	clock.Advance(2 * time.Second)
	if n := c.Purge(); n != 1 {
		t.Errorf("Purge() = %d, want 1", n)
	}

	c.Get("long")
	c.Get("short")
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", s.HitRate)
	}
}
