package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestSetAndGet(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", 1*time.Second)
	val, ok := c.Get("key1")
	if !ok || val != "value1" {
		t.Fatalf("expected value1, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string]().WithClock(clock.now)
	c.Set("key1", "value1", 100*time.Millisecond)
	clock.t = clock.t.Add(150 * time.Millisecond)
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected expired key to return false")
	}
	if n := c.Purge(); n != 1 {
		t.Fatalf("expected 1 purged entry, got %d", n)
	}
}

func TestDelete(t *testing.T) {
	c := New[int]()
	c.Set("key1", 1, 1*time.Second)
	c.Delete("key1")
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestPurgeKeepsLiveEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string]().WithClock(clock.now)
	c.Set("short", "s", time.Second)
	c.Set("long", "l", time.Hour)
	clock.t = clock.t.Add(time.Minute)
	if n := c.Purge(); n != 1 {
		t.Fatalf("expected 1 purged entry, got %d", n)
	}
	if n := c.Purge(); n != 0 {
		t.Fatalf("expected nothing left to purge, got %d", n)
	}
	if val, ok := c.Get("long"); !ok || val != "l" {
		t.Fatalf("expected long-lived entry to survive, got %v, exists=%v", val, ok)
	}
}
