package cache

import (
	"testing"
	"time"

	"app/internal/clock"
)

func TestTTLCacheExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int](45*time.Second, clk)

	c.Set("u1", 7)
	if v, ok := c.Get("u1"); !ok || v != 7 {
		t.Fatalf("expected hit with 7, got %v ok=%v", v, ok)
	}

	clk.Advance(44 * time.Second)
	if _, ok := c.Get("u1"); !ok {
		t.Fatal("entry expired before TTL elapsed")
	}

	clk.Advance(2 * time.Second)
	if _, ok := c.Get("u1"); ok {
		t.Fatal("entry survived past TTL")
	}
}

func TestTTLCacheInvalidate(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, string](time.Minute, clk)

	c.Set("u1", "pro")
	c.Invalidate("u1")
	if _, ok := c.Get("u1"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestTTLCacheMissOnUnknownKey(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewTTLCache[string, int](time.Minute, clk)
	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss for unknown key")
	}
}
