package cache

import (
	"sync"
	"time"

	"app/internal/clock"
)

// TTLCache is a small in-memory cache with per-entry expiry. The clock is
// injected so tests can control time and expiry deterministically.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clk     clock.Clock
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLCache returns a cache whose entries expire ttl after they are set.
func NewTTLCache[K comparable, V any](ttl time.Duration, clk clock.Clock) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clk:     clk,
	}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clk.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.clk.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops a single entry. Used when the authoritative record changes
// (e.g. a payment webhook updates subscription state).
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
