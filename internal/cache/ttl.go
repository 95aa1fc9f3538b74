package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is an unbounded in-memory map whose entries expire a fixed duration
// after insertion. Expired entries are dropped when read.
type TTL[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[K]entry[V]
}

type Option[K comparable, V any] func(*TTL[K, V])

// WithClock replaces time.Now, for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *TTL[K, V]) {
		c.now = now
	}
}

func NewTTL[K comparable, V any](ttl time.Duration, opts ...Option[K, V]) *TTL[K, V] {
	c := &TTL[K, V]{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[K]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTL[K, V]) Put(key K, value V) {
	c.PutTTL(key, value, c.ttl)
}

// PutTTL stores value with a per-entry lifetime instead of the default one.
func (c *TTL[K, V]) PutTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet read.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}
