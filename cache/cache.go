package cache

import (
	"sync"
	"time"
)

// DefaultTTL is used by callers that have no configured lifetime.
const DefaultTTL = 5 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt int64 // unix nanoseconds; 0 never expires
}

func (e entry[V]) expired(now int64) bool {
	return e.expiresAt > 0 && now > e.expiresAt
}

// Cache is a typed TTL map. Expired entries are dropped on read and by a
// periodic sweep; Close stops the sweep.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]

	stop chan struct{}
	once sync.Once
}

func New[K comparable, V any]() *Cache[K, V] {
	return NewWithInterval[K, V](time.Minute)
}

// NewWithInterval creates a cache swept every interval.
func NewWithInterval[K comparable, V any](interval time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		entries: make(map[K]entry[V]),
		stop:    make(chan struct{}),
	}
	go c.sweepEvery(interval)
	return c
}

// Set stores value under key; a non-positive ttl never expires.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(time.Now().UnixNano()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[K, V]) sweep() {
	now := time.Now().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}
