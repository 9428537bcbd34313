// Package lru implements a generic, thread-safe LRU cache with optional
// entry expiry.
//
// Get, Put, Peek, Delete and Len are O(1). Expired entries are dropped
// lazily when they are looked up or when they reach the tail.
package lru

import (
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key     K
	val     V
	expires time.Time
	prev    *entry[K, V]
	next    *entry[K, V]
}

// EvictFunc is called, without the cache lock held, for every entry the
// cache drops on its own (capacity or expiry). Explicit Delete and Clear
// do not call it.
type EvictFunc[K comparable, V any] func(key K, val V)

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithTTL expires entries ttl after they were last written. Zero disables expiry.
func WithTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.ttl = ttl }
}

// WithOnEvict registers fn to observe evictions.
func WithOnEvict[K comparable, V any](fn EvictFunc[K, V]) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

// WithClock overrides the time source used for expiry.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) { c.now = now }
}

// Cache is a generic LRU cache. The zero value is not usable; call New.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	onEvict  EvictFunc[K, V]
	items    map[K]*entry[K, V]
	root     entry[K, V] // sentinel: root.next is MRU, root.prev is LRU
}

// New creates a cache holding at most capacity entries.
// Panics if capacity < 1.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *Cache[K, V] {
	if capacity < 1 {
		panic("lru: capacity must be >= 1")
	}
	c := &Cache[K, V]{
		capacity: capacity,
		now:      time.Now,
		items:    make(map[K]*entry[K, V], capacity),
	}
	c.root.next = &c.root
	c.root.prev = &c.root
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	if c.expired(e) {
		c.unlink(e)
		c.mu.Unlock()
		c.evicted(e)
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	val := e.val
	c.mu.Unlock()
	return val, true
}

// Peek returns the value for key without touching recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Put inserts or replaces key. It reports whether another entry was
// evicted to make room.
func (c *Cache[K, V]) Put(key K, val V) bool {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		e.val = val
		e.expires = c.deadline()
		c.moveToFront(e)
		c.mu.Unlock()
		return false
	}

	var dropped []*entry[K, V]
	for len(c.items) >= c.capacity {
		victim := c.root.prev
		c.unlink(victim)
		dropped = append(dropped, victim)
	}

	e := &entry[K, V]{key: key, val: val, expires: c.deadline()}
	c.items[key] = e
	c.pushFront(e)
	c.mu.Unlock()

	for _, d := range dropped {
		c.evicted(d)
	}
	return len(dropped) > 0
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.unlink(e)
	return true
}

// Len returns the number of entries, including expired ones not yet dropped.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns live keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.items))
	for e := c.root.next; e != &c.root; e = e.next {
		if !c.expired(e) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root.next = &c.root
	c.root.prev = &c.root
	c.items = make(map[K]*entry[K, V], c.capacity)
}

func (c *Cache[K, V]) deadline() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

func (c *Cache[K, V]) evicted(e *entry[K, V]) {
	if c.onEvict != nil {
		c.onEvict(e.key, e.val)
	}
}

// list helpers; caller holds mu.

func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
	delete(c.items, e.key)
}

func (c *Cache[K, V]) pushFront(e *entry[K, V]) {
	e.prev = &c.root
	e.next = c.root.next
	c.root.next.prev = e
	c.root.next = e
}

func (c *Cache[K, V]) moveToFront(e *entry[K, V]) {
	if c.root.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	c.pushFront(e)
}
