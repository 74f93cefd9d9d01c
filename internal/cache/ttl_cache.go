package cache

import (
	"sync"
	"time"
)

// Cache is a keyed store whose entries expire individually.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	DeleteFunc(match func(key K) bool)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is an in-process Cache. Expired entries are dropped lazily on read.
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	now   func() time.Time
}

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return newTTLCacheWithClock[K, V](time.Now)
}

func newTTLCacheWithClock[K comparable, V any](now func() time.Time) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		items: make(map[K]entry[V]),
		now:   now,
	}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !c.now().Before(item.expiresAt) {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current.expiresAt.Equal(item.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

// Set stores value for ttl. A non-positive ttl removes the key.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		delete(c.items, key)
		return
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) DeleteFunc(match func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if match(key) {
			delete(c.items, key)
		}
	}
}
