package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Item is a cached value with expiration
type Item[V any] struct {
	Value     V
	ExpiresAt time.Time
}

func (i *Item[V]) expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Cache is a thread-safe TTL cache with a size bound. When full, the entry
// closest to expiry is evicted.
type Cache[V any] struct {
	mu       sync.RWMutex
	items    map[string]*Item[V]
	ttl      time.Duration
	maxItems int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	now func() time.Time
}

// New creates a cache. maxItems <= 0 means unbounded.
func New[V any](ttl time.Duration, maxItems int) *Cache[V] {
	return &Cache[V]{
		items:    make(map[string]*Item[V]),
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Run removes expired items every interval until ctx is done
func (c *Cache[V]) Run(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Purge()
			}
		}
	}()
}

// Purge drops expired items and returns how many were removed
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Get retrieves an item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || item.expired(c.now()) {
		if exists {
			c.Delete(key)
		}
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return item.Value, true
}

// Set stores an item in the cache
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictLocked()
	}
	c.items[key] = &Item[V]{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

func (c *Cache[V]) evictLocked() {
	var oldest string
	var oldestAt time.Time
	for key, item := range c.items {
		if oldest == "" || item.ExpiresAt.Before(oldestAt) {
			oldest, oldestAt = key, item.ExpiresAt
		}
	}
	if oldest != "" {
		delete(c.items, oldest)
		c.evictions.Add(1)
	}
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*Item[V])
}

// Size returns the number of items in the cache
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	totalItems := len(c.items)
	expiredItems := 0
	for _, item := range c.items {
		if item.expired(now) {
			expiredItems++
		}
	}

	hits, misses := c.hits.Load(), c.misses.Load()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return map[string]any{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"max_items":     c.maxItems,
		"ttl_seconds":   c.ttl.Seconds(),
		"hits":          hits,
		"misses":        misses,
		"evictions":     c.evictions.Load(),
		"hit_rate":      hitRate,
	}
}
