package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a bounded least-recently-used cache with optional expiry.
type LRU[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type lruEntry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// LRUOptions configures the cache.
type LRUOptions struct {
	// MaxSize bounds the number of entries. Values <= 0 default to 128.
	MaxSize int
	// TTL expires entries older than this. Zero disables expiry.
	TTL time.Duration
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// NewLRU creates a new cache.
func NewLRU[V any](opts LRUOptions) *LRU[V] {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 128
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &LRU[V]{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
	}
}

// Get returns the value for key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*lruEntry[V])
	if c.expired(entry) {
		c.removeElement(elem)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Add stores value under key, evicting the least recently used entry when full.
// It reports whether an eviction happened.
func (c *LRU[V]) Add(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*lruEntry[V])
		entry.value = value
		entry.storedAt = c.now()
		c.order.MoveToFront(elem)
		return false
	}

	elem := c.order.PushFront(&lruEntry[V]{key: key, value: value, storedAt: c.now()})
	c.entries[key] = elem

	evicted := false
	for c.order.Len() > c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			evicted = true
		}
	}
	return evicted
}

// Contains checks if key exists without updating recency.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	return !c.expired(elem.Value.(*lruEntry[V]))
}

// Remove removes a specific key.
func (c *LRU[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the current number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns keys from most to least recently used.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Clear removes all entries.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *LRU[V]) expired(entry *lruEntry[V]) bool {
	return c.ttl > 0 && c.now().Sub(entry.storedAt) >= c.ttl
}

func (c *LRU[V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*lruEntry[V])
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
