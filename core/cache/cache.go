// Package cache provides a size-bounded LRU cache. The page store uses it
// to keep recently read page images, since discovery, page matching and the
// carve scan each read the same pages.
package cache

import (
	"container/list"
	"sync"
)

// Stats contains cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int   // entries
	Bytes     int64 // sum of entry sizes
	MaxBytes  int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// LRU is a thread-safe least-recently-used cache bounded by the total size
// of its values.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	maxBytes  int64
	sizeOf    func(V) int64
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
}

// New creates a cache holding at most maxBytes, as measured by sizeOf. A
// maxBytes of zero or less disables caching: Put is a no-op.
func New[K comparable, V any](maxBytes int64, sizeOf func(V) int64) *LRU[K, V] {
	if maxBytes < 0 {
		maxBytes = 0
	}
	return &LRU[K, V]{
		maxBytes:  maxBytes,
		sizeOf:    sizeOf,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

// NewBytes creates a cache of byte slices measured by their length.
func NewBytes[K comparable](maxBytes int64) *LRU[K, []byte] {
	return New[K](maxBytes, func(b []byte) int64 { return int64(len(b)) })
}

// Get returns the cached value and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return ent.Value.(*entry[K, V]).value, true
}

// Put stores a value, evicting least recently used entries until the
// cache fits. A value larger than the whole cache is not stored.
func (c *LRU[K, V]) Put(key K, value V) {
	size := c.sizeOf(value)
	if c.maxBytes == 0 || size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		e := ent.Value.(*entry[K, V])
		c.stats.Bytes += size - e.size
		e.value, e.size = value, size
		c.evictList.MoveToFront(ent)
	} else {
		c.entries[key] = c.evictList.PushFront(&entry[K, V]{key: key, value: value, size: size})
		c.stats.Bytes += size
	}

	for c.stats.Bytes > c.maxBytes {
		oldest := c.evictList.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
		c.stats.Evictions++
	}
}

// Remove drops key from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.entries[key]; ok {
		c.remove(ent)
	}
}

// Clear removes all entries. Statistics are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
	c.stats.Bytes = 0
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats returns a snapshot of the cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxBytes = c.maxBytes
	return s
}

// remove unlinks ent. Caller holds c.mu.
func (c *LRU[K, V]) remove(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)
	c.stats.Bytes -= e.size
}
