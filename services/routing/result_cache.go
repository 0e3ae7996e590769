package routing

import (
	"container/list"
	"sync"
	"time"
)

// dedupKey identifies an idempotent route call
type dedupKey struct {
	UserID         string
	IdempotencyKey string
}

// String returns a string representation of the key
func (k dedupKey) String() string {
	return k.UserID + "\x00" + k.IdempotencyKey
}

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	key        string
	result     *Result
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// ResultCache is an in-memory LRU cache with TTL for completed route results
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	nowFunc func() time.Time
}

// NewResultCache creates a new ResultCache with specified max size and TTL
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &ResultCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func (c *ResultCache) expired(e *cacheEntry) bool {
	return c.nowFunc().Sub(e.insertedAt) > c.ttl
}

// Get returns a copy of the cached result, or nil when absent or expired
func (c *ResultCache) Get(key dedupKey) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	entry, exists := c.entries[k]
	if !exists || c.expired(entry) {
		c.misses++
		if exists {
			c.removeEntry(k)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.result.clone()
}

// Put stores a copy of a completed result
func (c *ResultCache) Put(key dedupKey, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	if entry, exists := c.entries[k]; exists {
		entry.result = result.clone()
		entry.insertedAt = c.nowFunc()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		key:        k,
		result:     result.clone(),
		insertedAt: c.nowFunc(),
	}
	entry.element = c.lruList.PushFront(k)
	c.entries[k] = entry
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *ResultCache) removeEntry(k string) {
	if entry, exists := c.entries[k]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, k)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *ResultCache) evictLRU() {
	if back := c.lruList.Back(); back != nil {
		c.removeEntry(back.Value.(string))
	}
}

// CleanupExpired removes all expired entries and returns how many
func (c *ResultCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for k, entry := range c.entries {
		if c.expired(entry) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		c.removeEntry(k)
	}
	return len(expired)
}

// StartCleanupWorker periodically drops expired entries until stopCh closes
func (c *ResultCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
