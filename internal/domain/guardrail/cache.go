package guardrail

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// ResultCache is a content-addressed verdict cache for the input phase.
// Keys combine the SHA-256 of the content with the sorted checkpoint
// names, so a configuration change misses cleanly. At capacity, the
// oldest decile by insertion timestamp is evicted. Readers tolerate
// spurious misses during eviction.
type ResultCache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int
}

type cacheEntry struct {
	result Result
	at     time.Time
}

// NewResultCache creates a cache with the given TTL and capacity.
func NewResultCache(ttl time.Duration, capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ResultCache{
		entries:  make(map[string]cacheEntry, capacity),
		ttl:      ttl,
		capacity: capacity,
	}
}

// CacheKey derives the cache key for content under a checkpoint set.
func CacheKey(content string, checkpointNames []string) string {
	sum := sha256.Sum256([]byte(content))
	names := append([]string(nil), checkpointNames...)
	sort.Strings(names)
	return hex.EncodeToString(sum[:]) + "|" + strings.Join(names, ",")
}

// Get returns the cached result for the key if present and fresh.
func (c *ResultCache) Get(key string) (Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Since(e.at) > c.ttl {
		return Result{}, false
	}
	return e.result, true
}

// Put stores a result, evicting the oldest decile when at capacity.
func (c *ResultCache) Put(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		c.evictOldestDecileLocked()
	}
	c.entries[key] = cacheEntry{result: r, at: time.Now()}
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldestDecileLocked removes the 10% oldest entries by timestamp.
// Must be called with the write lock held.
func (c *ResultCache) evictOldestDecileLocked() {
	n := len(c.entries) / 10
	if n < 1 {
		n = 1
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}
