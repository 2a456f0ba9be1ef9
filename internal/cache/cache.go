package cache

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/karma-passport/internal/scoring"
)

// CacheItem represents a cached prediction with expiration
type CacheItem struct {
	Result    scoring.Result `json:"result"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// IsExpired checks if the cache item has expired
func (c *CacheItem) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Cache keeps interpreted predictions keyed by feature vector. The loaded
// model never changes during the process lifetime, so an entry stays valid
// until its TTL runs out.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*CacheItem
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once

	hits   int64
	misses int64
}

// NewCache creates a new cache with the specified TTL
func NewCache(ttl time.Duration) *Cache {
	cache := &Cache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	go cache.cleanup(5 * time.Minute)

	return cache
}

// cleanup removes expired items periodically
func (c *Cache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			for key, item := range c.items {
				if item.IsExpired() {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup loop
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Key creates a consistent key from a feature vector
func Key(vector []float64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	hash := md5.Sum([]byte(strings.Join(parts, ",")))
	return fmt.Sprintf("%x", hash)
}

// Get retrieves a prediction from the cache
func (c *Cache) Get(key string) (scoring.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists || item.IsExpired() {
		if exists {
			delete(c.items, key)
		}
		c.misses++
		return scoring.Result{}, false
	}

	c.hits++
	return item.Result, true
}

// Set stores a prediction in the cache
func (c *Cache) Set(key string, result scoring.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem{
		Result:    result,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalItems := len(c.items)
	expiredItems := 0

	for _, item := range c.items {
		if item.IsExpired() {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"hits":          c.hits,
		"misses":        c.misses,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}
