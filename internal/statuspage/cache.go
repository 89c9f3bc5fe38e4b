package statuspage

import (
	"sync"
	"time"

	"github.com/stackalert/stackalert/internal/domain"
)

// Cache is a TTL cache in front of upstream status fetches, keyed by
// service slug. Entries are evicted lazily on read. The clock is injectable
// for tests.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	data      *domain.LiveServiceStatus
	expiresAt time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key, or nil if absent or expired.
// Expired entries are evicted.
func (c *Cache) Get(key string) *domain.LiveServiceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return entry.data
}

// Set stores a value, always overwriting any previous entry.
func (c *Cache) Set(key string, data *domain.LiveServiceStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}
}
