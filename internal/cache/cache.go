package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// Cache defines the interface for weather response caching implementations.
// Get returns cached data only while it is fresh; Set stores data with a TTL.
// Keys are grid cache keys ("weather:{lat}:{lon}").
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherAPIResponse, bool, error)
	Set(ctx context.Context, key string, value models.WeatherAPIResponse, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map and an LRU list.
// A capacity of 0 leaves the cache unbounded for the life of the process.
type InMemoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

// cacheEntry stores a cached response with its expiration time.
type cacheEntry struct {
	key       string
	value     models.WeatherAPIResponse
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache holding at most capacity entries.
// capacity <= 0 means unbounded.
func NewInMemoryCache(capacity int) *InMemoryCache {
	if capacity < 0 {
		capacity = 0
	}
	return &InMemoryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns (data, true, nil) while now < expiresAt and (zero, false, nil) otherwise.
// Expired entries are removed on access.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherAPIResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return models.WeatherAPIResponse{}, false, nil
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeLocked(el)
		return models.WeatherAPIResponse{}, false, nil
	}
	c.order.MoveToFront(el)
	return entry.value, true, nil
}

// Set stores value under key, replacing any previous entry. When the cache is
// full the least recently used entry is evicted.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherAPIResponse, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive, got %v", models.ErrInvalidArgument, ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return nil
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	if c.capacity > 0 {
		for c.order.Len() > c.capacity {
			c.removeLocked(c.order.Back())
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included until they are touched.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *InMemoryCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}
