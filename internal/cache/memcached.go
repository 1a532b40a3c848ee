package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache using memcached, letting several service
// instances share one weather cache. Keys are stored verbatim.
type MemcachedCache struct {
	client *memcache.Client
	now    func() time.Time
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, now: time.Now}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WeatherAPIResponse, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherAPIResponse{}, false, ctx.Err()
	}
	item, err := c.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.WeatherAPIResponse{}, false, nil
		}
		return models.WeatherAPIResponse{}, false, fmt.Errorf("memcached get %s: %w", key, err)
	}
	var data models.WeatherAPIResponse
	if err := json.Unmarshal(item.Value, &data); err != nil {
		return models.WeatherAPIResponse{}, false, fmt.Errorf("memcached decode %s: %w", key, err)
	}
	return data, true, nil
}

// Set implements Cache.Set. TTLs beyond memcached's 30-day relative limit are
// sent as absolute unix timestamps.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherAPIResponse, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive, got %v", models.ErrInvalidArgument, ttl)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcached encode %s: %w", key, err)
	}
	return c.client.Set(&memcache.Item{
		Key:        key,
		Value:      raw,
		Expiration: c.expiration(ttl),
	})
}

func (c *MemcachedCache) expiration(ttl time.Duration) int32 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	if secs > maxRelativeExp {
		return int32(c.now().Add(ttl).Unix())
	}
	return int32(secs)
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
