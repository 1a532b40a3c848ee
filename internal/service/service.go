package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dressmygravel/internal/cache"
	"github.com/kjstillabower/dressmygravel/internal/client"
	"github.com/kjstillabower/dressmygravel/internal/geo"
	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/observability"
	"github.com/kjstillabower/dressmygravel/internal/recommend"
	"github.com/kjstillabower/dressmygravel/internal/validation"
)

// DefaultTTL is the weather freshness window when none is configured.
const DefaultTTL = 10 * time.Minute

// FetchFunc loads weather for a coordinate from an upstream provider.
type FetchFunc func(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error)

// Config tunes a WeatherService. Zero values take defaults.
type Config struct {
	// Grid snaps coordinates to cache cells. Zero value uses geo.DefaultGrid.
	Grid geo.Grid
	// TTL is the freshness window for GetWeather. Zero uses DefaultTTL.
	TTL time.Duration
	// FetchTimeout bounds one provider fetch including retries (0 = caller's context only).
	FetchTimeout time.Duration
	// CoalesceDisabled turns off single-flight for cache misses.
	CoalesceDisabled bool
	// CoalesceTimeout bounds how long a caller waits on another caller's fetch.
	CoalesceTimeout time.Duration
	// CacheType labels cache metrics ("in_memory", "memcached").
	CacheType string
}

// WeatherService serves weather through a cache keyed by grid cell, with
// single-flight fetches on miss. Safe for concurrent use.
type WeatherService struct {
	provider        client.Provider
	cache           cache.Cache
	grid            geo.Grid
	ttl             time.Duration
	fetchTimeout    time.Duration
	cacheType       string
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil when disabled
}

// NewWeatherService wires a provider and cache. provider may be nil when only
// GetOrFetch with an explicit fetch function is used.
func NewWeatherService(provider client.Provider, c cache.Cache, cfg Config) (*WeatherService, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: cache is required", models.ErrInvalidArgument)
	}
	grid := cfg.Grid
	if grid.Precision() == 0 {
		grid = geo.DefaultGrid
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: cache ttl must be positive, got %v", models.ErrInvalidArgument, ttl)
	}
	cacheType := cfg.CacheType
	if cacheType == "" {
		cacheType = "weather"
	}
	var coalescer *requestCoalescer
	if !cfg.CoalesceDisabled {
		coalescer = newRequestCoalescer(cfg.CoalesceTimeout)
	}
	return &WeatherService{
		provider:        provider,
		cache:           c,
		grid:            grid,
		ttl:             ttl,
		fetchTimeout:    cfg.FetchTimeout,
		cacheType:       cacheType,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}, nil
}

// Grid returns the grid used to derive cache keys.
func (s *WeatherService) Grid() geo.Grid {
	return s.grid
}

// GetWeather is GetOrFetch with the configured provider and TTL.
// It satisfies cache.WeatherFetcher.
func (s *WeatherService) GetWeather(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error) {
	if s.provider == nil {
		return models.WeatherAPIResponse{}, fmt.Errorf("%w: no weather provider configured", models.ErrProviderFailure)
	}
	return s.GetOrFetch(ctx, loc, s.provider.Fetch, s.ttl)
}

// GetOrFetch returns the cached response for loc's grid cell, or fetches,
// stores and returns a fresh one. Concurrent misses for one cell share a
// single fetch that keeps running while any of them still waits. Fetch failures
// are returned wrapped in models.ErrProviderFailure (models.ErrProviderTimeout on
// deadline) and nothing is cached. A caller that cancels its own context gets
// context.Canceled back, unclassified. Cache backend errors are logged and
// treated as misses.
func (s *WeatherService) GetOrFetch(ctx context.Context, loc models.LocationCoordinates, fetch FetchFunc, ttl time.Duration) (models.WeatherAPIResponse, error) {
	if fetch == nil {
		return models.WeatherAPIResponse{}, fmt.Errorf("%w: fetch function is required", models.ErrInvalidArgument)
	}
	if ttl <= 0 {
		return models.WeatherAPIResponse{}, fmt.Errorf("%w: cache ttl must be positive, got %v", models.ErrInvalidArgument, ttl)
	}
	if err := validation.ValidateCoordinates(loc); err != nil {
		return models.WeatherAPIResponse{}, err
	}
	key, err := s.grid.KeyFor(loc)
	if err != nil {
		return models.WeatherAPIResponse{}, err
	}

	start := time.Now()
	logger := observability.LoggerFromContext(ctx)
	observability.RecordWeatherQuery(key)

	if cached, ok := s.cacheGet(ctx, key, logger); ok {
		if logger != nil {
			logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.Resolve(key)
	keyLabel := observability.MetricKeyLabel(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(keyLabel).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(keyLabel).Observe(float64(concurrentMisses))
	}
	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	}

	load := func(fetchCtx context.Context) (models.WeatherAPIResponse, error) {
		if s.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, s.fetchTimeout)
			defer cancel()
		}
		data, err := fetch(fetchCtx, loc)
		if err != nil {
			return models.WeatherAPIResponse{}, err
		}
		if err := recommend.ValidateWeather(data.Weather); err != nil {
			return models.WeatherAPIResponse{}, fmt.Errorf("%w: unusable reading from upstream: %w", models.ErrProviderFailure, err)
		}
		s.cacheSet(fetchCtx, key, data, ttl, logger)
		return data, nil
	}

	var data models.WeatherAPIResponse
	var fetchErr error
	if s.coalescer != nil {
		waitStart := time.Now()
		var shared bool
		data, shared, fetchErr = s.coalescer.GetOrDo(ctx, key, load)
		if shared && fetchErr == nil {
			observability.RequestCoalescingHitsTotal.WithLabelValues(keyLabel).Inc()
			observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
		}
	} else {
		data, fetchErr = load(ctx)
	}
	if fetchErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		// The caller hung up; nothing upstream went wrong.
		if logger != nil {
			logger.Debug("weather request canceled by caller", zap.String("key", key))
		}
		return models.WeatherAPIResponse{}, fmt.Errorf("fetch weather for %s: %w", key, ctx.Err())
	}
	if fetchErr != nil {
		wrapped := classifyFetchError(fetchErr)
		if logger != nil {
			logger.Warn("weather fetch failed",
				zap.String("key", key),
				zap.String("error_category", string(client.CategorizeError(fetchErr))),
				zap.Error(fetchErr))
		}
		return models.WeatherAPIResponse{}, fmt.Errorf("fetch weather for %s: %w", key, wrapped)
	}

	if logger != nil {
		logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return data, nil
}

func (s *WeatherService) cacheGet(ctx context.Context, key string, logger *zap.Logger) (models.WeatherAPIResponse, bool) {
	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		observability.CacheMissesTotal.WithLabelValues(s.cacheType).Inc()
		if logger != nil {
			logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return models.WeatherAPIResponse{}, false
	case ok:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues(s.cacheType).Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("key", key))
		}
		return cached, true
	default:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheMissesTotal.WithLabelValues(s.cacheType).Inc()
		return models.WeatherAPIResponse{}, false
	}
}

func (s *WeatherService) cacheSet(ctx context.Context, key string, data models.WeatherAPIResponse, ttl time.Duration, logger *zap.Logger) {
	setStart := time.Now()
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

// classifyFetchError maps a fetch failure onto the provider sentinels while
// keeping the original error in the chain.
func classifyFetchError(err error) error {
	if errors.Is(err, models.ErrProviderFailure) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %w", models.ErrProviderFailure, err)
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") || strings.Contains(errStr, "no servers") {
		return "connection"
	}
	return "unknown"
}

// KeyFor returns the cache key for loc on the service grid.
func (s *WeatherService) KeyFor(loc models.LocationCoordinates) (string, error) {
	return s.grid.KeyFor(loc)
}
