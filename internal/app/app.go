// Package app wires configuration into the provider, cache, services and HTTP
// router that make up the running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dressmygravel/internal/cache"
	"github.com/kjstillabower/dressmygravel/internal/catalog"
	"github.com/kjstillabower/dressmygravel/internal/client"
	"github.com/kjstillabower/dressmygravel/internal/config"
	"github.com/kjstillabower/dressmygravel/internal/geo"
	"github.com/kjstillabower/dressmygravel/internal/health"
	httphandler "github.com/kjstillabower/dressmygravel/internal/http"
	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/observability"
	"github.com/kjstillabower/dressmygravel/internal/recommend"
	"github.com/kjstillabower/dressmygravel/internal/service"
)

// App is the assembled service graph.
type App struct {
	Router         http.Handler
	Weather        *service.WeatherService
	Recommendation *service.RecommendationService
	Catalog        *catalog.Static
	Warmer         *cache.CacheWarmer

	cfg     *config.Config
	logger  *zap.Logger
	closers []io.Closer
}

// Build assembles the service from cfg. provider may be nil, in which case the
// configured upstream is used; tests pass a stub.
func Build(cfg *config.Config, provider client.Provider, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", models.ErrInvalidArgument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var err error
	if provider == nil {
		provider, err = client.NewProvider(cfg.WeatherProvider, client.Options{
			APIKey:  cfg.WeatherAPIKey,
			BaseURL: cfg.WeatherAPIURL,
			Timeout: cfg.WeatherAPITimeout,
			Retry: client.RetryOptions{
				Attempts:  cfg.RetryAttempts,
				BaseDelay: cfg.RetryBaseDelay,
				MaxDelay:  cfg.RetryMaxDelay,
			},
			Breaker: client.BreakerOptions{
				ConsecutiveFailures: cfg.BreakerFailures,
				OpenTimeout:         cfg.BreakerOpenTimeout,
				HalfOpenRequests:    cfg.BreakerHalfOpenReqs,
				Interval:            cfg.BreakerInterval,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("weather provider: %w", err)
		}
	}
	logger.Info("weather provider", zap.String("source", string(provider.Name())))

	a := &App{cfg: cfg, logger: logger}

	var cacheSvc cache.Cache
	var cachePing func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.closers = append(a.closers, mc)
		cacheSvc = mc
		cachePing = mc.Ping
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		mem := cache.NewInMemoryCache(cfg.CacheCapacity)
		observability.RegisterCacheSizeGauge(mem.Len)
		cacheSvc = mem
		logger.Info("cache backend: in_memory", zap.Int("capacity", cfg.CacheCapacity))
	}

	grid, err := geo.NewGrid(cfg.GridPrecision)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	cacheType := cfg.CacheBackend
	if cacheType == "" {
		cacheType = "in_memory"
	}
	a.Weather, err = service.NewWeatherService(provider, cacheSvc, service.Config{
		Grid:             grid,
		TTL:              cfg.CacheTTL,
		FetchTimeout:     cfg.WeatherAPITimeout,
		CoalesceDisabled: !cfg.CoalesceEnabled,
		CoalesceTimeout:  cfg.CoalesceTimeout,
		CacheType:        cacheType,
	})
	if err != nil {
		return nil, fmt.Errorf("weather service: %w", err)
	}

	engine, err := recommend.NewEngine(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("recommendation engine: %w", err)
	}
	a.Catalog, err = catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	logger.Info("catalog loaded", zap.Int("items", a.Catalog.Len()), zap.String("path", cfg.CatalogPath))

	keys, err := a.trackedKeys()
	if err != nil {
		return nil, err
	}
	observability.SetTrackedKeys(keys)
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	healthConfig := &httphandler.HealthConfig{
		Config: health.Config{
			RateLimitRPS:         cfg.RateLimitRPS,
			OverloadWindow:       cfg.OverloadWindow,
			OverloadThresholdPct: cfg.OverloadThresholdPct,
			DegradedWindow:       cfg.DegradedWindow,
			DegradedErrorPct:     cfg.DegradedErrorPct,
		},
		CachePing: cachePing,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	a.Recommendation = service.NewRecommendationService(a.Weather, engine, a.Catalog)
	handler := httphandler.NewHandler(
		a.Weather,
		a.Recommendation,
		a.Catalog,
		healthConfig,
		logger,
	)
	a.Router = httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        observability.MetricsHandler(),
	})
	a.Warmer = cache.NewCacheWarmer(a.Weather, logger)
	return a, nil
}

// trackedKeys maps the configured tracked locations onto cache keys.
func (a *App) trackedKeys() ([]string, error) {
	keys := make([]string, 0, len(a.cfg.TrackedLocations))
	for _, tl := range a.cfg.TrackedLocations {
		key, err := a.Weather.KeyFor(tl.Coordinates())
		if err != nil {
			return nil, fmt.Errorf("tracked location %s: %w", tl.Name, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// TrackedCoordinates returns the configured tracked locations as coordinates.
func (a *App) TrackedCoordinates() []models.LocationCoordinates {
	locs := make([]models.LocationCoordinates, 0, len(a.cfg.TrackedLocations))
	for _, tl := range a.cfg.TrackedLocations {
		loc := tl.Coordinates()
		loc.Name = tl.Name
		locs = append(locs, loc)
	}
	return locs
}

// StartWarming warms the tracked locations once, then keeps them warm in the
// background until ctx is done. It is a no-op when warming is disabled.
func (a *App) StartWarming(ctx context.Context, startupTimeout time.Duration) {
	locs := a.TrackedCoordinates()
	if !a.cfg.WarmEnabled || len(locs) == 0 {
		return
	}
	warmCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	if err := a.Warmer.Warm(warmCtx, locs); err != nil {
		a.logger.Warn("cache warming failed", zap.Error(err))
	}
	cancel()
	if a.cfg.WarmInterval <= 0 {
		return
	}
	go func() {
		if err := a.Warmer.WarmPeriodic(ctx, locs, a.cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("periodic cache warming stopped", zap.Error(err))
		}
	}()
}

// Closers returns backend resources to release at shutdown.
func (a *App) Closers() []io.Closer {
	return a.closers
}
