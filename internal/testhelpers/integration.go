//go:build integration
// +build integration

// Package testhelpers builds the real service stack for integration tests
// against a live weather provider and, optionally, memcached.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/dressmygravel/internal/cache"
	"github.com/kjstillabower/dressmygravel/internal/catalog"
	"github.com/kjstillabower/dressmygravel/internal/client"
	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/recommend"
	"github.com/kjstillabower/dressmygravel/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	Provider      models.Source
	APIKey        string
	APIURL        string // empty uses the provider's public endpoint
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	provider := models.Source(os.Getenv("WEATHER_PROVIDER"))
	if provider == "" {
		provider = models.SourceOpenWeather
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		Provider:      provider,
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// Stack is a fully wired service graph.
type Stack struct {
	Provider       client.Provider
	Cache          cache.Cache
	Weather        *service.WeatherService
	Recommendation *service.RecommendationService
	Catalog        *catalog.Static
}

// SetupIntegrationStack builds provider, cache, services and the embedded catalog.
// The returned cleanup closes the cache connection when memcached is used.
func SetupIntegrationStack(t *testing.T, cfg IntegrationTestConfig) (*Stack, func()) {
	t.Helper()
	provider := SetupIntegrationProvider(t, cfg)

	var cacheSvc cache.Cache
	label := "in_memory"
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			label = "memcached"
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}
	if cacheSvc == nil {
		cacheSvc = cache.NewInMemoryCache(1000)
	}

	weather, err := service.NewWeatherService(provider, cacheSvc, service.Config{
		TTL:             5 * time.Minute,
		FetchTimeout:    10 * time.Second,
		CoalesceTimeout: 10 * time.Second,
		CacheType:       label,
	})
	if err != nil {
		t.Fatalf("NewWeatherService() error = %v", err)
	}

	engine, err := recommend.NewEngine(recommend.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}

	return &Stack{
		Provider:       provider,
		Cache:          cacheSvc,
		Weather:        weather,
		Recommendation: service.NewRecommendationService(weather, engine, cat),
		Catalog:        cat,
	}, cleanup
}

// SetupIntegrationProvider creates the configured live weather provider.
func SetupIntegrationProvider(t *testing.T, cfg IntegrationTestConfig) client.Provider {
	t.Helper()
	p, err := client.NewProvider(cfg.Provider, client.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.APIURL,
		Timeout: 5 * time.Second,
		Retry:   client.DefaultRetry,
	})
	if err != nil {
		t.Fatalf("NewProvider(%s) error = %v", cfg.Provider, err)
	}
	return p
}
