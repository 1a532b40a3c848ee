// Package client adapts upstream weather APIs to the Provider contract used
// by the weather cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// Provider fetches current conditions for a coordinate.
type Provider interface {
	Name() models.Source
	Fetch(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("circuit breaker open")
)

// RetryOptions configures per-provider retries. Attempts counts the first call.
type RetryOptions struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// BreakerOptions configures the circuit breaker around each provider attempt.
type BreakerOptions struct {
	// ConsecutiveFailures trips the breaker open. 0 uses the default (5).
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
	// Interval clears closed-state counts periodically (0 = never).
	Interval time.Duration
}

// Options holds everything needed to build a Provider.
type Options struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	Retry   RetryOptions
	Breaker BreakerOptions
}

// DefaultRetry matches the service defaults: three attempts, 100ms doubling to 2s.
var DefaultRetry = RetryOptions{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// NewProvider builds the adapter named by source.
func NewProvider(source models.Source, opts Options) (Provider, error) {
	switch source {
	case models.SourceOpenWeather:
		return NewOpenWeatherClient(opts)
	case models.SourceWeatherAPI:
		return NewWeatherAPIClient(opts)
	default:
		return nil, fmt.Errorf("%w: unknown weather provider %q", models.ErrInvalidArgument, source)
	}
}

func checkAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(key) < 10 {
		return fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	return nil
}
