package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/observability"
)

// WeatherFetcher is implemented by the service layer to fetch weather for a coordinate.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type WeatherFetcher interface {
	GetWeather(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error)
}

// CacheWarmer prefetches weather for popular riding spots so the first
// rider of the day does not pay for the upstream call.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches weather for each location concurrently and populates the cache via the fetcher.
// Returns the joined errors of every location that failed.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.LocationCoordinates) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(locations)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func(loc models.LocationCoordinates) {
			defer wg.Done()
			if _, err := w.fetcher.GetWeather(ctx, loc); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", describe(loc), err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic warms every interval until ctx is done. The first run happens
// one interval in; callers that need a warm cache at startup call Warm first.
// Runs never overlap: a slow upstream delays the next run instead of stacking.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []models.LocationCoordinates, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: warm interval must be positive", models.ErrInvalidArgument)
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).WaitForSchedule().Do(func() {
		if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func describe(loc models.LocationCoordinates) string {
	if loc.Name != "" {
		return fmt.Sprintf("%s (%.4f,%.4f)", loc.Name, loc.Lat, loc.Lon)
	}
	return fmt.Sprintf("(%.4f,%.4f)", loc.Lat, loc.Lon)
}
