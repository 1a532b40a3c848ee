package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/observability"
)

// WeatherGetter returns weather for a coordinate. Implemented by WeatherService.
type WeatherGetter interface {
	GetWeather(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error)
	KeyFor(loc models.LocationCoordinates) (string, error)
}

// Recommender turns a weather reading into clothing. Implemented by recommend.Engine.
type Recommender interface {
	Recommend(w models.WeatherData, catalog []models.ClothingItem) (models.ClothingRecommendation, error)
}

// ItemSource supplies the clothing catalog. Implemented by catalog.Catalog.
type ItemSource interface {
	Items() []models.ClothingItem
}

// RecommendationService joins cached weather with the recommendation engine.
type RecommendationService struct {
	weather WeatherGetter
	engine  Recommender
	catalog ItemSource
}

// NewRecommendationService wires the weather source, engine and catalog.
func NewRecommendationService(weather WeatherGetter, engine Recommender, catalog ItemSource) *RecommendationService {
	return &RecommendationService{weather: weather, engine: engine, catalog: catalog}
}

// Recommend fetches (or reuses cached) weather for loc and builds a clothing
// recommendation from the current catalog. The returned Location carries the
// caller's coordinates and labels; CacheKey names the grid cell that was used.
func (s *RecommendationService) Recommend(ctx context.Context, loc models.LocationCoordinates) (models.RideRecommendation, error) {
	resp, err := s.weather.GetWeather(ctx, loc)
	if err != nil {
		return models.RideRecommendation{}, err
	}
	key, err := s.weather.KeyFor(loc)
	if err != nil {
		return models.RideRecommendation{}, err
	}

	// The reading came from upstream or the cache, never from the caller, so a
	// reading the engine rejects is a provider fault.
	rec, err := s.engine.Recommend(resp.Weather, s.catalog.Items())
	if err != nil {
		return models.RideRecommendation{}, fmt.Errorf("recommend for %s: %w: %w", key, models.ErrProviderFailure, err)
	}

	observability.RecommendationsTotal.WithLabelValues(string(rec.TemperatureZone)).Inc()
	for _, w := range rec.Warnings {
		observability.RecommendationWarningsTotal.WithLabelValues(w).Inc()
	}
	if logger := observability.LoggerFromContext(ctx); logger != nil {
		logger.Debug("recommendation built",
			zap.String("key", key),
			zap.String("zone", string(rec.TemperatureZone)),
			zap.Int("items", len(rec.Items)),
			zap.Int("warnings", len(rec.Warnings)))
	}

	return models.RideRecommendation{
		Location:       loc,
		CacheKey:       key,
		Source:         resp.Source,
		Weather:        resp.Weather,
		Recommendation: rec,
	}, nil
}
