package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dressmygravel/internal/catalog"
	"github.com/kjstillabower/dressmygravel/internal/health"
	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/observability"
	"github.com/kjstillabower/dressmygravel/internal/validation"
)

// StatusClientClosedRequest is logged when the caller hung up before the
// response was ready. Nobody reads the body.
const StatusClientClosedRequest = 499

// ServiceName and Version are reported by GET /health. Version is set at build time.
var (
	ServiceName = "dressmygravel"
	Version     = "dev"
)

// WeatherGetter returns weather for a coordinate and names the grid cell it came from.
type WeatherGetter interface {
	GetWeather(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error)
	KeyFor(loc models.LocationCoordinates) (string, error)
}

// RideRecommender builds a clothing recommendation for a coordinate.
type RideRecommender interface {
	Recommend(ctx context.Context, loc models.LocationCoordinates) (models.RideRecommendation, error)
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	health.Config
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherGetter
	recommender      RideRecommender
	catalog          catalog.Catalog
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil, in which case
// only the shutdown flag and cache ping affect /health.
func NewHandler(
	weather WeatherGetter,
	recommender RideRecommender,
	cat catalog.Catalog,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weather,
		recommender:  recommender,
		catalog:      cat,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// weatherResponse is the GET /weather body: the cached or fresh reading plus
// the grid cell key it is stored under.
type weatherResponse struct {
	CacheKey string `json:"cacheKey"`
	models.WeatherAPIResponse
}

// GetWeather handles GET /weather?lat=&lon=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLocation(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	result, err := h.weather.GetWeather(r.Context(), loc)
	if err != nil {
		recordOutcome(err)
		writeServiceError(w, r, err)
		return
	}
	key, err := h.weather.KeyFor(loc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	health.RecordSuccess()
	writeJSON(w, http.StatusOK, weatherResponse{CacheKey: key, WeatherAPIResponse: result})
}

// GetRecommendation handles GET /recommendation?lat=&lon=[&name=&country=].
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLocation(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	rec, err := h.recommender.Recommend(r.Context(), loc)
	if err != nil {
		recordOutcome(err)
		writeServiceError(w, r, err)
		return
	}
	health.RecordSuccess()
	writeJSON(w, http.StatusOK, rec)
}

// GetCatalog handles GET /catalog[?category=].
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.Items()
	if c := r.URL.Query().Get("category"); c != "" {
		if !knownCategory(models.Category(c)) {
			writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown category: "+c)
			return
		}
		filtered := make([]models.ClothingItem, 0, len(items))
		for _, it := range items {
			if it.Category == models.Category(c) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.Status),
			zap.String("reason", result.Reason))
	}
	h.healthStatusPrev = result.Status
	h.healthStatusMu.Unlock()

	statusCode := http.StatusOK
	if !result.Healthy() {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status":    result.Status,
		"service":   ServiceName,
		"version":   Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates the tracked outcomes, then the cache.
// An unreachable cache degrades an otherwise healthy service.
func (h *Handler) computeHealthStatus() (health.Result, map[string]string) {
	var cfg health.Config
	if h.healthConfig != nil {
		cfg = h.healthConfig.Config
	}
	result := health.Evaluate(cfg)

	checks := map[string]string{"weatherApi": "healthy"}
	if result.Reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			if result.Healthy() {
				result = health.Result{Status: health.StatusDegraded, Reason: "cache_unreachable"}
			}
		} else {
			checks["cache"] = "healthy"
		}
	}
	return result, checks
}

func parseLocation(r *http.Request) (models.LocationCoordinates, error) {
	q := r.URL.Query()
	loc, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		return models.LocationCoordinates{}, err
	}
	if loc.Name, err = validation.ValidateLabel(q.Get("name"), validation.MaxLabelLen); err != nil {
		return models.LocationCoordinates{}, err
	}
	if loc.Country, err = validation.ValidateLabel(q.Get("country"), validation.MaxLabelLen); err != nil {
		return models.LocationCoordinates{}, err
	}
	return loc, nil
}

func knownCategory(c models.Category) bool {
	for _, known := range models.Categories {
		if c == known {
			return true
		}
	}
	return false
}

// recordOutcome counts provider-side failures towards the degraded check.
// Caller mistakes and hang-ups are not the service's fault and are not recorded.
func recordOutcome(err error) {
	if errors.Is(err, models.ErrProviderFailure) {
		health.RecordError()
		return
	}
	if errors.Is(err, models.ErrInvalidArgument) || errors.Is(err, context.Canceled) {
		return
	}
	health.RecordError()
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError maps service errors onto HTTP statuses. The underlying
// error is logged, never echoed, for anything other than a caller mistake.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrProviderTimeout):
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Timed out fetching weather data")
	case errors.Is(err, models.ErrProviderFailure):
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	case errors.Is(err, models.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	case errors.Is(err, context.Canceled):
		writeError(w, r, StatusClientClosedRequest, "CANCELED", "Request canceled")
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
	}
	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("request failed", zap.Error(err))
	}
}
