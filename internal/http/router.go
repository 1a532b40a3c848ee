package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterConfig carries what NewRouter needs besides the handler.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // 0 disables the per-request deadline
	Metrics        http.Handler  // served at /metrics when set
}

// NewRouter mounts every route. /health and /metrics stay outside the rate
// limiter and the shutdown gate so health checks keep working while draining.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	api.Use(ShutdownMiddleware)
	api.Use(RateLimitMiddleware(cfg.Limiter))
	api.HandleFunc("/catalog", h.GetCatalog).Methods(http.MethodGet)

	weather := api.NewRoute().Subrouter()
	weather.Use(TimeoutMiddleware(cfg.RequestTimeout))
	weather.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	weather.HandleFunc("/recommendation", h.GetRecommendation).Methods(http.MethodGet)

	return router
}
