package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/dressmygravel/internal/health"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Weather provider call rate by source and outcome.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Provider latency per attempt. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts per provider. Watch for: high retries = unstable upstream.
	WeatherAPIRetriesTotal *prometheus.CounterVec

	// Circuit breaker state changes per provider.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache hits and misses by cache type. Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache errors by operation and category (timeout, connection, unknown).
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency by operation and result.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses for one key. Watch for: stampedes on popular grid cells.
	CacheStampedeDetectedTotal *prometheus.CounterVec
	CacheStampedeConcurrency   *prometheus.HistogramVec

	// Callers that shared another caller's provider fetch.
	RequestCoalescingHitsTotal   *prometheus.CounterVec
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Total weather lookups and lookups per tracked grid cell.
	WeatherQueriesTotal      prometheus.Counter
	WeatherQueriesByKeyTotal *prometheus.CounterVec

	// Recommendations by temperature zone and emitted warnings.
	RecommendationsTotal        *prometheus.CounterVec
	RecommendationWarningsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming runs, duration and failed runs.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram
	CacheWarmingErrorsTotal     prometheus.Counter

	// trackedKeys is built from configured locations; used to bound the key label.
	trackedKeysMu sync.RWMutex
	trackedKeys   map[string]struct{}

	rateLimitGaugesOnce sync.Once
	cacheGaugeOnce      sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather provider calls",
		},
		[]string{"source", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per attempt)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather provider calls",
		},
		[]string{"source"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions per provider",
		},
		[]string{"breaker", "to"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of weather cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of weather cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"op", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op", "result"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that found another miss for the same key in progress",
		},
		[]string{"key"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent misses for one key when a stampede is detected",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
		[]string{"key"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by another caller's in-flight provider fetch",
		},
		[]string{"key"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced provider fetch",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather lookups",
		},
	)
	WeatherQueriesByKeyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByKeyTotal",
			Help: "Weather queries by cache key (tracked keys only; others use key=other)",
		},
		[]string{"key"},
	)
	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendationsTotal",
			Help: "Clothing recommendations produced, by temperature zone",
		},
		[]string{"zone"},
	)
	RecommendationWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendationWarningsTotal",
			Help: "Warnings attached to recommendations",
		},
		[]string{"warning"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of a cache warming run in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed location",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		CircuitBreakerTransitionsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		WeatherQueriesTotal, WeatherQueriesByKeyTotal,
		RecommendationsTotal, RecommendationWarningsTotal,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingDurationSeconds, CacheWarmingErrorsTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with the overload window.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(health.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(health.DenialCount(window)) },
			),
		)
	})
}

// RegisterCacheSizeGauge exposes the number of live in-process cache entries.
// Only the first call registers; later calls are ignored.
func RegisterCacheSizeGauge(size func() int) {
	cacheGaugeOnce.Do(func() {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "cacheEntries",
				Help: "Entries currently held by the in-process weather cache",
			},
			func() float64 { return float64(size()) },
		))
	})
}

// SetTrackedKeys sets the allow-list of cache keys used as metric labels.
func SetTrackedKeys(keys []string) {
	trackedKeysMu.Lock()
	defer trackedKeysMu.Unlock()
	trackedKeys = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		trackedKeys[k] = struct{}{}
	}
}

// MetricKeyLabel returns key when it is tracked, otherwise "other".
// Keeps label cardinality bounded to the configured locations.
func MetricKeyLabel(key string) string {
	trackedKeysMu.RLock()
	_, ok := trackedKeys[key] // nil map read is safe
	trackedKeysMu.RUnlock()
	if ok {
		return key
	}
	return "other"
}

// RecordWeatherQuery records a weather lookup for the given cache key.
func RecordWeatherQuery(key string) {
	WeatherQueriesTotal.Inc()
	WeatherQueriesByKeyTotal.WithLabelValues(MetricKeyLabel(key)).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
