package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/recommend"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	EnvName string

	ServerPort     string
	RequestTimeout time.Duration

	WeatherProvider   models.Source
	WeatherAPIKey     string
	WeatherAPIURL     string // empty selects the provider's public endpoint
	WeatherAPITimeout time.Duration

	CacheTTL      time.Duration
	CacheBackend  string // "in_memory" or "memcached"
	CacheCapacity int    // in_memory entry bound, 0 = unbounded
	GridPrecision float64

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	BreakerFailures     uint32
	BreakerOpenTimeout  time.Duration
	BreakerHalfOpenReqs uint32
	BreakerInterval     time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	Thresholds  recommend.Thresholds
	CatalogPath string

	TrackedLocations []TrackedLocation
	WarmEnabled      bool
	WarmInterval     time.Duration
}

// TrackedLocation is a named coordinate that gets its own metric label and
// is kept warm in the cache.
type TrackedLocation struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Coordinates returns the location as a models.LocationCoordinates.
func (t TrackedLocation) Coordinates() models.LocationCoordinates {
	return models.LocationCoordinates{Lat: t.Lat, Lon: t.Lon}
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		Provider string `yaml:"provider"`
		// URLs is keyed by provider name.
		URLs    map[string]string `yaml:"urls"`
		Timeout string            `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend       string  `yaml:"backend"`
		TTL           string  `yaml:"ttl"`
		Capacity      int     `yaml:"capacity"`
		GridPrecision float64 `yaml:"grid_precision"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Coalesce struct {
		Enabled *bool  `yaml:"enabled"`
		Timeout string `yaml:"timeout"`
	} `yaml:"coalesce"`

	CircuitBreaker struct {
		ConsecutiveFailures int    `yaml:"consecutive_failures"`
		OpenTimeout         string `yaml:"open_timeout"`
		HalfOpenRequests    int    `yaml:"half_open_requests"`
		Interval            string `yaml:"interval"`
	} `yaml:"circuit_breaker"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Recommendation thresholdsFile `yaml:"recommendation"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Metrics struct {
		TrackedLocations []TrackedLocation `yaml:"tracked_locations"`
	} `yaml:"metrics"`

	Warm struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"warm"`
}

// thresholdsFile uses pointers so an omitted key keeps the engine default
// while an explicit 0 is honored.
type thresholdsFile struct {
	HotMin           *float64 `yaml:"hot_min"`
	WarmMin          *float64 `yaml:"warm_min"`
	CoolMin          *float64 `yaml:"cool_min"`
	WindSpeed        *float64 `yaml:"wind_speed"`
	WindGust         *float64 `yaml:"wind_gust"`
	Humidity         *float64 `yaml:"humidity"`
	GustWarningDelta *float64 `yaml:"gust_warning_delta"`
	HighUV           *float64 `yaml:"high_uv"`
	LowVisibility    *float64 `yaml:"low_visibility"`
	Freezing         *float64 `yaml:"freezing"`
	ExtremeHeat      *float64 `yaml:"extreme_heat"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// envOverrides are read after the YAML files and win over them when set.
type envOverrides struct {
	EnvName         string `envconfig:"ENV_NAME" default:"dev"`
	WeatherAPIKey   string `envconfig:"WEATHER_API_KEY"`
	WeatherProvider string `envconfig:"WEATHER_PROVIDER"`
	WeatherAPIURL   string `envconfig:"WEATHER_API_URL"`
	CacheBackend    string `envconfig:"CACHE_BACKEND"`
	MemcachedAddrs  string `envconfig:"MEMCACHED_ADDRS"`
	CatalogPath     string `envconfig:"CATALOG_PATH"`
	Port            string `envconfig:"PORT"`
}

// Load reads configuration relative to the working directory. See LoadDir.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir loads {root}/.env into the process environment when present, then
// reads {root}/config/{ENV_NAME}.yaml (default dev) and {root}/config/secrets.yaml.
// The API key comes from WEATHER_API_KEY or the secrets file.
func LoadDir(root string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if env.EnvName == "" {
		env.EnvName = "dev"
	}

	configPath := filepath.Join(root, "config", env.EnvName+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{EnvName: env.EnvName}

	cfg.ServerPort = firstNonEmpty(env.Port, fc.Server.Port, "8080")

	cfg.WeatherProvider = models.Source(strings.ToLower(firstNonEmpty(env.WeatherProvider, fc.WeatherAPI.Provider, string(models.SourceOpenWeather))))
	cfg.WeatherAPIKey = env.WeatherAPIKey
	if cfg.WeatherAPIKey == "" {
		key, err := loadAPIKeyFromSecrets(filepath.Join(root, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	for name := range fc.WeatherAPI.URLs {
		if !knownProvider(models.Source(name)) {
			return nil, fmt.Errorf("weather_api.urls: unknown provider %q", name)
		}
	}
	cfg.WeatherAPIURL = strings.TrimSpace(firstNonEmpty(env.WeatherAPIURL, fc.WeatherAPI.URLs[string(cfg.WeatherProvider)]))
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(env.CacheBackend, fc.Cache.Backend, "in_memory"))
	cfg.CacheCapacity = fc.Cache.Capacity
	cfg.GridPrecision = fc.Cache.GridPrecision
	if cfg.GridPrecision == 0 {
		cfg.GridPrecision = 0.1
	}
	cfg.MemcachedAddrs = firstNonEmpty(env.MemcachedAddrs, fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CoalesceEnabled = true
	if fc.Coalesce.Enabled != nil {
		cfg.CoalesceEnabled = *fc.Coalesce.Enabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Coalesce.Timeout, 5*time.Second)

	cfg.BreakerFailures = positiveUint32(fc.CircuitBreaker.ConsecutiveFailures, 5)
	cfg.BreakerOpenTimeout = parseDuration(fc.CircuitBreaker.OpenTimeout, 30*time.Second)
	cfg.BreakerHalfOpenReqs = positiveUint32(fc.CircuitBreaker.HalfOpenRequests, 1)
	cfg.BreakerInterval = parseDurationOrZero(fc.CircuitBreaker.Interval, 0)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.Thresholds = fc.Recommendation.apply(recommend.DefaultThresholds())
	cfg.CatalogPath = firstNonEmpty(env.CatalogPath, fc.Catalog.Path)

	cfg.TrackedLocations = fc.Metrics.TrackedLocations
	cfg.WarmEnabled = fc.Warm.Enabled
	cfg.WarmInterval = parseDuration(fc.Warm.Interval, 5*time.Minute)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKeyFromSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.WeatherAPIKey, nil
}

func (f thresholdsFile) apply(t recommend.Thresholds) recommend.Thresholds {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&t.HotMin, f.HotMin)
	set(&t.WarmMin, f.WarmMin)
	set(&t.CoolMin, f.CoolMin)
	set(&t.WindSpeed, f.WindSpeed)
	set(&t.WindGust, f.WindGust)
	set(&t.Humidity, f.Humidity)
	set(&t.GustWarningDelta, f.GustWarningDelta)
	set(&t.HighUV, f.HighUV)
	set(&t.LowVisibility, f.LowVisibility)
	set(&t.Freezing, f.Freezing)
	set(&t.ExtremeHeat, f.ExtremeHeat)
	return t
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func positiveUint32(v int, def uint32) uint32 {
	if v <= 0 {
		return def
	}
	return uint32(v)
}

func knownProvider(s models.Source) bool {
	return s == models.SourceOpenWeather || s == models.SourceWeatherAPI
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout when needed rather than rejected.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if !knownProvider(cfg.WeatherProvider) {
		return fmt.Errorf("weather_api.provider must be openweather or weatherapi, got %q", cfg.WeatherProvider)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.CacheCapacity < 0 {
		return fmt.Errorf("cache.capacity must not be negative, got %d", cfg.CacheCapacity)
	}
	if cfg.GridPrecision <= 0 || cfg.GridPrecision > 1 {
		return fmt.Errorf("cache.grid_precision must be in (0, 1], got %v", cfg.GridPrecision)
	}
	if cfg.OverloadThresholdPct > 100 || cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle percentages must not exceed 100")
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return fmt.Errorf("recommendation thresholds: %w", err)
	}
	for i, loc := range cfg.TrackedLocations {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			return fmt.Errorf("metrics.tracked_locations[%d] (%s) out of range: %v,%v", i, loc.Name, loc.Lat, loc.Lon)
		}
	}
	return nil
}
