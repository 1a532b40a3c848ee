package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/recommend"
)

var overrideKeys = []string{
	"ENV_NAME", "WEATHER_API_KEY", "WEATHER_PROVIDER", "CACHE_BACKEND",
	"MEMCACHED_ADDRS", "CATALOG_PATH", "PORT", "WEATHER_API_URL",
}

// clearEnv unsets every override variable for the duration of the test and
// restores the previous values afterwards, including ones a .env file set.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideKeys {
		prev, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		k := k
		t.Cleanup(func() {
			if ok {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoadDir_FailsWhenNoAPIKey(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadDir(dir)
	if err == nil {
		t.Fatal("LoadDir() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("LoadDir() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoadDir_SucceedsWithSecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoadDir_EnvKeyBeatsSecretsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "key-from-env-1234")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-env-1234" {
		t.Errorf("WeatherAPIKey = %q, want env value", cfg.WeatherAPIKey)
	}
}

func TestLoadDir_DotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	dotenv := "WEATHER_API_KEY=key-from-dotenv\nWEATHER_PROVIDER=weatherapi\nCACHE_BACKEND=memcached\nMEMCACHED_ADDRS=cache-a:11211,cache-b:11211\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want value from .env", cfg.WeatherAPIKey)
	}
	if cfg.WeatherProvider != models.SourceWeatherAPI {
		t.Errorf("WeatherProvider = %q, want weatherapi", cfg.WeatherProvider)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "cache-a:11211,cache-b:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
}

func TestLoadDir_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	t.Setenv("PORT", "9090")
	t.Setenv("CATALOG_PATH", "/etc/gravel/catalog.yaml")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+"\ncatalog:\n  path: \"from-yaml.yaml\"\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.CatalogPath != "/etc/gravel/catalog.yaml" {
		t.Errorf("CatalogPath = %q, want env value", cfg.CatalogPath)
	}
}

func TestLoadDir_EnvNameSelectsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	t.Setenv("ENV_NAME", "staging")
	dir := t.TempDir()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "staging.yaml"), []byte("server:\n  port: \"7070\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.EnvName != "staging" || cfg.ServerPort != "7070" {
		t.Errorf("EnvName = %q ServerPort = %q, want staging/7070", cfg.EnvName, cfg.ServerPort)
	}
}

func TestLoadDir_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")

	cfg, err := LoadDir(t.TempDir())
	if err == nil {
		t.Fatal("LoadDir() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("LoadDir() error = %v, want message about config file not found", err)
	}
}

func TestLoadDir_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"8080\"\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"WeatherProvider", cfg.WeatherProvider, models.SourceOpenWeather},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, 2 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 5 * time.Second},
		{"CacheTTL", cfg.CacheTTL, 10 * time.Minute},
		{"CacheBackend", cfg.CacheBackend, "in_memory"},
		{"CacheCapacity", cfg.CacheCapacity, 0},
		{"GridPrecision", cfg.GridPrecision, 0.1},
		{"CoalesceEnabled", cfg.CoalesceEnabled, true},
		{"CoalesceTimeout", cfg.CoalesceTimeout, 5 * time.Second},
		{"BreakerFailures", cfg.BreakerFailures, uint32(5)},
		{"BreakerOpenTimeout", cfg.BreakerOpenTimeout, 30 * time.Second},
		{"BreakerHalfOpenReqs", cfg.BreakerHalfOpenReqs, uint32(1)},
		{"RetryAttempts", cfg.RetryAttempts, 3},
		{"RateLimitRPS", cfg.RateLimitRPS, 100},
		{"OverloadThresholdPct", cfg.OverloadThresholdPct, 80},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 5},
		{"Thresholds", cfg.Thresholds, recommend.DefaultThresholds()},
		{"CatalogPath", cfg.CatalogPath, ""},
		{"WarmEnabled", cfg.WarmEnabled, false},
		{"WarmInterval", cfg.WarmInterval, 5 * time.Minute},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadDir_EmptyDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, strings.Replace(minimalEnvYAML, `timeout: "2s"`, `timeout: ""`, 1))
	writeSecretsFile(t, dir, "weather_api_key: key\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 2*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want default 2s", cfg.WeatherAPITimeout)
	}
}

func TestLoadDir_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, strings.Replace(minimalEnvYAML, `ttl: "10m"`, `ttl: "invalid"`, 1))
	writeSecretsFile(t, dir, "weather_api_key: key\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want default 10m", cfg.CacheTTL)
	}
}

func TestLoadDir_RequestTimeoutRaisedAboveAPITimeout(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := strings.Replace(minimalEnvYAML, `timeout: "2s"`, `timeout: "8s"`, 1)
	writeEnvFile(t, dir, yaml)
	writeSecretsFile(t, dir, "weather_api_key: key\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.RequestTimeout != 9*time.Second {
		t.Errorf("RequestTimeout = %v, want 9s (api timeout + 1s)", cfg.RequestTimeout)
	}
}

func TestLoadDir_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			name:    "zero api timeout",
			yaml:    strings.Replace(minimalEnvYAML, `timeout: "2s"`, `timeout: "0s"`, 1),
			wantSub: "WEATHER_API_TIMEOUT",
		},
		{
			name:    "unknown provider",
			yaml:    strings.Replace(minimalEnvYAML, "provider: openweather", "provider: darksky", 1),
			wantSub: "weather_api.provider",
		},
		{
			name:    "unknown backend",
			yaml:    strings.Replace(minimalEnvYAML, "backend: in_memory", "backend: redis", 1),
			wantSub: "cache.backend",
		},
		{
			name:    "negative capacity",
			yaml:    strings.Replace(minimalEnvYAML, "capacity: 100", "capacity: -1", 1),
			wantSub: "cache.capacity",
		},
		{
			name:    "negative precision",
			yaml:    strings.Replace(minimalEnvYAML, "grid_precision: 0.1", "grid_precision: -0.5", 1),
			wantSub: "grid_precision",
		},
		{
			name:    "overlapping zones",
			yaml:    minimalEnvYAML + "\nrecommendation:\n  warm_min: 30\n",
			wantSub: "recommendation thresholds",
		},
		{
			name:    "tracked location out of range",
			yaml:    minimalEnvYAML + "\nmetrics:\n  tracked_locations:\n    - {name: nowhere, lat: 95, lon: 0}\n",
			wantSub: "nowhere",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			writeSecretsFile(t, dir, "weather_api_key: key\n")

			cfg, err := LoadDir(dir)
			if err == nil {
				t.Fatalf("LoadDir() expected error, got config %+v", cfg)
			}
			if cfg != nil {
				t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("LoadDir() error = %v, want message containing %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoadDir_InvalidSecretsYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "not valid: yaml: [[[")

	cfg, err := LoadDir(dir)
	if err == nil {
		t.Fatal("LoadDir() expected error for invalid secrets YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse secrets file") {
		t.Errorf("LoadDir() error = %v, want message about parse secrets file", err)
	}
}

func TestLoadDir_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, "not: valid: yaml: [[[")

	cfg, err := LoadDir(dir)
	if err == nil {
		t.Fatal("LoadDir() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("LoadDir() error = %v, want message about parse config file", err)
	}
}

func TestLoadDir_MalformedDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY='unterminated\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	_, err := LoadDir(dir)
	if err == nil {
		t.Fatal("LoadDir() expected error for malformed .env, got nil")
	}
	if errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadDir() error = %v, should not be a not-exist error", err)
	}
}

func TestLoadDir_SectionsAndThresholds(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	full := minimalEnvYAML + `
coalesce:
  enabled: false
  timeout: "3s"
circuit_breaker:
  consecutive_failures: 2
  open_timeout: "10s"
  half_open_requests: 3
  interval: "1m"
lifecycle:
  overload_window: "30s"
  overload_threshold_pct: 90
  degraded_window: "45s"
  degraded_error_pct: 10
recommendation:
  cool_min: 0
  high_uv: 8
metrics:
  tracked_locations:
    - {name: charlotte, lat: 35.2271, lon: -80.8431}
warm:
  enabled: true
  interval: "2m"
`
	dir := t.TempDir()
	writeEnvFile(t, dir, full)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.CoalesceEnabled || cfg.CoalesceTimeout != 3*time.Second {
		t.Errorf("coalesce = %v/%v, want false/3s", cfg.CoalesceEnabled, cfg.CoalesceTimeout)
	}
	if cfg.BreakerFailures != 2 || cfg.BreakerOpenTimeout != 10*time.Second ||
		cfg.BreakerHalfOpenReqs != 3 || cfg.BreakerInterval != time.Minute {
		t.Errorf("breaker = %d/%v/%d/%v", cfg.BreakerFailures, cfg.BreakerOpenTimeout, cfg.BreakerHalfOpenReqs, cfg.BreakerInterval)
	}
	if cfg.OverloadWindow != 30*time.Second || cfg.OverloadThresholdPct != 90 {
		t.Errorf("overload = %v/%d, want 30s/90", cfg.OverloadWindow, cfg.OverloadThresholdPct)
	}
	if cfg.DegradedWindow != 45*time.Second || cfg.DegradedErrorPct != 10 {
		t.Errorf("degraded = %v/%d, want 45s/10", cfg.DegradedWindow, cfg.DegradedErrorPct)
	}

	want := recommend.DefaultThresholds()
	want.CoolMin = 0
	want.HighUV = 8
	if cfg.Thresholds != want {
		t.Errorf("Thresholds = %+v, want %+v", cfg.Thresholds, want)
	}

	if len(cfg.TrackedLocations) != 1 || cfg.TrackedLocations[0].Name != "charlotte" {
		t.Fatalf("TrackedLocations = %+v", cfg.TrackedLocations)
	}
	if got := cfg.TrackedLocations[0].Coordinates(); got.Lat != 35.2271 || got.Lon != -80.8431 {
		t.Errorf("Coordinates() = %+v", got)
	}
	if !cfg.WarmEnabled || cfg.WarmInterval != 2*time.Minute {
		t.Errorf("warm = %v/%v, want true/2m", cfg.WarmEnabled, cfg.WarmInterval)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")

	origWd, _ := os.Getwd()
	if err := os.Chdir(findProjectRoot(t)); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIURL == "" || cfg.ServerPort == "" {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
	if !strings.Contains(cfg.WeatherAPIURL, "openweathermap.org") {
		t.Errorf("WeatherAPIURL = %q, want the OpenWeather endpoint", cfg.WeatherAPIURL)
	}
	if len(cfg.TrackedLocations) == 0 {
		t.Error("config/dev.yaml should define tracked locations")
	}
}

func TestLoadDir_ProviderOverrideSelectsMatchingURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	t.Setenv("WEATHER_PROVIDER", "weatherapi")

	cfg, err := LoadDir(findProjectRoot(t))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherProvider != models.SourceWeatherAPI {
		t.Fatalf("WeatherProvider = %q, want weatherapi", cfg.WeatherProvider)
	}
	if !strings.Contains(cfg.WeatherAPIURL, "weatherapi.com") {
		t.Errorf("WeatherAPIURL = %q, want the WeatherAPI endpoint", cfg.WeatherAPIURL)
	}
}

func TestLoadDir_ProviderWithoutURLUsesAdapterDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	t.Setenv("WEATHER_PROVIDER", "weatherapi")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherAPIURL != "" {
		t.Errorf("WeatherAPIURL = %q, want empty so the adapter uses its own endpoint", cfg.WeatherAPIURL)
	}
}

func TestLoadDir_WeatherAPIURLEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	t.Setenv("WEATHER_API_URL", "http://localhost:9999/weather")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherAPIURL != "http://localhost:9999/weather" {
		t.Errorf("WeatherAPIURL = %q, want env override", cfg.WeatherAPIURL)
	}
}

func TestLoadDir_RejectsURLForUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, strings.Replace(minimalEnvYAML,
		`openweather: "https://api.example.com"`,
		`openweather: "https://api.example.com"
    darksky: "https://api.darksky.net"`, 1))

	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "darksky") {
		t.Fatalf("LoadDir() error = %v, want unknown provider error", err)
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  provider: openweather
  urls:
    openweather: "https://api.example.com"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  backend: in_memory
  ttl: "10m"
  capacity: 100
  grid_precision: 0.1
reliability:
  retry_max_attempts: 3
  retry_base_delay: "100ms"
  retry_max_delay: "2s"
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "secrets.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
