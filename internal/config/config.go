package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Session tokens are issued by the identity provider and only verified here.
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTClockSkew time.Duration
	AuthCookie   string

	UpstreamBaseURL     string
	UpstreamTimeout     time.Duration
	UpstreamServiceKey  string
	UpstreamMaxRetries  int
	UpstreamBackoffBase time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	BreakerWindow       time.Duration
	BreakerProbes       int

	CatalogCacheTTL     time.Duration
	CatalogHTTPMaxAge   time.Duration
	CatalogDefaultLimit int
	CatalogMaxLimit     int
	BestSellersLimit    int
	ContentCacheTTL     time.Duration
	PriceScale          int32

	AnalyticsCacheTTL     time.Duration
	AnalyticsDefaultRange time.Duration
	AnalyticsMaxRange     time.Duration

	AuditEnabled      bool
	AuditSamplingRate float64

	RateLimitStrategy string
	RateLimitWindow   time.Duration
	RateLimitMax      int

	IdempotencyTTL    time.Duration
	BodyLimitBytes    int64
	WarmLockTTL       time.Duration
	WorkerConcurrency int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:  strings.TrimSpace(k.String("JWT_AUDIENCE")),
		JWTClockSkew: parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),
		AuthCookie:   valueOrDefault(k.String("AUTH_COOKIE_NAME"), "session"),

		UpstreamBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("UPSTREAM_BASE_URL")), "/"),
		UpstreamTimeout:     parseDuration(k.String("UPSTREAM_TIMEOUT"), "5s"),
		UpstreamServiceKey:  strings.TrimSpace(k.String("UPSTREAM_SERVICE_TOKEN")),
		UpstreamMaxRetries:  parseInt(k.String("UPSTREAM_MAX_RETRIES"), 2),
		UpstreamBackoffBase: parseDuration(k.String("UPSTREAM_BACKOFF_BASE"), "100ms"),
		BreakerMinRequests:  parseInt(k.String("UPSTREAM_BREAKER_MIN_REQUESTS"), 20),
		BreakerFailureRatio: parseFloat(k.String("UPSTREAM_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("UPSTREAM_BREAKER_OPEN_FOR"), "30s"),
		BreakerWindow:       parseDuration(k.String("UPSTREAM_BREAKER_WINDOW"), "60s"),
		BreakerProbes:       parseInt(k.String("UPSTREAM_BREAKER_PROBES"), 1),

		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		CatalogHTTPMaxAge:   parseDuration(k.String("CATALOG_HTTP_MAX_AGE"), "30s"),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		BestSellersLimit:    parseInt(k.String("CATALOG_BEST_SELLERS_LIMIT"), 8),
		ContentCacheTTL:     parseDuration(k.String("CONTENT_CACHE_TTL"), "5m"),
		PriceScale:          int32(parseInt(k.String("PRICE_DISPLAY_SCALE"), 2)),

		AnalyticsCacheTTL:     parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
		AnalyticsDefaultRange: parseDuration(k.String("ANALYTICS_DEFAULT_RANGE"), "720h"),
		AnalyticsMaxRange:     parseDuration(k.String("ANALYTICS_MAX_RANGE"), "8784h"),

		AuditEnabled:      parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		AuditSamplingRate: parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1.0),

		RateLimitStrategy: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		RateLimitWindow:   parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:      parseInt(k.String("RATE_LIMIT_MAX"), 120),

		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes:    int64(parseInt(k.String("BODY_LIMIT_BYTES"), 10<<20)),
		WarmLockTTL:       parseDuration(k.String("CATALOG_WARM_LOCK_TTL"), "30s"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.UpstreamBaseURL == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required")
	}
	switch cfg.RateLimitStrategy {
	case "sliding", "fixed":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY must be sliding or fixed, got %q", cfg.RateLimitStrategy)
	}
	if cfg.PriceScale < 0 {
		cfg.PriceScale = 2
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
