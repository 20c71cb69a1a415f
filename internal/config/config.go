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

	AdminJWTSecret   string
	AdminJWTIssuer   string
	AdminJWTAudience string

	PricingTaxRateBPS int
	QuoteValidityDays int
	QuoteNumberPrefix string

	CatalogCacheTTL  time.Duration
	SearchCacheTTL   time.Duration
	SearchMaxResults int

	IngestBatchSize        int
	IngestRetryMaxAttempts int
	IngestRetryBase        time.Duration
	IngestRetryJitterPct   float64

	IdempotencyTTL   time.Duration
	QueueRedisPrefix string
	QueueMaxAttempts int
	ReindexLockTTL   time.Duration
	LockRetryBackoff time.Duration

	RateSearchWindow time.Duration
	RateSearchMax    int
	RateGlobal       string
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

		AdminJWTSecret:   k.String("ADMIN_JWT_SECRET"),
		AdminJWTIssuer:   valueOrDefault(k.String("ADMIN_JWT_ISSUER"), "stitchline"),
		AdminJWTAudience: valueOrDefault(k.String("ADMIN_JWT_AUDIENCE"), "quote-api"),

		PricingTaxRateBPS: parseInt(k.String("PRICING_TAX_RATE_BPS"), 1010),
		QuoteValidityDays: parseInt(k.String("QUOTE_VALIDITY_DAYS"), 30),
		QuoteNumberPrefix: valueOrDefault(k.String("QUOTE_NUMBER_PREFIX"), "Q"),

		CatalogCacheTTL:  parseDuration(k.String("CATALOG_CACHE_TTL"), "10m"),
		SearchCacheTTL:   parseDuration(k.String("SEARCH_CACHE_TTL"), "30s"),
		SearchMaxResults: parseInt(k.String("SEARCH_MAX_RESULTS"), 20),

		IngestBatchSize:        parseInt(k.String("INGEST_BATCH_SIZE"), 400),
		IngestRetryMaxAttempts: parseInt(k.String("INGEST_RETRY_MAX_ATTEMPTS"), 5),
		IngestRetryBase:        parseDuration(k.String("INGEST_RETRY_BASE"), "500ms"),
		IngestRetryJitterPct:   parseFloat(k.String("INGEST_RETRY_JITTER_PCT"), 0.2),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		QueueRedisPrefix: valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "stitch"),
		QueueMaxAttempts: parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 5),
		ReindexLockTTL:   parseDuration(k.String("REINDEX_LOCK_TTL"), "2m"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		RateSearchWindow: parseDuration(k.String("RATE_SEARCH_WINDOW"), "1m"),
		RateSearchMax:    parseInt(k.String("RATE_SEARCH_MAX"), 120),
		RateGlobal:       valueOrDefault(k.String("RATE_GLOBAL"), "300-M"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
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
		return value
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
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
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
