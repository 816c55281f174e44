package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Evidence store: "postgres" or "memory"
	Store        string
	DatabaseURL  string
	FixturesPath string

	// Identity engine
	PhoneRegion   string
	SourceTimeout time.Duration
	FanOutLimit   int
	TrialWindow   time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Admin routes are disabled when the secret is empty.
	AdminJWTSecret string

	// Background reconciliation
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueue            string
	AsynqConcurrency      int
	ReconcileCron         string
	ReconcileWritesPerSec float64
	ReconcileBatchLimit   int
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Store:        strings.ToLower(getEnv("STORE", "postgres")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		FixturesPath: getEnv("FIXTURES_PATH", ""),

		PhoneRegion:   getEnv("PHONE_REGION", "KR"),
		SourceTimeout: getEnvDuration("SOURCE_TIMEOUT", 3*time.Second),
		FanOutLimit:   getEnvInt("FANOUT_LIMIT", 5),
		TrialWindow:   getEnvDuration("TRIAL_WINDOW", 72*time.Hour),

		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 20),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      getEnvBool("REDIS_TLS_INSECURE", false),
		AsynqQueue:            getEnv("ASYNQ_QUEUE", "identity"),
		AsynqConcurrency:      getEnvInt("ASYNQ_CONCURRENCY", 2),
		ReconcileCron:         getEnv("RECONCILE_CRON", "@every 15m"),
		ReconcileWritesPerSec: getEnvFloat("RECONCILE_WRITES_PER_SEC", 20),
		ReconcileBatchLimit:   getEnvInt("RECONCILE_BATCH_LIMIT", 500),
	}
}

// UseMemoryStore reports whether the in-memory evidence store is selected.
func (c *Config) UseMemoryStore() bool {
	return c.Store == "memory"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
