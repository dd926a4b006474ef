package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string

	// Primary object store (memory://, s3://, mongodb://, redis://, mysql://, sqlite://)
	StorageURL string
	// YAML list of read-only peer sources consulted after the primary
	SourcesFile string

	RedisURL         string // cross-instance event relay, optional
	ActivityMongoURI string // activity sink, optional
	JWTSecret        string
	AllowedOrigins   string
	MetricsEnabled   bool

	// OpenAI-compatible chat completions endpoint for insights. Empty disables them.
	InsightsBaseURL string
	InsightsAPIKey  string
	InsightsModel   string

	// Per-owner actor tuning
	ActorQueueTimeout time.Duration
	ActorInboxSize    int
	ActorIdleTTL      time.Duration
	ActorReapInterval time.Duration

	// Empty means rebuild on demand only
	IndexRebuildCron string

	RateLimitGlobalAPI       int // requests per minute per IP on /api
	RateLimitWritesPerSecond float64
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),

		StorageURL:  getEnv("STORAGE_URL", "memory://primary"),
		SourcesFile: getEnv("SOURCES_FILE", "sources.yaml"),

		RedisURL:         getEnv("REDIS_URL", ""),
		ActivityMongoURI: getEnv("ACTIVITY_MONGODB_URI", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		MetricsEnabled:   getBoolEnv("METRICS_ENABLED", true),

		InsightsBaseURL: getEnv("INSIGHTS_BASE_URL", ""),
		InsightsAPIKey:  getEnv("INSIGHTS_API_KEY", ""),
		InsightsModel:   getEnv("INSIGHTS_MODEL", "gpt-4o-mini"),

		ActorQueueTimeout: getDurationEnv("ACTOR_QUEUE_TIMEOUT", 10*time.Second),
		ActorInboxSize:    getIntEnv("ACTOR_INBOX_SIZE", 256),
		ActorIdleTTL:      getDurationEnv("ACTOR_IDLE_TTL", 15*time.Minute),
		ActorReapInterval: getDurationEnv("ACTOR_REAP_INTERVAL", time.Minute),

		IndexRebuildCron: getEnv("INDEX_REBUILD_CRON", ""),

		RateLimitGlobalAPI:       getIntEnv("RATE_LIMIT_GLOBAL_API", 300),
		RateLimitWritesPerSecond: getFloatEnv("RATE_LIMIT_WRITES_PER_SECOND", 20),
	}
}

// IsProduction reports whether ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
