package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string

	StoreDriver    string
	RedisURL       string
	RedisKeyPrefix string
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	SessionRetention time.Duration
	SweepInterval    time.Duration

	StoreMaxAttempts    int
	StoreInitialBackoff time.Duration
	StoreMaxBackoff     time.Duration
	BreakerFailures     int
	BreakerCooldown     time.Duration

	ResetTokenSecret string
	ResetTokenTTL    time.Duration

	LoginRateLimit int
	APIRateLimit   int
	UserCacheTTL   time.Duration

	OTLPEndpoint string
}

// Load reads configuration from environment variables, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	intVar := func(key, def string) int {
		n, err := strconv.Atoi(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return n
	}
	durationVar := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return d
	}

	cfg := &Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		ServerPort:         intVar("SERVER_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverRedis)),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "fh:"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: intVar("DB_MAX_OPEN_CONNS", "25"),
		DBMaxIdleConns: intVar("DB_MAX_IDLE_CONNS", "5"),

		AccessTokenTTL:   durationVar("ACCESS_TOKEN_TTL", "12h"),
		RefreshTokenTTL:  durationVar("REFRESH_TOKEN_TTL", "168h"),
		SessionRetention: durationVar("SESSION_RETENTION", "720h"),
		SweepInterval:    durationVar("SWEEP_INTERVAL", "10m"),

		StoreMaxAttempts:    intVar("STORE_MAX_ATTEMPTS", "3"),
		StoreInitialBackoff: durationVar("STORE_INITIAL_BACKOFF", "100ms"),
		StoreMaxBackoff:     durationVar("STORE_MAX_BACKOFF", "2s"),
		BreakerFailures:     intVar("BREAKER_FAILURES", "5"),
		BreakerCooldown:     durationVar("BREAKER_COOLDOWN", "30s"),

		ResetTokenSecret: getEnv("RESET_TOKEN_SECRET", ""),
		ResetTokenTTL:    durationVar("RESET_TOKEN_TTL", "30m"),

		LoginRateLimit: intVar("LOGIN_RATE_LIMIT", "10"),
		APIRateLimit:   intVar("API_RATE_LIMIT", "300"),
		UserCacheTTL:   durationVar("USER_CACHE_TTL", "1m"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}

	switch cfg.StoreDriver {
	case DriverRedis, DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.ResetTokenSecret == "" && cfg.IsProduction() {
		return nil, fmt.Errorf("config: RESET_TOKEN_SECRET is required in production")
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
