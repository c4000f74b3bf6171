package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Port       string
	Env        string
	LogLevel   string
	InstanceID string

	// Mailbox store
	StoreBackend       string
	SQLitePath         string
	DatabaseURL        string
	RedisURL           string
	DeliveryMode       string // "mark" or "remove"; empty picks the backend default
	DeliveredRetention time.Duration

	MaxBodyBytes int64

	// Rate limiting (only active when RedisURL is set)
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		InstanceID:       os.Getenv("INSTANCE_ID"),
		StoreBackend:     getEnv("STORE_BACKEND", BackendSQLite),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/relay.db"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		DeliveryMode:     os.Getenv("DELIVERY_MODE"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.Must(uuid.NewV7()).String()
	}

	retention, err := time.ParseDuration(getEnv("DELIVERED_RETENTION", "168h"))
	if err != nil {
		return nil, fmt.Errorf("parse DELIVERED_RETENTION: %w", err)
	}
	cfg.DeliveredRetention = retention

	maxBody, err := strconv.ParseInt(getEnv("MAX_BODY_BYTES", "65536"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse MAX_BODY_BYTES: %w", err)
	}
	cfg.MaxBodyBytes = maxBody

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend is usable.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s backend", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.DeliveryMode {
	case "", "mark", "remove":
	default:
		return fmt.Errorf("unknown DELIVERY_MODE %q", c.DeliveryMode)
	}

	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}

	// In production, messages must survive a restart
	if c.Env == "production" && c.StoreBackend == BackendMemory {
		return fmt.Errorf("the %s backend is not allowed in production", BackendMemory)
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
