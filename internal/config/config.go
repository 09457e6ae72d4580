package config

import (
	"os"
	"strconv"
	"time"

	"pivotdesk/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Compute  ComputeConfig
	Cache    CacheConfig
	Data     DataConfig
	Pivot    PivotConfig
	LogLevel string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// DatabaseConfig holds database connection settings. An empty URL disables
// saved configurations.
type DatabaseConfig struct {
	URL string
}

// ComputeConfig points at the external pivot compute service
type ComputeConfig struct {
	URL           string
	APIKey        string
	Timeout       time.Duration
	MaxConcurrent int
}

// CacheConfig holds result cache settings. An empty RedisURL selects the
// in-process cache.
type CacheConfig struct {
	RedisURL   string
	TTL        time.Duration
	MaxEntries int
}

// DataConfig holds the location of xlsx/csv data sources
type DataConfig struct {
	Dir string
}

// PivotConfig holds presentation defaults
type PivotConfig struct {
	DefaultDecimals int
	SessionIdleTTL  time.Duration
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "debug"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Compute: ComputeConfig{
			URL:           os.Getenv("COMPUTE_URL"),
			APIKey:        os.Getenv("COMPUTE_API_KEY"),
			Timeout:       getEnvDurationOrDefault("COMPUTE_TIMEOUT", 30*time.Second),
			MaxConcurrent: getEnvIntOrDefault("COMPUTE_MAX_CONCURRENCY", 4),
		},
		Cache: CacheConfig{
			RedisURL:   os.Getenv("REDIS_URL"),
			TTL:        getEnvDurationOrDefault("CACHE_TTL", 15*time.Minute),
			MaxEntries: getEnvIntOrDefault("CACHE_MAX_ENTRIES", 1024),
		},
		Data: DataConfig{
			Dir: getEnvOrDefault("DATA_DIR", "./data"),
		},
		Pivot: PivotConfig{
			DefaultDecimals: getEnvIntOrDefault("PIVOT_DECIMALS", 2),
			SessionIdleTTL:  getEnvDurationOrDefault("PIVOT_SESSION_IDLE_TTL", 2*time.Hour),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Compute.URL == "" {
		return errors.ConfigInvalid("COMPUTE_URL is required")
	}
	if config.Compute.Timeout <= 0 {
		return errors.ConfigInvalid("COMPUTE_TIMEOUT must be positive")
	}
	if config.Compute.MaxConcurrent < 1 {
		return errors.ConfigInvalid("COMPUTE_MAX_CONCURRENCY must be at least 1")
	}
	if config.Cache.MaxEntries < 1 {
		return errors.ConfigInvalid("CACHE_MAX_ENTRIES must be at least 1")
	}
	if config.Data.Dir == "" {
		return errors.ConfigInvalid("DATA_DIR is required")
	}
	if config.Pivot.DefaultDecimals < 0 || config.Pivot.DefaultDecimals > 10 {
		return errors.ConfigInvalid("PIVOT_DECIMALS must be between 0 and 10")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
