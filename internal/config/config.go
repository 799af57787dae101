// Package config provides configuration management for the telemetry
// courier. It handles loading configuration from environment variables
// with sensible defaults and validates the configuration so a transport
// can be constructed safely.
//
// Environment Variables:
//
// Destination:
//   - COURIER_DSN: Ingestion endpoint descriptor (required)
//   - COURIER_CLIENT_NAME: Client identifier sent in the auth header
//
// Network:
//   - COURIER_HTTPS_PROXY: Proxy preferred for secure destinations
//   - COURIER_HTTP_PROXY: General fallback proxy
//   - COURIER_INSECURE_SKIP_VERIFY: Accept invalid TLS certificates
//     (default: false; diagnostic builds only)
//   - COURIER_REQUEST_TIMEOUT: Per-submission timeout (default: 30s)
//
// Delivery:
//   - COURIER_QUEUE_SIZE: Pending queue capacity (default: 128)
//   - COURIER_THROTTLE_EPS: Producer-side envelopes per second
//     (default: 0, disabled)
//   - COURIER_THROTTLE_BURST: Producer-side burst allowance (default: 1)
//   - COURIER_BREAKER_ENABLED: Fail fast when the endpoint is down
//     (default: false)
//   - COURIER_SPOOL_PATH: SQLite file capturing envelopes rejected at
//     capacity (default: disabled)
//
// Shared rate limits:
//   - COURIER_REDIS_ADDRESS: Redis address for the shared limit store
//     (default: disabled)
//   - COURIER_REDIS_PASSWORD: Redis password
//   - COURIER_REDIS_DB: Redis database number 0-15 (default: 0)
//
// Logging:
//   - LOG_LEVEL: Logging level (default: info)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the courier. All fields
// correspond to environment variables that can be set to override the
// defaults.
type Config struct {
	// Destination
	DSN        string // Ingestion endpoint descriptor (required)
	ClientName string // Client identifier for the auth header

	// Network
	HTTPSProxy         string        // Proxy for secure destinations
	HTTPProxy          string        // General fallback proxy
	InsecureSkipVerify bool          // Accept invalid TLS certificates
	RequestTimeout     time.Duration // Per-submission timeout

	// Delivery
	QueueSize      int     // Pending queue capacity
	ThrottleEPS    float64 // Producer-side envelopes per second (0 = off)
	ThrottleBurst  int     // Producer-side burst allowance
	BreakerEnabled bool    // Fail fast when the endpoint is down
	SpoolPath      string  // Overflow spool path ("" = off)

	// Shared rate limits
	RedisAddress  string // Redis address for the shared limit store ("" = off)
	RedisPassword string // Redis authentication password
	RedisDB       int    // Redis database number (0-15)

	// Logging
	LogLevel string // Logging level (debug, info, warn, error)
}

// Load creates a new Config instance with values loaded from
// environment variables. It does not validate; call Validate() on the
// result before use.
func Load() *Config {
	return &Config{
		DSN:        os.Getenv("COURIER_DSN"),
		ClientName: getEnv("COURIER_CLIENT_NAME", ""),

		HTTPSProxy:         os.Getenv("COURIER_HTTPS_PROXY"),
		HTTPProxy:          os.Getenv("COURIER_HTTP_PROXY"),
		InsecureSkipVerify: getEnvBool("COURIER_INSECURE_SKIP_VERIFY", false),
		RequestTimeout:     getEnvDuration("COURIER_REQUEST_TIMEOUT", 30*time.Second),

		QueueSize:      getEnvInt("COURIER_QUEUE_SIZE", 128),
		ThrottleEPS:    getEnvFloat("COURIER_THROTTLE_EPS", 0),
		ThrottleBurst:  getEnvInt("COURIER_THROTTLE_BURST", 1),
		BreakerEnabled: getEnvBool("COURIER_BREAKER_ENABLED", false),
		SpoolPath:      os.Getenv("COURIER_SPOOL_PATH"),

		RedisAddress:  os.Getenv("COURIER_REDIS_ADDRESS"),
		RedisPassword: os.Getenv("COURIER_REDIS_PASSWORD"),
		RedisDB:       getEnvInt("COURIER_REDIS_DB", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate ensures all required values are set and within range.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("COURIER_DSN is required")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("COURIER_QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("COURIER_REQUEST_TIMEOUT must be positive, got %v", c.RequestTimeout)
	}
	if c.ThrottleEPS < 0 {
		return fmt.Errorf("COURIER_THROTTLE_EPS must not be negative, got %v", c.ThrottleEPS)
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("COURIER_REDIS_DB must be between 0 and 15, got %d", c.RedisDB)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
