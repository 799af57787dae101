package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 128, cfg.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, float64(0), cfg.ThrottleEPS)
	assert.Equal(t, 1, cfg.ThrottleBurst)
	assert.False(t, cfg.BreakerEnabled)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("COURIER_DSN", "https://key@example.com/1")
	t.Setenv("COURIER_CLIENT_NAME", "custom-client/2.0")
	t.Setenv("COURIER_HTTPS_PROXY", "https://proxy:8443")
	t.Setenv("COURIER_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("COURIER_REQUEST_TIMEOUT", "10s")
	t.Setenv("COURIER_QUEUE_SIZE", "256")
	t.Setenv("COURIER_THROTTLE_EPS", "2.5")
	t.Setenv("COURIER_THROTTLE_BURST", "5")
	t.Setenv("COURIER_BREAKER_ENABLED", "true")
	t.Setenv("COURIER_SPOOL_PATH", "/tmp/spool.db")
	t.Setenv("COURIER_REDIS_ADDRESS", "localhost:6379")
	t.Setenv("COURIER_REDIS_DB", "3")

	cfg := Load()

	assert.Equal(t, "https://key@example.com/1", cfg.DSN)
	assert.Equal(t, "custom-client/2.0", cfg.ClientName)
	assert.Equal(t, "https://proxy:8443", cfg.HTTPSProxy)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 2.5, cfg.ThrottleEPS)
	assert.Equal(t, 5, cfg.ThrottleBurst)
	assert.True(t, cfg.BreakerEnabled)
	assert.Equal(t, "/tmp/spool.db", cfg.SpoolPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("COURIER_QUEUE_SIZE", "lots")
	t.Setenv("COURIER_THROTTLE_EPS", "fast")
	t.Setenv("COURIER_REQUEST_TIMEOUT", "soon")
	t.Setenv("COURIER_BREAKER_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 128, cfg.QueueSize)
	assert.Equal(t, float64(0), cfg.ThrottleEPS)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.BreakerEnabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DSN:            "https://key@example.com/1",
			QueueSize:      128,
			RequestTimeout: 30 * time.Second,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing DSN", func(c *Config) { c.DSN = "" }},
		{"zero queue size", func(c *Config) { c.QueueSize = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"negative throttle", func(c *Config) { c.ThrottleEPS = -1 }},
		{"redis db too high", func(c *Config) { c.RedisDB = 16 }},
		{"redis db negative", func(c *Config) { c.RedisDB = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
