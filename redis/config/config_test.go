package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRedisEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		"REDIS_URL", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
		"REDIS_WORKERS", "REDIS_RETRY_INTERVAL", "REDIS_MAX_RETRIES", "REDIS_RETENTION_DAYS",
	} {
		t.Setenv(name, "")
	}
}

func TestNewRedisConfigDefaults(t *testing.T) {
	clearRedisEnv(t)

	cfg, err := NewRedisConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.RetryInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 7*24*time.Hour, cfg.RetentionPeriod)
	assert.Equal(t, DefaultQueuePriorities, cfg.QueuePriorities)
}

func TestNewRedisConfigFromParts(t *testing.T) {
	clearRedisEnv(t)
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_WORKERS", "25")
	t.Setenv("REDIS_RETRY_INTERVAL", "10s")
	t.Setenv("REDIS_MAX_RETRIES", "5")
	t.Setenv("REDIS_RETENTION_DAYS", "30")

	cfg, err := NewRedisConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal", cfg.Host)
	assert.Equal(t, 6380, cfg.Port)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, 25, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.RetryInterval)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionPeriod)
}

func TestNewRedisConfigFromURL(t *testing.T) {
	clearRedisEnv(t)
	t.Setenv("REDIS_URL", "redis://:secret@redis.example.com:6390/4")
	t.Setenv("REDIS_PORT", "1")

	cfg, err := NewRedisConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis.example.com", cfg.Host)
	assert.Equal(t, 6390, cfg.Port, "REDIS_URL wins over REDIS_PORT")
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 4, cfg.DB)
}

func TestNewRedisConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{"REDIS_PORT": "sixthousand"}},
		{"port out of range", map[string]string{"REDIS_PORT": "70000"}},
		{"db out of range", map[string]string{"REDIS_DB": "16"}},
		{"workers out of range", map[string]string{"REDIS_WORKERS": "0"}},
		{"bad retry interval", map[string]string{"REDIS_RETRY_INTERVAL": "soon"}},
		{"max retries out of range", map[string]string{"REDIS_MAX_RETRIES": "11"}},
		{"retention out of range", map[string]string{"REDIS_RETENTION_DAYS": "400"}},
		{"bad db in url", map[string]string{"REDIS_URL": "redis://localhost:6379/notanumber"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearRedisEnv(t)

			for name, value := range tc.env {
				t.Setenv(name, value)
			}

			_, err := NewRedisConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetRedisAddr(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{"hostname", "localhost", 6379, "localhost:6379"},
		{"ipv4", "10.0.0.5", 6380, "10.0.0.5:6380"},
		{"ipv6 gets bracketed", "::1", 6379, "[::1]:6379"},
		{"already bracketed", "[::1]", 6379, "[::1]:6379"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &RedisConfig{Host: tc.host, Port: tc.port}
			assert.Equal(t, tc.want, cfg.GetRedisAddr())
		})
	}
}
