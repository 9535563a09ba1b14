// Package config provides Redis configuration management for the airlock
// worker.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds Redis connection and queue parameters.
type RedisConfig struct {
	Host            string
	Port            int
	Password        string
	DB              int
	Workers         int
	RetryInterval   time.Duration
	MaxRetries      int
	RetentionPeriod time.Duration
	QueuePriorities map[string]int
}

const (
	defaultHost          = "localhost"
	defaultPort          = 6379
	defaultDB            = 0
	defaultWorkers       = 10
	defaultRetryInterval = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetentionDays = 7
	minPort              = 1
	maxPort              = 65535
	minDB                = 0
	maxDB                = 15
	minWorkers           = 1
	maxWorkers           = 100
)

// DefaultQueuePriorities defines the default priority settings for task queues
var DefaultQueuePriorities = map[string]int{
	"critical": 6,
	"default":  3,
	"low":      1,
}

// NewRedisConfig creates a new Redis configuration from environment
// variables. REDIS_URL, when present, wins over the individual parameters.
func NewRedisConfig() (*RedisConfig, error) {
	cfg := &RedisConfig{
		Host:            getEnvOrDefault("REDIS_HOST", defaultHost),
		Password:        os.Getenv("REDIS_PASSWORD"),
		QueuePriorities: make(map[string]int),
	}

	for queue, priority := range DefaultQueuePriorities {
		cfg.QueuePriorities[queue] = priority
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := cfg.applyURL(redisURL); err != nil {
			return nil, err
		}
	} else {
		var err error

		if cfg.Port, err = validateIntEnv("REDIS_PORT", defaultPort, minPort, maxPort); err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}

		if cfg.DB, err = validateIntEnv("REDIS_DB", defaultDB, minDB, maxDB); err != nil {
			return nil, fmt.Errorf("invalid DB: %w", err)
		}
	}

	var err error

	if cfg.Workers, err = validateIntEnv("REDIS_WORKERS", defaultWorkers, minWorkers, maxWorkers); err != nil {
		return nil, fmt.Errorf("invalid workers: %w", err)
	}

	interval := getEnvOrDefault("REDIS_RETRY_INTERVAL", defaultRetryInterval.String())

	cfg.RetryInterval, err = time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("invalid retry interval: %w", err)
	}

	if cfg.MaxRetries, err = validateIntEnv("REDIS_MAX_RETRIES", defaultMaxRetries, 1, 10); err != nil {
		return nil, fmt.Errorf("invalid max retries: %w", err)
	}

	days, err := validateIntEnv("REDIS_RETENTION_DAYS", defaultRetentionDays, 1, 365)
	if err != nil {
		return nil, fmt.Errorf("invalid retention days: %w", err)
	}

	cfg.RetentionPeriod = time.Duration(days) * 24 * time.Hour

	return cfg, nil
}

func (c *RedisConfig) applyURL(redisURL string) error {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return fmt.Errorf("invalid Redis URL: %w", err)
	}

	if host := parsedURL.Hostname(); host != "" {
		c.Host = host
	}

	c.Port = defaultPort

	if port := parsedURL.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port in Redis URL: %w", err)
		}

		c.Port = p
	}

	if password, ok := parsedURL.User.Password(); ok {
		c.Password = password
	}

	if path := strings.TrimPrefix(parsedURL.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil {
			return fmt.Errorf("invalid database number in Redis URL: %w", err)
		}

		c.DB = db
	}

	return nil
}

// GetRedisAddr returns the formatted Redis address
func (c *RedisConfig) GetRedisAddr() string {
	host := c.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}

	return fmt.Sprintf("%s:%d", host, c.Port)
}

func getEnvOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}

	return fallback
}

func validateIntEnv(name string, fallback, minValue, maxValue int) (int, error) {
	raw := getEnvOrDefault(name, strconv.Itoa(fallback))

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, err)
	}

	if v < minValue || v > maxValue {
		return 0, fmt.Errorf("%s must be between %d and %d", name, minValue, maxValue)
	}

	return v, nil
}
