package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/gosom/airlock/redis/config"
)

// Client wraps asynq client functionality
type Client struct {
	client *asynq.Client
	cfg    *config.RedisConfig
	mu     sync.RWMutex
}

// NewClient creates a new Redis client with the provided configuration
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)
	if err := testConnection(client); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client: client,
		cfg:    cfg,
	}, nil
}

// EnqueueTask enqueues a task with the given type and payload. Completed
// tasks are retained for the configured retention period; callers may
// override that or add further options (asynq.MaxRetry, asynq.Queue,
// asynq.Timeout).
func (c *Client) EnqueueTask(ctx context.Context, taskType string, payload []byte, opts ...asynq.Option) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	task := asynq.NewTask(taskType, payload)

	_, err := c.client.EnqueueContext(ctx, task, append(c.defaultOptions(), opts...)...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// defaultOptions are applied to every enqueued task before caller options,
// so callers can still override them.
func (c *Client) defaultOptions() []asynq.Option {
	var opts []asynq.Option

	if c.cfg.RetentionPeriod > 0 {
		opts = append(opts, asynq.Retention(c.cfg.RetentionPeriod))
	}

	return opts
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return nil
}

// IsHealthy checks if the Redis connection is healthy
func (c *Client) IsHealthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := c.client.EnqueueContext(ctx, asynq.NewTask("health:check", nil))

	return err == nil
}

// testConnection tests the Redis connection
func testConnection(client *asynq.Client) error {
	ctx := context.Background()

	task := asynq.NewTask("connection:test", nil)

	_, err := client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}
