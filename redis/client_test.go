package redis

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/airlock/redis/config"
)

func TestEnqueueDefaultsCarryRetention(t *testing.T) {
	c := &Client{cfg: &config.RedisConfig{RetentionPeriod: 7 * 24 * time.Hour}}

	opts := c.defaultOptions()
	require.Len(t, opts, 1)
	assert.Equal(t, asynq.RetentionOpt, opts[0].Type())
	assert.Equal(t, 7*24*time.Hour, opts[0].Value())
}

func TestEnqueueDefaultsWithoutRetention(t *testing.T) {
	c := &Client{cfg: &config.RedisConfig{}}

	assert.Empty(t, c.defaultOptions())
}
