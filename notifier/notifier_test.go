package notifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gosom/airlock/models"
)

func newTestNotifier(t *testing.T, channel string) (*Notifier, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = sub.Close() })

	return New(rdb, channel, zap.NewNop()), sub
}

func TestPublishStatusChanged(t *testing.T) {
	n, sub := newTestNotifier(t, "")
	ctx := context.Background()

	pubsub := sub.Subscribe(ctx, DefaultChannel)
	t.Cleanup(func() { _ = pubsub.Close() })

	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	ev := StatusChangedEvent{
		RequestID:   "req-1",
		OldStatus:   models.StatusInScan,
		NewStatus:   models.StatusInReview,
		RequestType: models.RequestTypeImport,
		WorkspaceID: "ws-1",
	}
	require.NoError(t, n.PublishStatusChanged(ctx, ev))

	msg, err := pubsub.ReceiveTimeout(ctx, 2*time.Second)
	require.NoError(t, err)

	m, ok := msg.(*redis.Message)
	require.True(t, ok, "expected a pubsub message, got %T", msg)

	var got StatusChangedEvent
	require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))

	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, models.StatusInScan, got.OldStatus)
	assert.Equal(t, models.StatusInReview, got.NewStatus)
	assert.Equal(t, models.RequestTypeImport, got.RequestType)
	assert.Equal(t, "ws-1", got.WorkspaceID)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestPublishUsesConfiguredChannel(t *testing.T) {
	n, sub := newTestNotifier(t, "airlock:custom")
	ctx := context.Background()

	pubsub := sub.Subscribe(ctx, "airlock:custom")
	t.Cleanup(func() { _ = pubsub.Close() })

	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, n.PublishStatusChanged(ctx, StatusChangedEvent{RequestID: "req-2"}))

	msg, err := pubsub.ReceiveTimeout(ctx, 2*time.Second)
	require.NoError(t, err)

	m, ok := msg.(*redis.Message)
	require.True(t, ok)
	assert.Contains(t, m.Payload, "req-2")
}

func TestPublishAgainstClosedBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n := New(rdb, "", zap.NewNop())

	mr.Close()

	err := n.PublishStatusChanged(context.Background(), StatusChangedEvent{RequestID: "req-3"})
	assert.Error(t, err)
}
