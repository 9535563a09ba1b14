// Package notifier publishes "status changed" events after every committed
// transition. Publishing is best effort: the transition is already durable,
// so a publish failure is logged and never propagated back to the handler's
// failure path.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gosom/airlock/models"
)

// DefaultChannel is the pub/sub channel status events go to unless
// configured otherwise.
const DefaultChannel = "airlock:status_changed"

// StatusChangedEvent is the payload consumed by unrelated subsystems
// (UI, email).
type StatusChangedEvent struct {
	RequestID   string               `json:"request_id"`
	OldStatus   models.RequestStatus `json:"old_status"`
	NewStatus   models.RequestStatus `json:"new_status"`
	RequestType models.RequestType   `json:"request_type"`
	WorkspaceID string               `json:"workspace_id"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// Notifier publishes status events to a Redis pub/sub channel.
type Notifier struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// New creates a Notifier. An empty channel selects DefaultChannel.
func New(rdb *redis.Client, channel string, logger *zap.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}

	return &Notifier{rdb: rdb, channel: channel, logger: logger}
}

// PublishStatusChanged publishes the event. Failures are logged as warnings;
// the returned error exists for observability only and callers must not roll
// back on it.
func (n *Notifier) PublishStatusChanged(ctx context.Context, ev StatusChangedEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn("failed to marshal status event", zap.Error(err))

		return err
	}

	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("failed to publish status event",
			zap.String("request_id", ev.RequestID),
			zap.String("channel", n.channel),
			zap.Error(err),
		)

		return err
	}

	return nil
}

// Close releases the underlying Redis connection.
func (n *Notifier) Close() error {
	return n.rdb.Close()
}
