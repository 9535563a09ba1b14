// Package tasks contains the event handlers driving airlock request
// transitions. Each handler is a thin adapter: decode the trigger payload,
// load the request, ask the state machine for the next state, execute the
// data movement, commit under the loaded version and publish the change.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/airlock/lifecycle"
	"github.com/gosom/airlock/models"
	"github.com/gosom/airlock/notifier"
	"github.com/gosom/airlock/stages"
)

// TransferMover moves request data between stage locations.
type TransferMover interface {
	MoveToStage(ctx context.Context, requestID string, files []models.AirlockFile, from, to stages.Location, deleteSource bool) error
	DeleteRequestData(ctx context.Context, requestID string, files []models.AirlockFile, loc stages.Location) error
}

// StatusNotifier publishes committed status changes. Best effort.
type StatusNotifier interface {
	PublishStatusChanged(ctx context.Context, ev notifier.StatusChangedEvent) error
}

// FeatureFlags exposes the deployment's dynamic configuration.
type FeatureFlags interface {
	MalwareScanningEnabled(ctx context.Context) (bool, error)
}

// TaskEnqueuer enqueues follow-up tasks. Optional.
type TaskEnqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, payload []byte, opts ...asynq.Option) error
}

// Handler processes the airlock task types. It is safe for concurrent use:
// it holds no per-request state, and races between handlers working on the
// same request are resolved by the store's version-checked commit.
type Handler struct {
	store    models.RequestStore
	mover    TransferMover
	dir      *stages.Directory
	flags    FeatureFlags
	notifier StatusNotifier
	enqueuer TaskEnqueuer
	logger   *zap.Logger

	maxRetries    int
	retryInterval time.Duration
	taskTimeout   time.Duration
}

// HandlerOption is a function that configures a Handler
type HandlerOption func(*Handler)

// WithMaxRetries sets how often a lost commit race is retried in-process
// before the task is handed back to the queue.
func WithMaxRetries(retries int) HandlerOption {
	return func(h *Handler) {
		h.maxRetries = retries
	}
}

// WithRetryInterval sets the pause between commit-race retries.
func WithRetryInterval(interval time.Duration) HandlerOption {
	return func(h *Handler) {
		h.retryInterval = interval
	}
}

// WithTaskTimeout bounds the processing of a single task. It must stay below
// the queue's visibility lease so a task still being processed is not
// redelivered.
func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = timeout
	}
}

// WithEnqueuer lets the handler schedule follow-up cleanup tasks for
// cancelled requests.
func WithEnqueuer(e TaskEnqueuer) HandlerOption {
	return func(h *Handler) {
		h.enqueuer = e
	}
}

// NewHandler creates a task handler with the provided collaborators.
func NewHandler(
	store models.RequestStore,
	mover TransferMover,
	dir *stages.Directory,
	flags FeatureFlags,
	statusNotifier StatusNotifier,
	logger *zap.Logger,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		store:         store,
		mover:         mover,
		dir:           dir,
		flags:         flags,
		notifier:      statusNotifier,
		logger:        logger,
		maxRetries:    3,
		retryInterval: 200 * time.Millisecond,
		taskTimeout:   10 * time.Minute,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ProcessTask dispatches a task based on its type. Unknown types and
// undecodable payloads are returned as errors so the queue's retry and
// dead-letter policy applies; nothing is silently dropped.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeSubmission:
		return h.processSubmission(ctx, task)
	case TypeScanResult:
		return h.processScanResult(ctx, task)
	case TypeReviewDecision:
		return h.processReviewDecision(ctx, task)
	case TypeCleanup:
		return h.processCleanup(ctx, task)
	case "health:check", "connection:test":
		return nil
	default:
		return fmt.Errorf("unknown task type: %s", task.Type())
	}
}

// transition runs the shared load/apply/move/commit cycle for one event.
// mutate, when given, adjusts the request before the commit (the review
// handler appends the review record this way). A lost commit race reloads
// the request and re-applies the event; a transition the reload rendered
// invalid for the event's source states is discarded as a no-op, because the
// other writer's state change made this message stale.
func (h *Handler) transition(ctx context.Context, requestID, actor string, ev lifecycle.Event, mutate func(*models.AirlockRequest)) error {
	for attempt := 0; ; attempt++ {
		req, err := h.store.Get(ctx, requestID)
		if err != nil {
			return fmt.Errorf("failed to load request %s: %w", requestID, err)
		}

		out, err := lifecycle.Apply(req.Status, ev)
		if err != nil {
			return err
		}

		if out.NoOp {
			h.logger.Info("event already applied, acknowledging",
				zap.String("request_id", requestID),
				zap.String("status", string(req.Status)),
			)

			return nil
		}

		if out.MoveToStage != "" {
			if err := h.moveData(ctx, req, out); err != nil {
				return err
			}
		}

		oldStatus := req.Status
		req.Status = out.NextStatus
		req.StatusMessage = out.StatusMessage

		if mutate != nil {
			mutate(req)
		}

		err = h.store.Commit(ctx, req, req.ResourceVersion, actor)
		if errors.Is(err, models.ErrConcurrencyConflict) {
			if attempt+1 >= h.maxRetries {
				return fmt.Errorf("gave up after %d commit attempts for request %s: %w",
					h.maxRetries, requestID, err)
			}

			time.Sleep(h.retryInterval)

			continue
		}

		if err != nil {
			return fmt.Errorf("failed to commit request %s: %w", requestID, err)
		}

		h.publish(ctx, req, oldStatus)

		return nil
	}
}

func (h *Handler) moveData(ctx context.Context, req *models.AirlockRequest, out lifecycle.Outcome) error {
	fromStage, ok := stages.StageForStatus(req.Status)
	if !ok {
		return fmt.Errorf("no data location for status %q: %w", req.Status, models.ErrConfiguration)
	}

	from, err := h.dir.Location(req.RequestType, fromStage)
	if err != nil {
		return err
	}

	to, err := h.dir.Location(req.RequestType, out.MoveToStage)
	if err != nil {
		return err
	}

	if err := h.mover.MoveToStage(ctx, req.ID, req.Files, from, to, out.DeleteSource); err != nil {
		return fmt.Errorf("failed to move data for request %s: %w", req.ID, err)
	}

	return nil
}

// publish emits the status-changed event. The transition is already durable;
// a publish failure is a warning, never a rollback.
func (h *Handler) publish(ctx context.Context, req *models.AirlockRequest, oldStatus models.RequestStatus) {
	ev := notifier.StatusChangedEvent{
		RequestID:   req.ID,
		OldStatus:   oldStatus,
		NewStatus:   req.Status,
		RequestType: req.RequestType,
		WorkspaceID: req.WorkspaceID,
	}

	if err := h.notifier.PublishStatusChanged(ctx, ev); err != nil {
		h.logger.Warn("status change committed but not published",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}
}
