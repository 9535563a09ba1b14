package tasks

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/airlock/lifecycle"
	"github.com/gosom/airlock/models"
)

// maybeFail moves a request to the failed state once the queue is out of
// redeliveries for its task, so an irrecoverable fault surfaces as a Failed
// request with the error recorded in history instead of a silent
// disappearance into the archived set.
//
// Recoverable faults keep their normal paths: a concurrency conflict or an
// incomplete transfer before the final delivery is retried, a missing
// request has nothing to mark, and an invalid-state event must not damage
// the request it was aimed at.
func (h *Handler) maybeFail(ctx context.Context, requestID, actor string, cause error) {
	if errors.Is(cause, models.ErrNotFound) || errors.Is(cause, models.ErrInvalidState) {
		return
	}

	retryCount, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return
	}

	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok || retryCount < maxRetry {
		return
	}

	if err := h.transition(ctx, requestID, actor, lifecycle.Fail{Reason: cause.Error()}, nil); err != nil {
		h.logger.Error("could not mark request as failed",
			zap.String("request_id", requestID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)

		return
	}

	h.logger.Error("request marked as failed",
		zap.String("request_id", requestID),
		zap.NamedError("cause", cause),
	)
}
