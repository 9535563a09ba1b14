package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/airlock/lifecycle"
	"github.com/gosom/airlock/stages"
)

// processSubmission handles requester-initiated triggers: submitting a draft
// and cancelling an in-flight request.
func (h *Handler) processSubmission(ctx context.Context, task *asynq.Task) error {
	var p SubmissionPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		h.logger.Error("undecodable submission payload", zap.Error(err))

		return fmt.Errorf("failed to unmarshal submission payload: %w", err)
	}

	if p.RequestID == "" {
		return fmt.Errorf("submission payload missing request id")
	}

	switch p.Action {
	case ActionSubmit:
		return h.handleSubmit(ctx, &p)
	case ActionCancel:
		return h.handleCancel(ctx, &p)
	default:
		return fmt.Errorf("unknown submission action %q", p.Action)
	}
}

func (h *Handler) handleSubmit(ctx context.Context, p *SubmissionPayload) error {
	scanEnabled, err := h.flags.MalwareScanningEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read scanning flag: %w", err)
	}

	ev := lifecycle.Submit{ScanEnabled: scanEnabled}

	if err := h.transition(ctx, p.RequestID, p.User, ev, nil); err != nil {
		h.maybeFail(ctx, p.RequestID, p.User, err)

		return err
	}

	h.logger.Info("request submitted",
		zap.String("request_id", p.RequestID),
		zap.Bool("scan_enabled", scanEnabled),
	)

	return nil
}

func (h *Handler) handleCancel(ctx context.Context, p *SubmissionPayload) error {
	if err := h.transition(ctx, p.RequestID, p.User, lifecycle.Cancel{}, nil); err != nil {
		return err
	}

	h.logger.Info("request cancelled", zap.String("request_id", p.RequestID))

	h.scheduleCleanup(ctx, p.RequestID)

	return nil
}

// scheduleCleanup enqueues removal of a cancelled request's data. Best
// effort: the retention collaborator sweeps anything missed here.
func (h *Handler) scheduleCleanup(ctx context.Context, requestID string) {
	if h.enqueuer == nil {
		return
	}

	req, err := h.store.Get(ctx, requestID)
	if err != nil {
		h.logger.Warn("cleanup not scheduled", zap.String("request_id", requestID), zap.Error(err))

		return
	}

	// the data sits wherever the request last held it; history carries the
	// pre-cancellation status
	stage := stages.StageDraft

	if len(req.History) > 0 {
		if s, ok := stages.StageForStatus(req.History[len(req.History)-1].Status); ok {
			stage = s
		}
	}

	payload, err := json.Marshal(&CleanupPayload{RequestID: requestID, Stage: string(stage)})
	if err != nil {
		h.logger.Warn("cleanup not scheduled", zap.String("request_id", requestID), zap.Error(err))

		return
	}

	if err := h.enqueuer.EnqueueTask(ctx, TypeCleanup, payload); err != nil {
		h.logger.Warn("cleanup not scheduled", zap.String("request_id", requestID), zap.Error(err))
	}
}
