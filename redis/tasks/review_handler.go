package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/airlock/lifecycle"
	"github.com/gosom/airlock/models"
)

// processReviewDecision applies a reviewer decision. The review record is
// appended to the request inside the same commit as the status transition,
// so a request never shows an approved status without its review.
func (h *Handler) processReviewDecision(ctx context.Context, task *asynq.Task) error {
	var p ReviewDecisionPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		h.logger.Error("undecodable review payload", zap.Error(err))

		return fmt.Errorf("failed to unmarshal review payload: %w", err)
	}

	if p.RequestID == "" {
		return fmt.Errorf("review payload missing request id")
	}

	if p.Decision != models.ReviewDecisionApproved && p.Decision != models.ReviewDecisionRejected {
		return fmt.Errorf("unknown review decision %q", p.Decision)
	}

	ev := lifecycle.Review{
		Decision:            p.Decision,
		DecisionExplanation: p.DecisionExplanation,
	}

	appendReview := func(req *models.AirlockRequest) {
		req.Reviews = append(req.Reviews, models.AirlockReview{
			ID:                        uuid.NewString(),
			WorkspaceID:               req.WorkspaceID,
			RequestID:                 req.ID,
			Decision:                  p.Decision,
			DecisionExplanation:       p.DecisionExplanation,
			Reviewer:                  p.Reviewer,
			CreatedAt:                 time.Now().UTC(),
			Override:                  p.Override,
			OverrideJustification:     p.OverrideJustification,
			AllowBlockedContent:       p.AllowBlockedContent,
			AllowBlockedJustification: p.AllowBlockedJustification,
		})
	}

	if err := h.transition(ctx, p.RequestID, p.Reviewer, ev, appendReview); err != nil {
		h.maybeFail(ctx, p.RequestID, p.Reviewer, err)

		return err
	}

	h.logger.Info("review decision applied",
		zap.String("request_id", p.RequestID),
		zap.String("decision", string(p.Decision)),
	)

	return nil
}
