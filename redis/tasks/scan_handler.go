package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/airlock/lifecycle"
	"github.com/gosom/airlock/models"
)

// processScanResult handles an asynchronous malware-scan verdict.
//
// The scanning flag is checked before anything else: a verdict arriving while
// scanning is administratively disabled contradicts the deployment's "must be
// scanned" promise, so the message is rejected as fatal instead of being
// applied or silently dropped.
func (h *Handler) processScanResult(ctx context.Context, task *asynq.Task) error {
	var p ScanResultPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		h.logger.Error("undecodable scan result payload", zap.Error(err))

		return fmt.Errorf("failed to unmarshal scan result payload: %w", err)
	}

	if p.RequestID == "" || p.Verdict == "" {
		return fmt.Errorf("scan result payload missing request id or verdict")
	}

	scanEnabled, err := h.flags.MalwareScanningEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read scanning flag: %w", err)
	}

	if !scanEnabled {
		h.logger.Error("scan verdict received while malware scanning is disabled",
			zap.String("request_id", p.RequestID),
			zap.String("blob_uri", p.BlobURI),
		)

		return fmt.Errorf("scan verdict for request %s while scanning disabled: %w: %w",
			p.RequestID, models.ErrConfiguration, asynq.SkipRetry)
	}

	ev := lifecycle.ScanResult{Verdict: p.Verdict}

	if err := h.transition(ctx, p.RequestID, "airlock-processor", ev, nil); err != nil {
		h.maybeFail(ctx, p.RequestID, "airlock-processor", err)

		return err
	}

	if p.Verdict != lifecycle.CleanVerdict {
		h.logger.Warn("request blocked by scan verdict",
			zap.String("request_id", p.RequestID),
			zap.String("verdict", p.Verdict),
		)
	}

	return nil
}
