package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/airlock/models"
	"github.com/gosom/airlock/stages"
)

// processCleanup removes a request's stored data. It never changes the
// request's status: terminal states stay as they are, only the underlying
// objects go away.
func (h *Handler) processCleanup(ctx context.Context, task *asynq.Task) error {
	var p CleanupPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		h.logger.Error("undecodable cleanup payload", zap.Error(err))

		return fmt.Errorf("failed to unmarshal cleanup payload: %w", err)
	}

	if p.RequestID == "" || p.Stage == "" {
		return fmt.Errorf("cleanup payload missing request id or stage")
	}

	req, err := h.store.Get(ctx, p.RequestID)
	if err != nil {
		return fmt.Errorf("failed to load request %s: %w", p.RequestID, err)
	}

	loc, err := h.dir.Location(req.RequestType, stages.Stage(p.Stage))
	if err != nil {
		return err
	}

	files := make([]models.AirlockFile, 0, len(p.Files))
	for _, name := range p.Files {
		files = append(files, models.AirlockFile{Name: name})
	}

	// a shared location holds other requests' objects; an unnamed cleanup
	// there is scoped to the request's own files, never the whole bucket
	if len(files) == 0 && !loc.RequestScoped {
		files = req.Files
	}

	if err := h.mover.DeleteRequestData(ctx, p.RequestID, files, loc); err != nil {
		return fmt.Errorf("failed to delete data for request %s: %w", p.RequestID, err)
	}

	h.logger.Info("request data removed",
		zap.String("request_id", p.RequestID),
		zap.String("stage", p.Stage),
		zap.Int("files", len(p.Files)),
	)

	return nil
}
