package testutils

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosom/airlock/models"
)

// NewRequest builds a request in the given status with a single data file.
func NewRequest(rt models.RequestType, status models.RequestStatus) *models.AirlockRequest {
	return &models.AirlockRequest{
		ID:          uuid.NewString(),
		WorkspaceID: uuid.NewString(),
		RequestType: rt,
		Status:      status,
		Files: []models.AirlockFile{
			{Name: "dataset.csv", Size: 2048},
		},
		BusinessJustification: "test transfer",
		UpdatedWhen:           time.Now().UTC(),
		UpdatedBy:             "requester",
	}
}

// NewImportDraft builds a freshly created import request.
func NewImportDraft() *models.AirlockRequest {
	return NewRequest(models.RequestTypeImport, models.StatusDraft)
}
