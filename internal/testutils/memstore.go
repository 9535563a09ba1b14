// Package testutils provides shared helpers for tests: entity builders and
// an in-memory request store with the same commit semantics as the
// PostgreSQL store.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gosom/airlock/models"
)

// MemStore is an in-memory models.RequestStore. Commit performs the same
// version-checked replace-and-append the SQL store does, so handler tests
// exercise real optimistic-concurrency behavior.
type MemStore struct {
	mu       sync.Mutex
	requests map[string]*models.AirlockRequest
}

func NewMemStore() *MemStore {
	return &MemStore{requests: make(map[string]*models.AirlockRequest)}
}

func (s *MemStore) Get(_ context.Context, id string) (*models.AirlockRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}

	return cloneRequest(req), nil
}

func (s *MemStore) Create(_ context.Context, req *models.AirlockRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.ResourceVersion = 0
	req.History = nil
	s.requests[req.ID] = cloneRequest(req)

	return nil
}

func (s *MemStore) Commit(_ context.Context, req *models.AirlockRequest, expectedVersion int, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[req.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", req.ID, models.ErrNotFound)
	}

	if stored.ResourceVersion != expectedVersion {
		return fmt.Errorf("request %s at version %d, expected %d: %w",
			req.ID, stored.ResourceVersion, expectedVersion, models.ErrConcurrencyConflict)
	}

	next := cloneRequest(req)
	next.History = append(cloneHistory(stored.History), models.RequestHistoryItem{
		Status:        stored.Status,
		StatusMessage: stored.StatusMessage,
		User:          actor,
		UpdatedWhen:   time.Now().UTC(),
	})
	next.ResourceVersion = expectedVersion + 1
	next.UpdatedBy = actor
	next.UpdatedWhen = time.Now().UTC()

	s.requests[req.ID] = next
	req.ResourceVersion = next.ResourceVersion

	return nil
}

func (s *MemStore) History(_ context.Context, id string) ([]models.RequestHistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}

	return cloneHistory(req.History), nil
}

func cloneRequest(req *models.AirlockRequest) *models.AirlockRequest {
	clone := *req
	clone.Files = append([]models.AirlockFile(nil), req.Files...)
	clone.Reviews = append([]models.AirlockReview(nil), req.Reviews...)
	clone.History = cloneHistory(req.History)

	return &clone
}

func cloneHistory(items []models.RequestHistoryItem) []models.RequestHistoryItem {
	return append([]models.RequestHistoryItem(nil), items...)
}
