package tasks

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/airlock/internal/testutils"
	"github.com/gosom/airlock/models"
)

func reviewTask(t *testing.T, requestID string, decision models.ReviewDecision, explanation string) *asynq.Task {
	t.Helper()

	return mustTask(t, TypeReviewDecision, &ReviewDecisionPayload{
		RequestID:           requestID,
		Decision:            decision,
		DecisionExplanation: explanation,
		Reviewer:            "bob",
	})
}

func TestApproveRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewRequest(models.RequestTypeExport, models.StatusInReview)
	require.NoError(t, e.store.Create(ctx, req))

	require.NoError(t, e.handler.ProcessTask(ctx, reviewTask(t, req.ID, models.ReviewDecisionApproved, "")))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)

	// the review record lands in the same commit as the status change
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, models.ReviewDecisionApproved, got.Reviews[0].Decision)
	assert.Equal(t, "bob", got.Reviews[0].Reviewer)
	assert.Equal(t, req.ID, got.Reviews[0].RequestID)
	assert.NotEmpty(t, got.Reviews[0].ID)

	require.Len(t, e.mover.moves, 1)
	assert.Equal(t, "test-export-approved-"+req.ID, e.mover.moves[0].To.BucketFor(req.ID))
}

func TestRejectRequestRecordsExplanation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewRequest(models.RequestTypeImport, models.StatusInReview)
	require.NoError(t, e.store.Create(ctx, req))

	require.NoError(t, e.handler.ProcessTask(ctx,
		reviewTask(t, req.ID, models.ReviewDecisionRejected, "contains customer PII")))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, "contains customer PII", got.StatusMessage)

	require.Len(t, got.Reviews, 1)
	assert.Equal(t, "contains customer PII", got.Reviews[0].DecisionExplanation)

	require.Len(t, e.mover.moves, 1)
	assert.Equal(t, "test-import-rejected-"+req.ID, e.mover.moves[0].To.BucketFor(req.ID))
}

func TestReviewOverrideFlagsPersisted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewRequest(models.RequestTypeImport, models.StatusInReview)
	require.NoError(t, e.store.Create(ctx, req))

	task := mustTask(t, TypeReviewDecision, &ReviewDecisionPayload{
		RequestID:                 req.ID,
		Decision:                  models.ReviewDecisionApproved,
		Reviewer:                  "bob",
		Override:                  true,
		OverrideJustification:     "second reviewer unavailable",
		AllowBlockedContent:       true,
		AllowBlockedJustification: "known-benign archive format",
	})
	require.NoError(t, e.handler.ProcessTask(ctx, task))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Reviews, 1)
	assert.True(t, got.Reviews[0].Override)
	assert.Equal(t, "second reviewer unavailable", got.Reviews[0].OverrideJustification)
	assert.True(t, got.Reviews[0].AllowBlockedContent)
	assert.Equal(t, "known-benign archive format", got.Reviews[0].AllowBlockedJustification)
}

// TestReviewRedelivery checks the matching-decision replay: the second
// delivery is acknowledged and does not append a second review.
func TestReviewRedelivery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewRequest(models.RequestTypeImport, models.StatusInReview)
	require.NoError(t, e.store.Create(ctx, req))

	task := reviewTask(t, req.ID, models.ReviewDecisionApproved, "")
	require.NoError(t, e.handler.ProcessTask(ctx, task))
	require.NoError(t, e.handler.ProcessTask(ctx, task))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Len(t, got.Reviews, 1)
	assert.Len(t, got.History, 1)
}

func TestConflictingReviewReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewRequest(models.RequestTypeImport, models.StatusInReview)
	require.NoError(t, e.store.Create(ctx, req))

	require.NoError(t, e.handler.ProcessTask(ctx, reviewTask(t, req.ID, models.ReviewDecisionApproved, "")))

	err := e.handler.ProcessTask(ctx, reviewTask(t, req.ID, models.ReviewDecisionRejected, "changed my mind"))
	assert.ErrorIs(t, err, models.ErrInvalidState)

	got, lookupErr := e.store.Get(ctx, req.ID)
	require.NoError(t, lookupErr)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Len(t, got.Reviews, 1)
}

func TestReviewOutsideInReview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewRequest(models.RequestTypeImport, models.StatusInScan)
	require.NoError(t, e.store.Create(ctx, req))

	err := e.handler.ProcessTask(ctx, reviewTask(t, req.ID, models.ReviewDecisionApproved, ""))
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestReviewBadPayload(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("nope")},
		{"missing request id", []byte(`{"decision":"approved","reviewer":"bob"}`)},
		{"unknown decision", []byte(`{"request_id":"r1","decision":"maybe","reviewer":"bob"}`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := e.handler.ProcessTask(context.Background(), asynq.NewTask(TypeReviewDecision, tc.payload))
			assert.Error(t, err)
		})
	}
}
