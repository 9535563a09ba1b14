package tasks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/airlock/internal/testutils"
	"github.com/gosom/airlock/models"
	"github.com/gosom/airlock/stages"
)

func submitTask(t *testing.T, requestID, user string) *asynq.Task {
	t.Helper()

	return mustTask(t, TypeSubmission, &SubmissionPayload{
		RequestID: requestID,
		Action:    ActionSubmit,
		User:      user,
	})
}

func TestSubmitWithScanningEnabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewImportDraft()
	require.NoError(t, e.store.Create(ctx, req))

	require.NoError(t, e.handler.ProcessTask(ctx, submitTask(t, req.ID, "alice")))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInScan, got.Status)
	assert.Equal(t, 1, got.ResourceVersion)

	require.Len(t, got.History, 1)
	assert.Equal(t, models.StatusDraft, got.History[0].Status)
	assert.Equal(t, "alice", got.History[0].User)

	require.Len(t, e.mover.moves, 1)
	assert.Equal(t, "test-import-draft-"+req.ID, e.mover.moves[0].From.BucketFor(req.ID))
	assert.Equal(t, "test-import-submitted-"+req.ID, e.mover.moves[0].To.BucketFor(req.ID))
	assert.True(t, e.mover.moves[0].DeleteSource)

	require.Len(t, e.notifier.events, 1)
	assert.Equal(t, models.StatusDraft, e.notifier.events[0].OldStatus)
	assert.Equal(t, models.StatusInScan, e.notifier.events[0].NewStatus)
}

func TestSubmitWithScanningDisabled(t *testing.T) {
	e := newEnv(t)
	e.flags.enabled = false
	ctx := context.Background()

	req := testutils.NewImportDraft()
	require.NoError(t, e.store.Create(ctx, req))

	require.NoError(t, e.handler.ProcessTask(ctx, submitTask(t, req.ID, "alice")))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, got.Status)

	require.Len(t, e.mover.moves, 1)
	assert.Equal(t, "test-import-inreview-"+req.ID, e.mover.moves[0].To.BucketFor(req.ID))
}

// TestSubmitRedelivery checks that processing the same submission twice
// leaves exactly one history entry and one notification.
func TestSubmitRedelivery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewImportDraft()
	require.NoError(t, e.store.Create(ctx, req))

	task := submitTask(t, req.ID, "alice")
	require.NoError(t, e.handler.ProcessTask(ctx, task))
	require.NoError(t, e.handler.ProcessTask(ctx, task))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInScan, got.Status)
	assert.Len(t, got.History, 1)
	assert.Len(t, e.mover.moves, 1)
	assert.Len(t, e.notifier.events, 1)
}

func TestSubmitUnknownRequest(t *testing.T) {
	e := newEnv(t)

	err := e.handler.ProcessTask(context.Background(), submitTask(t, "no-such-id", "alice"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmissionBadPayload(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("{{")},
		{"missing request id", []byte(`{"action":"submit","user":"alice"}`)},
		{"unknown action", []byte(`{"request_id":"r1","action":"pause","user":"alice"}`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := e.handler.ProcessTask(context.Background(), asynq.NewTask(TypeSubmission, tc.payload))
			assert.Error(t, err)
		})
	}
}

func TestCancelSchedulesCleanup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewImportDraft()
	require.NoError(t, e.store.Create(ctx, req))

	require.NoError(t, e.handler.ProcessTask(ctx, submitTask(t, req.ID, "alice")))

	cancel := mustTask(t, TypeSubmission, &SubmissionPayload{
		RequestID: req.ID,
		Action:    ActionCancel,
		User:      "alice",
	})
	require.NoError(t, e.handler.ProcessTask(ctx, cancel))

	got, err := e.store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Len(t, got.History, 2)

	// cancellation itself moves nothing
	assert.Len(t, e.mover.moves, 1)

	require.Len(t, e.enqueuer.tasks, 1)
	assert.Equal(t, TypeCleanup, e.enqueuer.tasks[0].Type)

	var p CleanupPayload
	require.NoError(t, json.Unmarshal(e.enqueuer.tasks[0].Payload, &p))
	assert.Equal(t, req.ID, p.RequestID)
	assert.Equal(t, string(stages.StageSubmitted), p.Stage)
}

func TestCancelTerminalRequestFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := testutils.NewRequest(models.RequestTypeExport, models.StatusApproved)
	require.NoError(t, e.store.Create(ctx, req))

	cancel := mustTask(t, TypeSubmission, &SubmissionPayload{
		RequestID: req.ID,
		Action:    ActionCancel,
		User:      "alice",
	})

	err := e.handler.ProcessTask(ctx, cancel)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Empty(t, e.enqueuer.tasks)
}
