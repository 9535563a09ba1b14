package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/gosom/airlock/models"
)

// Store is the PostgreSQL implementation of models.RequestStore. A request is
// one row; files, reviews and history are embedded JSONB columns. All writes
// go through a version-conditional UPDATE, so the database is the sole
// serialization point for racing handlers.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore creates a new PostgreSQL request store.
func NewStore(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

const selectColumns = `id, workspace_id, request_type, status, COALESCE(status_message, ''),
	files, business_justification, reviews, resource_version, history,
	updated_when, updated_by`

// Get retrieves a request by id together with its current resource version.
func (s *Store) Get(ctx context.Context, id string) (*models.AirlockRequest, error) {
	q := `SELECT ` + selectColumns + ` FROM airlock_requests WHERE id = $1`

	row := s.db.QueryRowContext(ctx, q, id)

	return rowToRequest(row)
}

// Create inserts a new request at resource version zero with empty history.
func (s *Store) Create(ctx context.Context, req *models.AirlockRequest) error {
	files, err := json.Marshal(req.Files)
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}

	const q = `INSERT INTO airlock_requests
		(id, workspace_id, request_type, status, status_message, files,
		 business_justification, reviews, resource_version, history, updated_when, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, 0, '[]'::jsonb, now(), $8)`

	_, err = s.db.ExecContext(ctx, q,
		req.ID, req.WorkspaceID, req.RequestType, req.Status, req.StatusMessage,
		files, req.BusinessJustification, req.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.ResourceVersion = 0
	req.History = nil

	return nil
}

// Commit replaces the stored request if and only if its resource version
// still equals expectedVersion. The pre-commit snapshot is appended to the
// history inside the same statement, so a commit is either fully durable with
// its history entry or not applied at all.
func (s *Store) Commit(ctx context.Context, req *models.AirlockRequest, expectedVersion int, actor string) error {
	files, err := json.Marshal(req.Files)
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}

	reviews, err := json.Marshal(req.Reviews)
	if err != nil {
		return fmt.Errorf("failed to marshal reviews: %w", err)
	}

	const q = `UPDATE airlock_requests SET
		status = $3,
		status_message = $4,
		files = $5,
		reviews = $6,
		history = history || jsonb_build_object(
			'status', status,
			'status_message', status_message,
			'user', $7::text,
			'updated_when', to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')),
		resource_version = resource_version + 1,
		updated_when = now(),
		updated_by = $7
		WHERE id = $1 AND resource_version = $2`

	result, err := s.db.ExecContext(ctx, q,
		req.ID, expectedVersion, req.Status, req.StatusMessage, files, reviews, actor,
	)
	if err != nil {
		return fmt.Errorf("failed to commit request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return s.commitConflict(ctx, req.ID, expectedVersion)
	}

	req.ResourceVersion = expectedVersion + 1
	req.UpdatedBy = actor

	return nil
}

// commitConflict distinguishes a missing row from a lost version race.
func (s *Store) commitConflict(ctx context.Context, id string, expectedVersion int) error {
	var current int

	err := s.db.QueryRowContext(ctx,
		`SELECT resource_version FROM airlock_requests WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to inspect commit conflict: %w", err)
	}

	s.logger.Warn("commit lost version race",
		zap.String("request_id", id),
		zap.Int("expected_version", expectedVersion),
		zap.Int("stored_version", current),
	)

	return fmt.Errorf("request %s at version %d, expected %d: %w",
		id, current, expectedVersion, models.ErrConcurrencyConflict)
}

// History returns the ordered, append-only history trail of a request.
func (s *Store) History(ctx context.Context, id string) ([]models.RequestHistoryItem, error) {
	var raw []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT history FROM airlock_requests WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var history []models.RequestHistoryItem
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	return history, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func rowToRequest(row scannable) (*models.AirlockRequest, error) {
	var (
		req                 models.AirlockRequest
		files, reviews, raw []byte
		updatedWhen         time.Time
	)

	err := row.Scan(
		&req.ID, &req.WorkspaceID, &req.RequestType, &req.Status, &req.StatusMessage,
		&files, &req.BusinessJustification, &reviews, &req.ResourceVersion, &raw,
		&updatedWhen, &req.UpdatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request: %w", models.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	req.UpdatedWhen = updatedWhen

	if err := json.Unmarshal(files, &req.Files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files: %w", err)
	}

	if err := json.Unmarshal(reviews, &req.Reviews); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reviews: %w", err)
	}

	if err := json.Unmarshal(raw, &req.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	return &req, nil
}
