package models

import (
	"context"
	"time"
)

// RequestType identifies the direction of an airlock transfer.
type RequestType string

const (
	RequestTypeImport RequestType = "import"
	RequestTypeExport RequestType = "export"
)

// RequestStatus is the lifecycle status of an airlock request.
// Status changes only happen through the lifecycle package.
type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"
	StatusSubmitted RequestStatus = "submitted"
	StatusInScan    RequestStatus = "in_scan"
	StatusInReview  RequestStatus = "in_review"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusBlocked   RequestStatus = "blocked"
	StatusFailed    RequestStatus = "failed"
)

// IsTerminal reports whether no further lifecycle transition is defined
// for the status.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusBlocked, StatusFailed:
		return true
	}

	return false
}

// ReviewDecision is the outcome of a single reviewer decision.
type ReviewDecision string

const (
	ReviewDecisionApproved ReviewDecision = "approved"
	ReviewDecisionRejected ReviewDecision = "rejected"
)

// AirlockFile references one data object associated with a request.
type AirlockFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// AirlockReview records a reviewer decision on a request. Reviews are
// append-only and live embedded in the owning request.
type AirlockReview struct {
	ID                  string         `json:"id"`
	WorkspaceID         string         `json:"workspace_id"`
	RequestID           string         `json:"request_id"`
	Decision            ReviewDecision `json:"decision"`
	DecisionExplanation string         `json:"decision_explanation"`
	Reviewer            string         `json:"reviewer"`
	CreatedAt           time.Time      `json:"created_at"`

	// Override flags let a reviewer force approval despite a block.
	Override                  bool   `json:"override,omitempty"`
	OverrideJustification     string `json:"override_justification,omitempty"`
	AllowBlockedContent       bool   `json:"allow_blocked_content,omitempty"`
	AllowBlockedJustification string `json:"allow_blocked_justification,omitempty"`
}

// RequestHistoryItem is one entry of a request's append-only history trail.
// It captures the pre-transition state, the acting user and the time of
// the change.
type RequestHistoryItem struct {
	Status        RequestStatus `json:"status"`
	StatusMessage string        `json:"status_message,omitempty"`
	User          string        `json:"user"`
	UpdatedWhen   time.Time     `json:"updated_when"`
}

// AirlockRequest is the aggregate root of the airlock. It is persisted as a
// single record including reviews and history, and mutated only through
// version-checked whole-entity commits.
type AirlockRequest struct {
	ID                    string               `json:"id"`
	WorkspaceID           string               `json:"workspace_id"`
	RequestType           RequestType          `json:"request_type"`
	Status                RequestStatus        `json:"status"`
	StatusMessage         string               `json:"status_message,omitempty"`
	Files                 []AirlockFile        `json:"files"`
	BusinessJustification string               `json:"business_justification"`
	Reviews               []AirlockReview      `json:"reviews"`
	ResourceVersion       int                  `json:"resource_version"`
	History               []RequestHistoryItem `json:"history"`
	UpdatedWhen           time.Time            `json:"updated_when"`
	UpdatedBy             string               `json:"updated_by"`
}

// RequestStore defines persistence for airlock requests.
//
// Commit replaces the stored record only when the stored resource version
// still equals expectedVersion, appends exactly one history item capturing
// the pre-commit snapshot and increments the version. A stale version yields
// ErrConcurrencyConflict; callers reload and retry or abort, never overwrite.
type RequestStore interface {
	Get(ctx context.Context, id string) (*AirlockRequest, error)
	Create(ctx context.Context, req *AirlockRequest) error
	Commit(ctx context.Context, req *AirlockRequest, expectedVersion int, actor string) error
	History(ctx context.Context, id string) ([]RequestHistoryItem, error)
}
