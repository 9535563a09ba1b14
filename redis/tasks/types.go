package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/gosom/airlock/models"
)

// Task types. One queue topic per external trigger; every payload carries the
// id of the request it correlates to.
const (
	TypeSubmission     = "airlock:submission"
	TypeScanResult     = "airlock:scan_result"
	TypeReviewDecision = "airlock:review_decision"
	TypeCleanup        = "airlock:cleanup"
)

// Submission actions. Cancellation is requester-initiated like submission
// and arrives on the same queue.
const (
	ActionSubmit = "submit"
	ActionCancel = "cancel"
)

// SubmissionPayload represents a requester-initiated trigger.
type SubmissionPayload struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	User      string `json:"user"`
}

// ScanResultPayload represents an asynchronous malware-scan verdict. BlobURI
// points at the scanned object; the verdict string "No threats found" is the
// sole clean signal.
type ScanResultPayload struct {
	RequestID string `json:"request_id"`
	Verdict   string `json:"verdict"`
	BlobURI   string `json:"blob_uri,omitempty"`
}

// ReviewDecisionPayload represents a reviewer decision on a request under
// review.
type ReviewDecisionPayload struct {
	RequestID           string                `json:"request_id"`
	Decision            models.ReviewDecision `json:"decision"`
	DecisionExplanation string                `json:"decision_explanation"`
	Reviewer            string                `json:"reviewer"`

	Override                  bool   `json:"override,omitempty"`
	OverrideJustification     string `json:"override_justification,omitempty"`
	AllowBlockedContent       bool   `json:"allow_blocked_content,omitempty"`
	AllowBlockedJustification string `json:"allow_blocked_justification,omitempty"`
}

// CleanupPayload represents a retention trigger. Stage names the storage
// location; an empty Files list means the entire location is removed.
type CleanupPayload struct {
	RequestID string   `json:"request_id"`
	Stage     string   `json:"stage"`
	Files     []string `json:"files,omitempty"`
}

// CreateSubmissionTask creates a task for a requester-initiated trigger.
func CreateSubmissionTask(p *SubmissionPayload) (*asynq.Task, error) {
	if p == nil || p.RequestID == "" {
		return nil, fmt.Errorf("submission payload requires a request id")
	}

	if p.Action != ActionSubmit && p.Action != ActionCancel {
		return nil, fmt.Errorf("unknown submission action %q", p.Action)
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return asynq.NewTask(TypeSubmission, payload), nil
}

// CreateScanResultTask creates a task carrying a malware-scan verdict.
func CreateScanResultTask(p *ScanResultPayload) (*asynq.Task, error) {
	if p == nil || p.RequestID == "" {
		return nil, fmt.Errorf("scan result payload requires a request id")
	}

	if p.Verdict == "" {
		return nil, fmt.Errorf("scan result payload requires a verdict")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return asynq.NewTask(TypeScanResult, payload), nil
}

// CreateReviewDecisionTask creates a task carrying a reviewer decision.
func CreateReviewDecisionTask(p *ReviewDecisionPayload) (*asynq.Task, error) {
	if p == nil || p.RequestID == "" {
		return nil, fmt.Errorf("review payload requires a request id")
	}

	if p.Decision != models.ReviewDecisionApproved && p.Decision != models.ReviewDecisionRejected {
		return nil, fmt.Errorf("unknown review decision %q", p.Decision)
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return asynq.NewTask(TypeReviewDecision, payload), nil
}

// CreateCleanupTask creates a retention/cleanup task.
func CreateCleanupTask(p *CleanupPayload) (*asynq.Task, error) {
	if p == nil || p.RequestID == "" {
		return nil, fmt.Errorf("cleanup payload requires a request id")
	}

	if p.Stage == "" {
		return nil, fmt.Errorf("cleanup payload requires a stage")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return asynq.NewTask(TypeCleanup, payload), nil
}
