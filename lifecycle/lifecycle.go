// Package lifecycle implements the airlock request state machine. Apply is a
// pure function from (current status, event) to the next status plus the data
// movement required to realize it; it performs no I/O and holds no state.
package lifecycle

import (
	"fmt"

	"github.com/gosom/airlock/models"
	"github.com/gosom/airlock/stages"
)

// CleanVerdict is the only scan verdict that counts as "no threats". Any
// other verdict string is treated as a threat detection.
const CleanVerdict = "No threats found"

// Event is one of the closed set of triggers that can drive a transition.
// Payloads are decoded into these variants at the queue boundary; anything
// else never reaches the state machine.
type Event interface {
	isEvent()
}

// Submit is the requester-initiated submission of a draft request.
type Submit struct {
	// ScanEnabled reflects whether malware scanning is administratively
	// enabled for this deployment.
	ScanEnabled bool
}

// ScanResult is an asynchronous malware-scan verdict.
type ScanResult struct {
	Verdict string
}

// Review is a reviewer decision on a request under review.
type Review struct {
	Decision            models.ReviewDecision
	DecisionExplanation string
}

// Cancel is the requester-initiated cancellation of an in-flight request.
type Cancel struct{}

// Fail moves a request to the failed state after an unrecoverable
// processing error.
type Fail struct {
	Reason string
}

func (Submit) isEvent()     {}
func (ScanResult) isEvent() {}
func (Review) isEvent()     {}
func (Cancel) isEvent()     {}
func (Fail) isEvent()       {}

// Outcome describes a computed transition and the side effects required to
// realize it. When NoOp is set the event was already applied (or overtaken)
// and the handler must acknowledge it without touching the request.
type Outcome struct {
	NextStatus    models.RequestStatus
	StatusMessage string

	// MoveToStage names the stage whose storage location becomes current for
	// the request's files. Empty means no data movement.
	MoveToStage stages.Stage

	// DeleteSource indicates the prior location's objects become orphaned by
	// the move and should be removed (request-scoped locations only; the
	// mover enforces the scoping rule).
	DeleteSource bool

	NoOp bool
}

func noop() Outcome {
	return Outcome{NoOp: true}
}

func invalid(current models.RequestStatus, ev string) (Outcome, error) {
	return Outcome{}, fmt.Errorf("%s not allowed in status %q: %w", ev, current, models.ErrInvalidState)
}

// Apply computes the transition for the given event. Replayed events whose
// destination the request already reached, or passed, yield a no-op outcome
// rather than an error: queues deliver at least once.
func Apply(current models.RequestStatus, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case Submit:
		return applySubmit(current, e)
	case ScanResult:
		return applyScanResult(current, e)
	case Review:
		return applyReview(current, e)
	case Cancel:
		return applyCancel(current)
	case Fail:
		return applyFail(current, e)
	default:
		return Outcome{}, fmt.Errorf("unknown event %T: %w", ev, models.ErrInvalidState)
	}
}

func applySubmit(current models.RequestStatus, e Submit) (Outcome, error) {
	if current != models.StatusDraft {
		// Every non-draft status lies at or past submission.
		return noop(), nil
	}

	if e.ScanEnabled {
		return Outcome{
			NextStatus:   models.StatusInScan,
			MoveToStage:  stages.StageSubmitted,
			DeleteSource: true,
		}, nil
	}

	return Outcome{
		NextStatus:   models.StatusInReview,
		MoveToStage:  stages.StageInReview,
		DeleteSource: true,
	}, nil
}

func applyScanResult(current models.RequestStatus, e ScanResult) (Outcome, error) {
	switch current {
	case models.StatusInScan:
		// fallthrough to the transition below
	case models.StatusInReview, models.StatusApproved, models.StatusRejected, models.StatusBlocked:
		// verdict already applied, or the request moved on
		return noop(), nil
	case models.StatusCancelled, models.StatusFailed:
		// a verdict racing a cancellation is discarded, not applied
		return noop(), nil
	default:
		return invalid(current, "scan result")
	}

	if e.Verdict == CleanVerdict {
		return Outcome{
			NextStatus:   models.StatusInReview,
			MoveToStage:  stages.StageInReview,
			DeleteSource: true,
		}, nil
	}

	return Outcome{
		NextStatus:    models.StatusBlocked,
		StatusMessage: e.Verdict,
		MoveToStage:   stages.StageBlocked,
		DeleteSource:  true,
	}, nil
}

func applyReview(current models.RequestStatus, e Review) (Outcome, error) {
	switch current {
	case models.StatusInReview:
	case models.StatusApproved:
		if e.Decision == models.ReviewDecisionApproved {
			return noop(), nil
		}

		return invalid(current, "review decision")
	case models.StatusRejected:
		if e.Decision == models.ReviewDecisionRejected {
			return noop(), nil
		}

		return invalid(current, "review decision")
	default:
		return invalid(current, "review decision")
	}

	if e.Decision == models.ReviewDecisionApproved {
		return Outcome{
			NextStatus:   models.StatusApproved,
			MoveToStage:  stages.StageApproved,
			DeleteSource: true,
		}, nil
	}

	return Outcome{
		NextStatus:    models.StatusRejected,
		StatusMessage: e.DecisionExplanation,
		MoveToStage:   stages.StageRejected,
		DeleteSource:  true,
	}, nil
}

func applyCancel(current models.RequestStatus) (Outcome, error) {
	switch current {
	case models.StatusDraft, models.StatusSubmitted, models.StatusInScan, models.StatusInReview:
		return Outcome{NextStatus: models.StatusCancelled}, nil
	case models.StatusCancelled:
		return noop(), nil
	default:
		return invalid(current, "cancel")
	}
}

func applyFail(current models.RequestStatus, e Fail) (Outcome, error) {
	if current == models.StatusFailed {
		return noop(), nil
	}

	if current.IsTerminal() {
		return invalid(current, "failure")
	}

	return Outcome{
		NextStatus:    models.StatusFailed,
		StatusMessage: e.Reason,
	}, nil
}
