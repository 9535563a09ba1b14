// Package stages maps a (request type, lifecycle stage) pair to the isolated
// storage location used at that stage. The mapping is fixed at construction
// time and read-only afterwards.
package stages

import (
	"fmt"

	"github.com/gosom/airlock/models"
)

// Stage names one point of a request's lifecycle. Each stage has a dedicated
// storage location. Scanning happens in place on the submitted copy, so there
// is no separate scan stage.
type Stage string

const (
	StageDraft     Stage = "draft"
	StageSubmitted Stage = "submitted"
	StageInReview  Stage = "in-review"
	StageApproved  Stage = "approved"
	StageRejected  Stage = "rejected"
	StageBlocked   Stage = "blocked"
)

// Location identifies the storage backing one stage. Request-scoped locations
// are exclusively owned by a single request and may be deleted when empty.
// Shared locations are never deleted by the airlock, regardless of emptiness.
type Location struct {
	Bucket        string
	RequestScoped bool
}

// BucketFor resolves the concrete bucket name for a request. Request-scoped
// locations get a bucket per request.
func (l Location) BucketFor(requestID string) string {
	if l.RequestScoped {
		return l.Bucket + "-" + requestID
	}

	return l.Bucket
}

type mapKey struct {
	requestType models.RequestType
	stage       Stage
}

// Config is the explicit stage-to-location mapping a Directory is built from.
type Config struct {
	Import map[Stage]Location
	Export map[Stage]Location
}

// DefaultConfig builds the conventional mapping from a bucket name prefix.
// Export drafts are assembled in the workspace's shared export bucket and
// approved imports land in the workspace's shared import bucket; every other
// stage gets a request-scoped bucket.
func DefaultConfig(prefix string) Config {
	scoped := func(stage string) Location {
		return Location{Bucket: prefix + "-" + stage, RequestScoped: true}
	}

	cfg := Config{
		Import: map[Stage]Location{
			StageDraft:     scoped("import-draft"),
			StageSubmitted: scoped("import-submitted"),
			StageInReview:  scoped("import-inreview"),
			StageApproved:  {Bucket: prefix + "-import-approved"},
			StageRejected:  scoped("import-rejected"),
			StageBlocked:   scoped("import-blocked"),
		},
		Export: map[Stage]Location{
			StageDraft:     {Bucket: prefix + "-export-draft"},
			StageSubmitted: scoped("export-submitted"),
			StageInReview:  scoped("export-inreview"),
			StageApproved:  scoped("export-approved"),
			StageRejected:  scoped("export-rejected"),
			StageBlocked:   scoped("export-blocked"),
		},
	}

	return cfg
}

// Directory is the read-only lookup table from (request type, stage) to a
// storage location. It is injected into components at construction; nothing
// reads storage names from process-wide state.
type Directory struct {
	m map[mapKey]Location
}

// NewDirectory builds a Directory from the given config.
func NewDirectory(cfg Config) *Directory {
	d := &Directory{m: make(map[mapKey]Location)}

	for stage, loc := range cfg.Import {
		d.m[mapKey{models.RequestTypeImport, stage}] = loc
	}

	for stage, loc := range cfg.Export {
		d.m[mapKey{models.RequestTypeExport, stage}] = loc
	}

	return d
}

// Location returns the storage location for the given request type and stage.
func (d *Directory) Location(rt models.RequestType, stage Stage) (Location, error) {
	loc, ok := d.m[mapKey{rt, stage}]
	if !ok {
		return Location{}, fmt.Errorf("no location for %s/%s: %w", rt, stage, models.ErrConfiguration)
	}

	return loc, nil
}

// StageForStatus returns the stage whose location currently holds the
// request's data while the request is in the given status.
func StageForStatus(status models.RequestStatus) (Stage, bool) {
	switch status {
	case models.StatusDraft:
		return StageDraft, true
	case models.StatusSubmitted, models.StatusInScan:
		return StageSubmitted, true
	case models.StatusInReview:
		return StageInReview, true
	case models.StatusApproved:
		return StageApproved, true
	case models.StatusRejected:
		return StageRejected, true
	case models.StatusBlocked:
		return StageBlocked, true
	}

	return "", false
}
