// Package integrity detects mismatches between external item linkage and
// processing status. Scans are read-only and idempotent; repairs are
// suggestions only, applied separately through the guarded service API.
package integrity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/metrics"
)

// IssueType names a linkage/status mismatch.
type IssueType string

// Issue types, in increasing order of concern.
const (
	// LinkedButNotStored: an item key is set but the status is not a
	// stored state.
	LinkedButNotStored IssueType = "linked_but_not_stored"

	// StoredWithoutItem: a stored status with no item key.
	StoredWithoutItem IssueType = "stored_without_item"

	// ArchivedWithItem: an archived entity still holding an item key.
	ArchivedWithItem IssueType = "archived_with_item"

	// ProcessingWithItem: an in-flight stage with an item key already
	// set. Critical; no automated repair is suggested.
	ProcessingWithItem IssueType = "processing_with_item"
)

// RepairAction is a suggested, not automatic, fix.
type RepairAction string

// Suggested repairs.
const (
	// RepairNone marks issues that need a human decision.
	RepairNone RepairAction = ""

	// RepairUnlinkKeepStatus clears the item key and removes the link
	// row without touching the status.
	RepairUnlinkKeepStatus RepairAction = "unlink_keep_status"

	// RepairMarkStored promotes the status to stored to match the
	// existing linkage.
	RepairMarkStored RepairAction = "mark_stored"

	// RepairResetStatus returns the status to not_started so processing
	// can run again.
	RepairResetStatus RepairAction = "reset_status"
)

// Issue is one detected violation with its suggested repair.
type Issue struct {
	URLID           uuid.UUID                 `json:"url_id"`
	Type            IssueType                 `json:"type"`
	Status          citation.ProcessingStatus `json:"status"`
	ItemKey         string                    `json:"item_key,omitempty"`
	Critical        bool                      `json:"critical"`
	SuggestedRepair RepairAction              `json:"suggested_repair,omitempty"`
	Detail          string                    `json:"detail"`
}

// Checker scans persisted entities for linkage invariant violations.
type Checker struct {
	store  citation.Store
	logger *zap.Logger
}

// NewChecker builds a Checker.
func NewChecker(store citation.Store, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Checker{store: store, logger: logger}
}

// Scan inspects every entity and reports violations of the linkage
// invariant: externalItemKey set iff status is a stored state. Nothing is
// corrected; repeated scans over unchanged data return identical results.
func (c *Checker) Scan(ctx context.Context) ([]Issue, error) {
	entities, err := c.store.ListURLs(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}

	var issues []Issue
	for _, e := range entities {
		issue, ok := Inspect(e)
		if !ok {
			continue
		}
		issues = append(issues, issue)
		metrics.ObserveIntegrityIssue(string(issue.Type))
		c.logger.Warn("integrity issue detected",
			zap.String("url_id", e.ID.String()),
			zap.String("issue", string(issue.Type)),
			zap.String("status", string(e.ProcessingStatus)),
			zap.Bool("critical", issue.Critical),
		)
	}
	return issues, nil
}

// Inspect classifies a single entity. The second return is false when the
// entity is consistent.
func Inspect(e citation.URLEntity) (Issue, bool) {
	linked := e.Linked()
	stored := e.ProcessingStatus.StoredState()

	switch {
	case linked && e.ProcessingStatus.InFlight():
		return Issue{
			URLID:           e.ID,
			Type:            ProcessingWithItem,
			Status:          e.ProcessingStatus,
			ItemKey:         *e.ExternalItemKey,
			Critical:        true,
			SuggestedRepair: RepairNone,
			Detail:          "a processing stage is in flight for an already linked entity",
		}, true

	case linked && e.ProcessingStatus == citation.StatusArchived:
		return Issue{
			URLID:           e.ID,
			Type:            ArchivedWithItem,
			Status:          e.ProcessingStatus,
			ItemKey:         *e.ExternalItemKey,
			SuggestedRepair: RepairUnlinkKeepStatus,
			Detail:          "unlink item, keep status",
		}, true

	case linked && !stored:
		return Issue{
			URLID:           e.ID,
			Type:            LinkedButNotStored,
			Status:          e.ProcessingStatus,
			ItemKey:         *e.ExternalItemKey,
			SuggestedRepair: RepairMarkStored,
			Detail:          "promote status to stored to match the existing link",
		}, true

	case !linked && stored:
		return Issue{
			URLID:           e.ID,
			Type:            StoredWithoutItem,
			Status:          e.ProcessingStatus,
			SuggestedRepair: RepairResetStatus,
			Detail:          "stored status without an item; reset to not_started",
		}, true
	}
	return Issue{}, false
}
