// Package service exposes the guarded operations on tracked URLs. Every
// mutating call evaluates the state-machine guard first; validation
// refusals change nothing and append no history.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/integrity"
	"github.com/citepipe/citepipe/internal/orchestrator"
	"github.com/citepipe/citepipe/internal/state"
)

// Audit stages recorded for user-initiated operations.
const (
	stageManualLink   = "manual_link"
	stageManualUnlink = "manual_unlink"
	stageSetIntent    = "set_intent"
	stageReset        = "reset"
	stageRepair       = "integrity_repair"
)

// Service is the application facade over the store, the orchestrator and
// the integrity checker. Mutating operations on the same URL are
// serialized through a keyed lock so that two concurrent calls cannot
// both pass a guard and write conflicting state.
type Service struct {
	store   citation.Store
	orch    *orchestrator.Orchestrator
	checker *integrity.Checker
	refs    citation.ReferenceManager
	machine *state.Machine
	clock   citation.Clock
	ids     citation.IDGenerator
	locks   *urlLocks
	logger  *zap.Logger
}

// Deps bundles the service collaborators.
type Deps struct {
	Store        citation.Store
	Orchestrator *orchestrator.Orchestrator
	Checker      *integrity.Checker
	RefManager   citation.ReferenceManager
	Machine      *state.Machine
	Clock        citation.Clock
	IDGenerator  citation.IDGenerator
	Logger       *zap.Logger
}

// New wires a Service.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Orchestrator == nil || deps.Checker == nil {
		return nil, fmt.Errorf("store, orchestrator and checker are required")
	}
	if deps.Clock == nil || deps.IDGenerator == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	if deps.Machine == nil {
		deps.Machine = state.NewMachine()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		store:   deps.Store,
		orch:    deps.Orchestrator,
		checker: deps.Checker,
		refs:    deps.RefManager,
		machine: deps.Machine,
		clock:   deps.Clock,
		ids:     deps.IDGenerator,
		locks:   newURLLocks(),
		logger:  deps.Logger,
	}, nil
}

// CreateURL registers a new URL for tracking within a section.
func (s *Service) CreateURL(ctx context.Context, sectionID, rawURL string) (citation.URLEntity, error) {
	normalized := orchestrator.NormalizeURL(rawURL)
	if normalized == "" {
		return citation.URLEntity{}, fmt.Errorf("url is required")
	}
	id, err := s.ids.NewID()
	if err != nil {
		return citation.URLEntity{}, fmt.Errorf("generate id: %w", err)
	}
	entity := citation.URLEntity{
		ID:                       id,
		URL:                      normalized,
		SectionID:                sectionID,
		ProcessingStatus:         citation.StatusNotStarted,
		UserIntent:               citation.IntentAuto,
		CitationValidationStatus: citation.ValidationNotValidated,
		CreatedAt:                s.clock.Now(),
	}
	if err := s.store.CreateURL(ctx, entity); err != nil {
		return citation.URLEntity{}, fmt.Errorf("create url: %w", err)
	}
	return entity, nil
}

// GetURL returns one tracked entity.
func (s *Service) GetURL(ctx context.Context, urlID uuid.UUID) (citation.URLEntity, error) {
	return s.store.GetURL(ctx, urlID)
}

// History returns the ordered processing history for a URL.
func (s *Service) History(ctx context.Context, urlID uuid.UUID) ([]citation.ProcessingAttempt, error) {
	return s.store.ListAttempts(ctx, urlID)
}

// ListURLs returns tracked entities, optionally filtered by status.
func (s *Service) ListURLs(ctx context.Context, status *citation.ProcessingStatus) ([]citation.URLEntity, error) {
	return s.store.ListURLs(ctx, status)
}

// Process runs the orchestrator cascade for one URL.
func (s *Service) Process(ctx context.Context, urlID uuid.UUID) (citation.ProcessingResult, error) {
	defer s.locks.lock(urlID)()
	return s.orch.Process(ctx, urlID)
}

// LinkToExistingItem manually links a URL to an item that already exists
// in the reference manager. The entity moves to stored_custom.
func (s *Service) LinkToExistingItem(ctx context.Context, urlID uuid.UUID, itemKey string) (citation.ProcessingResult, error) {
	defer s.locks.lock(urlID)()

	entity, err := s.store.GetURL(ctx, urlID)
	if err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("load url %s: %w", urlID, err)
	}
	if gerr := s.machine.Guard(state.OpLink, entity); gerr != nil {
		return refusal(entity, gerr), nil
	}
	if err := s.machine.CheckTransition(state.OpLink, entity.ProcessingStatus, citation.StatusStoredCustom); err != nil {
		return refusal(entity, err), nil
	}
	if s.refs != nil {
		if _, err := s.refs.GetItem(ctx, itemKey); err != nil {
			if errors.Is(err, citation.ErrItemNotFound) {
				return refusal(entity, fmt.Errorf("item %s does not exist", itemKey)), nil
			}
			return citation.ProcessingResult{}, fmt.Errorf("verify item %s: %w", itemKey, err)
		}
	}

	if err := s.audit(ctx, urlID, stageManualLink, &itemKey, ""); err != nil {
		return citation.ProcessingResult{}, err
	}
	link := citation.ExternalItemLink{
		ItemKey:      itemKey,
		URLID:        urlID,
		UserModified: true,
		LinkedAt:     s.clock.Now(),
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("create link: %w", err)
	}
	entity.ExternalItemKey = &itemKey
	entity.ProcessingStatus = citation.StatusStoredCustom
	entity.LastProcessingMethod = "manual"
	if count, err := s.store.CountLinksByItem(ctx, itemKey); err == nil {
		entity.LinkedURLCount = count
	}
	if err := s.store.UpdateURL(ctx, entity); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("store link: %w", err)
	}

	s.logger.Info("url linked to existing item",
		zap.String("url_id", urlID.String()),
		zap.String("item_key", itemKey),
	)
	return citation.ProcessingResult{
		Success:  true,
		NewState: citation.StatusStoredCustom,
		ItemKey:  &itemKey,
	}, nil
}

// Unlink removes the external item link and returns the entity to
// not_started, restoring the linkage invariant.
func (s *Service) Unlink(ctx context.Context, urlID uuid.UUID) (citation.ProcessingResult, error) {
	defer s.locks.lock(urlID)()

	entity, err := s.store.GetURL(ctx, urlID)
	if err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("load url %s: %w", urlID, err)
	}
	if gerr := s.machine.Guard(state.OpUnlink, entity); gerr != nil {
		return refusal(entity, gerr), nil
	}

	itemKey := *entity.ExternalItemKey
	if err := s.audit(ctx, urlID, stageManualUnlink, nil, "unlinked from "+itemKey); err != nil {
		return citation.ProcessingResult{}, err
	}
	if err := s.store.DeleteLink(ctx, itemKey, urlID); err != nil && !errors.Is(err, citation.ErrNotFound) {
		return citation.ProcessingResult{}, fmt.Errorf("delete link: %w", err)
	}
	entity.ExternalItemKey = nil
	entity.ProcessingStatus = citation.StatusNotStarted
	entity.CitationValidationStatus = citation.ValidationNotValidated
	entity.CitationValidatedAt = nil
	entity.MissingFields = nil
	if err := s.store.UpdateURL(ctx, entity); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("store unlink: %w", err)
	}

	return citation.ProcessingResult{
		Success:  true,
		NewState: citation.StatusNotStarted,
	}, nil
}

// SetIntent updates the user intent. Setting ignore or archive also moves
// the status to the matching terminal state when the guard allows it.
func (s *Service) SetIntent(ctx context.Context, urlID uuid.UUID, intent citation.UserIntent) (citation.ProcessingResult, error) {
	switch intent {
	case citation.IntentAuto, citation.IntentPriority, citation.IntentIgnore,
		citation.IntentManualOnly, citation.IntentArchive:
	default:
		return citation.ProcessingResult{
			Success:  false,
			Error:    fmt.Sprintf("unknown intent %q", intent),
			Category: citation.CategoryValidation,
		}, nil
	}

	defer s.locks.lock(urlID)()

	entity, err := s.store.GetURL(ctx, urlID)
	if err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("load url %s: %w", urlID, err)
	}
	if gerr := s.machine.Guard(state.OpSetIntent, entity); gerr != nil {
		return refusal(entity, gerr), nil
	}

	newStatus := entity.ProcessingStatus
	switch intent {
	case citation.IntentIgnore:
		if gerr := s.machine.Guard(state.OpIgnore, entity); gerr != nil {
			return refusal(entity, gerr), nil
		}
		newStatus = citation.StatusIgnored
	case citation.IntentArchive:
		if gerr := s.machine.Guard(state.OpArchive, entity); gerr != nil {
			return refusal(entity, gerr), nil
		}
		newStatus = citation.StatusArchived
	}
	if err := s.machine.CheckTransition(state.OpSetIntent, entity.ProcessingStatus, newStatus); err != nil {
		return refusal(entity, err), nil
	}

	if err := s.audit(ctx, urlID, stageSetIntent, nil, "intent set to "+string(intent)); err != nil {
		return citation.ProcessingResult{}, err
	}
	entity.UserIntent = intent
	entity.ProcessingStatus = newStatus
	if err := s.store.UpdateURL(ctx, entity); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("store intent: %w", err)
	}

	return citation.ProcessingResult{Success: true, NewState: newStatus}, nil
}

// ResetProcessing returns the entity to not_started and zeroes the retry
// budget. Prior history is never deleted.
func (s *Service) ResetProcessing(ctx context.Context, urlID uuid.UUID) (citation.ProcessingResult, error) {
	defer s.locks.lock(urlID)()

	entity, err := s.store.GetURL(ctx, urlID)
	if err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("load url %s: %w", urlID, err)
	}
	if gerr := s.machine.Guard(state.OpReset, entity); gerr != nil {
		return refusal(entity, gerr), nil
	}
	if err := s.machine.CheckTransition(state.OpReset, entity.ProcessingStatus, citation.StatusNotStarted); err != nil {
		return refusal(entity, err), nil
	}

	if err := s.audit(ctx, urlID, stageReset, nil, "processing state reset"); err != nil {
		return citation.ProcessingResult{}, err
	}
	entity.ProcessingStatus = citation.StatusNotStarted
	entity.ProcessingAttempts = 0
	entity.LastProcessingMethod = ""
	entity.CitationValidationStatus = citation.ValidationNotValidated
	entity.CitationValidatedAt = nil
	entity.MissingFields = nil
	if err := s.store.UpdateURL(ctx, entity); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("store reset: %w", err)
	}

	return citation.ProcessingResult{Success: true, NewState: citation.StatusNotStarted}, nil
}

// ScanIntegrity runs a read-only linkage scan.
func (s *Service) ScanIntegrity(ctx context.Context) ([]integrity.Issue, error) {
	return s.checker.Scan(ctx)
}

// Repair applies the suggested repair for a single entity's integrity
// issue. Critical issues are never auto-repaired.
func (s *Service) Repair(ctx context.Context, urlID uuid.UUID) (citation.ProcessingResult, error) {
	defer s.locks.lock(urlID)()

	entity, err := s.store.GetURL(ctx, urlID)
	if err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("load url %s: %w", urlID, err)
	}
	issue, found := integrity.Inspect(entity)
	if !found {
		return citation.ProcessingResult{
			Success:  false,
			NewState: entity.ProcessingStatus,
			Error:    "no integrity issue detected",
			Category: citation.CategoryValidation,
		}, nil
	}
	if issue.SuggestedRepair == integrity.RepairNone {
		return citation.ProcessingResult{
			Success:  false,
			NewState: entity.ProcessingStatus,
			Error:    fmt.Sprintf("issue %s is critical and has no automated repair", issue.Type),
			Category: citation.CategoryIntegrity,
		}, nil
	}
	if gerr := s.machine.Guard(state.OpRepair, entity); gerr != nil {
		return refusal(entity, gerr), nil
	}

	detail := fmt.Sprintf("repair %s applied for issue %s", issue.SuggestedRepair, issue.Type)
	if err := s.audit(ctx, urlID, stageRepair, nil, detail); err != nil {
		return citation.ProcessingResult{}, err
	}

	switch issue.SuggestedRepair {
	case integrity.RepairUnlinkKeepStatus:
		if err := s.store.DeleteLink(ctx, issue.ItemKey, urlID); err != nil && !errors.Is(err, citation.ErrNotFound) {
			return citation.ProcessingResult{}, fmt.Errorf("delete link: %w", err)
		}
		entity.ExternalItemKey = nil

	case integrity.RepairMarkStored:
		entity.ProcessingStatus = citation.StatusStored

	case integrity.RepairResetStatus:
		entity.ProcessingStatus = citation.StatusNotStarted
	}
	if err := s.store.UpdateURL(ctx, entity); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("store repair: %w", err)
	}

	s.logger.Info("integrity repair applied",
		zap.String("url_id", urlID.String()),
		zap.String("issue", string(issue.Type)),
		zap.String("repair", string(issue.SuggestedRepair)),
	)
	return citation.ProcessingResult{Success: true, NewState: entity.ProcessingStatus}, nil
}

// audit appends a history entry for a user-initiated operation; it is
// written before the state transition it documents.
func (s *Service) audit(ctx context.Context, urlID uuid.UUID, stage string, itemKey *string, msg string) error {
	attempt := citation.ProcessingAttempt{
		URLID:            urlID,
		Stage:            stage,
		Success:          true,
		ErrorMessage:     msg,
		ResultingItemKey: itemKey,
		Timestamp:        s.clock.Now(),
	}
	if err := s.store.AppendAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("append audit attempt: %w", err)
	}
	return nil
}

func refusal(entity citation.URLEntity, cause error) citation.ProcessingResult {
	return citation.ProcessingResult{
		Success:  false,
		NewState: entity.ProcessingStatus,
		Error:    cause.Error(),
		Category: citation.CategoryValidation,
	}
}
