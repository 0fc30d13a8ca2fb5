// Package orchestrator drives a URL through the processing stage cascade:
// authoritative domain, reference-manager import, content extraction, AI
// fallback. The cascade order is a data structure, not call-graph logic,
// so each stage can be tested in isolation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/identifier"
	"github.com/citepipe/citepipe/internal/metadata"
	"github.com/citepipe/citepipe/internal/metrics"
	"github.com/citepipe/citepipe/internal/state"
)

// Stage names recorded in processing attempts.
const (
	StageAuthoritative = "authoritative_domain"
	StageRefImport     = "reference_import"
	StageContent       = "content_extraction"
	StageAI            = "ai_fallback"
)

// Processing methods recorded on stored entities.
const (
	MethodAuthoritative = "authoritative"
	MethodExternal      = "external"
	MethodExternalDedup = "external_dedup"
	MethodContent       = "content"
	MethodAI            = "ai"
	MethodHybrid        = "hybrid"
)

// Orchestrator owns the per-URL processing decision engine.
type Orchestrator struct {
	cfg     Config
	store   citation.Store
	content citation.ContentStore
	refs    citation.ReferenceManager
	ai      citation.AIExtractor
	fetcher citation.Fetcher
	ids     *identifier.Extractor
	meta    *metadata.Extractor
	machine *state.Machine
	clock   citation.Clock
	logger  *zap.Logger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Store        citation.Store
	ContentStore citation.ContentStore
	RefManager   citation.ReferenceManager
	AIExtractor  citation.AIExtractor
	Fetcher      citation.Fetcher
	Identifiers  *identifier.Extractor
	Metadata     *metadata.Extractor
	Machine      *state.Machine
	Clock        citation.Clock
	Logger       *zap.Logger
}

// New wires an Orchestrator. Nil optional deps (AI) disable their stage.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.ContentStore == nil || deps.RefManager == nil || deps.Fetcher == nil {
		return nil, fmt.Errorf("store, content store, reference manager and fetcher are required")
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = def.StageTimeout
	}
	if cfg.AuthoritativeDomains == nil {
		cfg.AuthoritativeDomains = def.AuthoritativeDomains
	}
	if cfg.TranslatorDomains == nil {
		cfg.TranslatorDomains = def.TranslatorDomains
	}
	if deps.Identifiers == nil {
		deps.Identifiers = identifier.New(identifier.DefaultConfig(), deps.Logger)
	}
	if deps.Metadata == nil {
		deps.Metadata = metadata.New(metadata.DefaultConfig(), deps.Logger)
	}
	if deps.Machine == nil {
		deps.Machine = state.NewMachine()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	metrics.Init()
	return &Orchestrator{
		cfg:     cfg,
		store:   deps.Store,
		content: deps.ContentStore,
		refs:    deps.RefManager,
		ai:      deps.AIExtractor,
		fetcher: deps.Fetcher,
		ids:     deps.Identifiers,
		meta:    deps.Metadata,
		machine: deps.Machine,
		clock:   deps.Clock,
		logger:  deps.Logger,
	}, nil
}

// runState carries intermediate results between stages of one run.
type runState struct {
	entity      citation.URLEntity
	contentData []byte
	contentType string
	haveContent bool
	partialMD   citation.ExtractedMetadata
	havePartial bool
	candidates  []citation.Identifier
}

// stageOutcome is what a stage produced. Exactly one of err / final is
// meaningful when handled.
type stageOutcome struct {
	itemKey string
	method  string
	status  citation.ProcessingStatus
	missing []string
	reason  string
	err     error
}

type stageHandler struct {
	name       string
	inFlight   citation.ProcessingStatus
	applicable func(run *runState) bool
	run        func(ctx context.Context, run *runState) (bool, stageOutcome)
}

// Process runs the stage cascade for one URL. Each executed stage appends
// one ProcessingAttempt before the resulting state transition; the
// attempts counter increments only when the whole run fails.
func (o *Orchestrator) Process(ctx context.Context, urlID uuid.UUID) (citation.ProcessingResult, error) {
	entity, err := o.store.GetURL(ctx, urlID)
	if err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("load url %s: %w", urlID, err)
	}
	if gerr := o.machine.Guard(state.OpProcess, entity); gerr != nil {
		return citation.ProcessingResult{
			Success:  false,
			NewState: entity.ProcessingStatus,
			Error:    gerr.Error(),
			Category: citation.CategoryValidation,
		}, nil
	}

	run := &runState{entity: entity}
	if cached, err := o.store.ListCandidateIdentifiers(ctx, urlID); err == nil {
		run.candidates = cached
	}
	stages := o.stages()

	var lastErr error
	for _, stage := range stages {
		if !stage.applicable(run) {
			continue
		}
		if err := o.enterStage(ctx, run, stage.inFlight); err != nil {
			return citation.ProcessingResult{}, err
		}

		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		start := o.clock.Now()
		handled, outcome := stage.run(stageCtx, run)
		cancel()
		elapsed := o.clock.Now().Sub(start)

		if err := o.recordAttempt(ctx, run, stage.name, outcome); err != nil {
			return citation.ProcessingResult{}, err
		}

		switch {
		case outcome.err != nil:
			category := citation.ClassifyError(outcome.err)
			metrics.ObserveStage(stage.name, string(category), elapsed)
			o.logger.Warn("stage failed",
				zap.String("url_id", urlID.String()),
				zap.String("stage", stage.name),
				zap.String("category", string(category)),
				zap.Error(outcome.err),
			)
			if category == citation.CategoryPermanent {
				return o.finishFailed(ctx, run, stage.name, outcome.err, category, true)
			}
			lastErr = outcome.err
			// Retryable: cascade to the next applicable stage.

		case handled:
			metrics.ObserveStage(stage.name, "handled", elapsed)
			return o.finishHandled(ctx, run, stage.name, outcome)

		default:
			// Stage passed through (e.g. content incomplete); keep going.
			metrics.ObserveStage(stage.name, "pass", elapsed)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no processing stage produced a result")
	}
	return o.finishFailed(ctx, run, "cascade", lastErr, citation.CategoryRetryable, false)
}

// enterStage transitions the entity into the stage's in-flight status so a
// crash mid-call leaves a recoverable state the integrity checker flags.
func (o *Orchestrator) enterStage(ctx context.Context, run *runState, inFlight citation.ProcessingStatus) error {
	if run.entity.ProcessingStatus == inFlight {
		return nil
	}
	if !o.machine.CanTransition(run.entity.ProcessingStatus, inFlight) {
		return fmt.Errorf("illegal transition %s -> %s", run.entity.ProcessingStatus, inFlight)
	}
	run.entity.ProcessingStatus = inFlight
	if err := o.store.UpdateURL(ctx, run.entity); err != nil {
		return fmt.Errorf("enter stage: %w", err)
	}
	return nil
}

func (o *Orchestrator) recordAttempt(ctx context.Context, run *runState, stage string, outcome stageOutcome) error {
	attempt := citation.ProcessingAttempt{
		URLID:     run.entity.ID,
		Stage:     stage,
		Success:   outcome.err == nil,
		Timestamp: o.clock.Now(),
	}
	if outcome.err != nil {
		attempt.ErrorCategory = citation.ClassifyError(outcome.err)
		attempt.ErrorMessage = outcome.err.Error()
	} else if outcome.reason != "" {
		attempt.ErrorMessage = outcome.reason
	}
	if outcome.itemKey != "" {
		key := outcome.itemKey
		attempt.ResultingItemKey = &key
	}
	if err := o.store.AppendAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// finishHandled applies a successful (or awaiting) stage outcome.
func (o *Orchestrator) finishHandled(ctx context.Context, run *runState, stage string, outcome stageOutcome) (citation.ProcessingResult, error) {
	e := &run.entity

	if outcome.itemKey != "" {
		link := citation.ExternalItemLink{
			ItemKey:             outcome.itemKey,
			URLID:               e.ID,
			CreatedByThisSystem: outcome.method != MethodExternalDedup,
			LinkedAt:            o.clock.Now(),
		}
		if err := o.store.CreateLink(ctx, link); err != nil {
			return citation.ProcessingResult{}, fmt.Errorf("create link: %w", err)
		}
		key := outcome.itemKey
		e.ExternalItemKey = &key
		e.ExternalProcessingMethod = outcome.method
		e.CreatedByThisSystem = link.CreatedByThisSystem
		if count, err := o.store.CountLinksByItem(ctx, outcome.itemKey); err == nil {
			e.LinkedURLCount = count
		}
	}

	if !o.machine.CanTransition(e.ProcessingStatus, outcome.status) {
		return citation.ProcessingResult{}, fmt.Errorf("illegal transition %s -> %s", e.ProcessingStatus, outcome.status)
	}
	e.ProcessingStatus = outcome.status
	e.LastProcessingMethod = outcome.method
	e.MissingFields = outcome.missing
	if outcome.status.StoredState() {
		now := o.clock.Now()
		e.CitationValidatedAt = &now
		if len(outcome.missing) == 0 {
			e.CitationValidationStatus = citation.ValidationValid
		} else {
			e.CitationValidationStatus = citation.ValidationIncomplete
		}
	}
	if err := o.store.UpdateURL(ctx, *e); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("store result: %w", err)
	}

	metrics.ObserveProcessingResult(string(outcome.status))
	o.logger.Info("processing finished",
		zap.String("url_id", e.ID.String()),
		zap.String("stage", stage),
		zap.String("new_state", string(outcome.status)),
		zap.String("method", outcome.method),
	)

	result := citation.ProcessingResult{
		Success:  outcome.status.StoredState(),
		NewState: outcome.status,
		Error:    outcome.reason,
	}
	if outcome.itemKey != "" {
		key := outcome.itemKey
		result.ItemKey = &key
	}
	return result, nil
}

// finishFailed closes a failed run: the attempts counter increments, and
// the entity either becomes exhausted (permanent, or retry budget spent)
// or returns to not_started to remain eligible for a later retry.
func (o *Orchestrator) finishFailed(ctx context.Context, run *runState, stage string, cause error, category citation.ErrorCategory, permanent bool) (citation.ProcessingResult, error) {
	e := &run.entity
	e.ProcessingAttempts++

	newStatus := citation.StatusNotStarted
	if permanent || e.ProcessingAttempts >= o.cfg.MaxAttempts {
		newStatus = citation.StatusExhausted
	}
	e.ProcessingStatus = newStatus
	if err := o.store.UpdateURL(ctx, *e); err != nil {
		return citation.ProcessingResult{}, fmt.Errorf("store failure: %w", err)
	}

	metrics.ObserveProcessingResult(string(newStatus))
	o.logger.Warn("processing failed",
		zap.String("url_id", e.ID.String()),
		zap.String("stage", stage),
		zap.String("category", string(category)),
		zap.Int("attempts", e.ProcessingAttempts),
		zap.String("new_state", string(newStatus)),
		zap.Error(cause),
	)

	return citation.ProcessingResult{
		Success:  false,
		NewState: newStatus,
		Error:    cause.Error(),
		Category: category,
	}, nil
}
