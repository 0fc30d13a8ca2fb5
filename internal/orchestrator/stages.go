package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/identifier"
	"github.com/citepipe/citepipe/internal/metadata"
)

// stages returns the cascade in decision order: authoritative domain,
// reference-manager import, content extraction (fetching on demand), AI
// fallback.
func (o *Orchestrator) stages() []stageHandler {
	return []stageHandler{
		{
			name:     StageAuthoritative,
			inFlight: citation.StatusProcessingExtern,
			applicable: func(run *runState) bool {
				_, ok := o.authoritativeType(run.entity.URL)
				return ok
			},
			run: o.runAuthoritative,
		},
		{
			name:     StageRefImport,
			inFlight: citation.StatusProcessingExtern,
			applicable: func(run *runState) bool {
				return len(run.candidates) > 0 || o.translatorCapable(run.entity.URL)
			},
			run: o.runRefImport,
		},
		{
			name:       StageContent,
			inFlight:   citation.StatusProcessingContent,
			applicable: func(*runState) bool { return true },
			run:        o.runContent,
		},
		{
			name:     StageAI,
			inFlight: citation.StatusProcessingAI,
			applicable: func(run *runState) bool {
				return o.ai != nil && run.haveContent
			},
			run: o.runAI,
		},
	}
}

// runAuthoritative derives an identifier straight from the URL of a host
// whose API is authoritative for it, then imports through the manager.
func (o *Orchestrator) runAuthoritative(ctx context.Context, run *runState) (bool, stageOutcome) {
	typ, _ := o.authoritativeType(run.entity.URL)
	id, ok := identifierFromURL(run.entity.URL, typ)
	if !ok {
		// Host matched but no identifier in the path; fall through.
		return false, stageOutcome{reason: "no identifier derivable from url"}
	}
	item, err := o.refs.TranslateIdentifier(ctx, id.Value)
	if err != nil {
		return false, stageOutcome{err: err}
	}
	return true, o.storeTranslatedItem(ctx, run, item, MethodAuthoritative)
}

// runRefImport tries the external import path: an existing item with this
// URL, a previously extracted identifier, or the manager's URL translators.
func (o *Orchestrator) runRefImport(ctx context.Context, run *runState) (bool, stageOutcome) {
	normalized := NormalizeURL(run.entity.URL)

	key, found, err := o.refs.FindItemByURL(ctx, normalized)
	if err != nil {
		return false, stageOutcome{err: err}
	}
	if found {
		return true, stageOutcome{
			itemKey: key,
			method:  MethodExternalDedup,
			status:  citation.StatusStored,
		}
	}

	var item citation.Item
	if len(run.candidates) > 0 {
		item, err = o.refs.TranslateIdentifier(ctx, run.candidates[0].Value)
	} else {
		item, err = o.refs.TranslateURL(ctx, normalized)
	}
	if err != nil {
		return false, stageOutcome{err: err}
	}
	return true, o.storeTranslatedItem(ctx, run, item, MethodExternal)
}

// runContent makes sure raw content is cached (fetching if needed), then
// extracts identifiers and metadata from it. Incomplete metadata passes
// through to the AI stage.
func (o *Orchestrator) runContent(ctx context.Context, run *runState) (bool, stageOutcome) {
	if !run.haveContent {
		data, ctype, err := o.content.GetContent(ctx, run.entity.ID)
		if errors.Is(err, citation.ErrNoContent) {
			data, ctype, err = o.fetcher.Fetch(ctx, run.entity.URL)
			if err != nil {
				return false, stageOutcome{err: err}
			}
			if putErr := o.content.PutContent(ctx, run.entity.ID, data, ctype); putErr != nil {
				return false, stageOutcome{err: putErr}
			}
		} else if err != nil {
			return false, stageOutcome{err: err}
		}
		run.contentData = data
		run.contentType = ctype
		run.haveContent = true
	}

	ids := o.ids.Extract(run.contentData, run.contentType, run.entity.URL)
	if len(ids) > 0 {
		if err := o.store.SaveCandidateIdentifiers(ctx, run.entity.ID, ids); err != nil {
			return false, stageOutcome{err: err}
		}
		run.candidates = ids
		if needsSelection(ids) {
			return true, stageOutcome{
				status: citation.StatusAwaitingSelection,
				reason: "multiple candidate identifiers require user selection",
			}
		}
		item, err := o.refs.TranslateIdentifier(ctx, ids[0].Value)
		if err != nil {
			return false, stageOutcome{err: err}
		}
		return true, o.storeTranslatedItem(ctx, run, item, MethodContent)
	}

	md := o.meta.Extract(run.contentData, run.contentType, run.entity.URL)
	md.Date = metadata.NormalizeDate(md.Date)
	run.partialMD = md
	run.havePartial = true

	if missing := metadata.MissingCriticalFields(md); len(missing) > 0 {
		return false, stageOutcome{reason: "structured metadata incomplete: " + strings.Join(missing, ", ")}
	}
	return true, o.createFromMetadata(ctx, run, md, MethodContent)
}

// runAI fills the fields the structured strategies missed and stores the
// merged result.
func (o *Orchestrator) runAI(ctx context.Context, run *runState) (bool, stageOutcome) {
	text := string(run.contentData)
	if strings.Contains(strings.ToLower(run.contentType), "application/pdf") {
		text = identifier.PDFText(run.contentData, 0)
	}

	hints := metadata.MissingCriticalFields(run.partialMD)
	aiMD, err := o.ai.ExtractMetadata(ctx, text, run.contentType, run.entity.URL, hints)
	if err != nil {
		return false, stageOutcome{err: err}
	}

	merged := metadata.MergeMissing(run.partialMD, aiMD, metadata.SourceAI)
	merged.Date = metadata.NormalizeDate(merged.Date)
	if merged.Title == "" {
		return false, stageOutcome{
			err: citation.NewProcessingError(StageAI, citation.CategoryPermanent,
				errors.New("no usable metadata extracted")),
		}
	}

	method := MethodAI
	if usedStructuredSource(merged) {
		method = MethodHybrid
	}

	if o.cfg.RequireAIApproval {
		return true, stageOutcome{
			status: citation.StatusAwaitingMetadata,
			method: method,
			reason: "ai metadata awaiting user approval",
		}
	}
	return true, o.createFromMetadata(ctx, run, merged, method)
}

// createFromMetadata stores a new item built from extracted metadata.
func (o *Orchestrator) createFromMetadata(ctx context.Context, run *runState, md citation.ExtractedMetadata, method string) stageOutcome {
	key, err := o.refs.CreateItem(ctx, md, NormalizeURL(run.entity.URL))
	if err != nil {
		return stageOutcome{err: err}
	}
	missing := o.missingFields(md)
	status := citation.StatusStored
	if len(missing) > 0 {
		status = citation.StatusStoredIncomplete
	}
	return stageOutcome{itemKey: key, method: method, status: status, missing: missing}
}

// storeTranslatedItem stores (or adopts) an item returned by the manager.
func (o *Orchestrator) storeTranslatedItem(ctx context.Context, run *runState, item citation.Item, method string) stageOutcome {
	md := metadataFromItem(item)
	md.Date = metadata.NormalizeDate(md.Date)

	key := item.Key
	if key == "" {
		var err error
		key, err = o.refs.CreateItem(ctx, md, NormalizeURL(run.entity.URL))
		if err != nil {
			return stageOutcome{err: err}
		}
	}
	missing := o.missingFields(md)
	status := citation.StatusStored
	if len(missing) > 0 {
		status = citation.StatusStoredIncomplete
	}
	return stageOutcome{itemKey: key, method: method, status: status, missing: missing}
}

// missingFields unions the completeness criteria with the per-item-type
// required-field table.
func (o *Orchestrator) missingFields(md citation.ExtractedMetadata) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, field := range metadata.MissingCriticalFields(md) {
		if _, ok := seen[field]; !ok {
			seen[field] = struct{}{}
			out = append(out, field)
		}
	}
	for _, field := range o.meta.Validate(md) {
		if _, ok := seen[field]; !ok {
			seen[field] = struct{}{}
			out = append(out, field)
		}
	}
	return out
}

// needsSelection reports whether the candidate set is too ambiguous to
// pick from automatically.
func needsSelection(ids []citation.Identifier) bool {
	return len(ids) > 1 && ids[0].Confidence != citation.ConfidenceHigh
}

func usedStructuredSource(md citation.ExtractedMetadata) bool {
	for field, source := range md.Sources {
		if field == "itemType" {
			continue
		}
		if source != metadata.SourceAI {
			return true
		}
	}
	return false
}

func metadataFromItem(item citation.Item) citation.ExtractedMetadata {
	md := citation.ExtractedMetadata{
		Title:    item.Title,
		Creators: item.Creators,
		Date:     item.Date,
		ItemType: item.ItemType,
	}
	if item.Fields != nil {
		md.AbstractNote = item.Fields["abstractNote"]
		md.PublicationTitle = item.Fields["publicationTitle"]
	}
	return md
}
