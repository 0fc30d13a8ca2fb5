// Package citation defines core types shared across subsystems.
package citation

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus represents the lifecycle state of a tracked URL.
type ProcessingStatus string

// Processing status values persisted in the URL store.
const (
	StatusNotStarted        ProcessingStatus = "not_started"
	StatusProcessingExtern  ProcessingStatus = "processing_external"
	StatusProcessingContent ProcessingStatus = "processing_content"
	StatusProcessingAI      ProcessingStatus = "processing_ai"
	StatusAwaitingSelection ProcessingStatus = "awaiting_selection"
	StatusAwaitingMetadata  ProcessingStatus = "awaiting_metadata"
	StatusStored            ProcessingStatus = "stored"
	StatusStoredIncomplete  ProcessingStatus = "stored_incomplete"
	StatusStoredCustom      ProcessingStatus = "stored_custom"
	StatusExhausted         ProcessingStatus = "exhausted"
	StatusIgnored           ProcessingStatus = "ignored"
	StatusArchived          ProcessingStatus = "archived"
)

// Terminal reports whether the status is a terminal lifecycle state.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusStored, StatusStoredIncomplete, StatusStoredCustom,
		StatusExhausted, StatusIgnored, StatusArchived:
		return true
	}
	return false
}

// InFlight reports whether a processing stage is currently running.
func (s ProcessingStatus) InFlight() bool {
	switch s {
	case StatusProcessingExtern, StatusProcessingContent, StatusProcessingAI:
		return true
	}
	return false
}

// StoredState reports whether the status implies a linked external item.
func (s ProcessingStatus) StoredState() bool {
	switch s {
	case StatusStored, StatusStoredIncomplete, StatusStoredCustom:
		return true
	}
	return false
}

// Known reports whether s is one of the persisted status values.
func (s ProcessingStatus) Known() bool {
	switch s {
	case StatusNotStarted, StatusProcessingExtern, StatusProcessingContent,
		StatusProcessingAI, StatusAwaitingSelection, StatusAwaitingMetadata,
		StatusStored, StatusStoredIncomplete, StatusStoredCustom,
		StatusExhausted, StatusIgnored, StatusArchived:
		return true
	}
	return false
}

// UserIntent is a user-set override biasing or blocking automated processing.
type UserIntent string

// Supported user intents.
const (
	IntentAuto       UserIntent = "auto"
	IntentPriority   UserIntent = "priority"
	IntentIgnore     UserIntent = "ignore"
	IntentManualOnly UserIntent = "manual_only"
	IntentArchive    UserIntent = "archive"
)

// ValidationStatus tracks citation-quality validation of a stored item.
type ValidationStatus string

// Citation validation states.
const (
	ValidationValid        ValidationStatus = "valid"
	ValidationIncomplete   ValidationStatus = "incomplete"
	ValidationNotValidated ValidationStatus = "not_validated"
)

// URLEntity is the persisted record for one tracked URL.
type URLEntity struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	SectionID string    `json:"section_id"`

	ProcessingStatus     ProcessingStatus `json:"processing_status"`
	UserIntent           UserIntent       `json:"user_intent"`
	ProcessingAttempts   int              `json:"processing_attempts"`
	LastProcessingMethod string           `json:"last_processing_method,omitempty"`

	ExternalItemKey          *string `json:"external_item_key,omitempty"`
	ExternalProcessingMethod string  `json:"external_processing_method,omitempty"`
	CreatedByThisSystem      bool    `json:"created_by_this_system"`
	UserModifiedExternally   bool    `json:"user_modified_externally"`
	LinkedURLCount           int     `json:"linked_url_count"`

	CitationValidationStatus ValidationStatus `json:"citation_validation_status"`
	CitationValidatedAt      *time.Time       `json:"citation_validated_at,omitempty"`
	MissingFields            []string         `json:"missing_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Linked reports whether the entity points at an external item.
func (e URLEntity) Linked() bool {
	return e.ExternalItemKey != nil && *e.ExternalItemKey != ""
}

// ProcessingAttempt is one immutable entry in a URL's processing history.
// Attempts are only ever appended; the history is the sole audit trail.
type ProcessingAttempt struct {
	URLID            uuid.UUID     `json:"url_id"`
	Seq              int           `json:"seq"`
	Stage            string        `json:"stage"`
	Success          bool          `json:"success"`
	ErrorCategory    ErrorCategory `json:"error_category,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	ResultingItemKey *string       `json:"resulting_item_key,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

// IdentifierType is a typed bibliographic code family.
type IdentifierType string

// Supported identifier types, in descending selection priority.
const (
	IdentifierDOI   IdentifierType = "DOI"
	IdentifierPMID  IdentifierType = "PMID"
	IdentifierArXiv IdentifierType = "ARXIV"
	IdentifierISBN  IdentifierType = "ISBN"
)

// Confidence is the qualitative trust level of an extraction.
type Confidence string

// Confidence levels, descending.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Identifier is an extracted bibliographic identifier. Identifiers are
// ephemeral extraction outputs, optionally cached per URL for selection.
type Identifier struct {
	Type       IdentifierType `json:"type"`
	Value      string         `json:"value"`
	Source     string         `json:"source"`
	Confidence Confidence     `json:"confidence"`
}

// CreatorType distinguishes authors from editors and similar roles.
type CreatorType string

// Creator roles used by the reference manager.
const (
	CreatorAuthor      CreatorType = "author"
	CreatorEditor      CreatorType = "editor"
	CreatorContributor CreatorType = "contributor"
)

// Creator is one bibliographic creator (split or single-field name).
type Creator struct {
	Type      CreatorType `json:"type"`
	FirstName string      `json:"first_name,omitempty"`
	LastName  string      `json:"last_name,omitempty"`
	Name      string      `json:"name,omitempty"`
}

// ExtractedMetadata holds bibliographic fields pulled from content. Partial
// results are the normal case; Sources records which strategy supplied each
// populated field.
type ExtractedMetadata struct {
	Title            string    `json:"title,omitempty"`
	Creators         []Creator `json:"creators,omitempty"`
	Date             string    `json:"date,omitempty"`
	ItemType         string    `json:"item_type,omitempty"`
	AbstractNote     string    `json:"abstract_note,omitempty"`
	PublicationTitle string    `json:"publication_title,omitempty"`

	Sources map[string]string `json:"extraction_sources,omitempty"`
}

// SetSource records field provenance, allocating the map lazily.
func (m *ExtractedMetadata) SetSource(field, strategy string) {
	if m.Sources == nil {
		m.Sources = make(map[string]string)
	}
	m.Sources[field] = strategy
}

// ExternalItemLink joins a URL to an external reference-manager item.
// Multiple URLs may fan in to the same item key.
type ExternalItemLink struct {
	ItemKey             string    `json:"item_key"`
	URLID               uuid.UUID `json:"url_id"`
	CreatedByThisSystem bool      `json:"created_by_this_system"`
	UserModified        bool      `json:"user_modified"`
	LinkedAt            time.Time `json:"linked_at"`
}

// Item is an opaque reference-manager item as returned by its API.
type Item struct {
	Key      string            `json:"key"`
	ItemType string            `json:"item_type"`
	Title    string            `json:"title"`
	Creators []Creator         `json:"creators,omitempty"`
	Date     string            `json:"date,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// ProcessingResult is returned by every processing and user-facing
// operation. It is always a structured result; errors never cross the
// service boundary as bare panics or unwrapped failures.
type ProcessingResult struct {
	Success  bool             `json:"success"`
	NewState ProcessingStatus `json:"new_state"`
	ItemKey  *string          `json:"item_key,omitempty"`
	Error    string           `json:"error,omitempty"`
	Category ErrorCategory    `json:"error_category,omitempty"`
}
