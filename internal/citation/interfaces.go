package citation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists URL entities, their append-only processing history, and
// external item links. Implementations must keep ExternalItemKey and the
// link table consistent within a single linking or unlinking operation.
type Store interface {
	CreateURL(ctx context.Context, entity URLEntity) error
	GetURL(ctx context.Context, id uuid.UUID) (URLEntity, error)
	GetURLByAddress(ctx context.Context, sectionID, url string) (URLEntity, error)
	UpdateURL(ctx context.Context, entity URLEntity) error

	// AppendAttempt adds one history entry. Attempts are immutable and
	// strictly ordered per URL; no update or delete is exposed.
	AppendAttempt(ctx context.Context, attempt ProcessingAttempt) error
	ListAttempts(ctx context.Context, urlID uuid.UUID) ([]ProcessingAttempt, error)

	CreateLink(ctx context.Context, link ExternalItemLink) error
	DeleteLink(ctx context.Context, itemKey string, urlID uuid.UUID) error
	GetLink(ctx context.Context, urlID uuid.UUID) (ExternalItemLink, error)
	CountLinksByItem(ctx context.Context, itemKey string) (int, error)

	// SaveCandidateIdentifiers caches extracted identifiers for a URL so a
	// selection UI can offer them later. Replaces any previous candidates.
	SaveCandidateIdentifiers(ctx context.Context, urlID uuid.UUID, ids []Identifier) error
	ListCandidateIdentifiers(ctx context.Context, urlID uuid.UUID) ([]Identifier, error)

	// ListURLs returns all entities, optionally filtered by status, for
	// batch processing and integrity scans.
	ListURLs(ctx context.Context, status *ProcessingStatus) ([]URLEntity, error)
}

// ContentStore caches raw fetched content per URL id.
type ContentStore interface {
	GetContent(ctx context.Context, urlID uuid.UUID) (data []byte, contentType string, err error)
	PutContent(ctx context.Context, urlID uuid.UUID, data []byte, contentType string) error
}

// ReferenceManager is the narrow boundary to the external reference store.
// All calls are opaque remote operations subject to retryable/permanent
// error classification.
type ReferenceManager interface {
	TranslateIdentifier(ctx context.Context, value string) (Item, error)
	TranslateURL(ctx context.Context, url string) (Item, error)
	GetItem(ctx context.Context, key string) (Item, error)
	CreateItem(ctx context.Context, fields ExtractedMetadata, url string) (string, error)
	UpdateItem(ctx context.Context, key string, fields ExtractedMetadata) error
	DeleteItem(ctx context.Context, key string) error
	FindItemByURL(ctx context.Context, url string) (string, bool, error)
}

// AIExtractor produces bibliographic metadata from raw text when the
// structured strategies come up short.
type AIExtractor interface {
	ExtractMetadata(ctx context.Context, text string, contentType, url string, hints []string) (ExtractedMetadata, error)
}

// Fetcher retrieves raw content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}
