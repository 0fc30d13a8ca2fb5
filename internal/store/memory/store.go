// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citepipe/citepipe/internal/citation"
)

// Store keeps URL entities, attempts, links and candidate identifiers in
// maps guarded by one mutex. Attempts are append-only by construction.
type Store struct {
	mu         sync.RWMutex
	urls       map[uuid.UUID]citation.URLEntity
	attempts   map[uuid.UUID][]citation.ProcessingAttempt
	links      map[uuid.UUID]citation.ExternalItemLink
	candidates map[uuid.UUID][]citation.Identifier
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		urls:       make(map[uuid.UUID]citation.URLEntity),
		attempts:   make(map[uuid.UUID][]citation.ProcessingAttempt),
		links:      make(map[uuid.UUID]citation.ExternalItemLink),
		candidates: make(map[uuid.UUID][]citation.Identifier),
	}
}

// CreateURL stores a new entity. The URL must be unique within its section.
func (s *Store) CreateURL(_ context.Context, entity citation.URLEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.urls[entity.ID]; exists {
		return fmt.Errorf("url %s already exists", entity.ID)
	}
	for _, existing := range s.urls {
		if existing.SectionID == entity.SectionID && existing.URL == entity.URL {
			return fmt.Errorf("url %q in section %q: %w", entity.URL, entity.SectionID, citation.ErrDuplicateURL)
		}
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}
	entity.UpdatedAt = entity.CreatedAt
	s.urls[entity.ID] = entity
	return nil
}

// GetURL fetches an entity by id.
func (s *Store) GetURL(_ context.Context, id uuid.UUID) (citation.URLEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.urls[id]
	if !ok {
		return citation.URLEntity{}, citation.ErrNotFound
	}
	return entity, nil
}

// GetURLByAddress fetches an entity by (section, url).
func (s *Store) GetURLByAddress(_ context.Context, sectionID, url string) (citation.URLEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entity := range s.urls {
		if entity.SectionID == sectionID && entity.URL == url {
			return entity, nil
		}
	}
	return citation.URLEntity{}, citation.ErrNotFound
}

// UpdateURL replaces the stored entity.
func (s *Store) UpdateURL(_ context.Context, entity citation.URLEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[entity.ID]; !ok {
		return citation.ErrNotFound
	}
	entity.UpdatedAt = time.Now().UTC()
	s.urls[entity.ID] = entity
	return nil
}

// AppendAttempt adds one history entry, assigning the next sequence number.
func (s *Store) AppendAttempt(_ context.Context, attempt citation.ProcessingAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[attempt.URLID]; !ok {
		return citation.ErrNotFound
	}
	attempt.Seq = len(s.attempts[attempt.URLID]) + 1
	s.attempts[attempt.URLID] = append(s.attempts[attempt.URLID], attempt)
	return nil
}

// ListAttempts returns the ordered history for a URL.
func (s *Store) ListAttempts(_ context.Context, urlID uuid.UUID) ([]citation.ProcessingAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempts := s.attempts[urlID]
	out := make([]citation.ProcessingAttempt, len(attempts))
	copy(out, attempts)
	return out, nil
}

// CreateLink records a URL-to-item link.
func (s *Store) CreateLink(_ context.Context, link citation.ExternalItemLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.URLID]; exists {
		return fmt.Errorf("url %s is already linked", link.URLID)
	}
	s.links[link.URLID] = link
	return nil
}

// DeleteLink removes the link row for (itemKey, urlID).
func (s *Store) DeleteLink(_ context.Context, itemKey string, urlID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[urlID]
	if !ok || link.ItemKey != itemKey {
		return citation.ErrNotFound
	}
	delete(s.links, urlID)
	return nil
}

// GetLink returns the link row for a URL.
func (s *Store) GetLink(_ context.Context, urlID uuid.UUID) (citation.ExternalItemLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[urlID]
	if !ok {
		return citation.ExternalItemLink{}, citation.ErrNotFound
	}
	return link, nil
}

// CountLinksByItem counts URLs fanning in to one item key.
func (s *Store) CountLinksByItem(_ context.Context, itemKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, link := range s.links {
		if link.ItemKey == itemKey {
			count++
		}
	}
	return count, nil
}

// SaveCandidateIdentifiers replaces the cached candidates for a URL.
func (s *Store) SaveCandidateIdentifiers(_ context.Context, urlID uuid.UUID, ids []citation.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]citation.Identifier, len(ids))
	copy(out, ids)
	s.candidates[urlID] = out
	return nil
}

// ListCandidateIdentifiers returns the cached candidates for a URL.
func (s *Store) ListCandidateIdentifiers(_ context.Context, urlID uuid.UUID) ([]citation.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.candidates[urlID]
	out := make([]citation.Identifier, len(ids))
	copy(out, ids)
	return out, nil
}

// ListURLs returns entities, optionally filtered by status, ordered by
// creation time for deterministic scans.
func (s *Store) ListURLs(_ context.Context, status *citation.ProcessingStatus) ([]citation.URLEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]citation.URLEntity, 0, len(s.urls))
	for _, entity := range s.urls {
		if status != nil && entity.ProcessingStatus != *status {
			continue
		}
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
