// Package memory implements an in-memory content cache for tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/citepipe/citepipe/internal/citation"
)

type entry struct {
	data        []byte
	contentType string
}

// Store keeps cached content in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
}

// New constructs an empty content cache.
func New() *Store {
	return &Store{entries: make(map[uuid.UUID]entry)}
}

// PutContent caches the payload for a URL, replacing any previous one.
func (s *Store) PutContent(_ context.Context, urlID uuid.UUID, data []byte, contentType string) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[urlID] = entry{data: buf, contentType: contentType}
	return nil
}

// GetContent returns the cached payload, or ErrNoContent.
func (s *Store) GetContent(_ context.Context, urlID uuid.UUID) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[urlID]
	if !ok {
		return nil, "", citation.ErrNoContent
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, e.contentType, nil
}
