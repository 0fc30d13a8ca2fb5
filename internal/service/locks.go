package service

import (
	"sync"

	"github.com/google/uuid"
)

// urlLocks serializes mutating operations per URL so guard evaluation and
// the write it protects are atomic. Entries are reference counted and
// dropped when the last holder releases, so the map stays bounded by the
// number of in-flight operations.
type urlLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newURLLocks() *urlLocks {
	return &urlLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// lock blocks until the per-URL mutex is held and returns the release
// function.
func (l *urlLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
