package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps the audit log in process. It is the default store
// when no database is configured; attempts are rare enough that growth
// is not a concern within a run.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Entry)}
}

func (s *MemoryStore) Append(ctx context.Context, e *Entry) error {
	stored := e.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, stored)
	s.byID[stored.AttemptID] = stored
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.entries[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) ListByService(ctx context.Context, service string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].Service == service {
			out = append(out, *s.entries[i].Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, attemptID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[attemptID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}
