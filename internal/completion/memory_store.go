package completion

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same contract as SQLStore.
// It serves tests and the single-process local mode.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
	units    map[string]map[string]struct{}
	now      func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*Counter),
		units:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, noteID, importID string, total int) (Counter, bool, error) {
	if total < 0 {
		return Counter{}, false, ErrInvalidTotal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[noteID]; ok {
		return *c, false, nil
	}

	now := s.now().UTC()
	c := &Counter{NoteID: noteID, ImportID: importID, Total: total, CreatedAt: now}
	if total == 0 {
		c.CompletedAt = &now
	}
	s.counters[noteID] = c
	return *c, true, nil
}

func (s *MemoryStore) Increment(_ context.Context, noteID, unitKey string) (Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[noteID]
	if !ok {
		return Counter{}, false, ErrCounterNotFound
	}

	if unitKey != "" {
		seen := s.units[noteID]
		if seen == nil {
			seen = make(map[string]struct{})
			s.units[noteID] = seen
		}
		if _, dup := seen[unitKey]; dup {
			return *c, false, nil
		}
		seen[unitKey] = struct{}{}
	}

	if c.Completed >= c.Total {
		return *c, false, nil
	}

	c.Completed++
	if c.Completed == c.Total {
		now := s.now().UTC()
		c.CompletedAt = &now
	}
	return *c, true, nil
}

func (s *MemoryStore) Get(_ context.Context, noteID string) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[noteID]
	if !ok {
		return Counter{}, ErrCounterNotFound
	}
	return *c, nil
}
