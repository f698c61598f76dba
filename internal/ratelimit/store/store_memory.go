// Package store persists login lockout records.
package store

import (
	"context"
	"sync"
	"time"

	"correspondence/internal/ratelimit/models"
)

type entry struct {
	failures    int
	windowEnds  time.Time
	lockedUntil *time.Time
}

// InMemoryStore keeps lockouts in process. Expired entries are dropped lazily.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*entry)}
}

// RecordFailure counts a failure for key. The count restarts once window has
// passed since the first failure it includes.
func (s *InMemoryStore) RecordFailure(_ context.Context, key string, now time.Time, window time.Duration) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.windowEnds) {
		var locked *time.Time
		if ok {
			locked = e.lockedUntil
		}
		e = &entry{windowEnds: now.Add(window), lockedUntil: locked}
		s.entries[key] = e
	}
	e.failures++
	return e.toModel(key), nil
}

func (s *InMemoryStore) Lock(_ context.Context, key string, now time.Time, d time.Duration) error {
	until := now.Add(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{windowEnds: until}
		s.entries[key] = e
	}
	e.lockedUntil = &until
	return nil
}

// Get returns nil when key has no live record at now.
func (s *InMemoryStore) Get(_ context.Context, key string, now time.Time) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	windowOpen := now.Before(e.windowEnds)
	locked := e.lockedUntil != nil && now.Before(*e.lockedUntil)
	if !windowOpen && !locked {
		delete(s.entries, key)
		return nil, nil
	}
	out := e.toModel(key)
	if !windowOpen {
		out.Failures = 0
	}
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (e *entry) toModel(key string) *models.Lockout {
	l := &models.Lockout{Key: key, Failures: e.failures}
	if e.lockedUntil != nil {
		until := *e.lockedUntil
		l.LockedUntil = &until
	}
	return l
}
