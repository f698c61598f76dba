package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a single-instance revocation list. Expired entries are
// dropped lazily on lookup and on each revoke.
type InMemoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	clock   func() time.Time
}

type Option func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemory(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{revoked: make(map[string]time.Time), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for k, exp := range s.revoked {
		if !now.Before(exp) {
			delete(s.revoked, k)
		}
	}
	s.revoked[jti] = now.Add(ttl)
	return nil
}

func (s *InMemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if !s.clock().Before(exp) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return nil
}
