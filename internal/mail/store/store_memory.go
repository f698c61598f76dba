// Package store persists incoming and outgoing mail in memory or in Postgres.
// Both back mail numbers with one registry spanning the two kinds and report
// a reused number as sentinel.Conflict(models.ConstraintMailNumber).
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"correspondence/internal/mail/models"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	"correspondence/pkg/platform/sentinel"
	pstrings "correspondence/pkg/platform/strings"
)

// InMemoryStore keeps one map per kind plus the shared number registry.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  map[models.Kind]domain.MailID
	mail    map[models.Kind]map[domain.MailID]*models.Mail
	numbers map[string]models.NumberOwner
}

func NewInMemory() *InMemoryStore {
	s := &InMemoryStore{
		nextID:  make(map[models.Kind]domain.MailID),
		mail:    make(map[models.Kind]map[domain.MailID]*models.Mail),
		numbers: make(map[string]models.NumberOwner),
	}
	for _, k := range models.Kinds {
		s.mail[k] = make(map[domain.MailID]*models.Mail)
	}
	return s
}

func (s *InMemoryStore) Create(_ context.Context, m *models.Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.numbers[m.MailNumber]; taken {
		return sentinel.Conflict(models.ConstraintMailNumber)
	}
	s.nextID[m.Kind]++
	m.ID = s.nextID[m.Kind]
	m.ReadBy = nil
	s.mail[m.Kind][m.ID] = m.Clone()
	s.numbers[m.MailNumber] = models.NumberOwner{Kind: m.Kind, ID: m.ID}
	return nil
}

// Update replaces the stored record. Read tracking is owned by MarkRead and
// is not overwritten.
func (s *InMemoryStore) Update(_ context.Context, m *models.Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.mail[m.Kind][m.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if m.MailNumber != current.MailNumber {
		if _, taken := s.numbers[m.MailNumber]; taken {
			return sentinel.Conflict(models.ConstraintMailNumber)
		}
		delete(s.numbers, current.MailNumber)
		s.numbers[m.MailNumber] = models.NumberOwner{Kind: m.Kind, ID: m.ID}
	}
	stored := m.Clone()
	stored.ReadBy = current.ReadBy
	s.mail[m.Kind][m.ID] = stored
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, kind models.Kind, id domain.MailID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mail[kind][id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.numbers, m.MailNumber)
	delete(s.mail[kind], id)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, kind models.Kind, id domain.MailID) (*models.Mail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mail[kind][id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.Clone(), nil
}

// FindNumber reports which record holds number, in either kind.
func (s *InMemoryStore) FindNumber(_ context.Context, number string) (models.NumberOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.numbers[number]
	if !ok {
		return models.NumberOwner{}, sentinel.ErrNotFound
	}
	return owner, nil
}

// List returns one page ordered by mail date, newest first, with the total
// match count.
func (s *InMemoryStore) List(_ context.Context, kind models.Kind, filter query.Filter, page query.Page) ([]*models.Mail, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Mail
	for _, m := range s.mail[kind] {
		if !filter.InScope(m.Division) || !filter.InRange(m.MailDate) {
			continue
		}
		if !pstrings.AnyContainsFold(filter.Search, m.MailNumber, m.Subject, m.AddressedTo, m.Sender, m.Notes) {
			continue
		}
		matched = append(matched, m.Clone())
	}
	slices.SortFunc(matched, func(a, b *models.Mail) int {
		if c := b.MailDate.Compare(a.MailDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	result := query.Slice(matched, page)
	return result.Items, result.Pagination.Total, nil
}

// ListUnread returns records in division (all when none) that user has not
// read, newest insertion first.
func (s *InMemoryStore) ListUnread(_ context.Context, kind models.Kind, user domain.UserID, division domain.Division) ([]*models.Mail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := query.Filter{Division: division}
	var out []*models.Mail
	for _, m := range s.mail[kind] {
		if scope.InScope(m.Division) && !m.IsReadBy(user) {
			out = append(out, m.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Mail) int {
		if c := b.InsertedAt.Compare(a.InsertedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// MarkRead adds user to the record's readers. It reports false when user had
// already read it.
func (s *InMemoryStore) MarkRead(_ context.Context, kind models.Kind, id domain.MailID, user domain.UserID, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mail[kind][id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if m.IsReadBy(user) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, user)
	slices.Sort(m.ReadBy)
	return true, nil
}

func (s *InMemoryStore) Count(_ context.Context, kind models.Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mail[kind]), nil
}

// ReleaseUser clears authorship and read tracking of a user about to be
// deleted. Records are kept.
func (s *InMemoryStore) ReleaseUser(_ context.Context, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byID := range s.mail {
		for _, m := range byID {
			if m.InsertedBy != nil && *m.InsertedBy == user {
				m.InsertedBy = nil
			}
			m.ReadBy = slices.DeleteFunc(m.ReadBy, func(id domain.UserID) bool { return id == user })
		}
	}
	return nil
}
