// Package store persists letter templates in memory or in Postgres. A name
// already taken, ignoring case, is reported as
// sentinel.Conflict(models.ConstraintName).
package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"correspondence/internal/query"
	"correspondence/internal/template/models"
	"correspondence/pkg/domain"
	"correspondence/pkg/platform/sentinel"
	pstrings "correspondence/pkg/platform/strings"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	nextID    domain.TemplateID
	templates map[domain.TemplateID]*models.Template
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{templates: make(map[domain.TemplateID]*models.Template)}
}

func (s *InMemoryStore) Create(_ context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if strings.EqualFold(existing.Name, t.Name) {
			return sentinel.Conflict(models.ConstraintName)
		}
	}
	s.nextID++
	t.ID = s.nextID
	s.templates[t.ID] = t.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.templates, id)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.TemplateID) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

// List returns one page ordered by name, matching search against name and
// description.
func (s *InMemoryStore) List(_ context.Context, search string, page query.Page) ([]*models.Template, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Template
	for _, t := range s.templates {
		if pstrings.AnyContainsFold(search, t.Name, t.Description) {
			matched = append(matched, t.Clone())
		}
	}
	slices.SortFunc(matched, func(a, b *models.Template) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	result := query.Slice(matched, page)
	return result.Items, result.Pagination.Total, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates), nil
}

// ReleaseUser clears authorship of a user about to be deleted.
func (s *InMemoryStore) ReleaseUser(_ context.Context, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.InsertedBy != nil && *t.InsertedBy == user {
			t.InsertedBy = nil
		}
	}
	return nil
}
