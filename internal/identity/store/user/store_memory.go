// Package user stores user accounts in memory or in Postgres. Both enforce
// the same unique constraints and report them with the same names.
package user

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"correspondence/internal/identity/models"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	"correspondence/pkg/platform/sentinel"
	pstrings "correspondence/pkg/platform/strings"
)

// InMemoryUserStore is a mutex-guarded map keyed by id.
type InMemoryUserStore struct {
	mu     sync.RWMutex
	nextID domain.UserID
	users  map[domain.UserID]*models.User
}

func NewInMemory() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[domain.UserID]*models.User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkConstraints(user, 0); err != nil {
		return err
	}
	s.nextID++
	user.ID = s.nextID
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *InMemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if err := s.checkConstraints(user, user.ID); err != nil {
		return err
	}
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

// checkConstraints mirrors the unique indexes of the users table.
func (s *InMemoryUserStore) checkConstraints(user *models.User, self domain.UserID) error {
	for id, other := range s.users {
		if id == self {
			continue
		}
		switch {
		case other.Username == user.Username:
			return sentinel.Conflict(models.ConstraintUsername)
		case strings.EqualFold(other.FullName, user.FullName):
			return sentinel.Conflict(models.ConstraintFullName)
		case user.Role == domain.RoleSecretary && other.Role == domain.RoleSecretary:
			return sentinel.Conflict(models.ConstraintSingleSecretary)
		case user.Role == domain.RoleSubDivisionHead && other.Role == domain.RoleSubDivisionHead && other.Division == user.Division:
			return sentinel.Conflict(models.ConstraintDivisionHead)
		}
	}
	return nil
}

func (s *InMemoryUserStore) Delete(_ context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id domain.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *u
	return &found, nil
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return s.findFirst(func(u *models.User) bool { return u.Username == username })
}

// FindByFullName matches case-insensitively.
func (s *InMemoryUserStore) FindByFullName(_ context.Context, fullName string) (*models.User, error) {
	return s.findFirst(func(u *models.User) bool { return strings.EqualFold(u.FullName, fullName) })
}

func (s *InMemoryUserStore) findFirst(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			found := *u
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindByRole returns holders of role, narrowed to division unless it is none.
func (s *InMemoryUserStore) FindByRole(_ context.Context, role domain.Role, division domain.Division) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.sorted() {
		if u.Role == role && (division.IsNone() || u.Division == division) {
			found := *u
			out = append(out, &found)
		}
	}
	return out, nil
}

// List returns one page ordered by username with the total match count.
func (s *InMemoryUserStore) List(_ context.Context, search string, page query.Page) ([]*models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.User
	for _, u := range s.sorted() {
		if pstrings.AnyContainsFold(search, u.Username, u.FullName) {
			found := *u
			matched = append(matched, &found)
		}
	}
	result := query.Slice(matched, page)
	return result.Items, result.Pagination.Total, nil
}

func (s *InMemoryUserStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *InMemoryUserStore) sorted() []*models.User {
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *models.User) int {
		if c := strings.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
