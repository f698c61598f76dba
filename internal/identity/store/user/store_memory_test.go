package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"correspondence/internal/identity/models"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	"correspondence/pkg/platform/sentinel"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	store *InMemoryUserStore
	ctx   context.Context
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func newUser(username, fullName string, role domain.Role, division domain.Division) *models.User {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.User{
		Username:     username,
		PasswordHash: "digest",
		FullName:     fullName,
		Role:         role,
		Division:     division,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *InMemoryUserStoreSuite) TestCreateAssignsSequentialIDs() {
	a := newUser("a", "Alpha One", domain.RoleStaff, domain.DivisionDataAndInformation)
	b := newUser("b", "Beta Two", domain.RoleStaff, domain.DivisionDataAndInformation)
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))
	s.Equal(domain.UserID(1), a.ID)
	s.Equal(domain.UserID(2), b.ID)
}

func (s *InMemoryUserStoreSuite) TestConstraints() {
	s.Require().NoError(s.store.Create(s.ctx, newUser("sec", "Juan Derry", domain.RoleSecretary, domain.DivisionNone)))
	s.Require().NoError(s.store.Create(s.ctx, newUser("head", "Head Logistics", domain.RoleSubDivisionHead, domain.DivisionLogisticsAndFinance)))

	cases := []struct {
		name       string
		user       *models.User
		constraint string
	}{
		{"username", newUser("sec", "Someone Else", domain.RoleStaff, domain.DivisionTechnicalAndLegal), models.ConstraintUsername},
		{"full name ignores case", newUser("x", "JUAN DERRY", domain.RoleStaff, domain.DivisionTechnicalAndLegal), models.ConstraintFullName},
		{"second secretary", newUser("y", "Other Secretary", domain.RoleSecretary, domain.DivisionNone), models.ConstraintSingleSecretary},
		{"second head in division", newUser("z", "Other Head", domain.RoleSubDivisionHead, domain.DivisionLogisticsAndFinance), models.ConstraintDivisionHead},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			err := s.store.Create(s.ctx, tc.user)
			s.Require().ErrorIs(err, sentinel.ErrConflict)
			s.Equal(tc.constraint, sentinel.ConstraintOf(err))
		})
	}

	s.Run("head of another division is fine", func() {
		s.NoError(s.store.Create(s.ctx, newUser("h2", "Head Data", domain.RoleSubDivisionHead, domain.DivisionDataAndInformation)))
	})
}

func (s *InMemoryUserStoreSuite) TestUpdateExcludesSelf() {
	u := newUser("sec", "Juan Derry", domain.RoleSecretary, domain.DivisionNone)
	s.Require().NoError(s.store.Create(s.ctx, u))

	u.Username = "juanderry1"
	s.Require().NoError(s.store.Update(s.ctx, u))

	found, err := s.store.FindByUsername(s.ctx, "juanderry1")
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)

	s.ErrorIs(s.store.Update(s.ctx, &models.User{ID: 99}), sentinel.ErrNotFound)
}

func (s *InMemoryUserStoreSuite) TestReturnedUsersAreCopies() {
	u := newUser("a", "Alpha One", domain.RoleStaff, domain.DivisionDataAndInformation)
	s.Require().NoError(s.store.Create(s.ctx, u))

	found, err := s.store.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	found.FullName = "Mutated"

	again, err := s.store.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("Alpha One", again.FullName)
}

func (s *InMemoryUserStoreSuite) TestFindByRole() {
	s.Require().NoError(s.store.Create(s.ctx, newUser("h1", "Head One", domain.RoleSubDivisionHead, domain.DivisionDataAndInformation)))
	s.Require().NoError(s.store.Create(s.ctx, newUser("h2", "Head Two", domain.RoleSubDivisionHead, domain.DivisionTechnicalAndLegal)))

	all, err := s.store.FindByRole(s.ctx, domain.RoleSubDivisionHead, domain.DivisionNone)
	s.Require().NoError(err)
	s.Len(all, 2)

	one, err := s.store.FindByRole(s.ctx, domain.RoleSubDivisionHead, domain.DivisionTechnicalAndLegal)
	s.Require().NoError(err)
	s.Require().Len(one, 1)
	s.Equal("h2", one[0].Username)
}

func (s *InMemoryUserStoreSuite) TestListOrdersByUsernameAndSearches() {
	for _, u := range []*models.User{
		newUser("charlie3", "Charlie Brown", domain.RoleStaff, domain.DivisionDataAndInformation),
		newUser("alice1", "Alice Smith", domain.RoleStaff, domain.DivisionDataAndInformation),
		newUser("bob2", "Bob Brown", domain.RoleStaff, domain.DivisionDataAndInformation),
	} {
		s.Require().NoError(s.store.Create(s.ctx, u))
	}

	page, err := query.NewPage(1, 2)
	s.Require().NoError(err)
	users, total, err := s.store.List(s.ctx, "", page)
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(users, 2)
	s.Equal("alice1", users[0].Username)
	s.Equal("bob2", users[1].Username)

	users, total, err = s.store.List(s.ctx, "BROWN", page)
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal("bob2", users[0].Username)

	beyond, err := query.NewPage(5, 2)
	s.Require().NoError(err)
	users, total, err = s.store.List(s.ctx, "", beyond)
	s.Require().NoError(err)
	s.Empty(users)
	s.Equal(3, total)
}

func (s *InMemoryUserStoreSuite) TestDelete() {
	u := newUser("a", "Alpha One", domain.RoleStaff, domain.DivisionDataAndInformation)
	s.Require().NoError(s.store.Create(s.ctx, u))
	s.Require().NoError(s.store.Delete(s.ctx, u.ID))

	_, err := s.store.FindByID(s.ctx, u.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, u.ID), sentinel.ErrNotFound)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}
