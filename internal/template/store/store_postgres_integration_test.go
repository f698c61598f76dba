//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"correspondence/internal/query"
	"correspondence/internal/template/models"
	"correspondence/internal/template/store"
	"correspondence/pkg/platform/sentinel"
	"correspondence/pkg/testutil/containers"
)

type PostgresTemplateStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresTemplateStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresTemplateStoreSuite))
}

func (s *PostgresTemplateStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresTemplateStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "templates"))
}

func template(name, description string) *models.Template {
	return &models.Template{
		Name:           name,
		Description:    description,
		AttachmentPath: "templates/" + name + ".docx",
		InsertedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresTemplateStoreSuite) TestNameUniqueIgnoringCase() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, template("Nota Dinas", "")))

	err := s.store.Create(ctx, template("NOTA DINAS", ""))
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Equal(models.ConstraintName, sentinel.ConstraintOf(err))
}

func (s *PostgresTemplateStoreSuite) TestListSearchAndDelete() {
	ctx := context.Background()
	first := template("Undangan Rapat", "rapat koordinasi")
	s.Require().NoError(s.store.Create(ctx, first))
	s.Require().NoError(s.store.Create(ctx, template("Berita Acara", "serah terima barang")))

	page, err := query.NewPage(1, 10)
	s.Require().NoError(err)
	items, total, err := s.store.List(ctx, "SERAH", page)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("Berita Acara", items[0].Name)

	got, err := s.store.FindByID(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal("rapat koordinasi", got.Description)
	s.Nil(got.InsertedBy)

	s.Require().NoError(s.store.Delete(ctx, first.ID))
	s.ErrorIs(s.store.Delete(ctx, first.ID), sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, first.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
