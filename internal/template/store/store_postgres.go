package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"correspondence/internal/platform/postgres"
	"correspondence/internal/query"
	"correspondence/internal/template/models"
	"correspondence/pkg/domain"
	"correspondence/pkg/platform/sentinel"
	txcontext "correspondence/pkg/platform/tx"
)

const templateColumns = `id, name, COALESCE(description, ''), attachment_path, inserted_by, inserted_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Template) error {
	var insertedBy sql.NullInt64
	if t.InsertedBy != nil {
		insertedBy = sql.NullInt64{Int64: int64(*t.InsertedBy), Valid: true}
	}
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO templates (name, description, attachment_path, inserted_by, inserted_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING id`,
		t.Name, t.Description, t.AttachmentPath, insertedBy, t.InsertedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert template: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.TemplateID) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.TemplateID) (*models.Template, error) {
	t, err := scanTemplate(txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, search string, page query.Page) ([]*models.Template, int, error) {
	var w query.Where
	w.SearchAny(search, "name", "description")

	var total int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	limit := w.Arg(page.Limit())
	offset := w.Arg(page.Offset())
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates`+w.SQL()+` ORDER BY lower(name) ASC, id ASC LIMIT `+limit+` OFFSET `+offset,
		w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return n, nil
}

// ReleaseUser clears authorship of a user about to be deleted.
func (s *PostgresStore) ReleaseUser(ctx context.Context, user domain.UserID) error {
	if _, err := txcontext.Execer(ctx, s.db).ExecContext(ctx,
		`UPDATE templates SET inserted_by = NULL WHERE inserted_by = $1`, user); err != nil {
		return fmt.Errorf("release template author: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		t          models.Template
		insertedBy sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.AttachmentPath, &insertedBy, &t.InsertedAt); err != nil {
		return nil, err
	}
	if insertedBy.Valid {
		id := domain.UserID(insertedBy.Int64)
		t.InsertedBy = &id
	}
	return &t, nil
}
