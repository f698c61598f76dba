package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"correspondence/internal/identity/models"
	"correspondence/internal/platform/postgres"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	"correspondence/pkg/platform/sentinel"
	txcontext "correspondence/pkg/platform/tx"
)

const userColumns = `id, username, password_hash, full_name, role, division, created_at, updated_at`

// PostgresStore persists users in the users table. Queries join the
// transaction carried in the context when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role, division, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, user.Username, user.PasswordHash, user.FullName, user.Role, user.Division, user.CreatedAt, user.UpdatedAt).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("insert user: %w", postgres.MapError(err))
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		UPDATE users
		SET username = $2, password_hash = $3, full_name = $4, role = $5, division = $6, updated_at = $7
		WHERE id = $1
	`, user.ID, user.Username, user.PasswordHash, user.FullName, user.Role, user.Division, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", postgres.MapError(err))
	}
	return expectOneRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.UserID) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOneRow(res)
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.UserID) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *PostgresStore) FindByFullName(ctx context.Context, fullName string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(full_name) = lower($1)`, fullName)
}

// FindByRole locks the matching rows so concurrent role checks in other
// transactions wait for this one.
func (s *PostgresStore) FindByRole(ctx context.Context, role domain.Role, division domain.Division) ([]*models.User, error) {
	var w query.Where
	w.Add("role = " + w.Arg(role))
	if !division.IsNone() {
		w.Add("division = " + w.Arg(division))
	}
	q := `SELECT ` + userColumns + ` FROM users` + w.SQL() + ` ORDER BY id`
	if _, inTx := txcontext.From(ctx); inTx {
		q += ` FOR UPDATE`
	}
	return s.findMany(ctx, q, w.Args()...)
}

func (s *PostgresStore) List(ctx context.Context, search string, page query.Page) ([]*models.User, int, error) {
	var w query.Where
	w.SearchAny(search, "username", "full_name")

	var total int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	limit := w.Arg(page.Limit())
	offset := w.Arg(page.Offset())
	users, err := s.findMany(ctx,
		`SELECT `+userColumns+` FROM users`+w.SQL()+` ORDER BY username ASC, id ASC LIMIT `+limit+` OFFSET `+offset,
		w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.Division, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) findOne(ctx context.Context, q string, args ...any) (*models.User, error) {
	u, err := scanUser(txcontext.Execer(ctx, s.db).QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) findMany(ctx context.Context, q string, args ...any) ([]*models.User, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
