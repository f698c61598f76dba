package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"correspondence/internal/mail/models"
	"correspondence/internal/platform/postgres"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	"correspondence/pkg/platform/sentinel"
	txcontext "correspondence/pkg/platform/tx"
)

// table maps a kind onto its tables. Incoming mail has a sender column,
// outgoing mail does not.
type table struct {
	kind        models.Kind
	name        string
	reads       string
	handledDate string
	searchable  []string
}

var tables = map[models.Kind]table{
	models.KindIncoming: {
		kind:        models.KindIncoming,
		name:        "incoming_mail",
		reads:       "incoming_mail_reads",
		handledDate: "received_date",
		searchable:  []string{"m.mail_number", "m.subject", "m.addressed_to", "m.sender", "m.notes"},
	},
	models.KindOutgoing: {
		kind:        models.KindOutgoing,
		name:        "outgoing_mail",
		reads:       "outgoing_mail_reads",
		handledDate: "sent_date",
		searchable:  []string{"m.mail_number", "m.subject", "m.addressed_to", "m.notes"},
	},
}

func tableFor(kind models.Kind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, fmt.Errorf("unknown mail kind %q", kind)
	}
	return t, nil
}

func (t table) sender() string {
	if t.kind.HasSender() {
		return "m.sender"
	}
	return "''"
}

// columns selects one record with its readers aggregated in id order.
func (t table) columns() string {
	return `m.id, m.mail_number, m.mail_date, m.` + t.handledDate + `, ` + t.sender() + `,
		m.addressed_to, m.subject, COALESCE(m.notes, ''), m.division, m.attachment_path,
		m.inserted_by, m.inserted_at,
		ARRAY(SELECT r.user_id FROM ` + t.reads + ` r WHERE r.mail_id = m.id ORDER BY r.user_id)`
}

// PostgresStore persists mail in incoming_mail/outgoing_mail with numbers
// reserved in mail_numbers inside the same statement.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, m *models.Mail) error {
	t, err := tableFor(m.Kind)
	if err != nil {
		return err
	}

	cols := `mail_number, mail_date, ` + t.handledDate + `, addressed_to, subject, notes, division, attachment_path, inserted_by, inserted_at`
	vals := `$1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10`
	args := []any{m.MailNumber, m.MailDate, m.HandledDate, m.AddressedTo, m.Subject, m.Notes, m.Division, m.AttachmentPath, nullableUser(m.InsertedBy), m.InsertedAt}
	if m.Kind.HasSender() {
		cols += `, sender`
		vals += `, $11`
		args = append(args, m.Sender)
	}

	q := `
		WITH inserted AS (
			INSERT INTO ` + t.name + ` (` + cols + `) VALUES (` + vals + `) RETURNING id
		)
		INSERT INTO mail_numbers (number, kind, mail_id)
		SELECT $1, '` + string(t.kind) + `', id FROM inserted
		RETURNING mail_id`
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, q, args...).Scan(&m.ID); err != nil {
		return fmt.Errorf("insert %s mail: %w", m.Kind, postgres.MapError(err))
	}
	m.ReadBy = nil
	return nil
}

// Update rewrites the record's fields and moves its number reservation.
// Readers are untouched.
func (s *PostgresStore) Update(ctx context.Context, m *models.Mail) error {
	t, err := tableFor(m.Kind)
	if err != nil {
		return err
	}

	set := `mail_number = $2, mail_date = $3, ` + t.handledDate + ` = $4, addressed_to = $5, subject = $6,
		notes = NULLIF($7, ''), division = $8, attachment_path = $9`
	args := []any{m.ID, m.MailNumber, m.MailDate, m.HandledDate, m.AddressedTo, m.Subject, m.Notes, m.Division, m.AttachmentPath}
	if m.Kind.HasSender() {
		set += `, sender = $10`
		args = append(args, m.Sender)
	}

	q := `
		WITH renumbered AS (
			UPDATE mail_numbers SET number = $2
			WHERE kind = '` + string(t.kind) + `' AND mail_id = $1 AND number <> $2
		)
		UPDATE ` + t.name + ` SET ` + set + ` WHERE id = $1`
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s mail: %w", m.Kind, postgres.MapError(err))
	}
	return expectOneRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, kind models.Kind, id domain.MailID) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	q := `
		WITH released AS (
			DELETE FROM mail_numbers WHERE kind = '` + string(t.kind) + `' AND mail_id = $1
		)
		DELETE FROM ` + t.name + ` WHERE id = $1`
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete %s mail: %w", kind, err)
	}
	return expectOneRow(res)
}

func (s *PostgresStore) FindByID(ctx context.Context, kind models.Kind, id domain.MailID) (*models.Mail, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT `+t.columns()+` FROM `+t.name+` m WHERE m.id = $1`, id)
	m, err := scanMail(row, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find %s mail: %w", kind, err)
	}
	return m, nil
}

func (s *PostgresStore) FindNumber(ctx context.Context, number string) (models.NumberOwner, error) {
	var owner models.NumberOwner
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT kind, mail_id FROM mail_numbers WHERE number = $1`, number).Scan(&owner.Kind, &owner.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NumberOwner{}, sentinel.ErrNotFound
		}
		return models.NumberOwner{}, fmt.Errorf("find mail number: %w", err)
	}
	return owner, nil
}

func (s *PostgresStore) List(ctx context.Context, kind models.Kind, filter query.Filter, page query.Page) ([]*models.Mail, int, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, 0, err
	}

	var w query.Where
	if !filter.Division.IsNone() {
		w.Add("m.division = " + w.Arg(filter.Division))
	}
	if filter.Start != nil {
		w.Add("m.mail_date >= " + w.Arg(filter.Start.Format(models.DateLayout)) + "::date")
	}
	if filter.End != nil {
		w.Add("m.mail_date <= " + w.Arg(filter.End.Format(models.DateLayout)) + "::date")
	}
	w.SearchAny(filter.Search, t.searchable...)

	var total int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+t.name+` m`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s mail: %w", kind, err)
	}

	limit := w.Arg(page.Limit())
	offset := w.Arg(page.Offset())
	items, err := s.findMany(ctx, kind,
		`SELECT `+t.columns()+` FROM `+t.name+` m`+w.SQL()+
			` ORDER BY m.mail_date DESC, m.id DESC LIMIT `+limit+` OFFSET `+offset,
		w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) ListUnread(ctx context.Context, kind models.Kind, user domain.UserID, division domain.Division) ([]*models.Mail, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var w query.Where
	w.Add(`NOT EXISTS (SELECT 1 FROM ` + t.reads + ` r WHERE r.mail_id = m.id AND r.user_id = ` + w.Arg(user) + `)`)
	if !division.IsNone() {
		w.Add("m.division = " + w.Arg(division))
	}
	return s.findMany(ctx, kind,
		`SELECT `+t.columns()+` FROM `+t.name+` m`+w.SQL()+` ORDER BY m.inserted_at DESC, m.id DESC`,
		w.Args()...)
}

// MarkRead inserts the (mail, user) pair. A repeated call writes nothing and
// reports false.
func (s *PostgresStore) MarkRead(ctx context.Context, kind models.Kind, id domain.MailID, user domain.UserID, at time.Time) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx,
		`INSERT INTO `+t.reads+` (mail_id, user_id, read_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		id, user, at)
	if err != nil {
		return false, fmt.Errorf("mark %s mail read: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Count(ctx context.Context, kind models.Kind) (int, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s mail: %w", kind, err)
	}
	return n, nil
}

// ReleaseUser clears authorship of user's mail. Read rows go with the user
// through ON DELETE CASCADE.
func (s *PostgresStore) ReleaseUser(ctx context.Context, user domain.UserID) error {
	for _, kind := range models.Kinds {
		t := tables[kind]
		if _, err := txcontext.Execer(ctx, s.db).ExecContext(ctx,
			`UPDATE `+t.name+` SET inserted_by = NULL WHERE inserted_by = $1`, user); err != nil {
			return fmt.Errorf("release %s mail authorship: %w", kind, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMail(row rowScanner, kind models.Kind) (*models.Mail, error) {
	m := models.Mail{Kind: kind}
	var insertedBy sql.NullInt64
	var readers []int64
	if err := row.Scan(&m.ID, &m.MailNumber, &m.MailDate, &m.HandledDate, &m.Sender,
		&m.AddressedTo, &m.Subject, &m.Notes, &m.Division, &m.AttachmentPath,
		&insertedBy, &m.InsertedAt, pq.Array(&readers)); err != nil {
		return nil, err
	}
	if insertedBy.Valid {
		id := domain.UserID(insertedBy.Int64)
		m.InsertedBy = &id
	}
	for _, r := range readers {
		m.ReadBy = append(m.ReadBy, domain.UserID(r))
	}
	return &m, nil
}

func (s *PostgresStore) findMany(ctx context.Context, kind models.Kind, q string, args ...any) ([]*models.Mail, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s mail: %w", kind, err)
	}
	defer rows.Close()

	var out []*models.Mail
	for rows.Next() {
		m, err := scanMail(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scan %s mail: %w", kind, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableUser(id *domain.UserID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
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
