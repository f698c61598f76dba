package models

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
)

// Kind distinguishes the two mail registers. Both share one contract; only
// the handled date (received vs sent) and the sender field differ.
type Kind string

const (
	KindIncoming Kind = "incoming"
	KindOutgoing Kind = "outgoing"
)

// Kinds lists both registers in feed order.
var Kinds = []Kind{KindIncoming, KindOutgoing}

// ParseKind constructs a Kind from a path segment.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeNotFound, "unknown mail kind")
	}
	return k, nil
}

func (k Kind) IsValid() bool {
	return k == KindIncoming || k == KindOutgoing
}

// HandledDateField is the external name of the second date column.
func (k Kind) HandledDateField() string {
	if k == KindIncoming {
		return "received_date"
	}
	return "sent_date"
}

// HasSender reports whether records of k carry a sender.
func (k Kind) HasSender() bool {
	return k == KindIncoming
}

func (k Kind) String() string {
	return string(k)
}

// Reasons surfaced to API clients.
const (
	ReasonDuplicateMailNumber = "duplicate_mail_number"
	ReasonFutureDate          = "future_date_not_allowed"
	ReasonAttachmentRequired  = "attachment_required"
	ReasonDivisionScope       = "division_out_of_scope"
)

// ConstraintMailNumber is the shared numbering table's primary key. Stores
// report duplicate numbers with this name regardless of kind.
const ConstraintMailNumber = "mail_numbers_pkey"

const (
	maxMailNumberLength = 100
	maxTextLength       = 500
	maxNotesLength      = 2000
)

// Mail is one register entry. HandledDate is the received date for incoming
// mail and the sent date for outgoing mail.
type Mail struct {
	ID             domain.MailID
	Kind           Kind
	MailNumber     string
	MailDate       time.Time
	HandledDate    time.Time
	Sender         string
	AddressedTo    string
	Subject        string
	Notes          string
	Division       domain.Division
	AttachmentPath string
	InsertedBy     *domain.UserID
	InsertedAt     time.Time
	ReadBy         []domain.UserID
}

// IsReadBy reports whether user has acknowledged m.
func (m *Mail) IsReadBy(user domain.UserID) bool {
	return slices.Contains(m.ReadBy, user)
}

// Clone returns a deep copy.
func (m *Mail) Clone() *Mail {
	c := *m
	c.ReadBy = slices.Clone(m.ReadBy)
	if m.InsertedBy != nil {
		id := *m.InsertedBy
		c.InsertedBy = &id
	}
	return &c
}

// NumberOwner identifies the record holding a mail number.
type NumberOwner struct {
	Kind Kind
	ID   domain.MailID
}

// Actor is the caller of a mail operation. Scope is the only division whose
// records the actor may see or write; DivisionNone means every division.
type Actor struct {
	ID    domain.UserID
	Scope domain.Division
}

// ActorFrom derives the actor from an authenticated caller.
func ActorFrom(c requestcontext.Caller) Actor {
	return Actor{ID: c.ID, Scope: c.ScopeDivision()}
}

// Sees reports whether records of division d are visible to a.
func (a Actor) Sees(d domain.Division) bool {
	return a.Scope.IsNone() || a.Scope == d
}

// Fields are the caller-supplied attributes of a new record.
type Fields struct {
	MailNumber  string
	MailDate    time.Time
	HandledDate time.Time
	Sender      string
	AddressedTo string
	Subject     string
	Notes       string
	Division    domain.Division
}

// NewMail validates f for kind and returns an unsaved record authored by
// author at now.
func NewMail(kind Kind, f Fields, author domain.UserID, now time.Time) (*Mail, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid mail kind")
	}
	m := &Mail{
		Kind:        kind,
		MailNumber:  strings.TrimSpace(f.MailNumber),
		MailDate:    f.MailDate,
		HandledDate: f.HandledDate,
		Sender:      strings.TrimSpace(f.Sender),
		AddressedTo: strings.TrimSpace(f.AddressedTo),
		Subject:     strings.TrimSpace(f.Subject),
		Notes:       strings.TrimSpace(f.Notes),
		Division:    f.Division,
		InsertedAt:  now,
	}
	if !kind.HasSender() {
		m.Sender = ""
	}
	if !author.IsZero() {
		m.InsertedBy = &author
	}
	if err := m.validate(now); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mail) validate(now time.Time) error {
	if err := requireText("mail_number", m.MailNumber, maxMailNumberLength); err != nil {
		return err
	}
	if m.Kind.HasSender() {
		if err := requireText("sender", m.Sender, maxTextLength); err != nil {
			return err
		}
	}
	if err := requireText("addressed_to", m.AddressedTo, maxTextLength); err != nil {
		return err
	}
	if err := requireText("subject", m.Subject, maxTextLength); err != nil {
		return err
	}
	if utf8.RuneCountInString(m.Notes) > maxNotesLength {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "notes must be %d characters or less", maxNotesLength).WithField("notes")
	}
	if !m.Division.IsNone() && !m.Division.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid division").WithField("division")
	}
	if m.MailDate.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "mail_date is required").WithField("mail_date")
	}
	if m.HandledDate.IsZero() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "%s is required", m.Kind.HandledDateField()).WithField(m.Kind.HandledDateField())
	}
	if err := NotInFuture("mail_date", m.MailDate, now); err != nil {
		return err
	}
	return NotInFuture(m.Kind.HandledDateField(), m.HandledDate, now)
}

// NotInFuture rejects calendar dates after the day containing now.
func NotInFuture(field string, date, now time.Time) error {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if day.After(today) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "%s cannot be in the future", field).
			WithReason(ReasonFutureDate).WithField(field)
	}
	return nil
}

func requireText(field, v string, limit int) error {
	if v == "" {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "%s is required", field).WithField(field)
	}
	if utf8.RuneCountInString(v) > limit {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "%s must be %d characters or less", field, limit).WithField(field)
	}
	return nil
}

// Patch replaces any subset of a record's fields. Nil leaves a field as is.
type Patch struct {
	MailNumber  *string
	MailDate    *time.Time
	HandledDate *time.Time
	Sender      *string
	AddressedTo *string
	Subject     *string
	Notes       *string
	Division    *domain.Division
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.MailNumber == nil && p.MailDate == nil && p.HandledDate == nil && p.Sender == nil &&
		p.AddressedTo == nil && p.Subject == nil && p.Notes == nil && p.Division == nil
}

// ApplyTo mutates m and re-validates it. Dates are checked against now only
// when the patch carries them, so older records stay editable.
func (p Patch) ApplyTo(m *Mail, now time.Time) error {
	if p.Sender != nil && !m.Kind.HasSender() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "%s mail has no sender", m.Kind).WithField("sender")
	}
	setText(&m.MailNumber, p.MailNumber)
	setText(&m.Sender, p.Sender)
	setText(&m.AddressedTo, p.AddressedTo)
	setText(&m.Subject, p.Subject)
	setText(&m.Notes, p.Notes)
	if p.Division != nil {
		m.Division = *p.Division
	}
	if p.MailDate != nil {
		m.MailDate = *p.MailDate
	}
	if p.HandledDate != nil {
		m.HandledDate = *p.HandledDate
	}

	// re-run presence and length checks; dates are checked below
	check := *m
	check.MailDate, check.HandledDate = now, now
	if err := check.validate(now); err != nil {
		return err
	}
	if p.MailDate != nil {
		if err := NotInFuture("mail_date", m.MailDate, now); err != nil {
			return err
		}
	}
	if p.HandledDate != nil {
		if err := NotInFuture(m.Kind.HandledDateField(), m.HandledDate, now); err != nil {
			return err
		}
	}
	return nil
}

func setText(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
