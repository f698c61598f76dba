package models

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
)

// ReasonNameConflict is surfaced when a template name is already taken,
// compared case-insensitively.
const ReasonNameConflict = "template_name_conflict"

// ReasonAttachmentRequired is surfaced when a template is created without a
// file.
const ReasonAttachmentRequired = "attachment_required"

// ConstraintName is the unique index on lower(name).
const ConstraintName = "templates_name_key"

const (
	maxNameLength        = 200
	maxDescriptionLength = 1000
)

// Template is a reusable letter layout kept by the secretary.
type Template struct {
	ID             domain.TemplateID
	Name           string
	Description    string
	AttachmentPath string
	InsertedBy     *domain.UserID
	InsertedAt     time.Time
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	c := *t
	if t.InsertedBy != nil {
		id := *t.InsertedBy
		c.InsertedBy = &id
	}
	return &c
}

// Fields are the caller-supplied attributes of a new template.
type Fields struct {
	Name        string
	Description string
}

// FieldsFromValues reads a multipart create form.
func FieldsFromValues(values url.Values) Fields {
	return Fields{
		Name:        strings.Join(strings.Fields(values.Get("name")), " "),
		Description: strings.TrimSpace(values.Get("description")),
	}
}

// NewTemplate validates f and returns an unsaved template authored by author.
func NewTemplate(f Fields, author domain.UserID, now time.Time) (*Template, error) {
	t := &Template{
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		InsertedAt:  now,
	}
	if t.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name is required").WithField("name")
	}
	if utf8.RuneCountInString(t.Name) > maxNameLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "name must be %d characters or less", maxNameLength).WithField("name")
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "description must be %d characters or less", maxDescriptionLength).WithField("description")
	}
	if !author.IsZero() {
		t.InsertedBy = &author
	}
	return t, nil
}
