package models

import (
	"net/url"
	"strings"
	"time"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
)

const DateLayout = "2006-01-02"

// MailForm is the text part of a multipart create or update request. Absent
// fields are nil so an update can tell "not sent" from "cleared".
type MailForm struct {
	Kind        Kind
	MailNumber  *string
	MailDate    *string
	HandledDate *string
	Sender      *string
	AddressedTo *string
	Subject     *string
	Notes       *string
	Division    *string
}

// FormFromValues picks kind's fields out of a parsed multipart form.
func FormFromValues(kind Kind, values url.Values) *MailForm {
	get := func(key string) *string {
		v, ok := values[key]
		if !ok || len(v) == 0 {
			return nil
		}
		s := v[0]
		return &s
	}
	f := &MailForm{
		Kind:        kind,
		MailNumber:  get("mail_number"),
		MailDate:    get("mail_date"),
		HandledDate: get(kind.HandledDateField()),
		AddressedTo: get("addressed_to"),
		Subject:     get("subject"),
		Notes:       get("notes"),
		Division:    get("division"),
	}
	if kind.HasSender() {
		f.Sender = get("sender")
	}
	return f
}

func (f *MailForm) Normalize() {
	for _, p := range []*string{f.MailNumber, f.MailDate, f.HandledDate, f.Sender, f.AddressedTo, f.Subject, f.Notes} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if f.Division != nil {
		*f.Division = strings.ToLower(strings.TrimSpace(*f.Division))
	}
}

type textField struct {
	name string
	v    *string
	dst  *string
}

// Fields validates a create form. Every field but notes and division is
// required.
func (f *MailForm) Fields() (Fields, error) {
	var out Fields
	required := []textField{
		{"mail_number", f.MailNumber, &out.MailNumber},
		{"addressed_to", f.AddressedTo, &out.AddressedTo},
		{"subject", f.Subject, &out.Subject},
	}
	if f.Kind.HasSender() {
		required = append(required, textField{"sender", f.Sender, &out.Sender})
	}
	for _, r := range required {
		if r.v == nil || *r.v == "" {
			return Fields{}, dErrors.Newf(dErrors.CodeValidation, "%s is required", r.name).WithField(r.name)
		}
		*r.dst = *r.v
	}

	var err error
	if out.MailDate, err = requireDate("mail_date", f.MailDate); err != nil {
		return Fields{}, err
	}
	if out.HandledDate, err = requireDate(f.Kind.HandledDateField(), f.HandledDate); err != nil {
		return Fields{}, err
	}
	if f.Notes != nil {
		out.Notes = *f.Notes
	}
	if f.Division != nil {
		if out.Division, err = domain.ParseDivision(*f.Division); err != nil {
			return Fields{}, err
		}
	}
	return out, nil
}

// Patch validates an update form. Sent text fields other than notes must be
// non-empty; an empty notes value clears the notes.
func (f *MailForm) Patch() (Patch, error) {
	var p Patch
	for _, t := range []struct {
		name string
		v    *string
		dst  **string
	}{
		{"mail_number", f.MailNumber, &p.MailNumber},
		{"sender", f.Sender, &p.Sender},
		{"addressed_to", f.AddressedTo, &p.AddressedTo},
		{"subject", f.Subject, &p.Subject},
	} {
		if t.v == nil {
			continue
		}
		if *t.v == "" {
			return Patch{}, dErrors.Newf(dErrors.CodeValidation, "%s must not be empty", t.name).WithField(t.name)
		}
		*t.dst = t.v
	}
	p.Notes = f.Notes

	if f.MailDate != nil {
		d, err := requireDate("mail_date", f.MailDate)
		if err != nil {
			return Patch{}, err
		}
		p.MailDate = &d
	}
	if f.HandledDate != nil {
		d, err := requireDate(f.Kind.HandledDateField(), f.HandledDate)
		if err != nil {
			return Patch{}, err
		}
		p.HandledDate = &d
	}
	if f.Division != nil {
		d, err := domain.ParseDivision(*f.Division)
		if err != nil {
			return Patch{}, err
		}
		p.Division = &d
	}
	return p, nil
}

func requireDate(field string, v *string) (time.Time, error) {
	if v == nil || *v == "" {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s is required", field).WithField(field)
	}
	t, err := time.Parse(DateLayout, *v)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s must be YYYY-MM-DD", field).WithField(field)
	}
	return t, nil
}
