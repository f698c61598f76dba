package domain

import (
	"strconv"
	"strings"

	dErrors "correspondence/pkg/domain-errors"
)

// Surrogate identifiers are assigned by the store. Distinct types keep a
// mail id from being passed where a user id is expected.
type (
	UserID     int64
	MailID     int64
	TemplateID int64
)

func (id UserID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id MailID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id TemplateID) String() string { return strconv.FormatInt(int64(id), 10) }

// IsZero reports whether the id was never assigned.
func (id UserID) IsZero() bool { return id == 0 }

// ParseUserID constructs a UserID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, not a base-10
// integer, or not positive.
func ParseUserID(s string) (UserID, error) {
	n, err := parsePositive(s, "user id")
	return UserID(n), err
}

// ParseMailID constructs a MailID from external input.
func ParseMailID(s string) (MailID, error) {
	n, err := parsePositive(s, "mail id")
	return MailID(n), err
}

// ParseTemplateID constructs a TemplateID from external input.
func ParseTemplateID(s string) (TemplateID, error) {
	n, err := parsePositive(s, "template id")
	return TemplateID(n), err
}

func parsePositive(s, what string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", what)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", what)
	}
	return n, nil
}
