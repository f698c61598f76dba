package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	pstrings "correspondence/pkg/platform/strings"
)

const maxFullNameLength = 255

// The derived username doubles as the initial password, and bcrypt reads at
// most 72 bytes. maxIDDigits is the width of the largest int64 id.
const (
	maxPasswordBytes = 72
	maxIDDigits      = 19
	maxUsernameBase  = maxPasswordBytes - maxIDDigits
)

// Conflict and validation reasons surfaced to API clients.
const (
	ReasonNameConflict           = "name_conflict"
	ReasonRoleSingleton          = "role_singleton_violation"
	ReasonDivisionHeadConflict   = "division_head_conflict"
	ReasonDivisionRequired       = "division_required"
	ReasonDivisionForbidden      = "division_forbidden"
	ReasonUsernameConflict       = "username_conflict"
	ReasonInvalidCredentials     = "invalid_credentials"
	ReasonPasswordPolicy         = "password_policy"
	ReasonCurrentPasswordInvalid = "current_password_invalid"
)

// Storage-level unique constraints. Stores report violations with these names.
const (
	ConstraintUsername        = "users_username_key"
	ConstraintFullName        = "users_full_name_key"
	ConstraintSingleSecretary = "users_single_secretary"
	ConstraintDivisionHead    = "users_division_head"
)

// User is an account holder. ID is assigned by the store.
type User struct {
	ID           domain.UserID
	Username     string
	PasswordHash string
	FullName     string
	Role         domain.Role
	Division     domain.Division
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser validates the name and role/division pairing and returns a user
// carrying a provisional username. The real username needs the store id; see
// DeriveUsername.
func NewUser(fullName string, role domain.Role, division domain.Division, now time.Time) (*User, error) {
	fullName, err := NormalizeFullName(fullName)
	if err != nil {
		return nil, err
	}
	if err := ValidateAssignment(role, division); err != nil {
		return nil, err
	}
	return &User{
		Username:  ProvisionalUsername(fullName),
		FullName:  fullName,
		Role:      role,
		Division:  division,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NormalizeFullName collapses whitespace and enforces presence and length.
func NormalizeFullName(fullName string) (string, error) {
	fullName = pstrings.CollapseSpaces(fullName)
	if fullName == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "full_name is required").WithField("full_name")
	}
	if utf8.RuneCountInString(fullName) > maxFullNameLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "full_name must be 255 characters or less").WithField("full_name")
	}
	if len(usernameBase(fullName)) > maxUsernameBase {
		return "", dErrors.Newf(dErrors.CodeInvariantViolation,
			"first and last name together must be %d bytes or less", maxUsernameBase).WithField("full_name")
	}
	return fullName, nil
}

// ValidateAssignment enforces the per-record role/division pairing: division
// heads and staff need a division, the secretary must have none.
func ValidateAssignment(role domain.Role, division domain.Division) error {
	if !role.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid role").WithField("role")
	}
	if !division.IsNone() && !division.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid division").WithField("division")
	}
	if role.RequiresDivision() && division.IsNone() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "division is required for role %s", role).
			WithReason(ReasonDivisionRequired).WithField("division")
	}
	if role == domain.RoleSecretary && !division.IsNone() {
		return dErrors.New(dErrors.CodeInvariantViolation, "secretary cannot belong to a division").
			WithReason(ReasonDivisionForbidden).WithField("division")
	}
	return nil
}

// DeriveUsername builds the permanent username from the full name and the
// store-assigned id: first and last name tokens lowercased, then the id. A
// single-token name is used whole.
func DeriveUsername(fullName string, id domain.UserID) string {
	return usernameBase(fullName) + id.String()
}

func usernameBase(fullName string) string {
	tokens := strings.Fields(fullName)
	switch len(tokens) {
	case 0:
		return ""
	case 1:
		return strings.ToLower(tokens[0])
	default:
		return strings.ToLower(tokens[0]) + strings.ToLower(tokens[len(tokens)-1])
	}
}

// ProvisionalUsername is the placeholder stored between insert and
// derivation. The random suffix keeps concurrent creations from colliding.
func ProvisionalUsername(fullName string) string {
	return "pending_" + pstrings.Slug(fullName) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// IsProvisional reports whether u still carries a placeholder username.
func (u *User) IsProvisional() bool {
	return strings.HasPrefix(u.Username, "pending_")
}

// Visibility returns the division filter applied to u's listings.
func (u *User) Visibility() domain.Division {
	if u.Role.SeesAllDivisions() {
		return domain.DivisionNone
	}
	return u.Division
}
