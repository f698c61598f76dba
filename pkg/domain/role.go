package domain

import dErrors "correspondence/pkg/domain-errors"

// Role is a user's organizational role.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses
// validation.
type Role string

const (
	RoleSecretary       Role = "secretary"
	RoleSubDivisionHead Role = "sub_division_head"
	RoleStaff           Role = "staff"
)

var validRoles = map[Role]bool{
	RoleSecretary:       true,
	RoleSubDivisionHead: true,
	RoleStaff:           true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty").WithField("role")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role").WithField("role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

// RequiresDivision reports whether users holding r must belong to a division.
func (r Role) RequiresDivision() bool {
	return r == RoleSubDivisionHead || r == RoleStaff
}

// SeesAllDivisions reports whether r has cross-division visibility.
func (r Role) SeesAllDivisions() bool {
	return r == RoleSecretary
}

func (r Role) String() string {
	return string(r)
}
