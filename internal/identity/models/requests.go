package models

import (
	"strings"
	"unicode/utf8"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
)

// UserPatch carries the fields an administrator may change. Nil leaves the
// field as is; a non-nil DivisionNone clears the division.
type UserPatch struct {
	FullName *string
	Role     *domain.Role
	Division *domain.Division
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.FullName == nil && p.Role == nil && p.Division == nil
}

// Apply returns the resulting full name, role and division for u.
func (p UserPatch) Apply(u *User) (string, domain.Role, domain.Division) {
	fullName, role, division := u.FullName, u.Role, u.Division
	if p.FullName != nil {
		fullName = *p.FullName
	}
	if p.Role != nil {
		role = *p.Role
	}
	if p.Division != nil {
		division = *p.Division
	}
	return fullName, role, division
}

const minPasswordLength = 6

// ValidatePassword enforces the policy for user-chosen passwords.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return dErrors.Newf(dErrors.CodeValidation, "new_password must be at least %d characters", minPasswordLength).
			WithReason(ReasonPasswordPolicy).WithField("new_password")
	}
	if len(password) > maxPasswordBytes {
		return dErrors.Newf(dErrors.CodeValidation, "new_password must be at most %d bytes", maxPasswordBytes).
			WithReason(ReasonPasswordPolicy).WithField("new_password")
	}
	return nil
}

// CreateUserRequest is the admin payload for POST /users.
type CreateUserRequest struct {
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Division string `json:"division"`

	role     domain.Role
	division domain.Division
}

func (r *CreateUserRequest) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.Division = strings.ToLower(strings.TrimSpace(r.Division))
}

func (r *CreateUserRequest) Validate() error {
	if r.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required").WithField("full_name")
	}
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return err
	}
	division, err := domain.ParseDivision(r.Division)
	if err != nil {
		return err
	}
	r.role, r.division = role, division
	return nil
}

// Typed returns the parsed role and division. Valid after Validate.
func (r *CreateUserRequest) Typed() (domain.Role, domain.Division) {
	return r.role, r.division
}

// UpdateUserRequest is the admin payload for PATCH /users/{id}. Omitted
// fields are left unchanged; "division": "" clears the division.
type UpdateUserRequest struct {
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Division *string `json:"division"`

	patch UserPatch
}

func (r *UpdateUserRequest) Normalize() {
	if r.FullName != nil {
		v := strings.TrimSpace(*r.FullName)
		r.FullName = &v
	}
	if r.Role != nil {
		v := strings.ToLower(strings.TrimSpace(*r.Role))
		r.Role = &v
	}
	if r.Division != nil {
		v := strings.ToLower(strings.TrimSpace(*r.Division))
		r.Division = &v
	}
}

func (r *UpdateUserRequest) Validate() error {
	var p UserPatch
	if r.FullName != nil {
		if *r.FullName == "" {
			return dErrors.New(dErrors.CodeValidation, "full_name must not be empty").WithField("full_name")
		}
		p.FullName = r.FullName
	}
	if r.Role != nil {
		role, err := domain.ParseRole(*r.Role)
		if err != nil {
			return err
		}
		p.Role = &role
	}
	if r.Division != nil {
		division, err := domain.ParseDivision(*r.Division)
		if err != nil {
			return err
		}
		p.Division = &division
	}
	if p.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "at least one of full_name, role or division is required")
	}
	r.patch = p
	return nil
}

// Patch returns the parsed patch. Valid after Validate.
func (r *UpdateUserRequest) Patch() UserPatch {
	return r.patch
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required").WithField("username")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required").WithField("password")
	}
	return nil
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r *ChangePasswordRequest) Normalize() {}

func (r *ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" {
		return dErrors.New(dErrors.CodeValidation, "current_password is required").WithField("current_password")
	}
	return ValidatePassword(r.NewPassword)
}
