package sentinel

import (
	"errors"
	"fmt"
)

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// For validation failures (bad input, missing fields) use pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)

// ConstraintError reports a uniqueness violation on a named constraint.
// It matches ErrConflict under errors.Is.
type ConstraintError struct {
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("conflict on %s", e.Constraint)
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConflict
}

// Conflict builds a ConstraintError for constraint.
func Conflict(constraint string) error {
	return &ConstraintError{Constraint: constraint}
}

// ConstraintOf returns the violated constraint name, or "" when err is not a
// ConstraintError.
func ConstraintOf(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}
