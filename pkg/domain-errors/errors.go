// Package domainerrors defines the typed failures returned by services.
//
// Stores return sentinel errors; services translate them into *Error values
// carrying a Code (mapped to a transport status by httputil) and an optional
// machine-readable Reason and Field for validation and conflict failures.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure independently of the transport.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeDependency         Code = "dependency_error"
	CodeRateLimited        Code = "rate_limited"
)

// Error is the domain failure type. Message is safe to show to callers;
// Err keeps the underlying cause for logs only.
type Error struct {
	Code    Code
	Reason  string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithReason attaches a machine-readable reason such as "name_conflict".
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// WithField names the offending input field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and a caller-safe message. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better as a predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ReasonOf returns the reason of the outermost domain error that carries one.
func ReasonOf(err error) string {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return ""
		}
		if de.Reason != "" {
			return de.Reason
		}
		err = de.Err
	}
	return ""
}
