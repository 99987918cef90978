// Package apperr carries the stable error taxonomy of the API. Codes, not
// Go type names, are the contract with clients.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, user-visible error code.
type Code string

const (
	CodeValidation      Code = "validation"
	CodeNotFound        Code = "not_found"
	CodeDuplicate       Code = "duplicate"
	CodeConflict        Code = "conflict"
	CodeBusinessRule    Code = "business_rule"
	CodeStageTransition Code = "stage_transition"
	CodeAuthorization   Code = "authorization"
	CodeIntegrity       Code = "integrity"
	CodeExternal        Code = "external"
)

// Error is the application error. Field is set for validation failures,
// Detail is always human-readable.
type Error struct {
	Code   Code
	Field  string
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Validation builds a structural/schema failure tied to a field.
func Validation(field, detail string) *Error {
	return &Error{Code: CodeValidation, Field: field, Detail: detail}
}

// NotFound marks an entity as missing or soft-deleted.
func NotFound(detail string) *Error {
	return &Error{Code: CodeNotFound, Detail: detail}
}

// Duplicate marks a unique-constraint violation.
func Duplicate(detail string) *Error {
	return &Error{Code: CodeDuplicate, Detail: detail}
}

// Conflict marks an optimistic-concurrency failure after retries.
func Conflict(detail string) *Error {
	return &Error{Code: CodeConflict, Detail: detail}
}

// BusinessRule marks a domain invariant violation.
func BusinessRule(detail string) *Error {
	return &Error{Code: CodeBusinessRule, Detail: detail}
}

// StageTransition marks an illegal or ungated pipeline move.
func StageTransition(detail string) *Error {
	return &Error{Code: CodeStageTransition, Detail: detail}
}

// Authorization marks a failed policy predicate; detail names the predicate.
func Authorization(predicate string) *Error {
	return &Error{Code: CodeAuthorization, Detail: predicate}
}

// Integrity marks a referential failure surfaced by the repository.
func Integrity(detail string) *Error {
	return &Error{Code: CodeIntegrity, Detail: detail}
}

// External wraps a failure of a collaborating system (blob store, session
// store, audit sink). Retryable by the caller.
func External(detail string, cause error) *Error {
	return &Error{Code: CodeExternal, Detail: detail, cause: cause}
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
