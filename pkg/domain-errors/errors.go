// Package domainerrors provides coded domain errors.
//
// Services and models return these so transport layers can translate them
// into client-facing responses without inspecting error strings. Store-level
// facts (not found, conflict) use pkg/platform/sentinel instead; services
// wrap those into coded errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and tests.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"

	// CodeNoObservation covers fusion requests that supply neither a
	// community signal nor a clinical record.
	CodeNoObservation Code = "no_observation_supplied"

	// CodeMalformedTimestamp covers observations whose timestamp field is
	// neither RFC 3339 nor numeric epoch seconds.
	CodeMalformedTimestamp Code = "malformed_timestamp"
)

// Error is a domain error with a machine-readable code and optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the cause for
// errors.Is/As chains. Wrapping nil returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// GetCode returns the code of the outermost domain error in the chain, or
// CodeInternal when err carries no code at all.
func GetCode(err error) Code {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return CodeInternal
}

// Is delegates to errors.Is; kept so callers importing this package as
// dErrors do not also need the stdlib errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
