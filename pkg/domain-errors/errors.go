// Package domainerrors defines the coded error type shared by services and
// transport. Services return these; handlers translate codes into HTTP status
// and problem bodies via pkg/platform/httputil.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure. Codes are stable strings so they
// can be exposed in API responses and asserted in tests.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeValidation        Code = "validation_error"
	CodeConflict          Code = "conflict"
	CodePersistence       Code = "persistence_error"
	CodeBadRequest        Code = "bad_request"
	CodeInvalidInput      Code = "invalid_input"
	CodeUnauthorized      Code = "unauthorized"
	CodeRateLimited       Code = "rate_limited"
	CodeTimeout           Code = "timeout"
	CodeInternal          Code = "internal_error"
)

// Error is a domain error carrying a code, a caller-safe message and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any domain error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode, kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code in err's chain, or CodeInternal
// when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message of the outermost domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
