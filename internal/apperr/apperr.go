// Package apperr defines the error taxonomy shared by the marketplace workflows
// and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Use errors.Is against these to classify a workflow error.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrDownstream   = errors.New("downstream failure")
)

// Error carries a client-safe message and the kind it belongs to.
// Fields lists offending input fields for validation errors.
type Error struct {
	Kind   error
	Msg    string
	Fields []string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Msg + ": " + e.cause.Error()
	}
	return e.Msg
}

// Is matches the error kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.cause }

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

func Forbidden(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

func InvalidState(format string, args ...any) error { return newf(ErrInvalidState, format, args...) }

// Validation reports missing or malformed input fields.
func Validation(msg string, fields ...string) error {
	return &Error{Kind: ErrValidation, Msg: msg, Fields: fields}
}

// Downstream wraps an infrastructure failure that aborted a multi-step workflow.
func Downstream(msg string, cause error) error {
	return &Error{Kind: ErrDownstream, Msg: msg, cause: cause}
}

// AsDownstream returns err unchanged if it is already classified, otherwise
// wraps it as a downstream failure.
func AsDownstream(msg string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Downstream(msg, err)
}

// Status maps an error to the HTTP status returned to clients.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to clients. Downstream and
// unclassified errors never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// FieldsOf returns the offending fields of a validation error.
func FieldsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
