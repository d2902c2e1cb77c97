// Package apierr defines the error taxonomy shared by the request pipeline.
// Every failure raised anywhere in the pipeline carries an HTTP status; the
// dispatch boundary is the single place where errors are converted into the
// uniform response envelope.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a pipeline failure carrying the HTTP status to report.
type Error struct {
	// Status is the HTTP status code for the response envelope.
	Status int

	// Message is the user-visible message.
	Message string

	// Err is the wrapped cause, kept for diagnostics only.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given status and message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(status int, format string, args ...interface{}) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error chaining cause. The cause is not user-visible.
func Wrap(status int, message string, cause error) *Error {
	return &Error{Status: status, Message: message, Err: cause}
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

// Unauthorized creates a 401 error.
func Unauthorized() *Error {
	return New(http.StatusUnauthorized, "Unauthorized")
}

// Forbidden creates a 403 error.
func Forbidden() *Error {
	return New(http.StatusForbidden, "Forbidden")
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// MethodNotAllowed creates a 405 error.
func MethodNotAllowed(method string) *Error {
	return Newf(http.StatusMethodNotAllowed, "method %s not allowed", method)
}

// Internal creates a 500 error.
func Internal(message string) *Error {
	return New(http.StatusInternalServerError, message)
}

// StatusOf returns the HTTP status carried by err, or 500 when err does not
// carry one.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the user-visible message for err. Causes chained below
// the outermost Error stay hidden.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "internal server error"
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	return StatusOf(err) == status
}
