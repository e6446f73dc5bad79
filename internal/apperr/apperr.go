// Package apperr defines the error taxonomy shared by the request path and
// the delivery pipeline. Callers branch on Kind instead of matching message
// strings; handlers map Kind to an HTTP status and a safe message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for boundary handling.
type Kind int

const (
	// KindInternal is the default for unclassified failures.
	KindInternal Kind = iota
	// KindValidation marks malformed caller input. Never retried.
	KindValidation
	// KindAuth marks bad credentials or token mismatch. Never retried,
	// no detail beyond the generic message leaks to the caller.
	KindAuth
	// KindForbidden marks a valid identity lacking access (stale rotated
	// token, role gate).
	KindForbidden
	// KindConflict marks a duplicate resource.
	KindConflict
	// KindNotFound marks a missing resource.
	KindNotFound
	// KindTransient marks a downstream failure worth retrying (queue path).
	KindTransient
	// KindPermanent marks a job failure where retrying is futile.
	KindPermanent
)

// Error carries a kind, a caller-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a caller-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error. The message is what callers see;
// err is kept for logs and errors.Is chains.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-safe message of err, or a generic fallback.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// Status maps an error kind to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether a queue-path error should be rescheduled.
// Anything not explicitly permanent is treated as transient: a handler
// crash or an unclassified mailer failure must not park a job early.
func IsRetryable(err error) bool {
	return KindOf(err) != KindPermanent
}
