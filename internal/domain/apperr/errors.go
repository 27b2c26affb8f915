// Package apperr defines the closed set of error kinds the HTTP layer maps to
// status codes. Adapters and services produce them; handlers switch on Kind.
package apperr

import (
	"errors"
	"time"
)

type Kind int

const (
	KindUpstream Kind = iota
	KindUnauthorized
	KindInvalidInput
	KindNotFound
	KindConflict
	KindQuotaExceeded
	KindNotConfigured
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNotConfigured:
		return "not_configured"
	default:
		return "upstream"
	}
}

// Error carries a client-safe message. Cause is for server logs only.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Conflict builds a duplicate-submission error with a retry hint.
func Conflict(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindConflict, Message: msg, RetryAfter: retryAfter}
}

// KindOf reports the kind of err. Unclassified errors are KindUpstream.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
