// Package apperr defines the typed errors services return and the HTTP
// layer translates into status codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindInternal
	// KindUpstream is a failed completion or CRM call; the caller may retry.
	KindUpstream
)

var statusByKind = map[Kind]int{
	KindNotFound:   http.StatusNotFound,
	KindValidation: http.StatusBadRequest,
	KindConflict:   http.StatusConflict,
	KindInternal:   http.StatusInternalServerError,
	KindUpstream:   http.StatusBadGateway,
}

// Error is returned across service boundaries. Message is safe to show to
// the caller; Err is kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Details any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response code. Unknown kinds are 500.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithDetails attaches a response payload, e.g. the conflicting delivery id.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }
func Internal(message string) *Error   { return New(KindInternal, message) }

func Upstream(message string, err error) *Error {
	return Wrap(KindUpstream, message, err)
}

// GetKind returns the kind of the first *Error in the chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// IsRetryable reports whether replaying the same request may succeed.
// Untyped errors count as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch GetKind(err) {
	case KindUpstream, KindInternal, KindConflict, KindUnknown:
		return true
	}
	return false
}
