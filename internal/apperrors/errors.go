package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an Error. The set is closed: every failure the services can
// surface to a caller maps to exactly one kind.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindForbidden
	KindQuotaExceeded
	KindConflict
	KindNotFound
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func InvalidArgument(message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func QuotaExceeded(message string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// KindOf reports the kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return 0, false
}

func IsNotFound(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNotFound
}

// IsForbidden is true for plain forbidden errors and for quota-exceeded
// errors, which are a forbidden subtype.
func IsForbidden(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindForbidden || kind == KindQuotaExceeded)
}

// HTTPStatus maps err to the status code the HTTP edges respond with.
// Anything that is not an *Error is an internal error.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindForbidden, KindQuotaExceeded:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
