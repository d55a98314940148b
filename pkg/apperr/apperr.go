// Package apperr defines the error taxonomy shared by the allocation
// engine and its HTTP surface: not-found, conflict, forbidden and
// bad-request. A "no candidate" result is deliberately not an error and
// is represented by a nil value at call sites.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an operation failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindBadRequest
)

// Error carries a failure kind and a caller-safe message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// NotFound reports a missing conversation/operator/inbox.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

// Conflict reports a violated state precondition (already taken,
// operator offline).
func Conflict(msg string) error { return &Error{Kind: KindConflict, Msg: msg} }

// Forbidden reports a role, ownership or tenant-scope violation.
func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Msg: msg} }

// BadRequest reports an unmet state precondition for resolve, deallocate
// or reassign, or malformed input.
func BadRequest(msg string) error { return &Error{Kind: KindBadRequest, Msg: msg} }

// KindOf returns the taxonomy kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsForbidden(err error) bool  { return KindOf(err) == KindForbidden }
func IsBadRequest(err error) bool { return KindOf(err) == KindBadRequest }

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
