// Package apperrors defines the error taxonomy shared by actions and handlers.
// Every error that reaches a user carries a human-readable Message; the Kind
// only decides the HTTP status and how the caller reacts.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an action failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindProvider
	KindLink
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidRole  = errors.New("invalid role")
	ErrNoMembership = errors.New("no membership")
)

// User-facing messages reused across actions.
const (
	MsgNotAuthenticated = "Not authenticated"
	MsgNoCenterAssigned = "No center assigned to your account. Please contact an administrator."
	MsgNoCenterShort    = "No center assigned to your account"
)

// Error is an action failure with a message safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func Unauthenticated() *Error {
	return &Error{Kind: KindAuthentication, Message: MsgNotAuthenticated}
}

func Forbidden(msg string) *Error { return &Error{Kind: KindAuthorization, Message: msg} }

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: ErrNotFound}
}

// Provider passes an external provider message through verbatim.
func Provider(err error) *Error {
	return &Error{Kind: KindProvider, Message: err.Error(), Err: err}
}

func Link(msg string, err error) *Error { return &Error{Kind: KindLink, Message: msg, Err: err} }

// Internal wraps an unexpected failure; msg is what the user sees.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus maps an error to the status code used by JSON action responses.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindProvider, KindLink:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
