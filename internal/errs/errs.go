// Package errs defines the error taxonomy shared by every pipeline component.
// Components return *Error values; callers match them with errors.Is against
// the sentinel kinds below.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorises a failure.
type Kind string

const (
	KindConfig            Kind = "CONFIG_ERROR"
	KindInput             Kind = "INPUT_ERROR"
	KindUpload            Kind = "UPLOAD_ERROR"
	KindModel             Kind = "MODEL_ERROR"
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
	KindDuplicateUser     Kind = "DUPLICATE_USER"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindStore             Kind = "STORE_ERROR"
	KindState             Kind = "STATE_ERROR"
)

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrConfig            = &Error{Kind: KindConfig}
	ErrInput             = &Error{Kind: KindInput}
	ErrUpload            = &Error{Kind: KindUpload}
	ErrModel             = &Error{Kind: KindModel}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrDuplicateUser     = &Error{Kind: KindDuplicateUser}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrStore             = &Error{Kind: KindStore}
	ErrState             = &Error{Kind: KindState}
)

// Error carries the kind, the operation that failed and, optionally, the
// underlying transport error and a diagnostic payload (e.g. raw model output).
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Detail != "" {
		msg += fmt.Sprintf(" (detail: %q)", e.Detail)
	}
	return msg
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an error of the given kind.
func E(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, op string, cause error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// WithDetail attaches a diagnostic payload.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code the HTTP functions reply with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput, KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateUser, KindState:
		return http.StatusConflict
	case KindUpload, KindModel, KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
