// Package apperr carries the error taxonomy shared by every service. Each
// error knows the HTTP status it maps to, so transports only translate.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Unauthorized
	Forbidden
	Validation
	NotFound
	Conflict
	Constraint
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Validation:
		return "validation"
	case NotFound:
		return "not found"
	case Conflict:
		return "conflict"
	case Constraint:
		return "constraint"
	}
	return "internal"
}

// Error is a classified service failure. Field names the offending input
// for Validation errors and is empty otherwise.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode satisfies go-kit's httptransport.StatusCoder.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Validation, Constraint:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Invalid returns a Validation error about a single input field.
func Invalid(field, message string) *Error {
	return &Error{Kind: Validation, Field: field, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

// Message returns the text safe to show a caller. Unclassified failures are
// replaced by a generic message.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Error()
	}
	return "internal server error"
}

// FromStatus rebuilds a classified error from an HTTP status and the
// message found in the response body. Used by clients.
func FromStatus(code int, message string) *Error {
	kind := Internal
	switch code {
	case http.StatusUnauthorized:
		kind = Unauthorized
	case http.StatusForbidden:
		kind = Forbidden
	case http.StatusBadRequest:
		kind = Validation
	case http.StatusNotFound:
		kind = NotFound
	case http.StatusConflict:
		kind = Conflict
	}
	if message == "" {
		message = http.StatusText(code)
	}
	return New(kind, message)
}
