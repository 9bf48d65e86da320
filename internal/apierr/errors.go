// Package apierr defines the error-kind taxonomy shared by every data-path
// component. Errors never carry raw strings across package boundaries;
// callers type-switch or use errors.As against *Error.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error categories the data-path engine can surface.
type Kind string

const (
	// BadSyntax: the URL or projection cannot be parsed/resolved in any valid way.
	BadSyntax Kind = "bad_syntax"
	// BadData: syntactically valid reference that is not bound (alias not in path).
	BadData Kind = "bad_data"
	// ConflictModel: the model does not admit the requested resolution.
	ConflictModel Kind = "conflict_model"
	// Forbidden: a policy predicate denied access.
	Forbidden Kind = "forbidden"
	// NotFound: catalog id or resource absent.
	NotFound Kind = "not_found"
	// PreconditionFailed: If-Match did not match the current ETag.
	PreconditionFailed Kind = "precondition_failed"
	// NotModified: If-None-Match matched the current ETag on a read.
	NotModified Kind = "not_modified"
	// Conflict: a write violated a database constraint.
	Conflict Kind = "conflict"
	// ServiceUnavailable: a transient database failure; retryable by the caller.
	ServiceUnavailable Kind = "service_unavailable"
)

// HTTPStatus maps a Kind to the status code spec.md §6/§7 assigns it.
func (k Kind) HTTPStatus() int {
	switch k {
	case BadSyntax, BadData:
		return http.StatusBadRequest
	case ConflictModel:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case PreconditionFailed:
		return http.StatusPreconditionFailed
	case NotModified:
		return http.StatusNotModified
	case Conflict:
		return http.StatusConflict
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error value returned by C1-C6. Message is safe to show
// to a client; Cause, if present, is logged but never serialized.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying cause for logging, without leaking it to the client.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to an empty Kind ("internal"
// semantics) when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
