// Package apierr carries the transport-independent error taxonomy.
// Handlers wrap domain failures in an *Error; the HTTP edge maps Kind to a
// status code. Tool-originated failures never travel through this package —
// they stay inside the event stream as tool_result errors.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuth             Kind = "auth"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindPathEscape       Kind = "path_escape"
	KindSensitivePath    Kind = "sensitive_path"
	KindProviderFailure  Kind = "provider_failure"
	KindProviderTimeout  Kind = "provider_timeout"
	KindConflict         Kind = "conflict"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation, KindPathEscape, KindSensitivePath:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindProviderFailure:
		return http.StatusBadGateway
	case KindProviderTimeout:
		return http.StatusGatewayTimeout
	case KindConflict:
		return http.StatusConflict
	case KindCancelled:
		return 499 // client closed request (nginx convention)
	default:
		return http.StatusInternalServerError
	}
}
