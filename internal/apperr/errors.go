// Package apperr defines the error taxonomy surfaced to lingua callers.
//
// Every foreground failure is reported as an *Error carrying a stable Kind
// that clients can branch on, plus a human-readable message. Errors that do
// not carry a Kind are reported as Internal.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for clients.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindPermissionDenied
	KindInvalidArgument
	KindNotFound
	KindTimeout
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindPermissionDenied:
		return "PERMISSION_DENIED"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "features.DetectLanguage"
	Message string // safe to show to end users
	Err     error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so errors.Is(err,
// &Error{Kind: KindNotFound}) works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

// E builds a classified error.
func E(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Invalid reports malformed, missing or out-of-range input.
func Invalid(op, format string, args ...any) *Error {
	return E(KindInvalidArgument, op, fmt.Sprintf(format, args...), nil)
}

// Unauthenticated reports a missing or invalid caller identity.
func Unauthenticated(op string) *Error {
	return E(KindUnauthenticated, op, "authentication required", nil)
}

// Denied reports that the caller is not a participant of the referenced resource.
func Denied(op, format string, args ...any) *Error {
	return E(KindPermissionDenied, op, fmt.Sprintf(format, args...), nil)
}

// NotFound reports a referenced message or conversation that does not exist.
func NotFound(op, format string, args ...any) *Error {
	return E(KindNotFound, op, fmt.Sprintf(format, args...), nil)
}

// Internal wraps an upstream or storage failure.
func Internal(op, message string, err error) *Error {
	return E(KindInternal, op, message, err)
}

// Timeout wraps an upstream deadline.
func Timeout(op string, err error) *Error {
	return E(KindTimeout, op, "upstream deadline exceeded", err)
}

// KindOf returns the Kind of the first *Error in err's chain. Context
// deadlines without a classification are Timeout; everything else is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if KindOf(err) == KindTimeout {
		return "upstream deadline exceeded"
	}
	return "internal error"
}

// HTTPStatus maps a Kind to the HTTP status used by the RPC surface.
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
