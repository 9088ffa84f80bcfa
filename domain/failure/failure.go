// Package failure defines the error taxonomy shared by services and transports.
// Services return *Error values; transports map Kind to a status code.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for propagation decisions.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindUnauthorized       Kind = "unauthorized"
	KindInvalidArgument    Kind = "invalid_argument"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindUpstreamGeneration Kind = "upstream_generation_failure"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// Error is a classified error (value type).
type Error struct {
	Kind    Kind
	Op      string // Operation that failed, e.g. "admin.ban"
	Message string // Human-readable message, safe to show callers
	Err     error  // Underlying cause, never shown to callers
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.message(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.message())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.message(), e.Err)
	default:
		return e.message()
	}
}

func (e *Error) message() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
// This lets callers write errors.Is(err, failure.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Retryable reports whether a caller may retry the operation unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindStoreUnavailable || e.Kind == KindUpstreamGeneration
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
	ErrUpstreamGeneration = &Error{Kind: KindUpstreamGeneration}
	ErrConflict           = &Error{Kind: KindConflict}
)

// New creates a classified error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound reports a missing account or discount.
func NotFound(op, message string) *Error {
	return New(KindNotFound, op, message)
}

// Unauthorized reports a missing or non-admin actor.
func Unauthorized(op, message string) *Error {
	return New(KindUnauthorized, op, message)
}

// InvalidArgument reports a bad tier, duration, currency or percent.
func InvalidArgument(op, message string) *Error {
	return New(KindInvalidArgument, op, message)
}

// StoreUnavailable reports an unreachable persistence layer.
func StoreUnavailable(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Message: "store unavailable", Err: err}
}

// UpstreamGeneration reports a failed text-generation call.
func UpstreamGeneration(op string, err error) *Error {
	return &Error{Kind: KindUpstreamGeneration, Op: op, Message: "text generation failed, please retry", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.message()
	}
	return "internal error"
}
