// Package app provides application services that orchestrate domain logic.
package app

import (
	"errors"

	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/ports"
)

// storeError classifies an adapter error for callers.
// what names the missing thing in NotFound messages, e.g. "account".
func storeError(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrNotFound):
		return failure.NotFound(op, what+" not found")
	case errors.Is(err, ports.ErrConflict):
		return failure.Wrap(failure.KindConflict, op, err)
	case errors.Is(err, ports.ErrExists):
		return &failure.Error{Kind: failure.KindInvalidArgument, Op: op, Message: what + " already exists", Err: err}
	default:
		return failure.StoreUnavailable(op, err)
	}
}
