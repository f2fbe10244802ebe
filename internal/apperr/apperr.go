// Package apperr holds the sentinel error kinds shared across services.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName marks an exact-match name collision within a user's profiles.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrCannotDeleteActive marks an attempt to delete the active profile.
	ErrCannotDeleteActive = errors.New("cannot delete active profile")
	// ErrConcurrentSwitch marks a profile switch that lost a race on the
	// active-profile pointer. Callers may retry with backoff.
	ErrConcurrentSwitch = errors.New("concurrent switch")
	// ErrContextLocked marks a teach/update on a context that is not
	// currently unlockable.
	ErrContextLocked = errors.New("context locked")
	// ErrStorageUnavailable marks a backing store timeout or transport
	// failure. Callers may retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrPayloadTooLarge marks an indivisible token that exceeds the hard
	// document ceiling even after chunking.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentSwitch) || errors.Is(err, ErrStorageUnavailable)
}

// WrapStorage classifies backing-store failures. Deadline expiry and
// connection-level faults wrap ErrStorageUnavailable so Retryable
// reports them; every other error passes through unchanged.
func WrapStorage(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, ErrStorageUnavailable)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%v: %w", err, ErrStorageUnavailable)
	}
	return err
}
