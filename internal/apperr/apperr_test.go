package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestRetryableClassification(t *testing.T) {
	if !Retryable(ErrConcurrentSwitch) {
		t.Fatalf("concurrent switch must be retryable")
	}
	if !Retryable(fmt.Errorf("put: %w", ErrStorageUnavailable)) {
		t.Fatalf("wrapped storage unavailability must be retryable")
	}
	for _, err := range []error{ErrNotFound, ErrDuplicateName, ErrContextLocked, ErrPayloadTooLarge, errors.New("boom")} {
		if Retryable(err) {
			t.Fatalf("%v must not be retryable", err)
		}
	}
}

func TestWrapStorageDeadline(t *testing.T) {
	err := WrapStorage(context.DeadlineExceeded)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("deadline expiry must map to ErrStorageUnavailable, got %v", err)
	}
	if !Retryable(err) {
		t.Fatalf("mapped deadline must be retryable")
	}
}

func TestWrapStorageNetError(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	err := WrapStorage(fmt.Errorf("query: %w", cause))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("connection fault must map to ErrStorageUnavailable, got %v", err)
	}
}

func TestWrapStoragePassthrough(t *testing.T) {
	if got := WrapStorage(nil); got != nil {
		t.Fatalf("nil must pass through, got %v", got)
	}
	plain := errors.New("constraint violation")
	if got := WrapStorage(plain); got != plain {
		t.Fatalf("non-transport error must pass through, got %v", got)
	}
	for _, sentinel := range []error{ErrNotFound, ErrContextLocked, ErrConcurrentSwitch} {
		wrapped := fmt.Errorf("op: %w", sentinel)
		if got := WrapStorage(wrapped); got != wrapped {
			t.Fatalf("sentinel %v must pass through, got %v", sentinel, got)
		}
	}
	already := fmt.Errorf("op: %w", ErrStorageUnavailable)
	if got := WrapStorage(already); got != already {
		t.Fatalf("already-classified error must not double wrap, got %v", got)
	}
}
