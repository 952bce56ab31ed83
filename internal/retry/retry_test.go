package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-detect/internal/logging"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func testRunner(attempts int) Runner {
	return Runner{
		Policy:  Policy{Attempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		Logger:  zap.NewNop(),
		Subject: "database",
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "wrapped timeout", err: fmt.Errorf("dial: %w", timeoutError{}), want: true},
		{name: "plain", err: errors.New("constraint violated"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := testRunner(3).Do(context.Background(), "test.operation", "doc-1", func() error {
		calls++
		if calls < 3 {
			return timeoutError{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	base := errors.New("constraint violated")
	err := testRunner(3).Do(context.Background(), "test.operation", "doc-1", func() error {
		calls++
		return base
	})
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *logging.OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" || opErr.DocumentID != "doc-1" || !errors.Is(err, base) {
		t.Fatalf("unexpected error: %#v", opErr)
	}
}

func TestDoReturnsPassthroughErrorsUnwrapped(t *testing.T) {
	missing := errors.New("missing")
	runner := testRunner(3)
	runner.Passthrough = func(err error) bool { return errors.Is(err, missing) }

	calls := 0
	err := runner.Do(context.Background(), "test.operation", "doc-1", func() error {
		calls++
		return missing
	})
	if err != missing {
		t.Fatalf("expected the raw error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	ctx := logging.ContextWithRequestID(context.Background(), "req-1")
	err := testRunner(2).Do(ctx, "test.operation", "doc-2", func() error {
		calls++
		return timeoutError{}
	})
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.RequestID != "req-1" {
		t.Fatalf("expected an operation error carrying the request id, got %v", err)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := testRunner(3).Do(ctx, "test.operation", "", func() error {
		calls++
		cancel()
		return timeoutError{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
