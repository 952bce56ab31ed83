// Package retry runs storage calls with exponential backoff on transient failures.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-detect/internal/logging"
)

// Policy bounds the number of attempts and the backoff between them.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used by the repository and the record cache.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}
}

// Runner retries calls against one backend. Subject names the backend in log
// messages ("database", "redis"). Errors matched by Passthrough are expected
// outcomes such as a missing row: they end the loop and are returned as is.
type Runner struct {
	Policy      Policy
	Logger      *zap.Logger
	Subject     string
	Passthrough func(error) bool
}

// Do runs fn until it succeeds, fails with a non-transient error or the
// attempts run out. Failures are returned as *logging.OperationError.
func (r Runner) Do(ctx context.Context, operation, documentID string, fn func() error) error {
	attempts := r.Policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backoff := r.Policy.InitialBackoff
	opLogger := logging.WithOperation(ctx, logger, operation, documentID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(ctx, operation, documentID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.Policy.MaxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info(r.Subject+" operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if r.Passthrough != nil && r.Passthrough(err) {
			return err
		}

		if !IsTransient(err) || attempt == attempts-1 {
			opLogger.Error(r.Subject+" operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(ctx, operation, documentID, err)
		}

		opLogger.Warn("transient "+r.Subject+" error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(ctx, operation, documentID, err)
}

// IsTransient reports whether err is worth retrying: deadlines, network
// timeouts and errors that mark themselves temporary.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
