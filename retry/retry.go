// Package retry wraps fallible network operations with bounded retries
// and linear backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// PermanentError is returned once all attempts for an operation are
// exhausted. It carries the label of the failed operation, the number
// of attempts made and the last observed error as its cause.
type PermanentError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Executor retries operations with an attempt-indexed linear delay:
// after attempt n it waits base×n before attempt n+1. The executor has
// no knowledge of whether the wrapped operation is idempotent; that is
// the operation's responsibility.
type Executor struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	attempts int
	base     time.Duration
}

// Opt modifies Executor.
type Opt func(*Executor)

// WithLogger sets the logger used for per-attempt warnings.
func WithLogger(logger *zap.Logger) Opt {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithClock substitutes the clock used for backoff delays.
func WithClock(clock clockwork.Clock) Opt {
	return func(e *Executor) {
		e.clock = clock
	}
}

// New creates an Executor making up to attempts tries (minimum 1) with
// the given base delay.
func New(attempts int, base time.Duration, opts ...Opt) *Executor {
	if attempts < 1 {
		attempts = 1
	}
	e := &Executor{
		logger:   zap.NewNop(),
		clock:    clockwork.NewRealClock(),
		attempts: attempts,
		base:     base,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attempts returns the configured attempt bound.
func (e *Executor) Attempts() int {
	return e.attempts
}

// Do runs op until it succeeds or the attempt bound is reached. A
// context cancellation aborts immediately, between attempts, without
// consuming a retry. Exhaustion returns a *PermanentError wrapping the
// last error.
func Do[T any](ctx context.Context, e *Executor, label string, op func(context.Context) (T, error)) (T, error) {
	var (
		empty T
		last  error
	)
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return empty, err
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		last = err
		e.logger.Warn("operation failed",
			zap.String("context", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.attempts),
			zap.Error(err),
		)

		if attempt == e.attempts {
			break
		}
		delay := e.base * time.Duration(attempt)
		e.logger.Debug("retrying", zap.String("context", label), zap.Duration("delay", delay))
		select {
		case <-e.clock.After(delay):
		case <-ctx.Done():
			return empty, ctx.Err()
		}
	}

	e.logger.Error("operation failed permanently",
		zap.String("context", label),
		zap.Int("attempts", e.attempts),
		zap.Error(last),
	)
	return empty, &PermanentError{Label: label, Attempts: e.attempts, Err: last}
}

// IsPermanent reports whether err marks exhausted retries.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
