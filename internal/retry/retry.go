// Package retry wraps fallible operations with a bounded, fixed-delay retry
// loop.
//
// The loop is explicit: an attempt counter, a configurable delay between
// attempts, and a tagged terminal error once attempts are exhausted, so
// callers can tell a retried-and-failed operation apart from a transient
// error with errors.Is(err, retry.ErrExhausted).
//
// Each call to Do carries its own counter, so concurrent retries never
// interfere with each other.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted tags terminal failures after the attempt cap is reached.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config controls the retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultConfig matches the sync engine defaults: 3 attempts, 5s apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
	}
}

// ExhaustedError is the terminal error returned once MaxAttempts failed.
// It unwraps to the last attempt's error and matches ErrExhausted.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is reports whether target is ErrExhausted, so callers can use errors.Is
// without knowing the concrete type.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Do invokes op, retrying on failure up to cfg.MaxAttempts total attempts
// with cfg.Delay between them.
//
// Context cancellation stops the loop immediately, during an attempt (if op
// honors the context) or during the delay, and returns ctx.Err() rather
// than an ExhaustedError.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if errors.Is(last, context.Canceled) || errors.Is(last, context.DeadlineExceeded) {
			return last
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Last: last}
}
