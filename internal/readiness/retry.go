package readiness

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options tune Retry. Zero values select real sleeping, a time-seeded
// random source and treating every error as transient.
type Options struct {
	Sleep       Sleeper
	Rand        *rand.Rand
	IsTransient func(error) bool
	// OnRetry runs after a failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// PermanentError is returned when an attempt failed with a non-transient error.
type PermanentError struct {
	Attempt int
	Err     error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure on attempt %d: %v", e.Attempt, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn until it succeeds, fails permanently, runs out of attempts
// or ctx is cancelled. Cancellation errors wrap ctx.Err().
func Retry(ctx context.Context, policy Policy, opts Options, fn func(ctx context.Context, attempt int) error) error {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	transient := opts.IsTransient
	if transient == nil {
		transient = func(error) bool { return true }
	}

	total := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		if attempt > 1 {
			delay := policy.Delay(attempt, rng)
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, delay, lastErr)
			}
			if err := sleep(ctx, delay); err != nil {
				return errors.Wrapf(err, "interrupted before attempt %d", attempt)
			}
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "interrupted before attempt %d", attempt)
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "interrupted during attempt %d", attempt)
		}
		if !transient(err) {
			return &PermanentError{Attempt: attempt, Err: err}
		}
		lastErr = err
	}

	return &ExhaustedError{Attempts: total, Err: lastErr}
}
