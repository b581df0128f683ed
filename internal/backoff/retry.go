package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMaxAttemptsExhausted matches an *ExhaustedError.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// ExhaustedError is returned by Retry when every attempt failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrMaxAttemptsExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrMaxAttemptsExhausted, e.Last} }

// Retry runs fn up to maxAttempts times, waiting p.Delay(attempt) after each
// failure. A nil retryable treats every error as retryable; a non-retryable
// error or a context error is returned unchanged.
func Retry[T any](ctx context.Context, p Policy, maxAttempts int, retryable func(error) bool, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := fn(attempt)
		switch {
		case err == nil:
			return value, nil
		case retryable != nil && !retryable(err):
			return zero, err
		case attempt >= maxAttempts:
			return zero, &ExhaustedError{Attempts: attempt, Last: err}
		}
		if werr := wait(ctx, p.Delay(attempt)); werr != nil {
			return zero, errors.Join(werr, err)
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
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
