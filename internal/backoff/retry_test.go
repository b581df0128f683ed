package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fast = Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fast, 3, nil, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Retry() = %q, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	boom := errors.New("boom")
	_, err := Retry(context.Background(), fast, 2, nil, func(int) (int, error) { return 0, boom })
	if !errors.Is(err, ErrMaxAttemptsExhausted) || !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("unauthorized")
	_, err := Retry(context.Background(), fast, 5, func(err error) bool { return !errors.Is(err, permanent) }, func(int) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) || errors.Is(err, ErrMaxAttemptsExhausted) {
		t.Fatalf("error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := Policy{Initial: time.Hour, Max: time.Hour, Factor: 2}
	calls := 0
	_, err := Retry(ctx, slow, 3, nil, func(int) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryExhaustedReportsAttempts(t *testing.T) {
	_, err := Retry(context.Background(), fast, 0, nil, func(int) (int, error) { return 0, errors.New("boom") })
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 1 {
		t.Fatalf("error = %v, want one attempt", err)
	}
}
