package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_Success(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	config := Config{
		MaxRetries:     5,
		InitialBackoff: 10 * time.Millisecond,
		Multiplier:     2.0,
	}

	if err := Retry(context.Background(), config, fn); err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	}

	config := Config{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Millisecond,
	}

	err := Retry(context.Background(), config, fn)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}

	if attempts != 4 { // initial attempt + 3 retries
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return "status error" }

func TestRetry_ExhaustionKeepsCauseInChain(t *testing.T) {
	cause := &statusError{code: 429}
	fn := func(ctx context.Context) error {
		return cause
	}

	config := Config{
		MaxRetries:     2,
		InitialBackoff: 1 * time.Millisecond,
	}

	err := Retry(context.Background(), config, fn)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost from the chain: %v", err)
	}

	var typed *statusError
	if !errors.As(err, &typed) || typed.code != 429 {
		t.Errorf("typed cause not recoverable with errors.As: %v", err)
	}
}

func TestRetry_NonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return permanent
	}

	config := Config{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Millisecond,
		IsRetryable:    func(err error) bool { return !errors.Is(err, permanent) },
	}

	err := Retry(context.Background(), config, fn)
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if errors.Is(err, ErrMaxRetriesExceeded) {
		t.Error("non-retryable error should not be wrapped in ErrMaxRetriesExceeded")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	fn := func(ctx context.Context) error {
		return errors.New("error")
	}

	config := Config{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, config, fn)
	if !errors.Is(err, ErrRetryAborted) {
		t.Errorf("expected ErrRetryAborted, got %v", err)
	}
}

func TestBackoff_Capped(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 2 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{10, 2 * time.Second},
	}

	for _, tc := range cases {
		if got := Backoff(tc.attempt, initial, 2.0, max); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
