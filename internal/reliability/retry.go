// Package reliability provides the bounded-retry executor used for remote
// API calls. Backoff is an explicit loop with a computed delay, never
// recursive.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrRetryAborted       = errors.New("retry aborted")
)

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// Config holds retry configuration.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool

	// IsRetryable decides whether an error is worth another attempt.
	// Context errors never are. Defaults to retrying everything else.
	IsRetryable func(err error) bool
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.IsRetryable == nil {
		c.IsRetryable = func(error) bool { return true }
	}
}

// Retry executes fn with exponential backoff. The delay before attempt n is
// min(initial * multiplier^(n-1), max). Non-retryable errors propagate
// immediately; exhaustion wraps the last error in ErrMaxRetriesExceeded.
func Retry(ctx context.Context, config Config, fn RetryFunc) error {
	config.applyDefaults()

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrRetryAborted, err)
			}
		}

		if !config.IsRetryable(err) {
			return err
		}

		if attempt == config.MaxRetries {
			break
		}

		backoff := Backoff(attempt, config.InitialBackoff, config.Multiplier, config.MaxBackoff)
		if config.Jitter {
			backoff = addJitter(backoff)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrRetryAborted, ctx.Err())
		case <-time.After(backoff):
		}
	}

	// Both sentinels stay in the chain so callers can match the typed
	// cause with errors.As after exhaustion.
	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// Backoff computes the exponential delay for a zero-based attempt counter.
func Backoff(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	d := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if d > max || d < 0 {
		d = max
	}
	return d
}

// addJitter adds up to ±20% randomness to a delay.
func addJitter(d time.Duration) time.Duration {
	jitter := float64(d) * 0.2
	return time.Duration(float64(d) + (rand.Float64()-0.5)*jitter)
}
