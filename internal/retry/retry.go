package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

// DefaultConfig returns the policy used for vendor API fetches
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// IsRetryable checks if an error should be retried
type IsRetryable func(error) bool

// DoWithRetryable executes fn until it succeeds, returns a non-retryable
// error, or MaxAttempts is reached. The last error is returned unchanged so
// callers can classify it with errors.Is.
func DoWithRetryable(ctx context.Context, config Config, isRetryable IsRetryable, fn func(context.Context) error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	backoff := config.InitialBackoff
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt >= config.MaxAttempts {
			return err
		}

		delay := backoff
		if config.Jitter && backoff > 0 {
			// +-25%
			jitter := time.Duration(float64(backoff) * 0.25 * (2*rng.Float64() - 1))
			delay = backoff + jitter
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
