package retry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = time.Minute
)

// Sleeper waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was cut short.
type Sleeper func(ctx context.Context, d time.Duration) error

// Advised is implemented by errors that carry a server-advised wait,
// usually taken from a Retry-After header. Zero means no advice.
type Advised interface {
	RetryDelay() time.Duration
}

// Config controls retry behavior.
type Config struct {
	// MaxRetries is the total number of attempts, the first one included.
	// Zero or negative means DefaultMaxRetries.
	MaxRetries int

	// BaseDelay doubles after every failed attempt. Zero means DefaultBaseDelay.
	BaseDelay time.Duration

	// MaxDelay caps both the computed backoff and advised waits.
	// Zero means DefaultMaxDelay.
	MaxDelay time.Duration

	// DelayFunc replaces the backoff calculation. A negative result retries
	// without waiting.
	DelayFunc func(attempt int, err error) time.Duration

	// ShouldRetry decides whether err is worth another attempt.
	// If nil, only errors marked with RetryableError are retried.
	ShouldRetry func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep defaults to SleepContext.
	Sleep Sleeper
}

// RetryableError marks an error as explicitly retryable.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	if e.Err == nil {
		return "retryable error"
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err or any wrapped error is a RetryableError.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryAfterDelay parses a Retry-After header, either delay-seconds or an
// HTTP date. Empty or malformed values give fallback.
func RetryAfterDelay(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}

	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}

	if ts, err := http.ParseTime(header); err == nil {
		if wait := time.Until(ts); wait > 0 {
			return wait
		}
		return 0
	}

	return fallback
}

// AdvisedDelay returns the wait advised by err or any error it wraps.
func AdvisedDelay(err error) (time.Duration, bool) {
	var a Advised
	if errors.As(err, &a) {
		if d := a.RetryDelay(); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func (cfg Config) delay(attempt int, err error) time.Duration {
	if cfg.DelayFunc != nil {
		return cfg.DelayFunc(attempt, err)
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	if d, ok := AdvisedDelay(err); ok {
		return min(d, maxDelay)
	}

	base := cfg.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	// No jitter, so tests can assert exact delays.
	return min(base*time.Duration(1<<attempt), maxDelay)
}

// Do runs op until it succeeds, fails with an error ShouldRetry rejects, or
// MaxRetries attempts are spent. Between attempts it waits for the advised
// delay or an exponential backoff. The last error is returned as is.
func Do(ctx context.Context, cfg Config, op func(attempt int) error) error {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries-1 || !shouldRetry(lastErr) {
			return lastErr
		}

		delay := cfg.delay(attempt, lastErr)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}
		if delay < 0 {
			continue
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}
