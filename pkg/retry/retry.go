// Package retry repeats failed node, sink and broker calls with exponential backoff.
// Only errors classified as retryable are repeated; everything else returns at once.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/bardlex/gominer/pkg/errors"
)

// Config is a backoff policy
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter adds up to this fraction of the delay at random
	Jitter float64
}

// NetworkConfig is the policy for broker writes
func NetworkConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  1.5,
		Jitter:      0.1,
	}
}

// NodeConfig is the policy for read calls against the node.
// Attempts stay low: the worker loop already retries on its own cadence.
func NodeConfig() *Config {
	return &Config{
		MaxAttempts: 2,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// SinkConfig is the policy for telemetry writes
func SinkConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Do runs fn under the policy
func Do(ctx context.Context, config *Config, fn func() error) error {
	_, err := DoWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult runs fn under the policy and returns its first successful result.
// A non-retryable error is returned unchanged; running out of attempts wraps the last
// error as internal. A nil config means a single attempt.
func DoWithResult[T any](ctx context.Context, config *Config, fn func() (T, error)) (T, error) {
	attempts := 1
	if config != nil && config.MaxAttempts > 1 {
		attempts = config.MaxAttempts
	}

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !errors.IsRetryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			return zero, errors.Wrap(err, errors.ErrorTypeInternal, "retry", "giving up").
				With("attempts", attempts)
		}
		if waitErr := Wait(ctx, config.Delay(attempt)); waitErr != nil {
			return zero, waitErr
		}
	}
}

// Delay is the backoff before retrying after the given zero-based attempt
func (c *Config) Delay(attempt int) time.Duration {
	delay := float64(c.BaseDelay)
	for range attempt {
		delay *= c.Multiplier
		if delay >= float64(c.MaxDelay) {
			break
		}
	}
	delay = min(delay, float64(c.MaxDelay))

	if c.Jitter > 0 {
		delay += delay * c.Jitter * rand.Float64()
	}
	return time.Duration(delay)
}

// Wait blocks for d or until ctx is done, whichever comes first
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
