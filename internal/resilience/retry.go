package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig shapes the backoff schedule for calls to flaky upstreams.
// The zero value is usable; defaults are applied on use.
type RetryConfig struct {
	// MaxAttempts bounds total tries, first call included. 1 disables
	// retries. Defaults to 3.
	MaxAttempts int

	// InitialBackoff is the sleep before the second attempt. Defaults
	// to 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the sleep between attempts. Defaults to 30s.
	MaxBackoff time.Duration

	// Multiplier grows the sleep after every failed attempt. Defaults
	// to 2.
	Multiplier float64

	// JitterFraction randomizes each sleep by up to this fraction in
	// either direction. Defaults to 0.25.
	JitterFraction float64

	// ShouldRetry overrides the transient-error check. Nil means
	// IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry fires before each sleep with the 1-based number of the
	// attempt that just failed and its error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is tuned for the external APIs the engine talks to.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Do runs fn with backoff between failed attempts. Only transient errors
// are retried; anything else comes back to the caller untouched. A
// cancelled ctx stops the loop immediately.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value. The value of the last,
// successful attempt is returned.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = withDefaults(cfg)
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}

		// Permanent errors and cancelled contexts are not worth a retry.
		if ctx.Err() != nil || !retryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(backoffDelay(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func withDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// backoffDelay computes the sleep after the given 1-based attempt:
// InitialBackoff times Multiplier^(attempt-1), capped, then jittered.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	d := float64(cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= cfg.Multiplier
		if d >= float64(cfg.MaxBackoff) {
			break
		}
	}
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}

	if cfg.JitterFraction > 0 {
		span := d * cfg.JitterFraction
		d += span * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RetryLogger builds an OnRetry hook that records each retry at warn
// level, tagged with the upstream service and operation.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying upstream call",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
