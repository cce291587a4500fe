package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	fame "github.com/fame-ai/orchestrator"
)

// RetryConfig configures Retry's backoff schedule.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig is the schedule Retry uses when given a nil config:
// 3 attempts, 100ms initial delay doubling up to 5s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry runs fn with exponential backoff and jitter, honoring ctx
// cancellation between attempts.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialDelay
	b.MaxInterval = config.MaxDelay
	b.Multiplier = config.BackoffFactor

	operation := func() (struct{}, error) {
		err := fn()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(config.MaxAttempts)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", fame.ErrMaxRetriesExceeded, err)
	}
	return nil
}

// RetryWithCircuitBreaker composes Retry with a CircuitBreaker: a call
// is skipped (and counted as a failure) whenever the breaker is open.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.CanExecute() {
			return fame.ErrCircuitBreakerOpen
		}

		if err := fn(); err != nil {
			cb.RecordFailure()
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}
