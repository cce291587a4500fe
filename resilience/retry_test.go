package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fame-ai/orchestrator/resilience"
)

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := resilience.Retry(context.Background(), &resilience.RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhausted(t *testing.T) {
	err := resilience.Retry(context.Background(), &resilience.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}, func() error {
		return errors.New("always fails")
	})

	require.Error(t, err)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test", 2, 50*time.Millisecond)

	assert.True(t, cb.CanExecute())
	cb.RecordFailure()
	assert.True(t, cb.CanExecute())
	cb.RecordFailure()
	assert.Equal(t, "open", cb.State())
	assert.False(t, cb.CanExecute())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, "half-open", cb.State())

	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.State())
}
