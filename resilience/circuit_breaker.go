// Package resilience provides retry and circuit-breaker primitives. The
// orchestrator wraps its pipeline in a CircuitBreaker; Retry has no
// caller inside this module.
package resilience

import (
	"sync"
	"time"
)

// CircuitBreaker is a simple closed/open/half-open breaker: protects a
// downstream dependency (a sandbox runtime, a flaky handler) from
// cascading retries once it has failed enough times in a row.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	mu              sync.RWMutex
	state           string // "closed", "open", "half-open"
	failureCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker builds a breaker that opens after threshold
// consecutive failures and attempts recovery after timeout.
func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: threshold,
		recoveryTimeout:  timeout,
		state:            "closed",
	}
}

// CanExecute reports whether a call should be allowed through. An open
// breaker whose recovery timeout has elapsed moves to half-open; while
// half-open every call is allowed through until the next RecordSuccess
// or RecordFailure.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "open" {
		if time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
			cb.state = "half-open"
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = "closed"
	cb.failureCount = 0
}

// RecordFailure bumps the failure count and opens the breaker once the
// threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.failureThreshold {
		cb.state = "open"
	}
}

// State returns the current state string, for metrics/logging.
func (cb *CircuitBreaker) State() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the breaker back to closed, clearing failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "closed"
	cb.failureCount = 0
}
