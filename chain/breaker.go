package chain

import (
	"sync"
	"time"
)

// CircuitState is the state of an endpoint's circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows calls; the endpoint is healthy.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen allows a single trial call.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker tracks consecutive failures for one RPC endpoint.
// After failureThreshold consecutive failures the circuit opens and rejects
// use for coolDown; the next allowed call is a half-open trial that either
// closes the circuit again or re-opens it for another cool-down period.
type CircuitBreaker struct {
	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time

	failureThreshold int
	coolDown         time.Duration
	now              func() time.Time
}

// NewCircuitBreaker returns a breaker with the given threshold and cool-down.
func NewCircuitBreaker(failureThreshold int, coolDown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		coolDown:         coolDown,
		now:              time.Now,
	}
}

// Allow reports whether a call may be attempted, transitioning an open
// circuit to half-open once the cool-down has elapsed. The transition admits
// exactly one trial call: half-open means the trial is in flight, so
// concurrent callers are rejected until Success or Failure resolves it.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.coolDown {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	case CircuitHalfOpen:
		return false
	}
	return false
}

// Success records a successful call, closing the circuit and resetting the
// consecutive-failure counter.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = CircuitClosed
}

// Failure records a failed call. A half-open trial failure re-opens the
// circuit immediately; otherwise the circuit opens once the consecutive
// failure count reaches the threshold.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
