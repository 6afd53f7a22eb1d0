package scheduler

import (
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// CircuitState is the state of a CircuitBreaker
type CircuitState string

const (
	CircuitClosed   CircuitState = "Closed"
	CircuitOpen     CircuitState = "Open"
	CircuitHalfOpen CircuitState = "HalfOpen"
)

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 3
	defaultBreakerTimeout   = 5 * time.Minute
)

// CircuitBreaker stops scheduled runs after repeated failures. Once the
// timeout has passed since the last failure it lets runs through again in
// half-open state and closes after enough consecutive successes.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	now              func() time.Time

	mu                   sync.Mutex
	state                CircuitState
	consecutiveErrors    int
	consecutiveSuccesses int
	lastFailure          time.Time
	totalFailed          int
}

// NewCircuitBreaker creates a closed breaker. Non-positive settings fall back
// to 5 failures, 3 successes and a 5 minute timeout.
func NewCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration, now func() time.Time) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if successThreshold <= 0 {
		successThreshold = defaultSuccessThreshold
	}
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              now,
		state:            CircuitClosed,
	}
}

// ShouldAllow reports whether a run may proceed
func (cb *CircuitBreaker) ShouldAllow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if elapsed := cb.now().Sub(cb.lastFailure); elapsed >= cb.timeout {
		cb.state = CircuitHalfOpen
		cb.consecutiveErrors = 0
		cb.consecutiveSuccesses = 0
		klog.Infof("Circuit breaker entering half-open state after %v timeout", cb.timeout)
		return true
	}
	return false
}

// RecordSuccess records a successful run and reports whether the state changed
func (cb *CircuitBreaker) RecordSuccess() (stateChanged bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveErrors = 0
	cb.consecutiveSuccesses++

	if cb.state == CircuitHalfOpen && cb.consecutiveSuccesses >= cb.successThreshold {
		cb.state = CircuitClosed
		cb.consecutiveSuccesses = 0
		klog.Infof("Circuit breaker closed after %d consecutive successes", cb.successThreshold)
		return true
	}
	return false
}

// RecordFailure records a failed run and reports whether the state changed.
// A failure in half-open state reopens the breaker immediately.
func (cb *CircuitBreaker) RecordFailure(err error) (stateChanged bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveSuccesses = 0
	cb.consecutiveErrors++
	cb.totalFailed++
	cb.lastFailure = cb.now()

	if cb.state == CircuitOpen {
		return false
	}
	if cb.state == CircuitHalfOpen || cb.consecutiveErrors >= cb.failureThreshold {
		cb.state = CircuitOpen
		klog.Warningf("Circuit breaker opened after %d consecutive errors: %v", cb.consecutiveErrors, err)
		return true
	}
	return false
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
