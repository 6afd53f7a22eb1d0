package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var errRun = errors.New("run failed")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(3, 2, time.Minute, clock.now)

	for i := 0; i < 2; i++ {
		if cb.RecordFailure(errRun) {
			t.Errorf("Expected no state change on failure %d", i+1)
		}
	}
	if !cb.ShouldAllow() {
		t.Error("Expected runs allowed below the threshold")
	}
	if !cb.RecordFailure(errRun) {
		t.Error("Expected the third failure to open the breaker")
	}
	if cb.State() != CircuitOpen || cb.ShouldAllow() {
		t.Errorf("Expected an open breaker to block runs, got %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsErrors(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Minute, nil)

	cb.RecordFailure(errRun)
	cb.RecordSuccess()
	cb.RecordFailure(errRun)
	if cb.State() != CircuitClosed {
		t.Errorf("Expected success to reset consecutive errors, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(1, 2, time.Minute, clock.now)
	cb.RecordFailure(errRun)

	clock.advance(30 * time.Second)
	if cb.ShouldAllow() {
		t.Error("Expected runs blocked before the timeout")
	}

	clock.advance(30 * time.Second)
	if !cb.ShouldAllow() || cb.State() != CircuitHalfOpen {
		t.Fatalf("Expected half-open after the timeout, got %s", cb.State())
	}
	if cb.RecordSuccess() {
		t.Error("Expected one success to keep the breaker half-open")
	}
	if !cb.RecordSuccess() || cb.State() != CircuitClosed {
		t.Errorf("Expected two successes to close the breaker, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(3, 2, time.Minute, clock.now)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(errRun)
	}

	clock.advance(time.Minute)
	cb.ShouldAllow()
	if !cb.RecordFailure(errRun) || cb.State() != CircuitOpen {
		t.Errorf("Expected a half-open failure to reopen, got %s", cb.State())
	}
	if cb.ShouldAllow() {
		t.Error("Expected the timeout to restart from the latest failure")
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0, 0, nil)
	if cb.failureThreshold != defaultFailureThreshold || cb.successThreshold != defaultSuccessThreshold || cb.timeout != defaultBreakerTimeout {
		t.Errorf("Expected defaults, got %d/%d/%v", cb.failureThreshold, cb.successThreshold, cb.timeout)
	}
}

func TestRunner_BreakerSkipsRuns(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)}
	calls := 0
	runner, err := NewRunner("@hourly", nil, func(context.Context) error {
		calls++
		return errRun
	}, WithCircuitBreaker(NewCircuitBreaker(2, 1, time.Minute, clock.now)))
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := runner.RunNow(context.Background()); !errors.Is(err, errRun) {
			t.Errorf("Expected run %d to fail with %v, got %v", i+1, errRun, err)
		}
	}
	if err := runner.RunNow(context.Background()); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected the job to run twice, got %d", calls)
	}

	clock.advance(time.Minute)
	_ = runner.RunNow(context.Background())
	if calls != 3 {
		t.Errorf("Expected a single half-open trial run, got %d calls", calls)
	}
}
