// Package scheduler runs periodic analyses on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"
)

// ErrCircuitOpen is returned for runs skipped by an open circuit breaker
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Job is one scheduled run. ctx is cancelled when the runner stops.
type Job func(ctx context.Context) error

// Runner triggers a Job on a standard five field cron schedule. A run that is
// still in progress when the next one is due causes that next run to be
// skipped.
type Runner struct {
	spec     string
	schedule cron.Schedule
	location *time.Location
	job      Job
	breaker  *CircuitBreaker

	mu      sync.Mutex
	runs    int
	lastErr error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a cron expression
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %s: %w", spec, err)
	}
	return nil
}

// Option customizes a Runner
type Option func(*Runner)

// WithCircuitBreaker skips runs while cb is open
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(r *Runner) { r.breaker = cb }
}

// NewRunner creates a runner for spec evaluated in location (UTC when nil)
func NewRunner(spec string, location *time.Location, job Job, opts ...Option) (*Runner, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler job must not be nil")
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %s: %w", spec, err)
	}
	if location == nil {
		location = time.UTC
	}
	r := &Runner{spec: spec, schedule: schedule, location: location, job: job}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Next returns the first run strictly after from
func (r *Runner) Next(from time.Time) time.Time {
	return r.schedule.Next(from.In(r.location))
}

// NextRuns returns the next n run times after from
func (r *Runner) NextRuns(from time.Time, n int) []time.Time {
	runs := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = r.Next(next)
		runs = append(runs, next)
	}
	return runs
}

// Run blocks until ctx is done, triggering the job on schedule. It waits for
// an in-flight job before returning.
func (r *Runner) Run(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(r.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(r.spec, func() { r.trigger(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	klog.Infof("Scheduler started with schedule %q, next run at %s", r.spec, r.Next(time.Now()).Format(time.RFC3339))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	klog.Info("Scheduler stopped")
	return nil
}

// RunNow triggers the job immediately on the calling goroutine
func (r *Runner) RunNow(ctx context.Context) error {
	return r.trigger(ctx)
}

func (r *Runner) trigger(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r.breaker != nil && !r.breaker.ShouldAllow() {
		klog.V(2).Info("Skipping scheduled run, circuit breaker is open")
		return ErrCircuitOpen
	}
	start := time.Now()
	err := r.job(ctx)
	if r.breaker != nil {
		if err != nil {
			r.breaker.RecordFailure(err)
		} else {
			r.breaker.RecordSuccess()
		}
	}

	r.mu.Lock()
	r.runs++
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		klog.Errorf("Scheduled run failed after %v: %v", time.Since(start), err)
		return err
	}
	klog.V(2).Infof("Scheduled run completed in %v", time.Since(start))
	return nil
}

// Stats returns the number of completed runs and the error of the last one
func (r *Runner) Stats() (runs int, lastErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.lastErr
}

// cronLogger routes cron's structured logs to klog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	klog.V(4).InfoS(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	klog.ErrorS(err, msg, keysAndValues...)
}
