package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func noop(context.Context) error { return nil }

func TestValidate(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 2 * * 1-5", false},
		{"@hourly", false},
		{"@every 30s", false},
		{"not a cron", true},
		{"* * * *", true},
		{"0 0 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := Validate(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewRunnerRejectsInvalidInput(t *testing.T) {
	if _, err := NewRunner("bad", nil, noop); err == nil {
		t.Error("Expected error for an invalid schedule")
	}
	if _, err := NewRunner("*/5 * * * *", nil, nil); err == nil {
		t.Error("Expected error for a nil job")
	}
}

func TestNextRuns(t *testing.T) {
	runner, err := NewRunner("*/5 * * * *", nil, noop)
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}

	from := time.Date(2024, 5, 6, 12, 3, 20, 0, time.UTC)
	want := []time.Time{
		time.Date(2024, 5, 6, 12, 5, 0, 0, time.UTC),
		time.Date(2024, 5, 6, 12, 10, 0, 0, time.UTC),
		time.Date(2024, 5, 6, 12, 15, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, runner.NextRuns(from, 3)); diff != "" {
		t.Errorf("NextRuns mismatch (-want +got):\n%s", diff)
	}
}

func TestNextHonorsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	runner, err := NewRunner("0 9 * * *", loc, noop)
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}

	next := runner.Next(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC))
	if !next.Equal(time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected 07:00 UTC, got %v", next.UTC())
	}
}

func TestRunNowRecordsStats(t *testing.T) {
	failure := errors.New("store unavailable")
	calls := 0
	runner, err := NewRunner("@hourly", nil, func(context.Context) error {
		calls++
		if calls == 2 {
			return failure
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}

	if err := runner.RunNow(context.Background()); err != nil {
		t.Errorf("Expected first run to succeed, got %v", err)
	}
	if err := runner.RunNow(context.Background()); !errors.Is(err, failure) {
		t.Errorf("Expected %v, got %v", failure, err)
	}

	runs, lastErr := runner.Stats()
	if runs != 2 || !errors.Is(lastErr, failure) {
		t.Errorf("Expected 2 runs ending in failure, got %d runs and %v", runs, lastErr)
	}
}

func TestRunNowCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner, _ := NewRunner("@hourly", nil, func(context.Context) error {
		t.Error("Job should not run with a cancelled context")
		return nil
	})
	if err := runner.RunNow(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRunTriggersJobUntilCancelled(t *testing.T) {
	triggered := make(chan struct{}, 1)
	runner, err := NewRunner("@every 1s", nil, func(context.Context) error {
		select {
		case triggered <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("Job was not triggered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
