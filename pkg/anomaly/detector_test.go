package anomaly

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
)

var fixedNow = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func newTestDetector(opts ...Option) *Detector {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewDetector(config.Default(), opts...)
}

// Test data generators

// generateSnapshots builds n chronological snapshots 10s apart, letting fill
// set the fields for each index
func generateSnapshots(n int, fill func(i int, s *models.Snapshot)) []models.Snapshot {
	start := fixedNow.Add(-time.Duration(n) * 10 * time.Second)
	snaps := make([]models.Snapshot, n)
	for i := range snaps {
		snaps[i] = models.Snapshot{
			ServiceName: "checkout",
			Timestamp:   start.Add(time.Duration(i) * 10 * time.Second),
		}
		fill(i, &snaps[i])
	}
	return snaps
}

// stableAround returns a small deterministic wobble around base
func stableAround(i int, base float64) float64 {
	return base + float64(i%5-2)*0.5
}

func filter(anomalies []models.Anomaly, metric models.MetricType, kind models.AnomalyType) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range anomalies {
		if a.MetricType == metric && a.AnomalyType == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestDetect_CPUSpike(t *testing.T) {
	snaps := generateSnapshots(50, func(i int, s *models.Snapshot) {
		s.CPUPercent = stableAround(i, 30)
		if i == 49 {
			s.CPUPercent = 95
		}
	})

	anomalies := newTestDetector().Detect("checkout", snaps)

	spikes := filter(anomalies, models.MetricCPU, models.AnomalySpike)
	if len(spikes) == 0 {
		t.Fatalf("expected a CPU spike, got %+v", anomalies)
	}
	spike := spikes[0]
	if !spike.Severity.AtLeast(models.SeverityMedium) {
		t.Errorf("expected severity at least MEDIUM, got %s", spike.Severity)
	}
	if spike.ActualValue != 95 {
		t.Errorf("expected actual value 95, got %f", spike.ActualValue)
	}
	if spike.MetricName != "cpu_usage_percent" {
		t.Errorf("expected metric name cpu_usage_percent, got %s", spike.MetricName)
	}
	if !spike.DetectedAt.Equal(fixedNow) {
		t.Errorf("expected detectedAt from injected clock, got %v", spike.DetectedAt)
	}
	if spike.ID == "" {
		t.Error("expected anomaly ID to be set")
	}
}

func TestDetect_CPUDrop(t *testing.T) {
	snaps := generateSnapshots(30, func(i int, s *models.Snapshot) {
		s.CPUPercent = stableAround(i, 60)
		if i == 29 {
			s.CPUPercent = 5
		}
	})

	drops := filter(newTestDetector().Detect("checkout", snaps), models.MetricCPU, models.AnomalyDrop)
	if len(drops) != 1 {
		t.Fatalf("expected 1 CPU drop, got %d", len(drops))
	}
	if drops[0].ZScore >= 0 {
		t.Errorf("expected negative z-score, got %f", drops[0].ZScore)
	}
}

func TestDetect_SustainedHighCPU(t *testing.T) {
	snaps := generateSnapshots(12, func(i int, s *models.Snapshot) {
		s.CPUPercent = 85
	})

	anomalies := newTestDetector().Detect("checkout", snaps)

	sustained := filter(anomalies, models.MetricCPU, models.AnomalySustainedHigh)
	if len(sustained) != 1 {
		t.Fatalf("expected 1 sustained-high anomaly, got %d", len(sustained))
	}
	if sustained[0].Severity != models.SeverityHigh {
		t.Errorf("expected HIGH, got %s", sustained[0].Severity)
	}
	if sustained[0].ExpectedValue != 80 || sustained[0].ZScore != 0 {
		t.Errorf("expected expected=80 z=0, got %f %f", sustained[0].ExpectedValue, sustained[0].ZScore)
	}
	// constant window has zero stddev, so no spike
	if len(filter(anomalies, models.MetricCPU, models.AnomalySpike)) != 0 {
		t.Error("expected no spike for a constant window")
	}
}

func TestDetect_SustainedNeedsEverySample(t *testing.T) {
	snaps := generateSnapshots(12, func(i int, s *models.Snapshot) {
		s.CPUPercent = 85
		if i == 9 {
			s.CPUPercent = 80 // not strictly above the threshold
		}
	})

	if got := filter(newTestDetector().Detect("checkout", snaps), models.MetricCPU, models.AnomalySustainedHigh); len(got) != 0 {
		t.Errorf("expected no sustained anomaly, got %d", len(got))
	}
}

func TestDetect_MemoryLeak(t *testing.T) {
	snaps := generateSnapshots(50, func(i int, s *models.Snapshot) {
		s.HeapPercent = 30 + 60*float64(i)/49
	})

	leaks := filter(newTestDetector().Detect("checkout", snaps), models.MetricMemory, models.AnomalyPatternBreak)
	if len(leaks) != 1 {
		t.Fatalf("expected 1 leak anomaly, got %d", len(leaks))
	}
	leak := leaks[0]
	if leak.Severity != models.SeverityHigh {
		t.Errorf("expected HIGH, got %s", leak.Severity)
	}
	if leak.ExpectedValue != 30 {
		t.Errorf("expected expected value to be the first sample 30, got %f", leak.ExpectedValue)
	}
	if leak.Threshold != 0.05 {
		t.Errorf("expected threshold 0.05, got %f", leak.Threshold)
	}
	// 1.22%/sample every 10s leaves the last 10% of heap about 82s away
	if !strings.HasSuffix(leak.Description, ", projected heap exhaustion in 1m0s") {
		t.Errorf("expected exhaustion projection in %q", leak.Description)
	}
}

func TestDetect_PoolExhaustion(t *testing.T) {
	snaps := generateSnapshots(10, func(i int, s *models.Snapshot) {
		s.PoolMax = models.Int32(20)
		if i >= 4 {
			s.PoolActive = models.Int32(20)
		} else {
			s.PoolActive = models.Int32(8)
		}
	})

	anomalies := filter(newTestDetector().Detect("checkout", snaps), models.MetricPool, models.AnomalySpike)

	var exhaustion *models.Anomaly
	for i := range anomalies {
		if anomalies[i].Severity == models.SeverityCritical && anomalies[i].ExpectedValue == 90 {
			exhaustion = &anomalies[i]
		}
	}
	if exhaustion == nil {
		t.Fatalf("expected CRITICAL pool exhaustion anomaly, got %+v", anomalies)
	}
	if exhaustion.ActualValue < 99.9 || exhaustion.ActualValue > 100.1 {
		t.Errorf("expected actual value ~100, got %f", exhaustion.ActualValue)
	}
	if exhaustion.Description != "Connection pool exhaustion: 20/20 connections in use (100.0%)" {
		t.Errorf("unexpected description %q", exhaustion.Description)
	}
}

func TestDetect_PoolSpikeIgnoresLowUtilization(t *testing.T) {
	snaps := generateSnapshots(20, func(i int, s *models.Snapshot) {
		s.PoolMax = models.Int32(100)
		s.PoolActive = models.Int32(1)
		if i == 19 {
			s.PoolActive = models.Int32(40)
		}
	})

	if got := newTestDetector().Detect("checkout", snaps); len(got) != 0 {
		t.Errorf("expected no pool anomaly below 50%% usage, got %+v", got)
	}
}

func TestDetect_LatencyIsOneSided(t *testing.T) {
	fast := generateSnapshots(30, func(i int, s *models.Snapshot) {
		s.HTTPDurationP95 = stableAround(i, 200)
		if i == 29 {
			s.HTTPDurationP95 = 20
		}
	})
	if got := newTestDetector().Detect("checkout", fast); len(got) != 0 {
		t.Errorf("expected latency drop to be ignored, got %+v", got)
	}

	slow := generateSnapshots(30, func(i int, s *models.Snapshot) {
		s.HTTPDurationP95 = stableAround(i, 200)
		if i == 29 {
			s.HTTPDurationP95 = 1500
		}
	})
	anomalies := newTestDetector().Detect("checkout", slow)
	if len(filter(anomalies, models.MetricLatency, models.AnomalySpike)) != 1 {
		t.Errorf("expected latency spike, got %+v", anomalies)
	}
	if len(filter(anomalies, models.MetricLatency, models.AnomalySustainedHigh)) != 1 {
		t.Errorf("expected latency threshold breach, got %+v", anomalies)
	}
}

func TestDetect_InsufficientOrEmpty(t *testing.T) {
	d := newTestDetector()

	if got := d.Detect("checkout", nil); len(got) != 0 {
		t.Errorf("expected no anomalies for empty input, got %d", len(got))
	}

	short := generateSnapshots(9, func(i int, s *models.Snapshot) {
		s.CPUPercent = 90
		s.HeapPercent = float64(10 * i)
	})
	if got := d.Detect("checkout", short); len(got) != 0 {
		t.Errorf("expected no anomalies below minimum samples, got %+v", got)
	}
}

func TestDetect_Disabled(t *testing.T) {
	cfg := config.Default()
	cfg.Anomaly.Enabled = false
	d := NewDetector(cfg)

	snaps := generateSnapshots(20, func(i int, s *models.Snapshot) { s.CPUPercent = 95 })
	if got := d.Detect("checkout", snaps); got != nil {
		t.Errorf("expected nil when disabled, got %+v", got)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	snaps := generateSnapshots(50, func(i int, s *models.Snapshot) {
		s.CPUPercent = stableAround(i, 30)
		s.HeapPercent = 30 + float64(i)
		s.PoolMax = models.Int32(10)
		s.PoolActive = models.Int32(int32(i % 10))
		if i == 49 {
			s.CPUPercent = 95
			s.PoolActive = models.Int32(10)
		}
	})
	d := newTestDetector()

	first := d.Detect("checkout", snaps)
	second := d.Detect("checkout", snaps)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("expected identical results across calls (-first +second):\n%s", diff)
	}

	seen := make(map[string]bool)
	for _, a := range first {
		if seen[a.ID] {
			t.Errorf("duplicate anomaly ID %s", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestSeverity_Monotonic(t *testing.T) {
	d := newTestDetector()
	prev := d.Severity(0)
	for z := 0.0; z <= 6; z += 0.01 {
		cur := d.Severity(z)
		if cur.Rank() < prev.Rank() {
			t.Fatalf("severity decreased at |z|=%.2f: %s after %s", z, cur, prev)
		}
		prev = cur
	}

	tests := []struct {
		z    float64
		want models.Severity
	}{
		{1.9, models.SeverityLow},
		{2.0, models.SeverityMedium},
		{2.5, models.SeverityHigh},
		{3.0, models.SeverityCritical},
	}
	for _, tt := range tests {
		if got := d.Severity(tt.z); got != tt.want {
			t.Errorf("|z|=%v: expected %s, got %s", tt.z, tt.want, got)
		}
	}
}

type staticRules struct {
	calls int
}

func (r *staticRules) Evaluate(service string, snaps []models.Snapshot, at time.Time) []models.Anomaly {
	r.calls++
	return []models.Anomaly{{Service: service, MetricName: "rule:test", DetectedAt: at}}
}

func TestDetect_AppendsRuleAnomalies(t *testing.T) {
	rules := &staticRules{}
	d := newTestDetector(WithRules(rules))

	snaps := generateSnapshots(3, func(i int, s *models.Snapshot) { s.CPUPercent = 10 })
	got := d.Detect("checkout", snaps)

	if rules.calls != 1 {
		t.Errorf("expected rules to be evaluated once, got %d", rules.calls)
	}
	if len(got) != 1 || got[0].MetricName != "rule:test" {
		t.Errorf("expected the rule anomaly, got %+v", got)
	}
}
