package workload

import (
	"errors"
	"math"
	"testing"
	"time"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/timepattern"
)

// Monday
var start = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int, cpuAt func(i int, ts time.Time) float64) []models.Snapshot {
	snaps := make([]models.Snapshot, n)
	for i := range snaps {
		ts := start.Add(time.Duration(i) * time.Hour)
		snaps[i] = models.Snapshot{ServiceName: "orders", Timestamp: ts, CPUPercent: cpuAt(i, ts), HeapPercent: 40}
	}
	return snaps
}

func cosineDay(_ int, ts time.Time) float64 {
	return 50 + 30*math.Cos(2*math.Pi*float64(ts.Hour()-14)/24)
}

func newTestClassifier() *Classifier {
	return NewClassifier(config.Default())
}

func TestClassifyPeriodicWeek(t *testing.T) {
	profile, err := newTestClassifier().Classify("orders", hourly(168, cosineDay))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if profile.Pattern != models.PatternPeriodic {
		t.Errorf("expected PERIODIC, got %s", profile.Pattern)
	}
	if profile.RecommendedStrategy != models.StrategyScheduledScaling {
		t.Errorf("expected SCHEDULED_SCALING, got %s", profile.RecommendedStrategy)
	}
	f := profile.Features
	if f.PeriodicityScore < 0.99 {
		t.Errorf("expected periodicity close to 1, got %.3f", f.PeriodicityScore)
	}
	if f.BurstinessScore != 0 {
		t.Errorf("expected no bursts, got %v", f.BurstinessScore)
	}
	if cv := f.CoefficientOfVariation(); math.Abs(cv-0.424) > 0.01 {
		t.Errorf("expected CV around 0.424, got %.3f", cv)
	}
	if math.Abs(f.PeakHourUtilization-80) > 1e-9 || math.Abs(f.OffPeakUtilization-20) > 1e-9 {
		t.Errorf("expected peak/off-peak 80/20, got %v/%v", f.PeakHourUtilization, f.OffPeakUtilization)
	}
	if f.Autocorrelation24h < 0.8 {
		t.Errorf("expected strong daily autocorrelation, got %.3f", f.Autocorrelation24h)
	}
	if f.Autocorrelation7d != 0 {
		t.Errorf("expected no weekly autocorrelation from a single week, got %v", f.Autocorrelation7d)
	}

	if profile.ConfidenceScore != 90 {
		t.Errorf("expected confidence 90, got %v", profile.ConfidenceScore)
	}
	if profile.EstimatedSavings != 350 {
		t.Errorf("expected savings 350, got %v", profile.EstimatedSavings)
	}
	if profile.Description != models.PatternPeriodic.Description() {
		t.Errorf("unexpected description %q", profile.Description)
	}
	if profile.AnalysisWindowDays != 7 || profile.SampleCount != 168 {
		t.Errorf("expected 7 days / 168 samples, got %d / %d", profile.AnalysisWindowDays, profile.SampleCount)
	}
}

func TestClassifyEndToEnd(t *testing.T) {
	tests := []struct {
		name     string
		cpuAt    func(i int, ts time.Time) float64
		pattern  models.WorkloadPattern
		strategy models.OptimizationStrategy
	}{
		{
			name:     "constant",
			cpuAt:    func(int, time.Time) float64 { return 50 },
			pattern:  models.PatternSteadyState,
			strategy: models.StrategyReservedCapacity,
		},
		{
			name:     "growing",
			cpuAt:    func(i int, _ time.Time) float64 { return 10 + 0.6*float64(i) },
			pattern:  models.PatternGrowing,
			strategy: models.StrategyPredictiveScaling,
		},
		{
			name:     "declining",
			cpuAt:    func(i int, _ time.Time) float64 { return 110 - 0.6*float64(i) },
			pattern:  models.PatternDeclining,
			strategy: models.StrategyServiceConsolidation,
		},
		{
			name:     "periodic",
			cpuAt:    cosineDay,
			pattern:  models.PatternPeriodic,
			strategy: models.StrategyScheduledScaling,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := newTestClassifier().Classify("orders", hourly(168, tt.cpuAt))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if profile.Pattern != tt.pattern {
				t.Errorf("expected %s, got %s", tt.pattern, profile.Pattern)
			}
			if profile.RecommendedStrategy != tt.strategy {
				t.Errorf("expected %s, got %s", tt.strategy, profile.RecommendedStrategy)
			}
		})
	}
}

func TestDecidePriorityOrder(t *testing.T) {
	c := newTestClassifier()
	tests := []struct {
		name string
		f    models.WorkloadFeatures
		want models.WorkloadPattern
	}{
		{
			name: "declining beats everything",
			f:    models.WorkloadFeatures{CPUTrendSlope: -0.6, CPUMean: 50, CPUStdDev: 40, BurstinessScore: 0.5},
			want: models.PatternDeclining,
		},
		{
			name: "growing",
			f:    models.WorkloadFeatures{CPUTrendSlope: 0.6, CPUMean: 50, CPUMax: 200},
			want: models.PatternGrowing,
		},
		{
			name: "chaotic before bursty",
			f:    models.WorkloadFeatures{CPUMean: 50, CPUStdDev: 30, BurstinessScore: 0.3, PeriodicityScore: 0.1},
			want: models.PatternChaotic,
		},
		{
			name: "high CV but periodic is not chaotic",
			f:    models.WorkloadFeatures{CPUMean: 50, CPUStdDev: 30, CPUMax: 90, PeriodicityScore: 0.6},
			want: models.PatternPeriodic,
		},
		{
			name: "bursty by score",
			f:    models.WorkloadFeatures{CPUMean: 50, CPUStdDev: 10, CPUMax: 80, BurstinessScore: 0.15},
			want: models.PatternBursty,
		},
		{
			name: "bursty by peak ratio",
			f:    models.WorkloadFeatures{CPUMean: 20, CPUStdDev: 5, CPUMax: 45},
			want: models.PatternBursty,
		},
		{
			name: "bursty before periodic",
			f:    models.WorkloadFeatures{CPUMean: 50, CPUStdDev: 10, CPUMax: 80, BurstinessScore: 0.15, PeriodicityScore: 0.9},
			want: models.PatternBursty,
		},
		{
			name: "seasonal",
			f:    models.WorkloadFeatures{CPUMean: 50, CPUStdDev: 20, CPUMax: 90, PeriodicityScore: 0.4},
			want: models.PatternSeasonal,
		},
		{
			name: "mid periodicity with low CV stays steady",
			f:    models.WorkloadFeatures{CPUMean: 50, CPUStdDev: 5, CPUMax: 60, PeriodicityScore: 0.4},
			want: models.PatternSteadyState,
		},
		{
			name: "steady",
			f:    models.WorkloadFeatures{CPUMean: 50, CPUStdDev: 2, CPUMax: 55},
			want: models.PatternSteadyState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Decide(tt.f); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStrategyForBursty(t *testing.T) {
	tests := []struct {
		burstiness float64
		want       models.OptimizationStrategy
	}{
		{0.15, models.StrategySpotInstances},
		{0.2, models.StrategySpotInstances},
		{0.25, models.StrategyAggressiveAutoscale},
	}
	for _, tt := range tests {
		got, err := StrategyFor(models.PatternBursty, models.WorkloadFeatures{BurstinessScore: tt.burstiness})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("burstiness %v: expected %s, got %s", tt.burstiness, tt.want, got)
		}
	}
}

func TestEveryPatternHasStrategyAndSavings(t *testing.T) {
	c := newTestClassifier()
	for _, pattern := range models.AllWorkloadPatterns() {
		strategy, err := StrategyFor(pattern, models.WorkloadFeatures{})
		if err != nil {
			t.Errorf("%s: unexpected error: %v", pattern, err)
		}
		if strategy.Description() == "" {
			t.Errorf("%s: strategy %s has no description", pattern, strategy)
		}
		if _, err := c.EstimatedSavings(pattern); err != nil {
			t.Errorf("%s: unexpected error: %v", pattern, err)
		}
		if pattern.Description() == "" || pattern.DisplayName() == "" {
			t.Errorf("%s: missing display text", pattern)
		}
	}

	if _, err := StrategyFor("LUNAR", models.WorkloadFeatures{}); !errors.Is(err, ErrUnknownPattern) {
		t.Errorf("expected ErrUnknownPattern, got %v", err)
	}
	if _, err := c.EstimatedSavings("LUNAR"); !errors.Is(err, ErrUnknownPattern) {
		t.Errorf("expected ErrUnknownPattern, got %v", err)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name    string
		mean    float64
		stdDev  float64
		samples int
		want    float64
	}{
		{"few samples flat", 50, 0, 10, 65},
		{"saturated sample term, ambiguous CV", 50, 20, 500, 90},
		{"saturated sample term, volatile", 50, 45, 500, 100},
		{"no samples", 0, 0, 0, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := models.WorkloadFeatures{CPUMean: tt.mean, CPUStdDev: tt.stdDev}
			if got := Confidence(f, tt.samples); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBurstiness(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 20
	}
	values[10], values[50] = 95, 95

	if got := Burstiness(values); got != 0.02 {
		t.Errorf("expected 0.02, got %v", got)
	}
	if got := Burstiness(nil); got != 0 {
		t.Errorf("expected 0 for empty input, got %v", got)
	}
}

func TestPeriodicityShortWindow(t *testing.T) {
	profile := timepattern.Group(hourly(23, cosineDay), time.UTC)
	if got := Periodicity(profile); got != 0 {
		t.Errorf("expected 0 below one day of samples, got %v", got)
	}
}

func TestWeekdayWeekendRatio(t *testing.T) {
	snaps := hourly(168, func(_ int, ts time.Time) float64 {
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			return 20
		}
		return 70
	})

	f := newTestClassifier().ExtractFeatures(snaps)
	if math.Abs(f.WeekdayWeekendRatio-3.5) > 1e-9 {
		t.Errorf("expected ratio 3.5, got %v", f.WeekdayWeekendRatio)
	}

	weekdaysOnly := newTestClassifier().ExtractFeatures(hourly(48, func(int, time.Time) float64 { return 40 }))
	if weekdaysOnly.WeekdayWeekendRatio != 1 {
		t.Errorf("expected neutral ratio without weekend data, got %v", weekdaysOnly.WeekdayWeekendRatio)
	}
}

func TestStabilityScore(t *testing.T) {
	flat := newTestClassifier().ExtractFeatures(hourly(48, func(int, time.Time) float64 { return 40 }))
	if flat.StabilityScore != 1 {
		t.Errorf("expected stability 1 for flat usage, got %v", flat.StabilityScore)
	}
	if got := stability(4); got != 0.2 {
		t.Errorf("expected 0.2, got %v", got)
	}
}

func TestClassifyEmptyReturnsDefault(t *testing.T) {
	profile, err := newTestClassifier().Classify("orders", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Pattern != models.PatternSteadyState || profile.RecommendedStrategy != models.StrategyRightSizing {
		t.Errorf("expected STEADY_STATE/RIGHT_SIZING, got %s/%s", profile.Pattern, profile.RecommendedStrategy)
	}
	if profile.ConfidenceScore != 50 || profile.EstimatedSavings != 100 {
		t.Errorf("expected confidence 50 and savings 100, got %v / %v", profile.ConfidenceScore, profile.EstimatedSavings)
	}
	if profile.Features.PeriodicityScore != 0.5 || profile.Features.CPUMean != 50 {
		t.Errorf("unexpected default features %+v", profile.Features)
	}
}
