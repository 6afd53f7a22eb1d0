// Package leakdetector analyzes heap-usage growth. The anomaly detector uses
// the regression slope to raise leak anomalies and the sizing recommender uses
// the combined verdict to flag a suspected leak.
package leakdetector

import (
	"fmt"
	"math"
	"time"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// Detector analyzes heap-percent series for sustained growth
type Detector struct {
	// SlopeThreshold is the heap-percent growth per sample above which the
	// regression alone indicates a leak
	SlopeThreshold float64

	// HalfGrowthRatio flags a leak when the newer half of the window averages
	// more than this multiple of the older half
	HalfGrowthRatio float64

	// HalfMinSamples is the minimum window length for the half comparison
	HalfMinSamples int

	// ResetThreshold is the fractional drop from a running peak counted as a
	// collection or restart
	ResetThreshold float64
}

// LeakSeverity grades how fast the heap is growing
type LeakSeverity string

const (
	SeverityNone     LeakSeverity = "none"
	SeverityLow      LeakSeverity = "low"
	SeverityMedium   LeakSeverity = "medium"
	SeverityHigh     LeakSeverity = "high"
	SeverityCritical LeakSeverity = "critical"
)

// Analysis is the result of one heap-growth analysis
type Analysis struct {
	SampleCount int
	Regression  stats.Regression

	StartPercent   float64
	EndPercent     float64
	FirstHalfMean  float64
	SecondHalfMean float64
	ResetCount     int

	SlopeExceeded      bool
	HalfGrowthExceeded bool
	Severity           LeakSeverity

	// PercentPerHour is only set when timestamps span a positive duration
	PercentPerHour float64
	// TimeToExhaustion projects when the heap reaches 100% at the current rate
	TimeToExhaustion time.Duration

	Description string
}

// IsLeak reports whether either leak criterion fired
func (a Analysis) IsLeak() bool {
	return a.SlopeExceeded || a.HalfGrowthExceeded
}

// NewDetector creates a detector from the anomaly and sizing sections
func NewDetector(anomalyCfg config.AnomalyConfig, sizingCfg config.SizingConfig) *Detector {
	return &Detector{
		SlopeThreshold:  anomalyCfg.MemoryLeakSlopeThreshold,
		HalfGrowthRatio: sizingCfg.LeakHalfGrowthRatio,
		HalfMinSamples:  sizingCfg.LeakMinSamples,
		ResetThreshold:  0.15,
	}
}

// Analyze examines a chronological heap-percent series
func (d *Detector) Analyze(values []float64) Analysis {
	n := len(values)
	analysis := Analysis{SampleCount: n, Severity: SeverityNone}
	if n == 0 {
		analysis.Description = "No heap samples available"
		return analysis
	}

	analysis.Regression = stats.Regress(values)
	analysis.StartPercent = values[0]
	analysis.EndPercent = values[n-1]
	analysis.ResetCount = d.countResets(values)

	analysis.SlopeExceeded = analysis.Regression.Slope > d.SlopeThreshold

	if n >= d.HalfMinSamples && n >= 2 {
		half := n / 2
		analysis.FirstHalfMean = stats.Mean(values[:half])
		analysis.SecondHalfMean = stats.Mean(values[half:])
		analysis.HalfGrowthExceeded = analysis.SecondHalfMean > analysis.FirstHalfMean*d.HalfGrowthRatio
	}

	if !analysis.IsLeak() {
		analysis.Description = fmt.Sprintf("Heap usage is stable (slope: %.3f%%/sample)", analysis.Regression.Slope)
		return analysis
	}

	analysis.Severity = classifySeverity(analysis.Regression.Slope)
	analysis.Description = fmt.Sprintf(
		"Heap usage growing at %.3f%%/sample (%.1f%% -> %.1f%%, R²: %.2f, %d resets)",
		analysis.Regression.Slope,
		analysis.StartPercent,
		analysis.EndPercent,
		analysis.Regression.RSquared,
		analysis.ResetCount,
	)
	return analysis
}

// AnalyzeSnapshots runs Analyze over the heap percent of the snapshots and adds
// wall-clock projections derived from their timestamps.
func (d *Detector) AnalyzeSnapshots(snaps []models.Snapshot) Analysis {
	ordered := models.Chronological(snaps)
	analysis := d.Analyze(models.HeapPercentValues(ordered))
	if len(ordered) < 2 || analysis.Regression.Slope <= 0 {
		return analysis
	}

	span := ordered[len(ordered)-1].Timestamp.Sub(ordered[0].Timestamp)
	if span <= 0 || analysis.SampleCount < 2 {
		return analysis
	}
	samplesPerHour := float64(analysis.SampleCount-1) / span.Hours()
	analysis.PercentPerHour = analysis.Regression.Slope * samplesPerHour

	remaining := 100 - analysis.EndPercent
	if remaining > 0 && analysis.PercentPerHour > 0 {
		hours := remaining / analysis.PercentPerHour
		analysis.TimeToExhaustion = time.Duration(hours * float64(time.Hour))
	}
	return analysis
}

func (d *Detector) countResets(values []float64) int {
	resets := 0
	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
		}
		if peak > 0 && (peak-v)/peak >= d.ResetThreshold {
			resets++
			peak = v
		}
	}
	return resets
}

func classifySeverity(slope float64) LeakSeverity {
	switch {
	case slope >= 1.0:
		return SeverityCritical
	case slope >= 0.5:
		return SeverityHigh
	case slope >= 0.2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ShouldPreventScaling returns true if adding memory would only mask the leak
func (a Analysis) ShouldPreventScaling() (bool, string) {
	if !a.IsLeak() {
		return false, ""
	}

	switch a.Severity {
	case SeverityCritical, SeverityHigh:
		return true, fmt.Sprintf("Heap growth (%s severity) should be investigated before adding memory.", a.Severity)
	case SeverityMedium:
		return true, fmt.Sprintf("Possible heap leak (%s severity). Verify before adding memory.", a.Severity)
	default:
		return false, fmt.Sprintf("Slow heap growth (%s severity). Monitoring recommended.", a.Severity)
	}
}

// FormatExhaustion renders the projected time to a full heap, or "n/a"
func (a Analysis) FormatExhaustion() string {
	if a.TimeToExhaustion <= 0 {
		return "n/a"
	}
	hours := a.TimeToExhaustion.Hours()
	if hours >= 48 {
		return fmt.Sprintf("%.0f days", math.Floor(hours/24))
	}
	return a.TimeToExhaustion.Round(time.Minute).String()
}
