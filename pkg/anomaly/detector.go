// Package anomaly detects statistical anomalies in a service's snapshot
// window. Four dimensions are analyzed independently on every call: CPU,
// heap, connection pool and request latency.
package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/leakdetector"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

const (
	metricCPU     = "cpu_usage_percent"
	metricHeap    = "heap_usage_percent"
	metricPool    = "connection_pool_usage"
	metricLatency = "http_request_duration_p95"
)

// idNamespace scopes the name-based anomaly IDs
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("intelligent-resource-analyzer/anomaly"))

// RuleEvaluator produces additional anomalies from user-defined rules
type RuleEvaluator interface {
	Evaluate(service string, snaps []models.Snapshot, at time.Time) []models.Anomaly
}

// Detector runs the per-dimension analyses. It holds no state between calls.
type Detector struct {
	cfg   config.AnomalyConfig
	leaks *leakdetector.Detector
	rules RuleEvaluator
	now   func() time.Time
}

// Option customizes a Detector
type Option func(*Detector)

// WithClock injects the time source used for DetectedAt
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithRules appends rule-based anomalies to every Detect call
func WithRules(r RuleEvaluator) Option {
	return func(d *Detector) { d.rules = r }
}

// NewDetector creates a detector from a validated configuration
func NewDetector(cfg config.Config, opts ...Option) *Detector {
	d := &Detector{
		cfg:   cfg.Anomaly,
		leaks: leakdetector.NewDetector(cfg.Anomaly, cfg.Sizing),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect analyzes the window and returns every anomaly found, CPU first, then
// memory, pool, latency and rule anomalies. A short or empty window yields nil.
func (d *Detector) Detect(service string, snaps []models.Snapshot) []models.Anomaly {
	if !d.cfg.Enabled || len(snaps) == 0 {
		return nil
	}

	window := models.Chronological(snaps)
	if d.cfg.WindowSize > 0 && len(window) > d.cfg.WindowSize {
		window = window[len(window)-d.cfg.WindowSize:]
	}
	detectedAt := d.now()

	var anomalies []models.Anomaly
	anomalies = append(anomalies, d.analyzeCPU(service, window, detectedAt)...)
	anomalies = append(anomalies, d.analyzeMemory(service, window, detectedAt)...)
	anomalies = append(anomalies, d.analyzePool(service, window, detectedAt)...)
	anomalies = append(anomalies, d.analyzeLatency(service, window, detectedAt)...)
	if d.rules != nil {
		anomalies = append(anomalies, d.rules.Evaluate(service, window, detectedAt)...)
	}

	klog.V(4).Infof("Anomaly detection for %s: %d samples, %d anomalies", service, len(window), len(anomalies))
	return anomalies
}

// Severity classifies an absolute z-score against the configured thresholds
func (d *Detector) Severity(absZ float64) models.Severity {
	t := d.cfg.Thresholds
	switch {
	case absZ >= t.Critical:
		return models.SeverityCritical
	case absZ >= t.High:
		return models.SeverityHigh
	case absZ >= t.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// spike evaluates the latest value of a window against its mean and stddev
type spike struct {
	current float64
	mean    float64
	ema     float64
	z       float64
}

func (d *Detector) evaluateSpike(values []float64) spike {
	current := values[len(values)-1]
	mean := stats.Mean(values)
	return spike{
		current: current,
		mean:    mean,
		ema:     stats.EMA(values, d.cfg.EMAAlpha),
		z:       stats.ZScore(current, mean, stats.StdDev(values)),
	}
}

func spikeOrDrop(z float64) (models.AnomalyType, string) {
	if z > 0 {
		return models.AnomalySpike, "spike"
	}
	return models.AnomalyDrop, "drop"
}

func (d *Detector) analyzeCPU(service string, window []models.Snapshot, at time.Time) []models.Anomaly {
	values := models.CPUValues(window)
	if len(values) < d.cfg.MinSamples {
		return nil
	}

	var anomalies []models.Anomaly
	s := d.evaluateSpike(values)
	if math.Abs(s.z) > d.cfg.Thresholds.Medium {
		kind, word := spikeOrDrop(s.z)
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricCPU,
			MetricName:    metricCPU,
			AnomalyType:   kind,
			Severity:      d.Severity(math.Abs(s.z)),
			ActualValue:   s.current,
			ExpectedValue: s.ema,
			ZScore:        s.z,
			Threshold:     d.cfg.Thresholds.Medium,
			Description: fmt.Sprintf("CPU usage %s detected: %.2f%% (expected: %.2f%%, z-score: %.2f)",
				word, s.current, s.ema, s.z),
		}))
	}

	count := d.cfg.CPUSustainedCount
	if len(values) >= count && allAbove(values[len(values)-count:], d.cfg.CPUSustainedThreshold) {
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricCPU,
			MetricName:    metricCPU,
			AnomalyType:   models.AnomalySustainedHigh,
			Severity:      models.SeverityHigh,
			ActualValue:   s.current,
			ExpectedValue: d.cfg.CPUSustainedThreshold,
			Threshold:     d.cfg.CPUSustainedThreshold,
			Description: fmt.Sprintf("Sustained high CPU detected: %.2f%% for %d consecutive samples (threshold: %.2f%%)",
				s.current, count, d.cfg.CPUSustainedThreshold),
		}))
	}

	return anomalies
}

func (d *Detector) analyzeMemory(service string, window []models.Snapshot, at time.Time) []models.Anomaly {
	values := models.HeapPercentValues(window)
	if len(values) < d.cfg.MinSamples {
		return nil
	}

	var anomalies []models.Anomaly
	s := d.evaluateSpike(values)
	if math.Abs(s.z) > d.cfg.Thresholds.Medium {
		kind, word := spikeOrDrop(s.z)
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricMemory,
			MetricName:    metricHeap,
			AnomalyType:   kind,
			Severity:      d.Severity(math.Abs(s.z)),
			ActualValue:   s.current,
			ExpectedValue: s.ema,
			ZScore:        s.z,
			Threshold:     d.cfg.Thresholds.Medium,
			Description: fmt.Sprintf("Memory usage %s detected: %.2f%% (expected: %.2f%%, z-score: %.2f)",
				word, s.current, s.ema, s.z),
		}))
	}

	leak := d.leaks.AnalyzeSnapshots(window)
	if leak.SlopeExceeded {
		description := fmt.Sprintf("Potential memory leak detected: increasing trend with slope %.4f (threshold: %.4f)",
			leak.Regression.Slope, d.cfg.MemoryLeakSlopeThreshold)
		if leak.TimeToExhaustion > 0 {
			description += fmt.Sprintf(", projected heap exhaustion in %s", leak.FormatExhaustion())
		}
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricMemory,
			MetricName:    metricHeap,
			AnomalyType:   models.AnomalyPatternBreak,
			Severity:      models.SeverityHigh,
			ActualValue:   s.current,
			ExpectedValue: values[0],
			Threshold:     d.cfg.MemoryLeakSlopeThreshold,
			Description:   description,
		}))
	}

	return anomalies
}

func (d *Detector) analyzePool(service string, window []models.Snapshot, at time.Time) []models.Anomaly {
	var (
		ratios []float64
		latest models.Snapshot
	)
	for _, s := range window {
		if ratio, ok := s.PoolUsage(); ok {
			ratios = append(ratios, ratio)
			latest = s
		}
	}
	if len(ratios) < d.cfg.MinSamples {
		return nil
	}

	var anomalies []models.Anomaly
	current := ratios[len(ratios)-1]
	if current >= d.cfg.PoolExhaustionRatio {
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricPool,
			MetricName:    metricPool,
			AnomalyType:   models.AnomalySpike,
			Severity:      models.SeverityCritical,
			ActualValue:   current * 100,
			ExpectedValue: d.cfg.PoolExhaustionRatio * 100,
			Threshold:     d.cfg.PoolExhaustionRatio,
			Description: fmt.Sprintf("Connection pool exhaustion: %d/%d connections in use (%.1f%%)",
				*latest.PoolActive, *latest.PoolMax, current*100),
		}))
	}

	mean := stats.Mean(ratios)
	z := stats.ZScore(current, mean, stats.StdDev(ratios))
	if math.Abs(z) > d.cfg.Thresholds.High && current > d.cfg.PoolSpikeMinRatio {
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricPool,
			MetricName:    metricPool,
			AnomalyType:   models.AnomalySpike,
			Severity:      d.Severity(math.Abs(z)),
			ActualValue:   current * 100,
			ExpectedValue: mean * 100,
			ZScore:        z,
			Threshold:     d.cfg.Thresholds.High,
			Description: fmt.Sprintf("Connection pool usage spike: %.1f%% (expected: %.1f%%, z-score: %.2f)",
				current*100, mean*100, z),
		}))
	}

	return anomalies
}

func (d *Detector) analyzeLatency(service string, window []models.Snapshot, at time.Time) []models.Anomaly {
	values := models.LatencyValues(window)
	if len(values) < d.cfg.MinSamples {
		return nil
	}

	var anomalies []models.Anomaly
	// one-sided: faster responses are never anomalous
	s := d.evaluateSpike(values)
	if s.z > d.cfg.Thresholds.Medium {
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricLatency,
			MetricName:    metricLatency,
			AnomalyType:   models.AnomalySpike,
			Severity:      d.Severity(s.z),
			ActualValue:   s.current,
			ExpectedValue: s.ema,
			ZScore:        s.z,
			Threshold:     d.cfg.Thresholds.Medium,
			Description: fmt.Sprintf("Response time spike detected: %.2fms (expected: %.2fms, z-score: %.2f)",
				s.current, s.ema, s.z),
		}))
	}

	limit := d.cfg.LatencySpikeThresholdMs
	if s.current > limit {
		anomalies = append(anomalies, d.build(service, window, at, models.Anomaly{
			MetricType:    models.MetricLatency,
			MetricName:    metricLatency,
			AnomalyType:   models.AnomalySustainedHigh,
			Severity:      models.SeverityHigh,
			ActualValue:   s.current,
			ExpectedValue: limit,
			Threshold:     limit,
			Description:   fmt.Sprintf("High latency detected: %.2fms exceeds threshold of %.2fms", s.current, limit),
		}))
	}

	return anomalies
}

// build fills the identity fields shared by every anomaly. The ID is derived
// from the content and the newest sample time so repeated calls agree.
func (d *Detector) build(service string, window []models.Snapshot, at time.Time, a models.Anomaly) models.Anomaly {
	a.Service = service
	a.DetectedAt = at
	observed := window[len(window)-1].Timestamp.UTC().Format(time.RFC3339Nano)
	name := fmt.Sprintf("%s|%s|%s|%s|%g|%s", service, a.MetricName, a.AnomalyType, a.Severity, a.Threshold, observed)
	a.ID = uuid.NewSHA1(idNamespace, []byte(name)).String()
	return a
}

func allAbove(values []float64, threshold float64) bool {
	for _, v := range values {
		if v <= threshold {
			return false
		}
	}
	return true
}
