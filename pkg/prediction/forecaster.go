// Package prediction forecasts resource usage: hour-slot scaling predictions
// from a service's weekly history, and daily cost projections fitted with
// Holt-Winters smoothing.
package prediction

import (
	"errors"
	"fmt"
	"math"
	"time"

	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
	"intelligent-resource-analyzer/pkg/timepattern"
)

// ErrUnknownTrend is returned for a trend outside models.AllTrends
var ErrUnknownTrend = errors.New("unknown trend")

const (
	// defaultUsage is predicted for a slot without history
	defaultUsage      = 50.0
	defaultConfidence = 0.3

	// requestsPerCPUPercent converts predicted CPU into a request rate
	requestsPerCPUPercent = 10.0

	peakEventConfidence = 0.8
	lowEventConfidence  = 0.7
)

// Forecaster predicts the next hours of a service from the samples recorded
// in the same hour of the same weekday
type Forecaster struct {
	cfg      config.ForecastConfig
	cost     config.CostConfig
	patterns *timepattern.Analyzer
	now      func() time.Time
}

// Option customizes a Forecaster
type Option func(*Forecaster)

// WithClock injects the time source the horizon starts from
func WithClock(now func() time.Time) Option {
	return func(f *Forecaster) { f.now = now }
}

// NewForecaster creates a forecaster from a validated configuration
func NewForecaster(cfg config.Config, opts ...Option) *Forecaster {
	f := &Forecaster{
		cfg:      cfg.Forecast,
		cost:     cfg.Cost,
		patterns: timepattern.NewAnalyzer(cfg.Forecast),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Patterns returns the pattern analyzer the forecaster detects with
func (f *Forecaster) Patterns() *timepattern.Analyzer {
	return f.patterns
}

// PredictNext returns one prediction per hour of the horizon, starting at the
// next full hour. A history shorter than MinSamples yields no predictions at
// all.
func (f *Forecaster) PredictNext(service string, history []models.Snapshot) ([]models.ScalingPrediction, error) {
	if len(history) < f.cfg.MinSamples {
		klog.V(3).Infof("Insufficient history for %s: %d samples, need %d", service, len(history), f.cfg.MinSamples)
		return nil, nil
	}

	pattern := f.patterns.Detect(history)
	multiplier, err := TrendMultiplier(pattern.Trend)
	if err != nil {
		return nil, err
	}

	loc := f.patterns.Location()
	bySlot := make(map[timepattern.Slot][]models.Snapshot)
	for _, s := range history {
		slot := timepattern.SlotOf(s.Timestamp, loc)
		bySlot[slot] = append(bySlot[slot], s)
	}

	now := f.now()
	local := now.In(loc)
	base := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)

	predictions := make([]models.ScalingPrediction, 0, f.cfg.HorizonHours)
	for h := 1; h <= f.cfg.HorizonHours; h++ {
		target := base.Add(time.Duration(h) * time.Hour)
		matches := bySlot[timepattern.SlotOf(target, loc)]
		if len(matches) == 0 {
			predictions = append(predictions, f.defaultPrediction(service, now, target))
			continue
		}
		predictions = append(predictions, f.predictSlot(service, now, target, matches, &pattern, multiplier))
	}

	klog.V(4).Infof("Forecast %s: %d slots, trend=%s daily=%t weekly=%t",
		service, len(predictions), pattern.Trend, pattern.HasDailyPattern, pattern.HasWeeklyPattern)
	return predictions, nil
}

func (f *Forecaster) predictSlot(service string, now, target time.Time, matches []models.Snapshot,
	pattern *models.TimeSeriesPattern, multiplier float64) models.ScalingPrediction {

	cpu := defaultUsage
	if values := models.CPUValues(matches); len(values) > 0 {
		cpu = stats.Mean(values)
	}
	memory := defaultUsage
	if values := models.HeapPercentValues(matches); len(values) > 0 {
		memory = stats.Mean(values)
	}
	cpu *= multiplier
	memory *= multiplier

	replicas := f.RecommendedReplicas(cpu, memory)
	slot := timepattern.SlotOf(target, f.patterns.Location())

	return models.ScalingPrediction{
		Service:              service,
		PredictionTime:       now,
		ForecastFor:          target,
		PredictedCPU:         stats.Round2(cpu),
		PredictedMemory:      stats.Round2(memory),
		PredictedRequestRate: stats.Round2(cpu * requestsPerCPUPercent),
		CurrentReplicas:      f.cfg.CurrentReplicas,
		RecommendedReplicas:  replicas,
		Confidence:           SlotConfidence(len(matches), pattern),
		Reason:               f.reason(slot, cpu, pattern),
		DetectedPattern:      pattern,
		UpcomingEvents:       f.events(target, cpu, replicas),
	}
}

func (f *Forecaster) defaultPrediction(service string, now, target time.Time) models.ScalingPrediction {
	return models.ScalingPrediction{
		Service:             service,
		PredictionTime:      now,
		ForecastFor:         target,
		PredictedCPU:        defaultUsage,
		PredictedMemory:     defaultUsage,
		CurrentReplicas:     f.cfg.CurrentReplicas,
		RecommendedReplicas: f.cfg.CurrentReplicas,
		Confidence:          defaultConfidence,
		Reason:              "Insufficient historical data for accurate prediction",
		UpcomingEvents:      []models.ScalingEvent{},
	}
}

// TrendMultiplier scales a slot average by the detected trend
func TrendMultiplier(trend models.Trend) (float64, error) {
	switch trend {
	case models.TrendRapidlyIncreasing:
		return 1.15, nil
	case models.TrendIncreasing:
		return 1.05, nil
	case models.TrendStable:
		return 1.0, nil
	case models.TrendDecreasing:
		return 0.95, nil
	case models.TrendRapidlyDecreasing:
		return 0.85, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTrend, trend)
	}
}

// RecommendedReplicas sizes the fleet so the busier of CPU and memory lands
// on the target utilization, within the replica bounds
func (f *Forecaster) RecommendedReplicas(cpu, memory float64) int {
	current := float64(f.cfg.CurrentReplicas)
	byCPU := stats.StableCeil(cpu / f.cfg.TargetUtilization * current)
	byMemory := stats.StableCeil(memory / f.cfg.TargetUtilization * current)

	replicas := int(math.Max(byCPU, byMemory))
	if replicas < f.cfg.MinReplicas {
		return f.cfg.MinReplicas
	}
	if replicas > f.cfg.MaxReplicas {
		return f.cfg.MaxReplicas
	}
	return replicas
}

// SlotConfidence grows with the number of matching samples and with clear,
// calm patterns. The result is within [0.3, 0.95].
func SlotConfidence(matches int, pattern *models.TimeSeriesPattern) float64 {
	confidence := 0.5
	switch {
	case matches > 50:
		confidence += 0.2
	case matches > 20:
		confidence += 0.1
	}

	if pattern.HasDailyPattern {
		confidence += 0.15
	}
	if pattern.HasWeeklyPattern {
		confidence += 0.10
	}

	switch {
	case pattern.Volatility < 10:
		confidence += 0.15
	case pattern.Volatility > 20:
		confidence -= 0.1
	}
	return stats.Round2(math.Min(0.95, math.Max(0.3, confidence)))
}

func (f *Forecaster) reason(slot timepattern.Slot, cpu float64, pattern *models.TimeSeriesPattern) string {
	var reason string
	switch {
	case pattern.IsPeakHour(slot.Hour):
		reason = "Peak hour detected. "
	case pattern.IsLowActivityHour(slot.Hour):
		reason = "Low activity period. "
	}

	if slot.Day == time.Saturday || slot.Day == time.Sunday {
		reason += "Weekend - typically lower load. "
	}

	switch {
	case cpu > f.cfg.PeakLoadCPU:
		reason += "High CPU usage expected - scale up recommended."
	case cpu < f.cfg.LowActivityCPU:
		reason += "Low CPU usage expected - scale down opportunity."
	default:
		reason += "Normal load expected."
	}
	return reason
}

func (f *Forecaster) events(target time.Time, cpu float64, replicas int) []models.ScalingEvent {
	events := []models.ScalingEvent{}
	if cpu > f.cfg.PeakLoadCPU {
		events = append(events, models.ScalingEvent{
			EventTime:           target,
			EventType:           models.EventPeakLoad,
			ExpectedCPU:         stats.Round2(cpu),
			RecommendedReplicas: replicas,
			Reason:              "High CPU usage predicted",
			Confidence:          peakEventConfidence,
		})
	}
	if cpu < f.cfg.LowActivityCPU {
		events = append(events, models.ScalingEvent{
			EventTime:           target,
			EventType:           models.EventLowActivity,
			ExpectedCPU:         stats.Round2(cpu),
			RecommendedReplicas: replicas,
			Reason:              "Low CPU usage predicted - cost optimization opportunity",
			Confidence:          lowEventConfidence,
		})
	}
	return events
}

// UpcomingEvents flattens the events of a prediction set in horizon order
func UpcomingEvents(predictions []models.ScalingPrediction) []models.ScalingEvent {
	var events []models.ScalingEvent
	for _, p := range predictions {
		events = append(events, p.UpcomingEvents...)
	}
	return events
}

// CountEvents counts the events of one type across a prediction set
func CountEvents(predictions []models.ScalingPrediction, eventType models.EventType) int {
	count := 0
	for _, e := range UpcomingEvents(predictions) {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}
