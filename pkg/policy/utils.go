package policy

import (
	"fmt"
	"time"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

const mebibyte = 1024 * 1024

// isValidMetricType checks the metric type against the closed set
func isValidMetricType(t models.MetricType) bool {
	validTypes := map[models.MetricType]bool{
		models.MetricCPU:     true,
		models.MetricMemory:  true,
		models.MetricPool:    true,
		models.MetricLatency: true,
	}
	return validTypes[t]
}

// isValidAnomalyType checks the anomaly type against the closed set
func isValidAnomalyType(t models.AnomalyType) bool {
	validTypes := map[models.AnomalyType]bool{
		models.AnomalySpike:         true,
		models.AnomalyDrop:          true,
		models.AnomalySustainedHigh: true,
		models.AnomalyPatternBreak:  true,
	}
	return validTypes[t]
}

// withDefaults fills the optional classification fields
func withDefaults(r Rule) Rule {
	if r.MetricType == "" {
		r.MetricType = models.MetricCPU
	}
	if r.AnomalyType == "" {
		r.AnomalyType = models.AnomalyPatternBreak
	}
	if r.Severity == "" {
		r.Severity = models.SeverityMedium
	}
	return r
}

// validateRule checks that a rule is complete and its classification is known
func validateRule(r Rule) error {
	if r.Condition == "" {
		return fmt.Errorf("rule %s has no condition", r.Name)
	}
	if !isValidMetricType(r.MetricType) {
		return fmt.Errorf("rule %s has invalid metric type: %s", r.Name, r.MetricType)
	}
	if !isValidAnomalyType(r.AnomalyType) {
		return fmt.Errorf("rule %s has invalid anomaly type: %s", r.Name, r.AnomalyType)
	}
	if r.Severity.Rank() == 0 {
		return fmt.Errorf("rule %s has invalid severity: %s", r.Name, r.Severity)
	}
	return nil
}

// FromConfig converts the rules declared in the configuration file
func FromConfig(rules []config.RuleConfig) []Rule {
	converted := make([]Rule, 0, len(rules))
	for _, r := range rules {
		converted = append(converted, Rule{
			Name:        r.Name,
			Description: r.Description,
			Condition:   r.Condition,
			MetricType:  models.MetricType(r.MetricType),
			AnomalyType: models.AnomalyType(r.AnomalyType),
			Severity:    models.Severity(r.Severity),
			Enabled:     r.Enabled,
		})
	}
	return converted
}

// NewEvaluationContext summarizes a chronological window for rule evaluation
func NewEvaluationContext(service string, window []models.Snapshot, at time.Time) EvaluationContext {
	ctx := EvaluationContext{
		Service: service,
		Window: WindowInfo{
			Samples: len(window),
			CPU:     dimension(models.CPUValues(window)),
			Heap:    dimension(models.HeapPercentValues(window)),
			Latency: dimension(models.LatencyValues(window)),
			Pool:    dimension(models.PoolUsageValues(window)),
		},
		Time: timeInfo(at),
	}
	if len(window) > 0 {
		ctx.Latest = snapshotInfo(window[len(window)-1])
	}
	return ctx
}

func snapshotInfo(s models.Snapshot) SnapshotInfo {
	info := SnapshotInfo{
		CPU:         s.CPUPercent,
		HeapPercent: s.HeapPercent,
		HeapUsedMi:  float64(s.HeapUsedBytes) / mebibyte,
		Threads:     s.ThreadCount,
		HTTPCount:   s.HTTPCount,
		LatencyP95:  s.HTTPDurationP95,
		HasPool:     s.HasPool(),
		PoolPending: s.Pending(),
	}
	if s.PoolActive != nil {
		info.PoolActive = *s.PoolActive
	}
	if s.PoolMax != nil {
		info.PoolMax = *s.PoolMax
	}
	if usage, ok := s.PoolUsage(); ok {
		info.PoolUsage = usage
	}
	return info
}

func dimension(values []float64) DimensionInfo {
	if len(values) == 0 {
		return DimensionInfo{}
	}
	return DimensionInfo{
		Count: len(values),
		Mean:  stats.Mean(values),
		P95:   stats.Percentile(values, 95),
		Max:   stats.Max(values),
	}
}

func timeInfo(at time.Time) TimeInfo {
	weekday := at.Weekday()
	return TimeInfo{
		Now:             at,
		Hour:            at.Hour(),
		Weekday:         int(weekday),
		IsBusinessHours: at.Hour() >= 9 && at.Hour() < 17,
		IsWeekend:       weekday == time.Saturday || weekday == time.Sunday,
	}
}

// observedValue is the newest value of the rule's dimension, with its window
// mean as the expected value
func observedValue(ctx EvaluationContext, metric models.MetricType) (actual, expected float64) {
	switch metric {
	case models.MetricMemory:
		return ctx.Latest.HeapPercent, ctx.Window.Heap.Mean
	case models.MetricPool:
		return ctx.Latest.PoolUsage, ctx.Window.Pool.Mean
	case models.MetricLatency:
		return ctx.Latest.LatencyP95, ctx.Window.Latency.Mean
	default:
		return ctx.Latest.CPU, ctx.Window.CPU.Mean
	}
}
