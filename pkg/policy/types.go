package policy

import (
	"time"

	"intelligent-resource-analyzer/pkg/models"
)

// Rule is a user-defined alert rule. A rule whose condition holds for a
// window emits one anomaly with the configured classification.
type Rule struct {
	// Name is the unique identifier for this rule
	Name string `json:"name" yaml:"name"`

	// Description is copied into the anomaly description
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Condition is an expression over latest, window, time and service
	// Example: "latest.cpu > 90 && window.cpu.mean > 70"
	Condition string `json:"condition" yaml:"condition"`

	// MetricType is the dimension the anomaly is filed under (default CPU)
	MetricType models.MetricType `json:"metricType,omitempty" yaml:"metricType,omitempty"`

	// AnomalyType classifies the anomaly (default PATTERN_BREAK)
	AnomalyType models.AnomalyType `json:"anomalyType,omitempty" yaml:"anomalyType,omitempty"`

	// Severity of the anomaly (default MEDIUM)
	Severity models.Severity `json:"severity,omitempty" yaml:"severity,omitempty"`

	// Enabled allows temporarily disabling a rule without removing it
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// RuleSet is the layout of a rule file
type RuleSet struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// EvaluationContext contains all data available to a rule condition
type EvaluationContext struct {
	Service string       `json:"service"`
	Latest  SnapshotInfo `json:"latest"`
	Window  WindowInfo   `json:"window"`
	Time    TimeInfo     `json:"time"`
}

// ToExprEnv converts the context to the expression environment
func (c EvaluationContext) ToExprEnv() map[string]interface{} {
	return map[string]interface{}{
		"service": c.Service,
		"latest":  c.Latest.ToExprEnv(),
		"window":  c.Window.ToExprEnv(),
		"time":    c.Time.ToExprEnv(),
	}
}

// SnapshotInfo is the newest sample of the window. Unreported fields are 0.
type SnapshotInfo struct {
	CPU         float64 `json:"cpu"`
	HeapPercent float64 `json:"heapPercent"`
	// HeapUsedMi in MiB
	HeapUsedMi  float64 `json:"heapUsedMi"`
	Threads     int32   `json:"threads"`
	HTTPCount   int64   `json:"httpCount"`
	LatencyP95  float64 `json:"latencyP95"`
	HasPool     bool    `json:"hasPool"`
	PoolActive  int32   `json:"poolActive"`
	PoolMax     int32   `json:"poolMax"`
	PoolPending int32   `json:"poolPending"`
	// PoolUsage is active/max as a ratio
	PoolUsage float64 `json:"poolUsage"`
}

// ToExprEnv converts SnapshotInfo to a map for expr evaluation with lowercase keys
func (s SnapshotInfo) ToExprEnv() map[string]interface{} {
	return map[string]interface{}{
		"cpu":         s.CPU,
		"heapPercent": s.HeapPercent,
		"heapUsedMi":  s.HeapUsedMi,
		"threads":     s.Threads,
		"httpCount":   s.HTTPCount,
		"latencyP95":  s.LatencyP95,
		"hasPool":     s.HasPool,
		"poolActive":  s.PoolActive,
		"poolMax":     s.PoolMax,
		"poolPending": s.PoolPending,
		"poolUsage":   s.PoolUsage,
	}
}

// DimensionInfo summarizes the reported values of one dimension
type DimensionInfo struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P95   float64 `json:"p95"`
	Max   float64 `json:"max"`
}

// ToExprEnv converts DimensionInfo to a map for expr evaluation
func (d DimensionInfo) ToExprEnv() map[string]interface{} {
	return map[string]interface{}{
		"count": d.Count,
		"mean":  d.Mean,
		"p95":   d.P95,
		"max":   d.Max,
	}
}

// WindowInfo summarizes the whole window per dimension
type WindowInfo struct {
	Samples int           `json:"samples"`
	CPU     DimensionInfo `json:"cpu"`
	Heap    DimensionInfo `json:"heap"`
	Latency DimensionInfo `json:"latency"`
	Pool    DimensionInfo `json:"pool"`
}

// ToExprEnv converts WindowInfo to a map for expr evaluation
func (w WindowInfo) ToExprEnv() map[string]interface{} {
	return map[string]interface{}{
		"samples": w.Samples,
		"cpu":     w.CPU.ToExprEnv(),
		"heap":    w.Heap.ToExprEnv(),
		"latency": w.Latency.ToExprEnv(),
		"pool":    w.Pool.ToExprEnv(),
	}
}

// TimeInfo contains time-related information for time-based rules
type TimeInfo struct {
	// Now is the evaluation time
	Now time.Time `json:"now"`

	// Hour is the current hour (0-23)
	Hour int `json:"hour"`

	// Weekday is the current day of week (0-6, 0=Sunday)
	Weekday int `json:"weekday"`

	// IsBusinessHours indicates if current time is business hours (9-17)
	IsBusinessHours bool `json:"isBusinessHours"`

	// IsWeekend indicates if current day is Saturday or Sunday
	IsWeekend bool `json:"isWeekend"`
}

// ToExprEnv converts TimeInfo to a map for expr evaluation
func (t TimeInfo) ToExprEnv() map[string]interface{} {
	return map[string]interface{}{
		"now":             t.Now,
		"hour":            t.Hour,
		"weekday":         t.Weekday,
		"isBusinessHours": t.IsBusinessHours,
		"isWeekend":       t.IsWeekend,
	}
}
