package models

import "time"

// MetricType is the dimension an anomaly was found in
type MetricType string

const (
	MetricCPU     MetricType = "CPU"
	MetricMemory  MetricType = "MEMORY"
	MetricPool    MetricType = "POOL"
	MetricLatency MetricType = "LATENCY"
)

// AnomalyType classifies the shape of an anomaly
type AnomalyType string

const (
	AnomalySpike         AnomalyType = "SPIKE"
	AnomalyDrop          AnomalyType = "DROP"
	AnomalySustainedHigh AnomalyType = "SUSTAINED_HIGH"
	AnomalyPatternBreak  AnomalyType = "PATTERN_BREAK"
)

// Severity of an anomaly, ordered LOW < MEDIUM < HIGH < CRITICAL
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; unknown values rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Anomaly is a single statistical finding for one service and dimension.
type Anomaly struct {
	ID            string      `json:"id"`
	Service       string      `json:"service"`
	MetricType    MetricType  `json:"metricType"`
	MetricName    string      `json:"metricName"`
	AnomalyType   AnomalyType `json:"anomalyType"`
	Severity      Severity    `json:"severity"`
	ActualValue   float64     `json:"actualValue"`
	ExpectedValue float64     `json:"expectedValue"`
	ZScore        float64     `json:"zScore"`
	Threshold     float64     `json:"threshold"`
	DetectedAt    time.Time   `json:"detectedAt"`
	Description   string      `json:"description"`
	Resolved      bool        `json:"resolved"`
}
