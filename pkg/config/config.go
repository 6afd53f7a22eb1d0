// Package config defines the read-only configuration shared by the analysis
// engines. It is loaded once at startup, validated, and then passed by value.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"intelligent-resource-analyzer/pkg/models"
)

// Config is the full analyzer configuration
type Config struct {
	Anomaly  AnomalyConfig  `yaml:"anomaly"`
	Sizing   SizingConfig   `yaml:"sizing"`
	Cost     CostConfig     `yaml:"cost"`
	Workload WorkloadConfig `yaml:"workload"`
	Forecast ForecastConfig `yaml:"forecast"`
	Scaling  ScalingConfig  `yaml:"scaling"`
	Rules    []RuleConfig   `yaml:"rules"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Thresholds are the four ascending |z| cut-offs shared by every detector
type Thresholds struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// AnomalyConfig configures the anomaly detector
type AnomalyConfig struct {
	Enabled    bool       `yaml:"enabled"`
	WindowSize int        `yaml:"windowSize"`
	MinSamples int        `yaml:"minSamples"`
	EMAAlpha   float64    `yaml:"emaAlpha"`
	Thresholds Thresholds `yaml:"thresholds"`

	CPUSustainedThreshold float64 `yaml:"cpuSustainedThreshold"`
	CPUSustainedCount     int     `yaml:"cpuSustainedCount"`

	MemoryLeakSlopeThreshold float64 `yaml:"memoryLeakSlopeThreshold"`

	PoolExhaustionRatio float64 `yaml:"poolExhaustionRatio"`
	// PoolSpikeMinRatio guards the pool z-score rule against near-idle noise
	PoolSpikeMinRatio float64 `yaml:"poolSpikeMinRatio"`

	LatencySpikeThresholdMs float64 `yaml:"latencySpikeThresholdMs"`
}

// CurrentResources is the running configuration assumed when the caller
// supplies none, in Kubernetes notation.
type CurrentResources struct {
	CPURequest    string `yaml:"cpuRequest"`
	CPULimit      string `yaml:"cpuLimit"`
	MemoryRequest string `yaml:"memoryRequest"`
	MemoryLimit   string `yaml:"memoryLimit"`
}

// Spec parses the running configuration
func (r CurrentResources) Spec() (models.ResourceSpec, error) {
	return models.ParseResourceSpec(r.CPURequest, r.CPULimit, r.MemoryRequest, r.MemoryLimit)
}

// SizingConfig configures the resource sizing recommender
type SizingConfig struct {
	SafetyMargin          float64 `yaml:"safetyMargin"`
	MinCPUMillicores      int64   `yaml:"minCPUMillicores"`
	MinMemoryMi           int64   `yaml:"minMemoryMi"`
	MinPoolSize           int32   `yaml:"minPoolSize"`
	MinIdle               int32   `yaml:"minIdle"`
	IdleDivisor           int32   `yaml:"idleDivisor"`
	CPULimitMultiplier    float64 `yaml:"cpuLimitMultiplier"`
	MemoryLimitMultiplier float64 `yaml:"memoryLimitMultiplier"`
	HeapMinFraction       float64 `yaml:"heapMinFraction"`
	HeapMaxFraction       float64 `yaml:"heapMaxFraction"`
	CPUThrottleMaxPercent float64 `yaml:"cpuThrottleMaxPercent"`
	LeakHalfGrowthRatio   float64 `yaml:"leakHalfGrowthRatio"`
	LeakMinSamples        int     `yaml:"leakMinSamples"`
	PoolExhaustedFraction float64 `yaml:"poolExhaustedFraction"`
	ConnectionTimeoutMs   int64   `yaml:"connectionTimeoutMs"`
	IdleTimeoutMs         int64   `yaml:"idleTimeoutMs"`
	MaxThreads            int32   `yaml:"maxThreads"`
	MinSpareThreads       int32   `yaml:"minSpareThreads"`

	Current CurrentResources `yaml:"current"`
}

// CostConfig holds the monthly unit rates
type CostConfig struct {
	CPUPerCoreMonth  float64 `yaml:"cpuPerCoreMonth"`
	MemoryPerGBMonth float64 `yaml:"memoryPerGBMonth"`
	// Hourly rates used by the cost-aware scaling options
	CPUPerCoreHour  float64 `yaml:"cpuPerCoreHour"`
	MemoryPerGBHour float64 `yaml:"memoryPerGBHour"`
	HoursPerMonth   float64 `yaml:"hoursPerMonth"`
}

// WorkloadConfig configures the pattern classifier
type WorkloadConfig struct {
	WindowDays       int     `yaml:"windowDays"`
	DecliningSlope   float64 `yaml:"decliningSlope"`
	GrowingSlope     float64 `yaml:"growingSlope"`
	ChaoticCV        float64 `yaml:"chaoticCV"`
	ChaoticMaxPeriod float64 `yaml:"chaoticMaxPeriodicity"`
	BurstyScore      float64 `yaml:"burstyScore"`
	BurstyPeakRatio  float64 `yaml:"burstyPeakRatio"`
	PeriodicScore    float64 `yaml:"periodicScore"`
	SeasonalScore    float64 `yaml:"seasonalScore"`
	SeasonalCV       float64 `yaml:"seasonalCV"`
	SavingsBaseline  float64 `yaml:"savingsBaseline"`
}

// ForecastConfig configures the predictive scaling forecaster
type ForecastConfig struct {
	MinSamples              int     `yaml:"minSamples"`
	HorizonHours            int     `yaml:"horizonHours"`
	TargetUtilization       float64 `yaml:"targetUtilization"`
	CurrentReplicas         int     `yaml:"currentReplicas"`
	MinReplicas             int     `yaml:"minReplicas"`
	MaxReplicas             int     `yaml:"maxReplicas"`
	DailyVarianceThreshold  float64 `yaml:"dailyVarianceThreshold"`
	WeeklyVarianceThreshold float64 `yaml:"weeklyVarianceThreshold"`
	WeeklyMinDays           int     `yaml:"weeklyMinDays"`
	PeakRatio               float64 `yaml:"peakRatio"`
	LowRatio                float64 `yaml:"lowRatio"`
	PeakLoadCPU             float64 `yaml:"peakLoadCPU"`
	LowActivityCPU          float64 `yaml:"lowActivityCPU"`
	CostForecastDays        int     `yaml:"costForecastDays"`
	// Location names the IANA zone used for hour-of-day grouping
	Location string `yaml:"location"`
}

// ScalingConfig configures the HPA/VPA recommendations
type ScalingConfig struct {
	CurrentReplicas      int     `yaml:"currentReplicas"`
	TargetRPSPerPod      float64 `yaml:"targetRPSPerPod"`
	TargetConnsPerPod    float64 `yaml:"targetConnectionsPerPod"`
	TargetP95Ms          float64 `yaml:"targetP95Ms"`
	SampleIntervalSecond float64 `yaml:"sampleIntervalSeconds"`
	VPAMargin            float64 `yaml:"vpaMargin"`
	VPANonHeapOverhead   float64 `yaml:"vpaNonHeapOverhead"`
}

// RuleConfig declares a user-defined alert rule
type RuleConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Condition   string `yaml:"condition"`
	MetricType  string `yaml:"metricType"`
	AnomalyType string `yaml:"anomalyType"`
	Severity    string `yaml:"severity"`
	Enabled     bool   `yaml:"enabled"`
}

// ScheduleConfig configures the periodic analysis cadence
type ScheduleConfig struct {
	Cron          string `yaml:"cron"`
	LookbackHours int    `yaml:"lookbackHours"`
	HistoryDays   int    `yaml:"historyDays"`

	// Scheduled runs pause after FailureThreshold consecutive failures and
	// resume probing after BreakerTimeout. Zero disables the breaker.
	FailureThreshold int           `yaml:"failureThreshold"`
	SuccessThreshold int           `yaml:"successThreshold"`
	BreakerTimeout   time.Duration `yaml:"breakerTimeout"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig configures the Prometheus exporter
type MetricsConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Anomaly: AnomalyConfig{
			Enabled:    true,
			WindowSize: 60,
			MinSamples: 10,
			EMAAlpha:   0.2,
			Thresholds: Thresholds{
				Low:      1.5,
				Medium:   2.0,
				High:     2.5,
				Critical: 3.0,
			},
			CPUSustainedThreshold:    80,
			CPUSustainedCount:        6,
			MemoryLeakSlopeThreshold: 0.05,
			PoolExhaustionRatio:      0.9,
			PoolSpikeMinRatio:        0.5,
			LatencySpikeThresholdMs:  1000,
		},
		Sizing: SizingConfig{
			SafetyMargin:          0.20,
			MinCPUMillicores:      100,
			MinMemoryMi:           256,
			MinPoolSize:           10,
			MinIdle:               5,
			IdleDivisor:           5,
			CPULimitMultiplier:    2,
			MemoryLimitMultiplier: 1.5,
			HeapMinFraction:       0.75,
			HeapMaxFraction:       0.85,
			CPUThrottleMaxPercent: 90,
			LeakHalfGrowthRatio:   1.2,
			LeakMinSamples:        10,
			PoolExhaustedFraction: 0.10,
			ConnectionTimeoutMs:   30000,
			IdleTimeoutMs:         600000,
			MaxThreads:            200,
			MinSpareThreads:       25,
			Current: CurrentResources{
				CPURequest:    "100m",
				CPULimit:      "200m",
				MemoryRequest: "256Mi",
				MemoryLimit:   "512Mi",
			},
		},
		Cost: CostConfig{
			CPUPerCoreMonth:  30,
			MemoryPerGBMonth: 5,
			CPUPerCoreHour:   0.042,
			MemoryPerGBHour:  0.0052,
			HoursPerMonth:    730,
		},
		Workload: WorkloadConfig{
			WindowDays:       7,
			DecliningSlope:   -0.5,
			GrowingSlope:     0.5,
			ChaoticCV:        0.5,
			ChaoticMaxPeriod: 0.2,
			BurstyScore:      0.1,
			BurstyPeakRatio:  2.0,
			PeriodicScore:    0.5,
			SeasonalScore:    0.3,
			SeasonalCV:       0.3,
			SavingsBaseline:  1000,
		},
		Forecast: ForecastConfig{
			MinSamples:              100,
			HorizonHours:            24,
			TargetUtilization:       70,
			CurrentReplicas:         3,
			MinReplicas:             2,
			MaxReplicas:             10,
			DailyVarianceThreshold:  100,
			WeeklyVarianceThreshold: 50,
			WeeklyMinDays:           5,
			PeakRatio:               1.2,
			LowRatio:                0.8,
			PeakLoadCPU:             80,
			LowActivityCPU:          30,
			CostForecastDays:        7,
			Location:                "UTC",
		},
		Scaling: ScalingConfig{
			CurrentReplicas:      3,
			TargetRPSPerPod:      1000,
			TargetConnsPerPod:    15,
			TargetP95Ms:          200,
			SampleIntervalSecond: 10,
			VPAMargin:            0.15,
			VPANonHeapOverhead:   1.3,
		},
		Schedule: ScheduleConfig{
			Cron:             "*/5 * * * *",
			LookbackHours:    1,
			HistoryDays:      7,
			FailureThreshold: 5,
			SuccessThreshold: 3,
			BreakerTimeout:   15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Address:   ":9090",
			Namespace: "resource_analyzer",
		},
	}
}

// Load reads a YAML file on top of the defaults and validates the result
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every violation found, combined into one error
func (c Config) Validate() error {
	var errs error

	t := c.Anomaly.Thresholds
	if t.Low <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("anomaly.thresholds.low must be positive, got %v", t.Low))
	}
	if !(t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical) {
		errs = multierr.Append(errs, fmt.Errorf("anomaly.thresholds must be strictly ascending, got %v/%v/%v/%v",
			t.Low, t.Medium, t.High, t.Critical))
	}
	if c.Anomaly.EMAAlpha <= 0 || c.Anomaly.EMAAlpha > 1 {
		errs = multierr.Append(errs, fmt.Errorf("anomaly.emaAlpha must be in (0,1], got %v", c.Anomaly.EMAAlpha))
	}
	if c.Anomaly.MinSamples < 2 {
		errs = multierr.Append(errs, fmt.Errorf("anomaly.minSamples must be at least 2, got %d", c.Anomaly.MinSamples))
	}
	if c.Anomaly.CPUSustainedCount < 1 {
		errs = multierr.Append(errs, fmt.Errorf("anomaly.cpuSustainedCount must be positive, got %d", c.Anomaly.CPUSustainedCount))
	}
	if c.Anomaly.PoolExhaustionRatio <= 0 || c.Anomaly.PoolExhaustionRatio > 1 {
		errs = multierr.Append(errs, fmt.Errorf("anomaly.poolExhaustionRatio must be in (0,1], got %v", c.Anomaly.PoolExhaustionRatio))
	}
	if c.Anomaly.MemoryLeakSlopeThreshold < 0 || c.Anomaly.LatencySpikeThresholdMs < 0 || c.Anomaly.CPUSustainedThreshold < 0 {
		errs = multierr.Append(errs, fmt.Errorf("anomaly thresholds must not be negative"))
	}

	s := c.Sizing
	if s.SafetyMargin < 0 || s.SafetyMargin >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("sizing.safetyMargin must be in [0,1), got %v", s.SafetyMargin))
	}
	if s.MinCPUMillicores <= 0 || s.MinMemoryMi <= 0 || s.MinPoolSize <= 0 || s.MinIdle < 0 {
		errs = multierr.Append(errs, fmt.Errorf("sizing floors must be positive"))
	}
	if s.IdleDivisor <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("sizing.idleDivisor must be positive, got %d", s.IdleDivisor))
	}
	if s.CPULimitMultiplier < 1 || s.MemoryLimitMultiplier < 1 {
		errs = multierr.Append(errs, fmt.Errorf("sizing limit multipliers must be at least 1"))
	}
	if s.HeapMinFraction <= 0 || s.HeapMaxFraction > 1 || s.HeapMinFraction > s.HeapMaxFraction {
		errs = multierr.Append(errs, fmt.Errorf("sizing heap fractions must satisfy 0 < min <= max <= 1, got %v/%v",
			s.HeapMinFraction, s.HeapMaxFraction))
	}
	if _, err := s.Current.Spec(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("sizing.current: %w", err))
	}

	if c.Cost.CPUPerCoreMonth < 0 || c.Cost.MemoryPerGBMonth < 0 || c.Cost.CPUPerCoreHour < 0 || c.Cost.MemoryPerGBHour < 0 {
		errs = multierr.Append(errs, fmt.Errorf("cost rates must not be negative"))
	}

	f := c.Forecast
	if f.MinReplicas < 1 || f.MinReplicas > f.MaxReplicas {
		errs = multierr.Append(errs, fmt.Errorf("forecast replicas must satisfy 1 <= min <= max, got %d/%d", f.MinReplicas, f.MaxReplicas))
	}
	if f.TargetUtilization <= 0 || f.TargetUtilization > 100 {
		errs = multierr.Append(errs, fmt.Errorf("forecast.targetUtilization must be in (0,100], got %v", f.TargetUtilization))
	}
	if f.HorizonHours < 1 {
		errs = multierr.Append(errs, fmt.Errorf("forecast.horizonHours must be positive, got %d", f.HorizonHours))
	}
	if f.CostForecastDays < 1 {
		errs = multierr.Append(errs, fmt.Errorf("forecast.costForecastDays must be positive, got %d", f.CostForecastDays))
	}
	if _, err := f.Zone(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("forecast.location: %w", err))
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("schedule.cron %q: %w", c.Schedule.Cron, err))
		}
	}

	if c.Schedule.LookbackHours < 1 || c.Schedule.HistoryDays < 1 {
		errs = multierr.Append(errs, fmt.Errorf("schedule.lookbackHours and schedule.historyDays must be positive"))
	}
	if c.Schedule.FailureThreshold < 0 || c.Schedule.SuccessThreshold < 0 || c.Schedule.BreakerTimeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("schedule circuit breaker settings must not be negative"))
	}

	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("rule at index %d has no name", i))
			continue
		}
		if seen[r.Name] {
			errs = multierr.Append(errs, fmt.Errorf("rule %s is declared twice", r.Name))
		}
		seen[r.Name] = true
		if r.Condition == "" {
			errs = multierr.Append(errs, fmt.Errorf("rule %s has no condition", r.Name))
		}
	}

	return errs
}

// Zone resolves the configured location, defaulting to UTC
func (f ForecastConfig) Zone() (*time.Location, error) {
	if f.Location == "" || f.Location == "UTC" {
		return time.UTC, nil
	}
	return time.LoadLocation(f.Location)
}
