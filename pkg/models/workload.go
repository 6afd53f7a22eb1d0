package models

// WorkloadPattern is the dominant shape of a service's usage series.
type WorkloadPattern string

const (
	PatternSteadyState WorkloadPattern = "STEADY_STATE"
	PatternBursty      WorkloadPattern = "BURSTY"
	PatternPeriodic    WorkloadPattern = "PERIODIC"
	PatternGrowing     WorkloadPattern = "GROWING"
	PatternSeasonal    WorkloadPattern = "SEASONAL"
	PatternDeclining   WorkloadPattern = "DECLINING"
	PatternChaotic     WorkloadPattern = "CHAOTIC"
)

// AllWorkloadPatterns lists the closed set of patterns.
func AllWorkloadPatterns() []WorkloadPattern {
	return []WorkloadPattern{
		PatternSteadyState,
		PatternBursty,
		PatternPeriodic,
		PatternGrowing,
		PatternSeasonal,
		PatternDeclining,
		PatternChaotic,
	}
}

var patternText = map[WorkloadPattern][2]string{
	PatternSteadyState: {"Steady State", "Consistent load with minimal variation"},
	PatternBursty:      {"Bursty", "Unpredictable spikes and valleys"},
	PatternPeriodic:    {"Periodic", "Predictable daily/weekly patterns"},
	PatternGrowing:     {"Growing", "Continuous linear growth trend"},
	PatternSeasonal:    {"Seasonal", "Monthly or quarterly seasonal patterns"},
	PatternDeclining:   {"Declining", "Decreasing resource usage trend"},
	PatternChaotic:     {"Chaotic", "No clear pattern detected"},
}

// DisplayName returns the human label of the pattern.
func (p WorkloadPattern) DisplayName() string { return patternText[p][0] }

// Description returns a one-line explanation of the pattern.
func (p WorkloadPattern) Description() string { return patternText[p][1] }

// OptimizationStrategy is the recommended response to a workload pattern.
type OptimizationStrategy string

const (
	StrategyReservedCapacity     OptimizationStrategy = "RESERVED_CAPACITY"
	StrategyAggressiveAutoscale  OptimizationStrategy = "AGGRESSIVE_AUTOSCALING"
	StrategyScheduledScaling     OptimizationStrategy = "SCHEDULED_SCALING"
	StrategyPredictiveScaling    OptimizationStrategy = "PREDICTIVE_SCALING"
	StrategySpotInstances        OptimizationStrategy = "SPOT_INSTANCES"
	StrategyRightSizing          OptimizationStrategy = "RIGHT_SIZING"
	StrategyServiceConsolidation OptimizationStrategy = "SERVICE_CONSOLIDATION"
	StrategyConservativeBuffer   OptimizationStrategy = "CONSERVATIVE_BUFFER"
)

var strategyText = map[OptimizationStrategy][2]string{
	StrategyReservedCapacity:     {"Reserved Capacity", "Use reserved instances for predictable steady load"},
	StrategyAggressiveAutoscale:  {"Aggressive Auto-Scaling", "Fast scale-up/down for bursty workloads"},
	StrategyScheduledScaling:     {"Scheduled Scaling", "Pre-scheduled scaling based on time patterns"},
	StrategyPredictiveScaling:    {"Predictive Scaling", "Forecast-driven auto-scaling"},
	StrategySpotInstances:        {"Spot Instances", "Use spot/preemptible instances for cost savings"},
	StrategyRightSizing:          {"Right-Sizing", "Adjust baseline capacity to match average load"},
	StrategyServiceConsolidation: {"Service Consolidation", "Consider consolidating with other services"},
	StrategyConservativeBuffer:   {"Conservative Buffer", "Maintain high buffer for unpredictable patterns"},
}

// DisplayName returns the human label of the strategy.
func (s OptimizationStrategy) DisplayName() string { return strategyText[s][0] }

// Description returns a one-line explanation of the strategy.
func (s OptimizationStrategy) Description() string { return strategyText[s][1] }

// WorkloadFeatures is the feature vector extracted from a multi-day window.
type WorkloadFeatures struct {
	CPUMean     float64 `json:"cpuMean"`
	CPUStdDev   float64 `json:"cpuStdDev"`
	CPUVariance float64 `json:"cpuVariance"`
	CPUMin      float64 `json:"cpuMin"`
	CPUMax      float64 `json:"cpuMax"`

	MemoryMean     float64 `json:"memoryMean"`
	MemoryStdDev   float64 `json:"memoryStdDev"`
	MemoryVariance float64 `json:"memoryVariance"`
	MemoryMin      float64 `json:"memoryMin"`
	MemoryMax      float64 `json:"memoryMax"`

	CPUTrendSlope    float64 `json:"cpuTrendSlope"`
	MemoryTrendSlope float64 `json:"memoryTrendSlope"`
	GrowthRate       float64 `json:"growthRate"`

	PeriodicityScore float64 `json:"periodicityScore"`
	BurstinessScore  float64 `json:"burstinessScore"`
	StabilityScore   float64 `json:"stabilityScore"`

	WeekdayWeekendRatio float64 `json:"weekdayWeekendRatio"`
	PeakHourUtilization float64 `json:"peakHourUtilization"`
	OffPeakUtilization  float64 `json:"offPeakUtilization"`

	Autocorrelation24h float64 `json:"autocorrelation24h"`
	Autocorrelation7d  float64 `json:"autocorrelation7d"`
}

// Vector returns the features in declaration order.
func (f WorkloadFeatures) Vector() []float64 {
	return []float64{
		f.CPUMean, f.CPUStdDev, f.CPUVariance, f.CPUMin, f.CPUMax,
		f.MemoryMean, f.MemoryStdDev, f.MemoryVariance, f.MemoryMin, f.MemoryMax,
		f.CPUTrendSlope, f.MemoryTrendSlope, f.GrowthRate,
		f.PeriodicityScore, f.BurstinessScore, f.StabilityScore,
		f.WeekdayWeekendRatio, f.PeakHourUtilization, f.OffPeakUtilization,
		f.Autocorrelation24h, f.Autocorrelation7d,
	}
}

// CoefficientOfVariation returns CPU stddev/mean, 0 when the mean is not positive.
func (f WorkloadFeatures) CoefficientOfVariation() float64 {
	if f.CPUMean <= 0 {
		return 0
	}
	return f.CPUStdDev / f.CPUMean
}

// PeakToMeanRatio returns CPU max/mean, 1 when the mean is not positive.
func (f WorkloadFeatures) PeakToMeanRatio() float64 {
	if f.CPUMean <= 0 {
		return 1
	}
	return f.CPUMax / f.CPUMean
}

// WorkloadProfile is the classifier's verdict for one service.
type WorkloadProfile struct {
	ServiceName            string               `json:"serviceName"`
	Pattern                WorkloadPattern      `json:"pattern"`
	Features               WorkloadFeatures     `json:"features"`
	RecommendedStrategy    OptimizationStrategy `json:"recommendedStrategy"`
	ConfidenceScore        float64              `json:"confidenceScore"`
	Description            string               `json:"description"`
	ResourceRecommendation string               `json:"resourceRecommendation"`
	EstimatedSavings       float64              `json:"estimatedSavings"`
	AnalysisWindowDays     int                  `json:"analysisWindowDays"`
	SampleCount            int                  `json:"sampleCount"`
}
