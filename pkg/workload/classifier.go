// Package workload classifies a service's multi-day usage history into one of
// the closed set of workload patterns and maps it onto an optimization
// strategy.
package workload

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

// ErrUnknownPattern is returned for a pattern outside models.AllWorkloadPatterns
var ErrUnknownPattern = errors.New("unknown workload pattern")

const (
	// periodicityMinSamples is the shortest window for which the hour of day
	// can explain anything
	periodicityMinSamples = 24

	lagDay  = 24
	lagWeek = 168

	// aggressiveBurstiness separates aggressive autoscaling from spot capacity
	aggressiveBurstiness = 0.2
)

// savingsFraction is the share of the savings baseline each pattern can
// typically recover
var savingsFraction = map[models.WorkloadPattern]float64{
	models.PatternSteadyState: 0.30,
	models.PatternBursty:      0.25,
	models.PatternPeriodic:    0.35,
	models.PatternGrowing:     0.15,
	models.PatternSeasonal:    0.20,
	models.PatternDeclining:   0.50,
	models.PatternChaotic:     0.05,
}

// Classifier extracts workload features and classifies them with a fixed
// priority decision tree
type Classifier struct {
	cfg config.WorkloadConfig
	loc *time.Location
}

// NewClassifier creates a classifier. Hours of day are read in the
// forecast location so both engines agree on what "14:00" means.
func NewClassifier(cfg config.Config) *Classifier {
	loc, err := cfg.Forecast.Zone()
	if err != nil {
		klog.Warningf("Unknown location %q, classifying in UTC: %v", cfg.Forecast.Location, err)
		loc = time.UTC
	}
	return &Classifier{cfg: cfg.Workload, loc: loc}
}

// Classify builds the workload profile of a service. An empty window yields
// the default profile.
func (c *Classifier) Classify(service string, snaps []models.Snapshot) (models.WorkloadProfile, error) {
	if len(models.CPUValues(snaps)) == 0 {
		klog.V(3).Infof("No CPU samples for %s, returning default workload profile", service)
		return c.DefaultProfile(service), nil
	}

	features := c.ExtractFeatures(snaps)
	pattern := c.Decide(features)

	strategy, err := StrategyFor(pattern, features)
	if err != nil {
		return models.WorkloadProfile{}, err
	}
	savings, err := c.EstimatedSavings(pattern)
	if err != nil {
		return models.WorkloadProfile{}, err
	}

	profile := models.WorkloadProfile{
		ServiceName:            service,
		Pattern:                pattern,
		Features:               features,
		RecommendedStrategy:    strategy,
		ConfidenceScore:        Confidence(features, len(snaps)),
		Description:            pattern.Description(),
		ResourceRecommendation: strategy.Description(),
		EstimatedSavings:       savings,
		AnalysisWindowDays:     c.cfg.WindowDays,
		SampleCount:            len(snaps),
	}
	klog.V(4).Infof("Workload %s: %s (cv=%.2f periodicity=%.2f burstiness=%.2f slope=%.3f) -> %s",
		service, pattern, features.CoefficientOfVariation(), features.PeriodicityScore,
		features.BurstinessScore, features.CPUTrendSlope, strategy)
	return profile, nil
}

// ExtractFeatures computes the feature vector of a window. Only samples that
// report a dimension contribute to it.
func (c *Classifier) ExtractFeatures(snaps []models.Snapshot) models.WorkloadFeatures {
	ordered := models.Chronological(snaps)
	cpu := models.CPUValues(ordered)
	memory := models.HeapPercentValues(ordered)
	profile := timepattern.Group(ordered, c.loc)

	cpuSummary := stats.Describe(cpu)
	memSummary := stats.Describe(memory)
	cpuSlope := stats.Slope(cpu)

	f := models.WorkloadFeatures{
		CPUMean:     cpuSummary.Mean,
		CPUStdDev:   cpuSummary.StdDev,
		CPUVariance: stats.Variance(cpu),
		CPUMin:      cpuSummary.Min,
		CPUMax:      cpuSummary.Max,

		MemoryMean:     memSummary.Mean,
		MemoryStdDev:   memSummary.StdDev,
		MemoryVariance: stats.Variance(memory),
		MemoryMin:      memSummary.Min,
		MemoryMax:      memSummary.Max,

		CPUTrendSlope:    cpuSlope,
		MemoryTrendSlope: stats.Slope(memory),
		GrowthRate:       cpuSlope / 100,

		PeriodicityScore: Periodicity(profile),
		BurstinessScore:  Burstiness(cpu),
		StabilityScore:   stability(cpuSummary.StdDev),

		WeekdayWeekendRatio: weekdayWeekendRatio(profile),
	}

	if hourly := profile.HourlyMeans(); len(hourly) > 0 {
		f.PeakHourUtilization, f.OffPeakUtilization = stats.Max(hourly), stats.Min(hourly)
	}

	series := timepattern.HourlySeries(ordered, c.loc)
	f.Autocorrelation24h = stats.Autocorrelation(series, lagDay)
	f.Autocorrelation7d = stats.Autocorrelation(series, lagWeek)
	return f
}

// Decide walks the decision tree in priority order; the first match wins
func (c *Classifier) Decide(f models.WorkloadFeatures) models.WorkloadPattern {
	cv := f.CoefficientOfVariation()
	switch {
	case f.CPUTrendSlope < c.cfg.DecliningSlope:
		return models.PatternDeclining
	case f.CPUTrendSlope > c.cfg.GrowingSlope:
		return models.PatternGrowing
	case cv > c.cfg.ChaoticCV && f.PeriodicityScore < c.cfg.ChaoticMaxPeriod:
		return models.PatternChaotic
	case f.BurstinessScore > c.cfg.BurstyScore || f.PeakToMeanRatio() > c.cfg.BurstyPeakRatio:
		return models.PatternBursty
	case f.PeriodicityScore > c.cfg.PeriodicScore:
		return models.PatternPeriodic
	case f.PeriodicityScore > c.cfg.SeasonalScore && cv > c.cfg.SeasonalCV:
		return models.PatternSeasonal
	default:
		return models.PatternSteadyState
	}
}

// StrategyFor maps a pattern onto its default optimization strategy
func StrategyFor(pattern models.WorkloadPattern, f models.WorkloadFeatures) (models.OptimizationStrategy, error) {
	switch pattern {
	case models.PatternSteadyState:
		return models.StrategyReservedCapacity, nil
	case models.PatternBursty:
		if f.BurstinessScore > aggressiveBurstiness {
			return models.StrategyAggressiveAutoscale, nil
		}
		return models.StrategySpotInstances, nil
	case models.PatternPeriodic:
		return models.StrategyScheduledScaling, nil
	case models.PatternGrowing, models.PatternSeasonal:
		return models.StrategyPredictiveScaling, nil
	case models.PatternDeclining:
		return models.StrategyServiceConsolidation, nil
	case models.PatternChaotic:
		return models.StrategyConservativeBuffer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPattern, pattern)
	}
}

// EstimatedSavings is the monthly saving the pattern's strategy typically
// recovers from the configured baseline
func (c *Classifier) EstimatedSavings(pattern models.WorkloadPattern) (float64, error) {
	fraction, ok := savingsFraction[pattern]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPattern, pattern)
	}
	return stats.Round2(c.cfg.SavingsBaseline * fraction), nil
}

// Confidence combines a sample-size term, saturating at 70, with a clarity
// term that favours clearly flat or clearly volatile usage over the ambiguous
// middle. The result is clamped to [0,100].
func Confidence(f models.WorkloadFeatures, samples int) float64 {
	sampleTerm := math.Min(70, 30+float64(samples)*0.5)

	clarity := 20.0
	if cv := f.CoefficientOfVariation(); cv < 0.2 || cv > 0.8 {
		clarity = 30
	}
	return math.Max(0, math.Min(100, sampleTerm+clarity))
}

// Periodicity is the share of CPU variance explained by the hour of day (the
// correlation ratio). Windows under a day, or covering a single hour, score 0.
func Periodicity(profile timepattern.Profile) float64 {
	if profile.CPU.Count < periodicityMinSamples || profile.HoursPresent() < 2 {
		return 0
	}
	total := profile.CPU.StdDev * profile.CPU.StdDev
	if total == 0 {
		return 0
	}
	return math.Min(1, profile.BetweenHourVariance()/total)
}

// Burstiness is the fraction of samples above mean + 2 standard deviations
func Burstiness(values []float64) float64 {
	mean := stats.Mean(values)
	if len(values) == 0 || mean <= 0 {
		return 0
	}
	threshold := mean + 2*stats.StdDev(values)
	above := 0
	for _, v := range values {
		if v > threshold {
			above++
		}
	}
	return float64(above) / float64(len(values))
}

func stability(stdDev float64) float64 {
	if stdDev == 0 {
		return 1
	}
	return 1 / (1 + stdDev)
}

// weekdayWeekendRatio compares mean CPU on Monday-Friday with the weekend; 1
// when either side is missing
func weekdayWeekendRatio(profile timepattern.Profile) float64 {
	var weekdaySum, weekendSum float64
	var weekdayCount, weekendCount int
	for _, d := range profile.Days {
		total := d.MeanCPU * float64(d.SampleCount)
		if d.Day == time.Saturday || d.Day == time.Sunday {
			weekendSum += total
			weekendCount += d.SampleCount
		} else {
			weekdaySum += total
			weekdayCount += d.SampleCount
		}
	}
	if weekdayCount == 0 || weekendCount == 0 || weekendSum == 0 {
		return 1
	}
	return (weekdaySum / float64(weekdayCount)) / (weekendSum / float64(weekendCount))
}

// DefaultProfile is returned when no CPU samples are available
func (c *Classifier) DefaultProfile(service string) models.WorkloadProfile {
	return models.WorkloadProfile{
		ServiceName: service,
		Pattern:     models.PatternSteadyState,
		Features: models.WorkloadFeatures{
			CPUMean:             50,
			CPUStdDev:           10,
			CPUVariance:         100,
			CPUMin:              40,
			CPUMax:              60,
			MemoryMean:          50,
			MemoryStdDev:        5,
			MemoryVariance:      25,
			PeriodicityScore:    0.5,
			BurstinessScore:     0.05,
			StabilityScore:      0.8,
			WeekdayWeekendRatio: 1,
			PeakHourUtilization: 60,
			OffPeakUtilization:  40,
			Autocorrelation24h:  0.5,
			Autocorrelation7d:   0.4,
		},
		RecommendedStrategy:    models.StrategyRightSizing,
		ConfidenceScore:        50,
		Description:            "Insufficient data for classification - using default profile",
		ResourceRecommendation: models.StrategyRightSizing.Description(),
		EstimatedSavings:       stats.Round2(c.cfg.SavingsBaseline * 0.10),
		AnalysisWindowDays:     c.cfg.WindowDays,
	}
}
