// Package timepattern detects daily and weekly usage patterns in a snapshot
// history and turns them into time-based scaling schedules.
package timepattern

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// Trend bands, in percent change between the first and last quarter
const (
	trendBand      = 10.0
	rapidTrendBand = 30.0

	// trendMinSamples is the shortest window whose quarters are compared
	trendMinSamples = 10
)

// Analyzer detects time-based usage patterns in snapshot histories
type Analyzer struct {
	cfg config.ForecastConfig
	loc *time.Location
}

// NewAnalyzer creates an analyzer that groups samples in the configured zone
func NewAnalyzer(cfg config.ForecastConfig) *Analyzer {
	loc, err := cfg.Zone()
	if err != nil {
		klog.Warningf("Unknown location %q, grouping hours in UTC: %v", cfg.Location, err)
		loc = time.UTC
	}
	return &Analyzer{cfg: cfg, loc: loc}
}

// Location is the zone used for hour-of-day and weekday grouping
func (a *Analyzer) Location() *time.Location {
	return a.loc
}

// Profile groups snaps by hour and weekday in the analyzer's zone
func (a *Analyzer) Profile(snaps []models.Snapshot) Profile {
	return Group(snaps, a.loc)
}

// Detect summarizes the periodicity, trend and volatility of a history window
func (a *Analyzer) Detect(snaps []models.Snapshot) models.TimeSeriesPattern {
	profile := a.Profile(snaps)
	if profile.CPU.Count == 0 {
		return models.TimeSeriesPattern{
			Trend:       models.TrendStable,
			Description: "No data available for pattern detection",
		}
	}
	return a.detect(profile, models.CPUValues(models.Chronological(snaps)))
}

func (a *Analyzer) detect(profile Profile, chronological []float64) models.TimeSeriesPattern {
	daily := stats.Variance(profile.HourlyMeans()) > a.cfg.DailyVarianceThreshold

	dailyMeans := profile.DailyMeans()
	weekly := len(dailyMeans) >= a.cfg.WeeklyMinDays && stats.Variance(dailyMeans) > a.cfg.WeeklyVarianceThreshold

	peaks, lows := a.peakAndLowHours(profile)
	trend := DetectTrend(chronological)

	pattern := models.TimeSeriesPattern{
		HasDailyPattern:   daily,
		HasWeeklyPattern:  weekly,
		PeakHours:         peaks,
		LowActivityHours:  lows,
		WeekdayLoadLevels: weekdayLoadLevels(profile),
		Trend:             trend,
		TrendStrength:     trendStrength(trend),
		HasSeasonality:    daily || weekly,
		Volatility:        profile.CPU.StdDev,
	}
	switch {
	case weekly:
		pattern.SeasonalityPeriodHours = 168
	case daily:
		pattern.SeasonalityPeriodHours = 24
	}
	pattern.Description = describePattern(pattern)

	klog.V(4).Infof("Pattern: daily=%v weekly=%v peaks=%v lows=%v trend=%s volatility=%.1f",
		daily, weekly, peaks, lows, trend, pattern.Volatility)
	return pattern
}

// peakAndLowHours compares each hour's mean with the mean of the hourly means
func (a *Analyzer) peakAndLowHours(profile Profile) (peaks, lows []int) {
	overall := stats.Mean(profile.HourlyMeans())
	peaks, lows = []int{}, []int{}
	for _, h := range profile.Hours {
		if h.SampleCount == 0 {
			continue
		}
		if h.MeanCPU > overall*a.cfg.PeakRatio {
			peaks = append(peaks, h.Hour)
		}
		if h.MeanCPU < overall*a.cfg.LowRatio {
			lows = append(lows, h.Hour)
		}
	}
	return peaks, lows
}

// DetectTrend compares the mean of the first and last quarter of a
// chronological series
func DetectTrend(values []float64) models.Trend {
	if len(values) < trendMinSamples {
		return models.TrendStable
	}
	n := len(values)
	first := stats.Mean(values[:n/4])
	last := stats.Mean(values[n*3/4:])
	if first <= 0 {
		return models.TrendStable
	}
	return ClassifyTrend((last - first) / first * 100)
}

// ClassifyTrend maps a percent change onto the five trend labels
func ClassifyTrend(change float64) models.Trend {
	switch {
	case change >= rapidTrendBand:
		return models.TrendRapidlyIncreasing
	case change >= trendBand:
		return models.TrendIncreasing
	case change <= -rapidTrendBand:
		return models.TrendRapidlyDecreasing
	case change <= -trendBand:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func trendStrength(trend models.Trend) float64 {
	switch trend {
	case models.TrendRapidlyIncreasing, models.TrendRapidlyDecreasing:
		return 0.9
	case models.TrendIncreasing, models.TrendDecreasing:
		return 0.6
	default:
		return 0.3
	}
}

func weekdayLoadLevels(profile Profile) map[time.Weekday]models.LoadLevel {
	levels := make(map[time.Weekday]models.LoadLevel)
	for _, d := range profile.Days {
		if d.SampleCount > 0 {
			levels[d.Day] = LoadLevelFor(d.MeanCPU, profile.CPU.Mean)
		}
	}
	return levels
}

// LoadLevelFor buckets value against average
func LoadLevelFor(value, average float64) models.LoadLevel {
	switch {
	case value < average*0.5:
		return models.LoadVeryLow
	case value < average*0.8:
		return models.LoadLow
	case value < average*1.2:
		return models.LoadMedium
	case value < average*1.5:
		return models.LoadHigh
	default:
		return models.LoadVeryHigh
	}
}

func describePattern(p models.TimeSeriesPattern) string {
	var sb strings.Builder
	if p.HasDailyPattern {
		sb.WriteString("Daily pattern detected. ")
		if len(p.PeakHours) > 0 {
			fmt.Fprintf(&sb, "Peak hours: %s. ", formatHourRange(p.PeakHours))
		}
	}
	if p.HasWeeklyPattern {
		sb.WriteString("Weekly pattern detected. ")
	}
	fmt.Fprintf(&sb, "Trend: %s. ", p.Trend)
	switch {
	case p.Volatility > 20:
		sb.WriteString("High volatility detected - expect significant fluctuations.")
	case p.Volatility > 10:
		sb.WriteString("Moderate volatility - some fluctuations expected.")
	default:
		sb.WriteString("Low volatility - stable usage pattern.")
	}
	return sb.String()
}

type hourRange struct {
	start  int
	length int
}

func (r hourRange) end() int {
	return (r.start + r.length - 1) % 24
}

func (r hourRange) hours() []int {
	hours := make([]int, r.length)
	for i := range hours {
		hours[i] = (r.start + i) % 24
	}
	return hours
}

// hourRanges splits sorted hours into consecutive runs. A run ending at 23 is
// joined with one starting at 0.
func hourRanges(hours []int) []hourRange {
	var ranges []hourRange
	for _, h := range hours {
		if n := len(ranges); n > 0 && ranges[n-1].end() == h-1 {
			ranges[n-1].length++
			continue
		}
		ranges = append(ranges, hourRange{start: h, length: 1})
	}
	if n := len(ranges); n > 1 && ranges[0].start == 0 && ranges[n-1].end() == 23 {
		last := ranges[n-1]
		ranges[0] = hourRange{start: last.start, length: last.length + ranges[0].length}
		ranges = ranges[:n-1]
	}
	return ranges
}

// formatHourRange formats a slice of hours into a human-readable range
func formatHourRange(hours []int) string {
	if len(hours) == 0 {
		return "none"
	}
	var parts []string
	for _, r := range hourRanges(hours) {
		if r.length == 1 {
			parts = append(parts, fmt.Sprintf("%d:00", r.start))
		} else {
			parts = append(parts, fmt.Sprintf("%d:00-%d:00", r.start, r.end()))
		}
	}
	return strings.Join(parts, ", ")
}
