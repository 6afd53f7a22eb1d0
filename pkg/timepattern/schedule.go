package timepattern

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// ScalingSchedule represents a recommended time-based scaling schedule
type ScalingSchedule struct {
	// Enabled indicates if schedule-based scaling is recommended
	Enabled bool `json:"enabled"`

	// Reason explains why schedule-based scaling is or is not recommended
	Reason string `json:"reason"`

	Schedules []ScheduleEntry `json:"schedules,omitempty"`

	// EstimatedSavingsPercent is the share of CPU reservation freed by
	// scaling down during low-activity hours
	EstimatedSavingsPercent float64 `json:"estimatedSavingsPercent"`
}

// ScheduleEntry represents a single scaling schedule entry
type ScheduleEntry struct {
	Name string `json:"name"`

	// CronSchedule is the standard five-field expression for when this applies
	CronSchedule string `json:"cronSchedule"`

	Duration time.Duration `json:"duration"`

	// CPUMultiplier is the multiplier to apply to base CPU (1.0 = no change)
	CPUMultiplier float64 `json:"cpuMultiplier"`

	// MemoryMultiplier is the multiplier to apply to base memory
	MemoryMultiplier float64 `json:"memoryMultiplier"`

	Description string `json:"description"`

	// NextActivation is the first activation after the schedule was built
	NextActivation time.Time `json:"nextActivation"`
}

// NextRun returns the first activation of the entry strictly after the given time, with
// the cron fields read in loc
func (e ScheduleEntry) NextRun(after time.Time, loc *time.Location) (time.Time, error) {
	schedule, err := cron.ParseStandard(e.CronSchedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q for %s: %w", e.CronSchedule, e.Name, err)
	}
	if spec, ok := schedule.(*cron.SpecSchedule); ok {
		spec.Location = loc
	}
	return schedule.Next(after), nil
}

// Schedule derives one entry per run of consecutive peak hours and per run of
// low-activity hours. Entries are only recommended when a daily pattern
// exists.
func (a *Analyzer) Schedule(snaps []models.Snapshot, now time.Time) (*ScalingSchedule, error) {
	profile := a.Profile(snaps)
	if profile.CPU.Count == 0 {
		return &ScalingSchedule{Reason: "No data available for analysis"}, nil
	}
	pattern := a.detect(profile, models.CPUValues(models.Chronological(snaps)))
	return a.schedule(profile, pattern, now)
}

func (a *Analyzer) schedule(profile Profile, pattern models.TimeSeriesPattern, now time.Time) (*ScalingSchedule, error) {
	if !pattern.HasDailyPattern {
		return &ScalingSchedule{Reason: "No significant daily pattern detected"}, nil
	}

	overallCPU := stats.Mean(profile.HourlyMeans())
	overallMemory := profile.Memory.Mean

	schedule := &ScalingSchedule{
		Enabled: true,
		Reason: fmt.Sprintf("Daily pattern - scale up during peak hours (%s), down during low activity (%s)",
			formatHourRange(pattern.PeakHours), formatHourRange(pattern.LowActivityHours)),
	}

	for _, r := range hourRanges(pattern.PeakHours) {
		cpu, memory := rangeMultipliers(profile, r, overallCPU, overallMemory)
		schedule.Schedules = append(schedule.Schedules, ScheduleEntry{
			Name:             fmt.Sprintf("peak-%02d", r.start),
			CronSchedule:     fmt.Sprintf("0 %d * * *", r.start),
			Duration:         time.Duration(r.length) * time.Hour,
			CPUMultiplier:    cpu,
			MemoryMultiplier: memory,
			Description:      fmt.Sprintf("Increased resources during peak hours %s", formatHourRange(r.hours())),
		})
	}

	var lowSum float64
	for _, r := range hourRanges(pattern.LowActivityHours) {
		cpu, memory := rangeMultipliers(profile, r, overallCPU, overallMemory)
		for _, h := range r.hours() {
			lowSum += profile.Hours[h].MeanCPU
		}
		schedule.Schedules = append(schedule.Schedules, ScheduleEntry{
			Name:             fmt.Sprintf("low-%02d", r.start),
			CronSchedule:     fmt.Sprintf("0 %d * * *", r.start),
			Duration:         time.Duration(r.length) * time.Hour,
			CPUMultiplier:    cpu,
			MemoryMultiplier: memory,
			Description:      fmt.Sprintf("Reduced resources during low activity %s", formatHourRange(r.hours())),
		})
	}

	if n := len(pattern.LowActivityHours); n > 0 && overallCPU > 0 {
		// Savings = (1 - lowRatio) * (lowHours / 24)
		lowRatio := lowSum / float64(n) / overallCPU
		schedule.EstimatedSavingsPercent = stats.Round2((1 - lowRatio) * float64(n) / 24 * 100)
	}

	for i := range schedule.Schedules {
		next, err := schedule.Schedules[i].NextRun(now, a.loc)
		if err != nil {
			return nil, err
		}
		schedule.Schedules[i].NextActivation = next
	}
	return schedule, nil
}

// rangeMultipliers is the mean usage of the hours in r relative to the
// overall mean. Memory stays at 1 without heap data.
func rangeMultipliers(profile Profile, r hourRange, overallCPU, overallMemory float64) (cpu, memory float64) {
	var cpuSum, memSum float64
	for _, h := range r.hours() {
		cpuSum += profile.Hours[h].MeanCPU
		memSum += profile.Hours[h].MeanMemory
	}
	n := float64(r.length)
	cpu, memory = 1, 1
	if overallCPU > 0 {
		cpu = stats.Round2(cpuSum / n / overallCPU)
	}
	if overallMemory > 0 && memSum > 0 {
		memory = stats.Round2(memSum / n / overallMemory)
	}
	return cpu, memory
}
