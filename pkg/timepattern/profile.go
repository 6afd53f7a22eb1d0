package timepattern

import (
	"time"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// HourStats contains statistics for a specific hour of day
type HourStats struct {
	Hour        int     `json:"hour"`
	SampleCount int     `json:"sampleCount"`
	MeanCPU     float64 `json:"meanCpu"`
	MaxCPU      float64 `json:"maxCpu"`
	StdDevCPU   float64 `json:"stdDevCpu"`
	MeanMemory  float64 `json:"meanMemory"`
}

// DayStats contains statistics for a specific day of week
type DayStats struct {
	Day         time.Weekday `json:"day"`
	SampleCount int          `json:"sampleCount"`
	MeanCPU     float64      `json:"meanCpu"`
	MeanMemory  float64      `json:"meanMemory"`
}

// Profile is a window grouped by local hour of day and day of week. CPU
// statistics only count samples that report CPU, memory statistics only
// samples that report heap percent.
type Profile struct {
	Hours  [24]HourStats `json:"hours"`
	Days   [7]DayStats   `json:"days"`
	CPU    stats.Summary `json:"cpu"`
	Memory stats.Summary `json:"memory"`
}

// Slot identifies an hour of a week
type Slot struct {
	Hour int
	Day  time.Weekday
}

// SlotOf returns the local hour and weekday of t
func SlotOf(t time.Time, loc *time.Location) Slot {
	local := t.In(loc)
	return Slot{Hour: local.Hour(), Day: local.Weekday()}
}

// Group buckets snapshots by hour of day and day of week in loc
func Group(snaps []models.Snapshot, loc *time.Location) Profile {
	var hourCPU, hourMem [24][]float64
	var dayCPU, dayMem [7][]float64

	for _, s := range snaps {
		slot := SlotOf(s.Timestamp, loc)
		if s.CPUPercent > 0 {
			hourCPU[slot.Hour] = append(hourCPU[slot.Hour], s.CPUPercent)
			dayCPU[slot.Day] = append(dayCPU[slot.Day], s.CPUPercent)
		}
		if s.HeapPercent > 0 {
			hourMem[slot.Hour] = append(hourMem[slot.Hour], s.HeapPercent)
			dayMem[slot.Day] = append(dayMem[slot.Day], s.HeapPercent)
		}
	}

	var p Profile
	for hour := 0; hour < 24; hour++ {
		cpu := stats.Describe(hourCPU[hour])
		p.Hours[hour] = HourStats{
			Hour:        hour,
			SampleCount: cpu.Count,
			MeanCPU:     cpu.Mean,
			MaxCPU:      cpu.Max,
			StdDevCPU:   cpu.StdDev,
			MeanMemory:  stats.Mean(hourMem[hour]),
		}
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		p.Days[day] = DayStats{
			Day:         day,
			SampleCount: len(dayCPU[day]),
			MeanCPU:     stats.Mean(dayCPU[day]),
			MeanMemory:  stats.Mean(dayMem[day]),
		}
	}
	p.CPU = stats.Describe(models.CPUValues(snaps))
	p.Memory = stats.Describe(models.HeapPercentValues(snaps))
	return p
}

// HourlyMeans returns the mean CPU of every hour that has samples, in hour order
func (p Profile) HourlyMeans() []float64 {
	var means []float64
	for _, h := range p.Hours {
		if h.SampleCount > 0 {
			means = append(means, h.MeanCPU)
		}
	}
	return means
}

// DailyMeans returns the mean CPU of every weekday that has samples
func (p Profile) DailyMeans() []float64 {
	var means []float64
	for _, d := range p.Days {
		if d.SampleCount > 0 {
			means = append(means, d.MeanCPU)
		}
	}
	return means
}

// HoursPresent counts the hours of day that have samples
func (p Profile) HoursPresent() int {
	return len(p.HourlyMeans())
}

// BetweenHourVariance is the part of the CPU variance explained by the hour
// of day: the sample-weighted spread of hourly means around the overall mean
func (p Profile) BetweenHourVariance() float64 {
	if p.CPU.Count == 0 {
		return 0
	}
	var sum float64
	for _, h := range p.Hours {
		if h.SampleCount > 0 {
			d := h.MeanCPU - p.CPU.Mean
			sum += float64(h.SampleCount) * d * d
		}
	}
	return sum / float64(p.CPU.Count)
}

// HourlySeries averages reported CPU per wall-clock hour in loc and returns
// the buckets present, oldest first
func HourlySeries(snaps []models.Snapshot, loc *time.Location) []float64 {
	return HourlyBuckets(snaps, loc, func(s models.Snapshot) (float64, bool) {
		return s.CPUPercent, s.CPUPercent > 0
	})
}

// HourlyBuckets averages value per wall-clock hour in loc over the samples for
// which it reports ok, and returns the buckets present, oldest first
func HourlyBuckets(snaps []models.Snapshot, loc *time.Location, value func(models.Snapshot) (float64, bool)) []float64 {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]*bucket)
	var keys []time.Time

	for _, s := range models.Chronological(snaps) {
		v, ok := value(s)
		if !ok {
			continue
		}
		local := s.Timestamp.In(loc)
		key := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
		b, found := buckets[key]
		if !found {
			b = &bucket{}
			buckets[key] = b
			keys = append(keys, key)
		}
		b.sum += v
		b.count++
	}

	series := make([]float64, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		series = append(series, b.sum/float64(b.count))
	}
	return series
}
