package timepattern

import (
	"testing"
	"time"

	"intelligent-resource-analyzer/pkg/models"
)

func TestScheduleDailyPattern(t *testing.T) {
	snaps := hourlyForDays(7, cosineDay)
	now := baseTime.AddDate(0, 0, 7)

	schedule, err := newTestAnalyzer().Schedule(snaps, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !schedule.Enabled {
		t.Fatalf("expected schedule to be enabled: %s", schedule.Reason)
	}
	if len(schedule.Schedules) != 2 {
		t.Fatalf("expected one peak and one low entry, got %+v", schedule.Schedules)
	}

	peak, low := schedule.Schedules[0], schedule.Schedules[1]
	if peak.Name != "peak-10" || peak.CronSchedule != "0 10 * * *" || peak.Duration != 9*time.Hour {
		t.Errorf("unexpected peak entry %+v", peak)
	}
	if low.Name != "low-22" || low.CronSchedule != "0 22 * * *" || low.Duration != 9*time.Hour {
		t.Errorf("unexpected low entry %+v", low)
	}
	if peak.CPUMultiplier <= 1 || low.CPUMultiplier >= 1 {
		t.Errorf("expected peak multiplier above 1 and low below 1, got %v / %v", peak.CPUMultiplier, low.CPUMultiplier)
	}
	if peak.MemoryMultiplier != 1 {
		t.Errorf("expected neutral memory multiplier without heap data, got %v", peak.MemoryMultiplier)
	}

	if want := time.Date(2024, 4, 8, 10, 0, 0, 0, time.UTC); !peak.NextActivation.Equal(want) {
		t.Errorf("expected next peak activation %v, got %v", want, peak.NextActivation)
	}
	if want := time.Date(2024, 4, 8, 22, 0, 0, 0, time.UTC); !low.NextActivation.Equal(want) {
		t.Errorf("expected next low activation %v, got %v", want, low.NextActivation)
	}
	if schedule.EstimatedSavingsPercent <= 0 || schedule.EstimatedSavingsPercent >= 100 {
		t.Errorf("expected savings in (0,100), got %v", schedule.EstimatedSavingsPercent)
	}
}

func TestScheduleFlatPattern(t *testing.T) {
	snaps := hourlyForDays(7, func(time.Time) float64 { return 50 })

	schedule, err := newTestAnalyzer().Schedule(snaps, baseTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schedule.Enabled || len(schedule.Schedules) != 0 {
		t.Errorf("expected no schedule for flat usage, got %+v", schedule)
	}
}

func TestScheduleNoData(t *testing.T) {
	schedule, err := newTestAnalyzer().Schedule(nil, baseTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schedule.Enabled {
		t.Error("expected disabled schedule for empty data")
	}
}

func TestScheduleEntryNextRun(t *testing.T) {
	entry := ScheduleEntry{Name: "peak-09", CronSchedule: "0 9 * * *"}

	next, err := entry.NextRun(baseTime, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := baseTime.Add(9 * time.Hour); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	bad := ScheduleEntry{Name: "broken", CronSchedule: "61 * * * *"}
	if _, err := bad.NextRun(baseTime, time.UTC); err == nil {
		t.Error("expected error for invalid cron expression")
	}

	// 00:00 UTC is 02:00 at UTC+2, so the next local 09:00 is 07:00 UTC
	local, err := entry.NextRun(baseTime, time.FixedZone("UTC+2", 2*60*60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := baseTime.Add(7 * time.Hour); !local.Equal(want) {
		t.Errorf("expected %v, got %v", want, local)
	}
}

func TestGroupUsesLocation(t *testing.T) {
	plusTwo := time.FixedZone("UTC+2", 2*60*60)
	// Monday 23:00 UTC is Tuesday 01:00 at UTC+2
	ts := time.Date(2024, 4, 1, 23, 0, 0, 0, time.UTC)

	slot := SlotOf(ts, plusTwo)
	if slot.Hour != 1 || slot.Day != time.Tuesday {
		t.Errorf("expected Tuesday 01:00, got %s %02d:00", slot.Day, slot.Hour)
	}

	profile := Group([]models.Snapshot{{Timestamp: ts, CPUPercent: 40, HeapPercent: 60}}, plusTwo)
	if profile.Hours[1].SampleCount != 1 || profile.Days[time.Tuesday].SampleCount != 1 {
		t.Errorf("expected sample bucketed at Tuesday 01:00, got hours=%+v", profile.Hours[1])
	}
	if profile.Hours[1].MeanMemory != 60 {
		t.Errorf("expected memory mean 60, got %v", profile.Hours[1].MeanMemory)
	}
}

func TestGroupSkipsUnreportedCPU(t *testing.T) {
	snaps := []models.Snapshot{
		{Timestamp: baseTime, CPUPercent: 40},
		{Timestamp: baseTime.Add(time.Minute), CPUPercent: 0, HeapPercent: 50},
	}

	profile := Group(snaps, time.UTC)
	if profile.Hours[0].SampleCount != 1 || profile.Hours[0].MeanCPU != 40 {
		t.Errorf("expected one CPU sample with mean 40, got %+v", profile.Hours[0])
	}
	if profile.Hours[0].MeanMemory != 50 {
		t.Errorf("expected memory mean 50, got %v", profile.Hours[0].MeanMemory)
	}
}

func TestBetweenHourVariance(t *testing.T) {
	profile := Group(hourlyForDays(7, cosineDay), time.UTC)

	total := profile.CPU.StdDev * profile.CPU.StdDev
	if ratio := profile.BetweenHourVariance() / total; ratio < 0.99 {
		t.Errorf("expected hour of day to explain nearly all variance, got %.3f", ratio)
	}

	flat := Group(hourlyForDays(7, func(time.Time) float64 { return 50 }), time.UTC)
	if v := flat.BetweenHourVariance(); v != 0 {
		t.Errorf("expected zero between-hour variance for flat usage, got %v", v)
	}
}

func TestHourlySeries(t *testing.T) {
	snaps := []models.Snapshot{
		{Timestamp: baseTime.Add(2 * time.Hour), CPUPercent: 70},
		{Timestamp: baseTime, CPUPercent: 10},
		{Timestamp: baseTime.Add(30 * time.Minute), CPUPercent: 30},
		{Timestamp: baseTime.Add(45 * time.Minute), CPUPercent: 0},
	}

	series := HourlySeries(snaps, time.UTC)

	if len(series) != 2 || series[0] != 20 || series[1] != 70 {
		t.Errorf("expected [20 70], got %v", series)
	}
}
