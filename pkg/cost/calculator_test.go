package cost

import (
	"math"
	"strings"
	"testing"
	"time"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
)

func newTestCalculator() *Calculator {
	return NewCalculator(config.Default().Cost, time.UTC)
}

func TestCalculateCost(t *testing.T) {
	c := newTestCalculator()

	cost := c.CalculateCost(1, 2)

	// 1 core * 0.042 + 2 GiB * 0.0052
	if math.Abs(cost.TotalPerHour-0.0524) > 1e-9 {
		t.Errorf("expected 0.0524/hour, got %f", cost.TotalPerHour)
	}
	if math.Abs(cost.TotalPerMonth-0.0524*730) > 1e-9 {
		t.Errorf("expected %f/month, got %f", 0.0524*730, cost.TotalPerMonth)
	}
	if !strings.Contains(cost.FormatCost(), "/month") {
		t.Errorf("unexpected format %q", cost.FormatCost())
	}
}

func TestCompare(t *testing.T) {
	c := newTestCalculator()

	tests := []struct {
		name        string
		current     models.ResourceSpec
		recommended models.ResourceSpec
		want        models.CostAnalysis
	}{
		{
			name:        "downsizing saves half",
			current:     models.ResourceSpec{CPURequest: models.Millicores(1000), MemoryRequest: models.Mebibytes(2048)},
			recommended: models.ResourceSpec{CPURequest: models.Millicores(500), MemoryRequest: models.Mebibytes(1024)},
			want: models.CostAnalysis{
				CurrentMonthlyCost:     40,
				RecommendedMonthlyCost: 20,
				MonthlySavings:         20,
				AnnualSavings:          240,
				SavingsPercent:         50,
			},
		},
		{
			name:        "upsizing costs more",
			current:     models.ResourceSpec{CPURequest: models.Millicores(100), MemoryRequest: models.Mebibytes(256)},
			recommended: models.ResourceSpec{CPURequest: models.Millicores(200), MemoryRequest: models.Mebibytes(512)},
			want: models.CostAnalysis{
				CurrentMonthlyCost:     4.25,
				RecommendedMonthlyCost: 8.5,
				MonthlySavings:         -4.25,
				AnnualSavings:          -51,
				SavingsPercent:         -100,
			},
		},
		{
			name: "zero current cost",
			want: models.CostAnalysis{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Compare(tt.current, tt.recommended); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestEstimateSavingsFromUsage(t *testing.T) {
	c := newTestCalculator()

	// 0.6 cores and 1.2 GiB recommended against 1 core and 2 GiB
	if got := c.EstimateSavingsFromUsage(50, 50, 0.2); got != 16 {
		t.Errorf("expected 16, got %f", got)
	}
	// recommendation above the baseline never yields negative savings
	if got := c.EstimateSavingsFromUsage(100, 100, 0.2); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func hourlySnapshots(days int, cpuAt func(hour int) float64) []models.Snapshot {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	var snaps []models.Snapshot
	for h := 0; h < days*24; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		snaps = append(snaps, models.Snapshot{
			ServiceName: "api",
			Timestamp:   ts,
			CPUPercent:  cpuAt(ts.Hour()),
		})
	}
	return snaps
}

func TestAnalyzeScalingOptions(t *testing.T) {
	c := newTestCalculator()
	snaps := hourlySnapshots(2, func(hour int) float64 {
		if hour < 12 {
			return 20
		}
		return 60
	})

	analysis := c.AnalyzeScalingOptions("api", snaps, 3)

	if analysis.Recommended != OptionBalanced {
		t.Errorf("expected BALANCED, got %s", analysis.Recommended)
	}
	if analysis.Balanced.AverageReplicas != 2 || analysis.Performance.AverageReplicas != 3 {
		t.Errorf("expected replicas 2/3, got %d/%d",
			analysis.Balanced.AverageReplicas, analysis.Performance.AverageReplicas)
	}
	if analysis.Balanced.SavingsPercent != 33.33 {
		t.Errorf("expected balanced savings 33.33%%, got %f", analysis.Balanced.SavingsPercent)
	}
	if analysis.Performance.CPURequest != "1200m" || analysis.Cost.MemoryRequest != "1639Mi" {
		t.Errorf("unexpected pod sizes %s / %s", analysis.Performance.CPURequest, analysis.Cost.MemoryRequest)
	}
	if analysis.CurrentMonthlyCost != 114.76 {
		t.Errorf("expected current cost 114.76, got %f", analysis.CurrentMonthlyCost)
	}
	// 100 - 40*0.5 - 60*0.3
	if math.Abs(analysis.CurrentPerformanceScore-62) > 1e-9 {
		t.Errorf("expected performance score 62, got %f", analysis.CurrentPerformanceScore)
	}
	if !strings.HasPrefix(analysis.Rationale, "Balanced approach recommended.") {
		t.Errorf("unexpected rationale %q", analysis.Rationale)
	}
}

func TestAnalyzeScalingOptions_Empty(t *testing.T) {
	analysis := newTestCalculator().AnalyzeScalingOptions("api", nil, 0)

	if analysis.Recommended != OptionBalanced || analysis.CurrentMonthlyCost != 300 {
		t.Errorf("unexpected default analysis %+v", analysis)
	}
	if analysis.Performance != nil {
		t.Error("expected no options without data")
	}
}

func TestChooseOption(t *testing.T) {
	tests := []struct {
		name     string
		perf     ScalingOption
		cheap    ScalingOption
		balanced ScalingOption
		want     OptionKind
	}{
		{
			name:     "balanced saves enough",
			balanced: ScalingOption{SavingsPercent: 20, PerformanceScore: 85},
			want:     OptionBalanced,
		},
		{
			name:     "performance is cheap enough",
			perf:     ScalingOption{MonthlyCost: 120},
			balanced: ScalingOption{MonthlyCost: 100, PerformanceScore: 85},
			want:     OptionPerformance,
		},
		{
			name:     "cost option saves a lot",
			perf:     ScalingOption{MonthlyCost: 300},
			cheap:    ScalingOption{SavingsPercent: 45},
			balanced: ScalingOption{MonthlyCost: 100},
			want:     OptionCost,
		},
		{
			name:     "fallback",
			perf:     ScalingOption{MonthlyCost: 300},
			balanced: ScalingOption{MonthlyCost: 100},
			want:     OptionBalanced,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseOption(tt.perf, tt.cheap, tt.balanced); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAnalyzeIdleTime(t *testing.T) {
	c := newTestCalculator()
	snaps := hourlySnapshots(3, func(hour int) float64 {
		if hour < 10 {
			return 10
		}
		return 60
	})

	idle := c.AnalyzeIdleTime(snaps)

	if len(idle.Periods) != 10 {
		t.Fatalf("expected 10 idle hours, got %d", len(idle.Periods))
	}
	for i, p := range idle.Periods {
		if p.HourOfDay != i {
			t.Errorf("expected idle periods sorted by hour, position %d has hour %d", i, p.HourOfDay)
		}
	}
	if idle.IdlePercent != 41.67 {
		t.Errorf("expected 41.67%% idle, got %f", idle.IdlePercent)
	}
	if !strings.HasPrefix(idle.Recommendation, "High idle time") {
		t.Errorf("unexpected recommendation %q", idle.Recommendation)
	}
	if idle.PotentialSavings <= 0 {
		t.Errorf("expected positive potential savings, got %f", idle.PotentialSavings)
	}
}
