package cost

import (
	"fmt"
	"math"
	"sort"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// OptionKind names one of the three cost-aware scaling options
type OptionKind string

const (
	OptionPerformance OptionKind = "PERFORMANCE"
	OptionCost        OptionKind = "COST"
	OptionBalanced    OptionKind = "BALANCED"
)

const (
	baselineReplicas  = 3
	idleCPUThreshold  = 30.0
	idleBaselinePods  = 2
	defaultMonthlyRun = 300.0
)

// ScalingOption is one replica/pod-size trade-off
type ScalingOption struct {
	Kind            OptionKind `json:"kind"`
	Strategy        string     `json:"strategy"`
	MinReplicas     int        `json:"minReplicas"`
	MaxReplicas     int        `json:"maxReplicas"`
	AverageReplicas int        `json:"averageReplicas"`
	CPURequest      string     `json:"cpuRequest"`
	MemoryRequest   string     `json:"memoryRequest"`

	MonthlyCost    float64 `json:"monthlyCost"`
	SavingsPercent float64 `json:"savingsPercent"`
	SavingsAmount  float64 `json:"savingsAmount"`

	ExpectedP95Ms    float64 `json:"expectedP95Ms"`
	ExpectedP99Ms    float64 `json:"expectedP99Ms"`
	PerformanceScore float64 `json:"performanceScore"`

	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
	Description string   `json:"description"`
}

// IdlePeriod is an hour of day whose mean CPU stays below the idle threshold
type IdlePeriod struct {
	HourOfDay           int     `json:"hourOfDay"`
	AverageUsage        float64 `json:"averageUsage"`
	RecommendedReplicas int     `json:"recommendedReplicas"`
}

// IdleTimeAnalysis summarizes how much of the day a service idles
type IdleTimeAnalysis struct {
	IdlePercent      float64      `json:"idlePercent"`
	Periods          []IdlePeriod `json:"periods"`
	PotentialSavings float64      `json:"potentialSavings"`
	Recommendation   string       `json:"recommendation"`
}

// ScalingAnalysis compares the three options for one service
type ScalingAnalysis struct {
	Service                 string           `json:"service"`
	CurrentReplicas         int              `json:"currentReplicas"`
	CurrentMonthlyCost      float64          `json:"currentMonthlyCost"`
	CurrentPerformanceScore float64          `json:"currentPerformanceScore"`
	Performance             *ScalingOption   `json:"performance,omitempty"`
	Cost                    *ScalingOption   `json:"cost,omitempty"`
	Balanced                *ScalingOption   `json:"balanced,omitempty"`
	Recommended             OptionKind       `json:"recommended"`
	Rationale               string           `json:"rationale"`
	Idle                    IdleTimeAnalysis `json:"idle"`
}

// fleetMonthlyCost prices replicas pods of the given size at the hourly rates
func (c *Calculator) fleetMonthlyCost(replicas int, cores, memoryGiB float64) float64 {
	return float64(replicas) * c.CalculateCost(cores, memoryGiB).TotalPerMonth
}

// AnalyzeScalingOptions derives the performance, cost and balanced options from
// a history window and picks one. Pods are assumed to run 1 core / 2 GiB.
func (c *Calculator) AnalyzeScalingOptions(service string, snaps []models.Snapshot, currentReplicas int) ScalingAnalysis {
	if len(snaps) == 0 {
		return ScalingAnalysis{
			Service:            service,
			CurrentReplicas:    baselineReplicas,
			CurrentMonthlyCost: defaultMonthlyRun,
			Recommended:        OptionBalanced,
			Rationale:          "Insufficient data for detailed analysis",
		}
	}
	if currentReplicas <= 0 {
		currentReplicas = baselineReplicas
	}

	cpu := models.CPUValues(snaps)
	avg, p95 := 50.0, 50.0
	if len(cpu) > 0 {
		avg = stats.Mean(cpu)
		p95 = stats.Percentile(cpu, 95)
	}

	perf := c.performanceOption(p95)
	cheap := c.costOption(avg)
	balanced := c.balancedOption(p95)

	recommended := chooseOption(perf, cheap, balanced)

	return ScalingAnalysis{
		Service:                 service,
		CurrentReplicas:         currentReplicas,
		CurrentMonthlyCost:      stats.Round2(c.fleetMonthlyCost(currentReplicas, baselineCores, baselineGiB)),
		CurrentPerformanceScore: performanceScore(avg, p95),
		Performance:             &perf,
		Cost:                    &cheap,
		Balanced:                &balanced,
		Recommended:             recommended,
		Rationale:               rationale(recommended, perf, cheap, balanced),
		Idle:                    c.AnalyzeIdleTime(snaps),
	}
}

func (c *Calculator) performanceOption(p95 float64) ScalingOption {
	replicas := replicasForUtilization(p95, 60, 3)
	return ScalingOption{
		Kind:             OptionPerformance,
		Strategy:         "Performance Optimized",
		MinReplicas:      3,
		MaxReplicas:      10,
		AverageReplicas:  replicas,
		CPURequest:       millicores(baselineCores * 1.2),
		MemoryRequest:    mebibytes(baselineGiB * 1.2),
		MonthlyCost:      stats.Round2(c.fleetMonthlyCost(replicas, baselineCores*1.2, baselineGiB*1.2)),
		ExpectedP95Ms:    100,
		ExpectedP99Ms:    200,
		PerformanceScore: 95,
		Pros: []string{
			"Best response times and reliability",
			"Handles traffic spikes gracefully",
			"Low risk of performance degradation",
		},
		Cons: []string{
			"Higher operational costs",
			"Some resource over-provisioning",
			"More pods to manage",
		},
		Description: "Optimized for best performance with minimal response time and high reliability",
	}
}

func (c *Calculator) costOption(avg float64) ScalingOption {
	replicas := replicasForUtilization(avg, 80, 2)
	opt := ScalingOption{
		Kind:             OptionCost,
		Strategy:         "Cost Optimized",
		MinReplicas:      2,
		MaxReplicas:      6,
		AverageReplicas:  replicas,
		CPURequest:       millicores(baselineCores * 0.8),
		MemoryRequest:    mebibytes(baselineGiB * 0.8),
		ExpectedP95Ms:    150,
		ExpectedP99Ms:    300,
		PerformanceScore: 75,
		Pros: []string{
			"40-50% cost reduction",
			"Right-sized resources",
			"Optimal resource utilization",
		},
		Cons: []string{
			"Higher CPU/memory utilization",
			"Less headroom for spikes",
			"May need manual intervention during peaks",
		},
		Description: "Optimized for cost savings with acceptable performance trade-offs",
	}
	c.priceAgainstBaseline(&opt, baselineCores*0.8, baselineGiB*0.8)
	return opt
}

func (c *Calculator) balancedOption(p95 float64) ScalingOption {
	replicas := replicasForUtilization(p95, 70, 2)
	opt := ScalingOption{
		Kind:             OptionBalanced,
		Strategy:         "Balanced",
		MinReplicas:      2,
		MaxReplicas:      8,
		AverageReplicas:  replicas,
		CPURequest:       millicores(baselineCores),
		MemoryRequest:    mebibytes(baselineGiB),
		ExpectedP95Ms:    120,
		ExpectedP99Ms:    250,
		PerformanceScore: 85,
		Pros: []string{
			"Good performance-cost balance",
			"20-30% cost reduction",
			"Reasonable headroom for spikes",
			"Recommended for most workloads",
		},
		Cons: []string{
			"Not the cheapest option",
			"Not the fastest option",
		},
		Description: "Best balance between cost savings and performance - recommended for production",
	}
	c.priceAgainstBaseline(&opt, baselineCores, baselineGiB)
	return opt
}

// priceAgainstBaseline sets cost and savings relative to three baseline pods
func (c *Calculator) priceAgainstBaseline(opt *ScalingOption, cores, memoryGiB float64) {
	monthly := c.fleetMonthlyCost(opt.AverageReplicas, cores, memoryGiB)
	base := c.fleetMonthlyCost(baselineReplicas, baselineCores, baselineGiB)
	savings := base - monthly

	opt.MonthlyCost = stats.Round2(monthly)
	opt.SavingsAmount = stats.Round2(savings)
	if base > 0 {
		opt.SavingsPercent = stats.Round2(savings / base * 100)
	}
}

func chooseOption(perf, cheap, balanced ScalingOption) OptionKind {
	switch {
	case balanced.SavingsPercent > 15 && balanced.PerformanceScore > 80:
		return OptionBalanced
	case perf.MonthlyCost-balanced.MonthlyCost < 50:
		return OptionPerformance
	case cheap.SavingsPercent > 40:
		return OptionCost
	default:
		return OptionBalanced
	}
}

func rationale(kind OptionKind, perf, cheap, balanced ScalingOption) string {
	switch kind {
	case OptionPerformance:
		return fmt.Sprintf("Performance-optimized approach recommended. "+
			"Provides %.0f performance score with minimal cost difference ($%.2f/month more than balanced).",
			perf.PerformanceScore, perf.MonthlyCost-balanced.MonthlyCost)
	case OptionCost:
		return fmt.Sprintf("Cost-optimized approach recommended. "+
			"Saves $%.2f/month (%.1f%% reduction) with acceptable performance trade-offs.",
			cheap.SavingsAmount, cheap.SavingsPercent)
	default:
		return fmt.Sprintf("Balanced approach recommended. "+
			"Provides %.0f performance score while saving $%.2f/month (%.1f%% reduction).",
			balanced.PerformanceScore, balanced.SavingsAmount, balanced.SavingsPercent)
	}
}

// AnalyzeIdleTime finds the hours of day whose mean CPU is below 30%
func (c *Calculator) AnalyzeIdleTime(snaps []models.Snapshot) IdleTimeAnalysis {
	hourly := make(map[int][]float64)
	for _, s := range snaps {
		if s.CPUPercent <= 0 {
			continue
		}
		hour := s.Timestamp.In(c.loc).Hour()
		hourly[hour] = append(hourly[hour], s.CPUPercent)
	}

	hours := make([]int, 0, len(hourly))
	for h := range hourly {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	analysis := IdleTimeAnalysis{Periods: []IdlePeriod{}}
	for _, h := range hours {
		avg := stats.Mean(hourly[h])
		if avg < idleCPUThreshold {
			analysis.Periods = append(analysis.Periods, IdlePeriod{
				HourOfDay:           h,
				AverageUsage:        stats.Round2(avg),
				RecommendedReplicas: 1,
			})
		}
	}

	idlePercent := float64(len(analysis.Periods)) / 24 * 100
	analysis.IdlePercent = stats.Round2(idlePercent)
	analysis.PotentialSavings = stats.Round2(idlePercent / 100 * c.fleetMonthlyCost(idleBaselinePods, baselineCores, baselineGiB))

	switch {
	case idlePercent > 40:
		analysis.Recommendation = "High idle time detected. Consider scheduled scaling or serverless architecture."
	case idlePercent > 20:
		analysis.Recommendation = "Moderate idle time. Implement time-based HPA for cost savings."
	default:
		analysis.Recommendation = "Low idle time. Current scaling approach is appropriate."
	}
	return analysis
}

func replicasForUtilization(usage, target float64, minReplicas int) int {
	replicas := int(stats.StableCeil(usage / target))
	if replicas < minReplicas {
		return minReplicas
	}
	return replicas
}

// performanceScore is 100 minus a utilization penalty, clamped to [0,100]
func performanceScore(avg, p95 float64) float64 {
	return math.Max(0, math.Min(100, 100-avg*0.5-p95*0.3))
}

func millicores(cores float64) string {
	return models.Millicores(int64(stats.StableCeil(cores * 1000))).String()
}

func mebibytes(gib float64) string {
	return models.Mebibytes(int64(stats.StableCeil(gib * 1024))).String()
}
