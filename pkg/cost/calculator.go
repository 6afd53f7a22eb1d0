package cost

import (
	"fmt"
	"math"
	"time"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// Pod sizing assumed when no running configuration is known
const (
	baselineCores = 1.0
	baselineGiB   = 2.0
)

// Calculator converts resource allocations into cost figures
type Calculator struct {
	cfg config.CostConfig
	loc *time.Location
}

// NewCalculator creates a calculator with the given rates. Hour-of-day
// grouping uses loc, or UTC when loc is nil.
func NewCalculator(cfg config.CostConfig, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{cfg: cfg, loc: loc}
}

// ResourceCost is the hourly-rate cost of one pod's allocation
type ResourceCost struct {
	CPUCostPerHour    float64 `json:"cpuCostPerHour"`
	MemoryCostPerHour float64 `json:"memoryCostPerHour"`
	TotalPerHour      float64 `json:"totalPerHour"`

	TotalPerDay   float64 `json:"totalPerDay"`
	TotalPerMonth float64 `json:"totalPerMonth"`
	TotalPerYear  float64 `json:"totalPerYear"`
}

// CalculateCost prices an allocation at the hourly rates
func (c *Calculator) CalculateCost(cores, memoryGiB float64) ResourceCost {
	cpuCostPerHour := cores * c.cfg.CPUPerCoreHour
	memoryCostPerHour := memoryGiB * c.cfg.MemoryPerGBHour
	totalPerHour := cpuCostPerHour + memoryCostPerHour

	return ResourceCost{
		CPUCostPerHour:    cpuCostPerHour,
		MemoryCostPerHour: memoryCostPerHour,
		TotalPerHour:      totalPerHour,
		TotalPerDay:       totalPerHour * 24,
		TotalPerMonth:     totalPerHour * c.cfg.HoursPerMonth,
		TotalPerYear:      totalPerHour * c.cfg.HoursPerMonth * 12,
	}
}

// FormatCost returns a human-readable summary of cost
func (r ResourceCost) FormatCost() string {
	return fmt.Sprintf(
		"$%.4f/hour ($%.2f/day, $%.2f/month, $%.2f/year)",
		r.TotalPerHour,
		r.TotalPerDay,
		r.TotalPerMonth,
		r.TotalPerYear,
	)
}

// MonthlyCost prices an allocation at the flat monthly rates
func (c *Calculator) MonthlyCost(cores, memoryGiB float64) float64 {
	return cores*c.cfg.CPUPerCoreMonth + memoryGiB*c.cfg.MemoryPerGBMonth
}

// Compare builds the cost analysis between the running and recommended
// requests. Limits are not billed.
func (c *Calculator) Compare(current, recommended models.ResourceSpec) models.CostAnalysis {
	currentCost := c.MonthlyCost(current.CPURequest.Cores(), current.MemoryRequest.GiB())
	recommendedCost := c.MonthlyCost(recommended.CPURequest.Cores(), recommended.MemoryRequest.GiB())

	monthly := currentCost - recommendedCost
	var percent int
	if currentCost > 0 {
		percent = int(monthly / currentCost * 100)
	}

	return models.CostAnalysis{
		CurrentMonthlyCost:     stats.Round2(currentCost),
		RecommendedMonthlyCost: stats.Round2(recommendedCost),
		MonthlySavings:         stats.Round2(monthly),
		AnnualSavings:          stats.Round2(monthly * 12),
		SavingsPercent:         percent,
	}
}

// EstimateSavingsFromUsage is a quick estimate against a 1 core / 2 GiB pod:
// both dimensions are resized to their P95 plus margin in 0.1 steps. The
// result is never negative.
func (c *Calculator) EstimateSavingsFromUsage(p95CPU, p95Memory, margin float64) float64 {
	recommendedCores := stats.StableCeil(p95CPU/100*(1+margin)*10) / 10
	recommendedGiB := stats.StableCeil(p95Memory/100*baselineGiB*(1+margin)*10) / 10

	diff := c.MonthlyCost(baselineCores, baselineGiB) - c.MonthlyCost(recommendedCores, recommendedGiB)
	return math.Max(0, stats.Round2(diff))
}
