package scaling

import (
	"fmt"
	"math"

	corev1 "k8s.io/api/core/v1"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

const (
	vpaLimitMultiplier = 1.5

	// CPU variance cut-offs for the update mode and approach
	autoModeVariance     = 500.0
	recreateModeVariance = 200.0
	variableLoadVariance = 300.0
	stableLoadVariance   = 100.0

	significantSavings = 10.0

	defaultHeapBytes = 256 * mebibyte
	mebibyte         = 1024 * 1024
)

// VPA recommends a vertical autoscaler from a multi-day history. Requests
// cover P95 CPU and the largest heap seen, each with the VPA margin; memory
// also carries the non-heap overhead.
func (r *Recommender) VPA(service string, history []models.Snapshot) VPARecommendation {
	if len(history) == 0 {
		return r.defaultVPA(service)
	}

	cpu := models.CPUValues(history)
	p95 := 50.0
	if len(cpu) > 0 {
		p95 = stats.Percentile(cpu, 95)
	}
	var maxHeap int64
	for _, s := range history {
		maxHeap = max(maxHeap, s.HeapUsedBytes)
	}
	if maxHeap == 0 {
		maxHeap = defaultHeapBytes
	}

	margin := 1 + r.cfg.VPAMargin
	cpuMilli := max(r.sizing.MinCPUMillicores, int64(stats.StableCeil(p95*10*margin)))
	memoryMi := max(r.sizing.MinMemoryMi,
		int64(stats.StableCeil(float64(maxHeap)*margin*r.cfg.VPANonHeapOverhead/mebibyte)))

	recommended := models.ResourceSpec{
		CPURequest:    models.Millicores(cpuMilli),
		CPULimit:      models.Millicores(int64(float64(cpuMilli) * vpaLimitMultiplier)),
		MemoryRequest: models.Mebibytes(memoryMi),
		MemoryLimit:   models.Mebibytes(int64(float64(memoryMi) * vpaLimitMultiplier)),
	}

	variance := stats.Variance(cpu)
	mode := UpdateModeFor(variance)
	savings := r.vpaSavings(r.current, recommended)

	return VPARecommendation{
		Service:     service,
		Current:     r.current,
		Recommended: recommended,
		UpdateMode:  mode,
		Policy: ResourcePolicy{
			CPU: ResourceRange{
				Min: models.Millicores(cpuMilli / 2),
				Max: models.Millicores(cpuMilli * 2),
			},
			Memory: ResourceRange{
				Min: models.Mebibytes(memoryMi / 2),
				Max: models.Mebibytes(memoryMi * 2),
			},
			ControlledValues: "RequestsAndLimits",
		},
		Rationale:               vpaRationale(r.current, recommended, savings, mode),
		Confidence:              vpaConfidence(len(history), variance),
		EstimatedMonthlySavings: savings,
		Approach:                ApproachFor(variance, savings),
	}
}

// UpdateModeFor lets the VPA act more freely the more CPU varies
func UpdateModeFor(cpuVariance float64) UpdateMode {
	switch {
	case cpuVariance > autoModeVariance:
		return UpdateAuto
	case cpuVariance > recreateModeVariance:
		return UpdateRecreate
	default:
		return UpdateInitial
	}
}

// ApproachFor picks horizontal scaling for variable load and vertical
// scaling when right-sizing pays off
func ApproachFor(cpuVariance, savings float64) Approach {
	variable := cpuVariance > variableLoadVariance
	worthResizing := math.Abs(savings) > significantSavings
	switch {
	case variable && worthResizing:
		return ApproachBoth
	case variable:
		return ApproachHPA
	case worthResizing:
		return ApproachVPA
	default:
		return ApproachManual
	}
}

// vpaSavings prices requests per millicore and per MiB at the monthly rates
func (r *Recommender) vpaSavings(current, recommended models.ResourceSpec) float64 {
	perMillicore := r.costCfg.CPUPerCoreMonth / 1000
	perMi := r.costCfg.MemoryPerGBMonth / 1000

	price := func(spec models.ResourceSpec) float64 {
		return float64(spec.CPURequest.Value)*perMillicore + float64(spec.MemoryRequest.Value)*perMi
	}
	return stats.Round2(price(current) - price(recommended))
}

func vpaRationale(current, recommended models.ResourceSpec, savings float64, mode UpdateMode) string {
	rationale := fmt.Sprintf("VPA mode: %s. Current: CPU=%s, Memory=%s. Recommended: CPU=%s, Memory=%s. ",
		mode, current.CPURequest, current.MemoryRequest, recommended.CPURequest, recommended.MemoryRequest)
	switch {
	case savings > 0:
		rationale += fmt.Sprintf("Estimated savings: $%.2f/month. ", savings)
	case savings < 0:
		rationale += fmt.Sprintf("Recommended increase of $%.2f/month for better performance. ", -savings)
	}
	return rationale + "VPA will automatically right-size pods based on actual usage."
}

func vpaConfidence(samples int, cpuVariance float64) float64 {
	confidence := 0.5
	switch {
	case samples > 1000:
		confidence += 0.3
	case samples > 500:
		confidence += 0.2
	case samples > 100:
		confidence += 0.1
	}

	switch {
	case cpuVariance < stableLoadVariance:
		confidence += 0.15
	case cpuVariance > autoModeVariance:
		confidence -= 0.1
	}
	return stats.Round2(math.Max(0.3, math.Min(0.95, confidence)))
}

func (r *Recommender) defaultVPA(service string) VPARecommendation {
	defaults := models.ResourceSpec{
		CPURequest:    models.Millicores(200),
		CPULimit:      models.Millicores(300),
		MemoryRequest: models.Mebibytes(512),
		MemoryLimit:   models.Mebibytes(768),
	}
	return VPARecommendation{
		Service:     service,
		Current:     r.current,
		Recommended: defaults,
		UpdateMode:  UpdateInitial,
		Rationale:   "Default VPA configuration - insufficient data for VPA recommendation",
		Confidence:  0.3,
	}
}

// ResourceRequirements renders the recommended requests and limits for a
// container spec
func (v VPARecommendation) ResourceRequirements() corev1.ResourceRequirements {
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    v.Recommended.CPURequest.Resource(),
			corev1.ResourceMemory: v.Recommended.MemoryRequest.Resource(),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    v.Recommended.CPULimit.Resource(),
			corev1.ResourceMemory: v.Recommended.MemoryLimit.Resource(),
		},
	}
}

// PolicyBounds renders the resource policy as minAllowed and maxAllowed lists
func (v VPARecommendation) PolicyBounds() (minAllowed, maxAllowed corev1.ResourceList) {
	minAllowed = corev1.ResourceList{
		corev1.ResourceCPU:    v.Policy.CPU.Min.Resource(),
		corev1.ResourceMemory: v.Policy.Memory.Min.Resource(),
	}
	maxAllowed = corev1.ResourceList{
		corev1.ResourceCPU:    v.Policy.CPU.Max.Resource(),
		corev1.ResourceMemory: v.Policy.Memory.Max.Resource(),
	}
	return minAllowed, maxAllowed
}
