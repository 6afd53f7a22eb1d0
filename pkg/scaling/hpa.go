package scaling

import (
	"fmt"
	"math"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

const (
	// hpaSizingTarget is the CPU utilization replica counts are sized for
	hpaSizingTarget = 70.0

	metricRequestsPerSecond = "http_requests_per_second"
	metricPoolConnections   = "pool_active_connections"
	metricLatencyP95        = "http_request_duration_p95"
)

// HPA recommends a horizontal autoscaler from a recent window. A window
// without CPU samples yields the default recommendation.
func (r *Recommender) HPA(service string, recent []models.Snapshot) HPARecommendation {
	cpu := models.CPUValues(recent)
	if len(cpu) == 0 {
		return r.defaultHPA(service)
	}

	avg := stats.Mean(cpu)
	p95 := stats.Percentile(cpu, 95)
	peak := stats.Max(cpu)
	memP95 := stats.Percentile(models.HeapPercentValues(recent), 95)

	variability := ClassifyVariability(avg, peak)
	current := int32(r.cfg.CurrentReplicas)
	minReplicas := minReplicasFor(variability)
	maxReplicas := r.maxReplicasFor(variability, peak, minReplicas)
	recommended := int32(math.Max(2, stats.StableCeil(p95/hpaSizingTarget*float64(current))))
	targetCPU := targetCPUFor(variability)

	return HPARecommendation{
		Service:                 service,
		Variability:             variability,
		MinReplicas:             minReplicas,
		MaxReplicas:             maxReplicas,
		CurrentReplicas:         current,
		RecommendedReplicas:     recommended,
		TargetCPUUtilization:    targetCPU,
		TargetMemoryUtilization: targetMemoryFor(memP95),
		ScaleUp:                 scaleUpPolicy(variability),
		ScaleDown:               scaleDownPolicy(),
		CustomMetrics:           r.customMetricTargets(recent),
		Rationale: fmt.Sprintf("Workload pattern: %s. Average CPU: %.1f%%, P95 CPU: %.1f%%. "+
			"Recommended HPA: min=%d, max=%d, target=%d%%. "+
			"This configuration provides optimal scaling for your workload pattern.",
			variability, avg, p95, minReplicas, maxReplicas, targetCPU),
		Confidence:          hpaConfidence(len(cpu), avg, p95),
		EstimatedCostImpact: stats.Round2(float64(recommended-current) * r.costCfg.CPUPerCoreMonth),
	}
}

// ClassifyVariability buckets a window by the gap between its peak and mean
// CPU, then by its mean
func ClassifyVariability(avg, peak float64) Variability {
	switch spread := peak - avg; {
	case spread > 50:
		return VariabilityHigh
	case spread > 30:
		return VariabilityModerate
	case avg > 70:
		return VariabilityHighSteady
	case avg < 30:
		return VariabilityLowSteady
	default:
		return VariabilityStable
	}
}

func minReplicasFor(v Variability) int32 {
	switch v {
	case VariabilityHighSteady:
		return 3
	case VariabilityLowSteady:
		return 1
	default:
		return 2
	}
}

func (r *Recommender) maxReplicasFor(v Variability, peak float64, minReplicas int32) int32 {
	base := int32(stats.StableCeil(peak / hpaSizingTarget * float64(r.cfg.CurrentReplicas)))

	var maxReplicas int32
	switch v {
	case VariabilityHigh:
		maxReplicas = min(15, base+5)
	case VariabilityHighSteady:
		maxReplicas = min(10, base+2)
	case VariabilityLowSteady:
		maxReplicas = min(5, base)
	default:
		maxReplicas = min(10, base+3)
	}
	return max(minReplicas, maxReplicas)
}

func targetCPUFor(v Variability) int32 {
	switch v {
	case VariabilityHigh:
		return 60
	case VariabilityHighSteady:
		return 75
	case VariabilityLowSteady:
		return 80
	default:
		return 70
	}
}

func targetMemoryFor(p95 float64) int32 {
	switch {
	case p95 > 80:
		return 70
	case p95 > 60:
		return 75
	default:
		return 80
	}
}

func scaleUpPolicy(v Variability) ScalingPolicy {
	switch v {
	case VariabilityHigh:
		return ScalingPolicy{
			StabilizationWindowSeconds: 0,
			PeriodSeconds:              15,
			PercentPerScale:            100,
			Behavior:                   BehaviorAggressive,
			Description:                "Fast scale-up for handling traffic spikes",
		}
	case VariabilityHighSteady:
		return ScalingPolicy{
			StabilizationWindowSeconds: 30,
			PeriodSeconds:              30,
			PercentPerScale:            50,
			PodsPerScale:               2,
			Behavior:                   BehaviorModerate,
			Description:                "Steady scale-up for sustained load",
		}
	default:
		return ScalingPolicy{
			StabilizationWindowSeconds: 30,
			PeriodSeconds:              30,
			PercentPerScale:            50,
			PodsPerScale:               1,
			Behavior:                   BehaviorModerate,
			Description:                "Balanced scale-up policy",
		}
	}
}

// scaleDownPolicy is conservative for every workload to prevent thrashing
func scaleDownPolicy() ScalingPolicy {
	return ScalingPolicy{
		StabilizationWindowSeconds: 300,
		PeriodSeconds:              60,
		PercentPerScale:            25,
		PodsPerScale:               1,
		Behavior:                   BehaviorConservative,
		Description:                "Conservative scale-down to prevent thrashing",
	}
}

func (r *Recommender) customMetricTargets(recent []models.Snapshot) []CustomMetricTarget {
	var hasHTTP, hasPool bool
	for _, s := range recent {
		hasHTTP = hasHTTP || s.HTTPCount > 0
		hasPool = hasPool || s.PoolActive != nil
	}

	targets := []CustomMetricTarget{}
	if hasHTTP {
		targets = append(targets, CustomMetricTarget{
			MetricName:  metricRequestsPerSecond,
			TargetValue: r.cfg.TargetRPSPerPod,
			Description: "Scale based on HTTP request rate",
		})
	}
	if hasPool {
		targets = append(targets, CustomMetricTarget{
			MetricName:  metricPoolConnections,
			TargetValue: r.cfg.TargetConnsPerPod,
			Description: "Scale based on database connection pool usage",
		})
	}
	return targets
}

func hpaConfidence(samples int, avg, p95 float64) float64 {
	confidence := 0.5
	switch {
	case samples > 100:
		confidence += 0.2
	case samples > 50:
		confidence += 0.1
	}

	switch spread := p95 - avg; {
	case spread < 20:
		confidence += 0.2
	case spread > 40:
		confidence -= 0.1
	}
	return stats.Round2(math.Max(0.3, math.Min(0.95, confidence)))
}

func (r *Recommender) defaultHPA(service string) HPARecommendation {
	return HPARecommendation{
		Service:                 service,
		Variability:             VariabilityStable,
		MinReplicas:             2,
		MaxReplicas:             10,
		CurrentReplicas:         int32(r.cfg.CurrentReplicas),
		RecommendedReplicas:     int32(r.cfg.CurrentReplicas),
		TargetCPUUtilization:    70,
		TargetMemoryUtilization: 75,
		ScaleUp:                 scaleUpPolicy(VariabilityStable),
		ScaleDown:               scaleDownPolicy(),
		CustomMetrics:           []CustomMetricTarget{},
		Rationale:               "Default HPA configuration - insufficient metrics for detailed analysis",
		Confidence:              0.3,
	}
}

// Spec renders the recommendation as an autoscaling/v2 spec for target
func (h HPARecommendation) Spec(target autoscalingv2.CrossVersionObjectReference) autoscalingv2.HorizontalPodAutoscalerSpec {
	minReplicas := h.MinReplicas
	cpuTarget := h.TargetCPUUtilization
	memTarget := h.TargetMemoryUtilization

	metrics := []autoscalingv2.MetricSpec{
		resourceMetric(corev1.ResourceCPU, &cpuTarget),
		resourceMetric(corev1.ResourceMemory, &memTarget),
	}
	for _, m := range h.CustomMetrics {
		value := resource.NewMilliQuantity(int64(math.Round(m.TargetValue*1000)), resource.DecimalSI)
		metrics = append(metrics, autoscalingv2.MetricSpec{
			Type: autoscalingv2.PodsMetricSourceType,
			Pods: &autoscalingv2.PodsMetricSource{
				Metric: autoscalingv2.MetricIdentifier{Name: m.MetricName},
				Target: autoscalingv2.MetricTarget{
					Type:         autoscalingv2.AverageValueMetricType,
					AverageValue: value,
				},
			},
		})
	}

	return autoscalingv2.HorizontalPodAutoscalerSpec{
		ScaleTargetRef: target,
		MinReplicas:    &minReplicas,
		MaxReplicas:    h.MaxReplicas,
		Metrics:        metrics,
		Behavior: &autoscalingv2.HorizontalPodAutoscalerBehavior{
			ScaleUp:   h.ScaleUp.rules(autoscalingv2.MaxChangePolicySelect),
			ScaleDown: h.ScaleDown.rules(autoscalingv2.MinChangePolicySelect),
		},
	}
}

func resourceMetric(name corev1.ResourceName, utilization *int32) autoscalingv2.MetricSpec {
	return autoscalingv2.MetricSpec{
		Type: autoscalingv2.ResourceMetricSourceType,
		Resource: &autoscalingv2.ResourceMetricSource{
			Name: name,
			Target: autoscalingv2.MetricTarget{
				Type:               autoscalingv2.UtilizationMetricType,
				AverageUtilization: utilization,
			},
		},
	}
}

func (p ScalingPolicy) rules(selectPolicy autoscalingv2.ScalingPolicySelect) *autoscalingv2.HPAScalingRules {
	window := p.StabilizationWindowSeconds
	policies := []autoscalingv2.HPAScalingPolicy{{
		Type:          autoscalingv2.PercentScalingPolicy,
		Value:         p.PercentPerScale,
		PeriodSeconds: p.PeriodSeconds,
	}}
	if p.PodsPerScale > 0 {
		policies = append(policies, autoscalingv2.HPAScalingPolicy{
			Type:          autoscalingv2.PodsScalingPolicy,
			Value:         p.PodsPerScale,
			PeriodSeconds: p.PeriodSeconds,
		})
	}
	return &autoscalingv2.HPAScalingRules{
		StabilizationWindowSeconds: &window,
		SelectPolicy:               &selectPolicy,
		Policies:                   policies,
	}
}

// ConflictingMetrics lists the resource metrics of an HPA spec that a VPA
// managing the same workload would also act on
func ConflictingMetrics(spec autoscalingv2.HorizontalPodAutoscalerSpec) []string {
	conflicts := make([]string, 0)
	seen := make(map[string]bool)

	for _, metric := range spec.Metrics {
		if metric.Type != autoscalingv2.ResourceMetricSourceType || metric.Resource == nil {
			continue
		}
		name := string(metric.Resource.Name)
		if (name == "cpu" || name == "memory") && !seen[name] {
			conflicts = append(conflicts, name)
			seen[name] = true
		}
	}
	return conflicts
}
