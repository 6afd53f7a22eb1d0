package scaling

import (
	"fmt"
	"math"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

const (
	rateScaleUp       = 1.2
	rateScaleDown     = 0.5
	poolScaleUp       = 1.3
	poolScaleDown     = 0.4
	latencyScaleUp    = 1.5
	latencyScaleDown  = 0.5
	latencyStepUp     = 2
	latencyStepDown   = 1
	scaleUpAdvice     = "Scale up - %s exceeds target"
	scaleDownAdvice   = "Scale down - %s well below target"
	appropriateAdvice = "Current scaling is appropriate"
)

// CustomMetrics derives replica hints from the application metrics a window
// reports. Metrics the window never reports produce no hint.
func (r *Recommender) CustomMetrics(recent []models.Snapshot) []CustomMetricScaling {
	hints := []CustomMetricScaling{}
	if len(recent) == 0 {
		return hints
	}
	if hint, ok := r.requestRateHint(recent); ok {
		hints = append(hints, hint)
	}
	if hint, ok := r.poolHint(recent); ok {
		hints = append(hints, hint)
	}
	if hint, ok := r.latencyHint(recent); ok {
		hints = append(hints, hint)
	}
	return hints
}

// requestRateHint turns the per-sample request counts into a rate using the
// configured sample interval
func (r *Recommender) requestRateHint(recent []models.Snapshot) (CustomMetricScaling, bool) {
	var total int64
	for _, s := range recent {
		total += s.HTTPCount
	}
	if total == 0 || r.cfg.SampleIntervalSecond <= 0 {
		return CustomMetricScaling{}, false
	}

	rps := float64(total) / (float64(len(recent)) * r.cfg.SampleIntervalSecond)
	current := r.cfg.CurrentReplicas
	perPod := rps / float64(current)
	target := r.cfg.TargetRPSPerPod
	recommended := r.clampReplicas(int(math.Ceil(rps / target)))

	return CustomMetricScaling{
		MetricName:          metricRequestsPerSecond,
		Type:                MetricRequestsPerSecond,
		CurrentValue:        stats.Round2(rps),
		CurrentPerPodValue:  stats.Round2(perPod),
		TargetPerPodValue:   target,
		CurrentReplicas:     current,
		RecommendedReplicas: recommended,
		ScaleUpThreshold:    target * rateScaleUp,
		ScaleDownThreshold:  target * rateScaleDown,
		Rationale: fmt.Sprintf("Current: %.2f req/s total, %.2f req/s per pod. Target: %.0f req/s per pod.",
			rps, perPod, target),
		Recommendation: advice(perPod, target*rateScaleUp, target*rateScaleDown, "request rate"),
	}, true
}

// poolHint sizes replicas so the busiest moment stays within the target
// active connections per pod
func (r *Recommender) poolHint(recent []models.Snapshot) (CustomMetricScaling, bool) {
	active := models.PoolActiveValues(recent)
	if len(active) == 0 {
		return CustomMetricScaling{}, false
	}

	avg := stats.Mean(active)
	peak := stats.Max(active)
	current := r.cfg.CurrentReplicas
	perPod := avg / float64(current)
	target := r.cfg.TargetConnsPerPod
	recommended := r.clampReplicas(int(math.Ceil(peak / target)))

	return CustomMetricScaling{
		MetricName:          metricPoolConnections,
		Type:                MetricConnectionPoolUsage,
		CurrentValue:        stats.Round2(avg),
		CurrentPerPodValue:  stats.Round2(perPod),
		TargetPerPodValue:   target,
		CurrentReplicas:     current,
		RecommendedReplicas: recommended,
		ScaleUpThreshold:    target * poolScaleUp,
		ScaleDownThreshold:  target * poolScaleDown,
		Rationale: fmt.Sprintf("Average active connections: %.1f, peak: %.0f. Target: %.0f connections per pod.",
			avg, peak, target),
		Recommendation: advice(perPod, target*poolScaleUp, target*poolScaleDown, "connection pool usage"),
	}, true
}

// latencyHint steps the replica count when the worst P95 in the window is far
// from the latency target
func (r *Recommender) latencyHint(recent []models.Snapshot) (CustomMetricScaling, bool) {
	latency := models.LatencyValues(recent)
	if len(latency) == 0 {
		return CustomMetricScaling{}, false
	}

	p95 := stats.Max(latency)
	current := r.cfg.CurrentReplicas
	target := r.cfg.TargetP95Ms

	recommended := current
	recommendation := appropriateAdvice
	switch {
	case p95 > target*latencyScaleUp:
		recommended = min(r.forecast.MaxReplicas, current+latencyStepUp)
		recommendation = fmt.Sprintf(scaleUpAdvice, "response time")
	case p95 < target*latencyScaleDown:
		recommended = max(r.forecast.MinReplicas, current-latencyStepDown)
		recommendation = fmt.Sprintf(scaleDownAdvice, "response time")
	}

	return CustomMetricScaling{
		MetricName:          metricLatencyP95,
		Type:                MetricResponseTimeP95,
		CurrentValue:        stats.Round2(p95),
		CurrentPerPodValue:  stats.Round2(p95),
		TargetPerPodValue:   target,
		CurrentReplicas:     current,
		RecommendedReplicas: recommended,
		ScaleUpThreshold:    target * latencyScaleUp,
		ScaleDownThreshold:  target * latencyScaleDown,
		Rationale:           fmt.Sprintf("P95 response time: %.0fms. Target: %.0fms.", p95, target),
		Recommendation:      recommendation,
	}, true
}

func (r *Recommender) clampReplicas(n int) int {
	return max(r.forecast.MinReplicas, min(r.forecast.MaxReplicas, n))
}

func advice(perPod, up, down float64, signal string) string {
	switch {
	case perPod > up:
		return fmt.Sprintf(scaleUpAdvice, signal)
	case perPod < down:
		return fmt.Sprintf(scaleDownAdvice, signal)
	default:
		return appropriateAdvice
	}
}
