// Package scaling recommends horizontal and vertical autoscaler settings,
// custom-metric replica hints and a combined verdict for a service.
package scaling

import (
	"fmt"
	"math"
	"time"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/cost"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/prediction"
	"intelligent-resource-analyzer/pkg/stats"
)

const (
	highUrgencyPeaks   = 5
	mediumUrgencyPeaks = 2
	costCutUrgency     = -50.0

	notableVPASavings    = 20.0
	notableOptionSavings = 30.0
)

// Recommender builds scaling recommendations
type Recommender struct {
	cfg      config.ScalingConfig
	costCfg  config.CostConfig
	forecast config.ForecastConfig
	sizing   config.SizingConfig
	current  models.ResourceSpec
	calc     *cost.Calculator

	now func() time.Time
}

// Option customizes a Recommender
type Option func(*Recommender)

// WithClock injects the time source used for AnalyzedAt
func WithClock(now func() time.Time) Option {
	return func(r *Recommender) { r.now = now }
}

// NewRecommender creates a recommender from a validated configuration. calc
// may be nil, in which case a calculator is built from the cost section.
func NewRecommender(cfg config.Config, calc *cost.Calculator, opts ...Option) *Recommender {
	if calc == nil {
		calc = cost.NewCalculator(cfg.Cost, nil)
	}

	current, err := cfg.Sizing.Current.Spec()
	if err != nil {
		klog.Warningf("Invalid current resources in config, using minimums: %v", err)
		current = models.ResourceSpec{
			CPURequest:    models.Millicores(cfg.Sizing.MinCPUMillicores),
			CPULimit:      models.Millicores(cfg.Sizing.MinCPUMillicores),
			MemoryRequest: models.Mebibytes(cfg.Sizing.MinMemoryMi),
			MemoryLimit:   models.Mebibytes(cfg.Sizing.MinMemoryMi),
		}
	}

	r := &Recommender{
		cfg:      cfg.Scaling,
		costCfg:  cfg.Cost,
		forecast: cfg.Forecast,
		sizing:   cfg.Sizing,
		current:  current,
		calc:     calc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Analyze combines every scaling recommendation for a service. HPA and
// custom metric hints look at the recent window; VPA and the cost-aware
// options look at the longer history. predictions come from the forecaster
// and may be empty.
func (r *Recommender) Analyze(service string, recent, history []models.Snapshot, predictions []models.ScalingPrediction) Analysis {
	hpa := r.HPA(service, recent)
	vpa := r.VPA(service, history)
	costAware := r.calc.AnalyzeScalingOptions(service, history, r.cfg.CurrentReplicas)

	var pattern *models.TimeSeriesPattern
	if len(predictions) > 0 {
		pattern = predictions[0].DetectedPattern
	}

	klog.V(4).Infof("Scaling analysis for %s: hpa=%d..%d vpa=%s/%s approach=%s",
		service, hpa.MinReplicas, hpa.MaxReplicas, vpa.Recommended.CPURequest, vpa.Recommended.MemoryRequest, vpa.Approach)

	return Analysis{
		Service:       service,
		AnalyzedAt:    r.now(),
		HPA:           hpa,
		VPA:           vpa,
		CostAware:     costAware,
		CustomMetrics: r.CustomMetrics(recent),
		Predictions:   predictions,
		Pattern:       pattern,
		Summary:       r.summarize(service, hpa, vpa, costAware, predictions, pattern),
	}
}

func (r *Recommender) summarize(service string, hpa HPARecommendation, vpa VPARecommendation,
	costAware cost.ScalingAnalysis, predictions []models.ScalingPrediction, pattern *models.TimeSeriesPattern) Summary {
	primary := vpa.Approach
	if primary == "" {
		primary = ApproachHPA
	}

	var savings float64
	if costAware.Balanced != nil {
		savings = costAware.Balanced.SavingsAmount
	}
	if vpa.EstimatedMonthlySavings > 0 {
		savings += vpa.EstimatedMonthlySavings
	}

	return Summary{
		Primary:                primary,
		Urgency:                UrgencyFor(hpa, predictions),
		KeyFindings:            keyFindings(service, hpa, vpa, costAware, pattern, primary),
		ActionItems:            actionItems(primary, costAware.Recommended),
		ExpectedMonthlySavings: stats.Round2(savings),
		Confidence:             stats.Round2((hpa.Confidence + vpa.Confidence) / 2),
	}
}

// UrgencyFor ranks how soon scaling matters: running below the HPA minimum is
// critical, otherwise it grows with the predicted peak-load events and with
// a large cost cut on offer
func UrgencyFor(hpa HPARecommendation, predictions []models.ScalingPrediction) Urgency {
	peaks := prediction.CountEvents(predictions, models.EventPeakLoad)
	switch {
	case hpa.CurrentReplicas < hpa.MinReplicas:
		return UrgencyCritical
	case peaks > highUrgencyPeaks:
		return UrgencyHigh
	case peaks > mediumUrgencyPeaks, hpa.EstimatedCostImpact < costCutUrgency:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func keyFindings(service string, hpa HPARecommendation, vpa VPARecommendation,
	costAware cost.ScalingAnalysis, pattern *models.TimeSeriesPattern, primary Approach) []string {
	findings := []string{}

	if hpa.RecommendedReplicas != hpa.CurrentReplicas {
		findings = append(findings, fmt.Sprintf("Replica count should change from %d to %d",
			hpa.CurrentReplicas, hpa.RecommendedReplicas))
	}
	if math.Abs(vpa.EstimatedMonthlySavings) > notableVPASavings {
		if vpa.EstimatedMonthlySavings > 0 {
			findings = append(findings, fmt.Sprintf("Right-sizing pods saves $%.2f/month", vpa.EstimatedMonthlySavings))
		} else {
			findings = append(findings, fmt.Sprintf("Pods are under-provisioned by $%.2f/month", -vpa.EstimatedMonthlySavings))
		}
	}
	if opt := recommendedOption(costAware); opt != nil && opt.SavingsPercent > notableOptionSavings {
		findings = append(findings, fmt.Sprintf("%s strategy saves %.1f%% of monthly cost", opt.Strategy, opt.SavingsPercent))
	}
	if pattern != nil {
		if pattern.HasDailyPattern {
			findings = append(findings, "Daily usage pattern detected - consider scheduled scaling")
		}
		if pattern.Trend == models.TrendIncreasing || pattern.Trend == models.TrendRapidlyIncreasing {
			findings = append(findings, "Increasing trend detected - proactive scaling recommended")
		}
	}
	if primary == ApproachBoth {
		spec := hpa.Spec(autoscalingv2.CrossVersionObjectReference{Kind: "Deployment", Name: service, APIVersion: "apps/v1"})
		if conflicts := ConflictingMetrics(spec); len(conflicts) > 0 {
			findings = append(findings, fmt.Sprintf(
				"HPA scales on %v which VPA also manages - move the HPA to custom metrics", conflicts))
		}
	}
	return findings
}

func recommendedOption(a cost.ScalingAnalysis) *cost.ScalingOption {
	switch a.Recommended {
	case cost.OptionPerformance:
		return a.Performance
	case cost.OptionCost:
		return a.Cost
	default:
		return a.Balanced
	}
}

func actionItems(primary Approach, option cost.OptionKind) []string {
	var items []string
	switch primary {
	case ApproachBoth:
		items = []string{
			"Deploy VPA in Initial mode to right-size pod requests",
			"Configure HPA on custom metrics to avoid conflicts with VPA",
			"Monitor both autoscalers for a week before tightening bounds",
		}
	case ApproachVPA:
		items = []string{
			"Deploy VPA with the recommended resource policy",
			"Review recommended requests before enabling automatic updates",
		}
	case ApproachManual:
		items = []string{
			"Apply the recommended requests manually",
			"Re-run the analysis after the next load change",
		}
	default:
		items = []string{
			"Deploy HPA with the recommended replica bounds and behavior",
			"Monitor scaling events and tune the CPU target",
		}
	}
	if option != "" {
		items = append(items, fmt.Sprintf("Consider %s scaling strategy for cost optimization", option))
	}
	return items
}
