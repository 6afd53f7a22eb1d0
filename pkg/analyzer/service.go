// Package analyzer runs every analysis engine over the snapshot windows of a
// service and assembles the results into one report.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"intelligent-resource-analyzer/pkg/anomaly"
	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/cost"
	"intelligent-resource-analyzer/pkg/logger"
	"intelligent-resource-analyzer/pkg/metrics"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/policy"
	"intelligent-resource-analyzer/pkg/prediction"
	"intelligent-resource-analyzer/pkg/recommendation"
	"intelligent-resource-analyzer/pkg/scaling"
	"intelligent-resource-analyzer/pkg/timepattern"
	"intelligent-resource-analyzer/pkg/workload"
)

// ErrNoSnapshots is returned when a service has no snapshots in the history window
var ErrNoSnapshots = errors.New("no snapshots in analysis window")

// Source supplies the snapshots of a service between since and until
type Source interface {
	Window(service string, since, until time.Time) []models.Snapshot
	Services() []string
}

// Report is the complete analysis of one service
type Report struct {
	Service      string                       `json:"service"`
	GeneratedAt  time.Time                    `json:"generatedAt"`
	Analysis     models.AnalysisResult        `json:"analysis"`
	DataQuality  recommendation.DataQuality   `json:"dataQuality"`
	Anomalies    []models.Anomaly             `json:"anomalies"`
	Profile      models.WorkloadProfile       `json:"profile"`
	Pattern      models.TimeSeriesPattern     `json:"pattern"`
	Schedule     *timepattern.ScalingSchedule `json:"schedule,omitempty"`
	Predictions  []models.ScalingPrediction   `json:"predictions"`
	Scaling      scaling.Analysis             `json:"scaling"`
	CostForecast models.CostForecast          `json:"costForecast"`
	Manifests    Manifests                    `json:"manifests"`
	// PodCost prices one pod at the recommended requests
	PodCost cost.ResourceCost `json:"podCost"`
}

// Service analyzes services from a snapshot source
type Service struct {
	cfg      config.Config
	source   Source
	log      *logger.Logger
	exporter *metrics.PrometheusExporter
	now      func() time.Time

	current     models.ResourceSpec
	calc        *cost.Calculator
	ruleFile    string
	rules       *policy.Engine
	detector    *anomaly.Detector
	recommender *recommendation.Engine
	classifier  *workload.Classifier
	forecaster  *prediction.Forecaster
	scaler      *scaling.Recommender
}

// Option customizes a Service
type Option func(*Service)

// WithClock injects the time source shared by every engine
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger; the global logger is used otherwise
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithExporter records analysis outcomes in Prometheus
func WithExporter(e *metrics.PrometheusExporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithRuleFile loads the alert rules from a YAML rule file instead of the
// config's rules section
func WithRuleFile(path string) Option {
	return func(s *Service) { s.ruleFile = path }
}

// NewService wires the engines for a validated configuration. It fails when
// an alert rule does not compile.
func NewService(cfg config.Config, source Source, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get()
	}

	rules, err := policy.NewEngine(policy.FromConfig(cfg.Rules))
	if err != nil {
		return nil, fmt.Errorf("failed to load alert rules: %w", err)
	}
	s.rules = rules
	if err := s.ReloadRules(); err != nil {
		return nil, err
	}

	current, err := cfg.Sizing.Current.Spec()
	if err != nil {
		return nil, fmt.Errorf("invalid current resources: %w", err)
	}
	s.current = current

	loc, err := cfg.Forecast.Zone()
	if err != nil {
		return nil, fmt.Errorf("invalid forecast timezone: %w", err)
	}
	calc := cost.NewCalculator(cfg.Cost, loc)
	s.calc = calc

	s.detector = anomaly.NewDetector(cfg, anomaly.WithClock(s.now), anomaly.WithRules(rules))
	s.recommender = recommendation.NewEngine(cfg, calc, recommendation.WithClock(s.now))
	s.classifier = workload.NewClassifier(cfg)
	s.forecaster = prediction.NewForecaster(cfg, prediction.WithClock(s.now))
	s.scaler = scaling.NewRecommender(cfg, calc, scaling.WithClock(s.now))
	return s, nil
}

// ReloadRules re-reads the rule file set with WithRuleFile. Without one it is a
// no-op. A file that fails to load leaves the previous rules in place.
func (s *Service) ReloadRules() error {
	if s.ruleFile == "" {
		return nil
	}
	if err := s.rules.LoadRules(s.ruleFile); err != nil {
		return fmt.Errorf("failed to load alert rules: %w", err)
	}
	return nil
}

// Rules returns the loaded alert rules
func (s *Service) Rules() []policy.Rule {
	return s.rules.Rules()
}

// Analyze runs every engine for one service. Anomalies, sizing and the HPA
// side of scaling use the recent window; the workload profile, forecasts and
// the VPA side use the history window.
func (s *Service) Analyze(ctx context.Context, service string) (*Report, error) {
	start := time.Now()
	report, err := s.analyze(ctx, service)
	if s.exporter != nil {
		result := "success"
		if err != nil {
			result = "failure"
		}
		s.exporter.RecordAnalysis(service, result, time.Since(start).Seconds())
	}
	if err != nil {
		s.log.WithService(service).WithError(err).Warn("Analysis failed")
		return nil, err
	}

	s.record(report)
	s.log.WithService(service).Infow("Analysis complete",
		"anomalies", len(report.Anomalies),
		"pattern", report.Profile.Pattern,
		"recommendedCPU", report.Analysis.Recommended.CPURequest.String(),
		"recommendedMemory", report.Analysis.Recommended.MemoryRequest.String(),
		"scaling", report.Scaling.Summary.Primary,
		"urgency", report.Scaling.Summary.Urgency,
		"duration", time.Since(start),
	)
	return report, nil
}

func (s *Service) analyze(ctx context.Context, service string) (*Report, error) {
	now := s.now()
	recent := s.source.Window(service, now.Add(-time.Duration(s.cfg.Schedule.LookbackHours)*time.Hour), now)
	history := s.source.Window(service, now.AddDate(0, 0, -s.cfg.Schedule.HistoryDays), now)
	if len(history) == 0 && len(recent) == 0 {
		return nil, fmt.Errorf("service %s: %w", service, ErrNoSnapshots)
	}
	if s.exporter != nil {
		s.exporter.RecordWindow(service, "recent", len(recent))
		s.exporter.RecordWindow(service, "history", len(history))
	}

	report := &Report{Service: service, GeneratedAt: now}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Anomalies = s.detector.Detect(service, recent)
	report.Analysis = s.recommender.Analyze(service, recent, s.current)
	report.DataQuality = s.recommender.AssessQuality(recent)
	report.PodCost = s.calc.CalculateCost(
		report.Analysis.Recommended.CPURequest.Cores(),
		report.Analysis.Recommended.MemoryRequest.GiB())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	profile, err := s.classifier.Classify(service, history)
	if err != nil {
		return nil, fmt.Errorf("failed to classify workload: %w", err)
	}
	report.Profile = profile

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patterns := s.forecaster.Patterns()
	report.Pattern = patterns.Detect(history)
	schedule, err := patterns.Schedule(history, now)
	if err != nil {
		return nil, fmt.Errorf("failed to derive scaling schedule: %w", err)
	}
	report.Schedule = schedule

	predictions, err := s.forecaster.PredictNext(service, history)
	if err != nil {
		return nil, fmt.Errorf("failed to predict scaling: %w", err)
	}
	report.Predictions = predictions

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Scaling = s.scaler.Analyze(service, recent, history, predictions)
	report.Manifests = renderManifests(service, report.Scaling)
	report.CostForecast = s.forecaster.ForecastCost(service, history, 0)
	return report, nil
}

// AnalyzeAll analyzes every service of the source in sorted order. A failing
// service does not stop the others; all failures are returned together.
// Cancellation stops the run.
func (s *Service) AnalyzeAll(ctx context.Context) ([]*Report, error) {
	var (
		reports []*Report
		errs    error
	)
	for _, service := range s.source.Services() {
		if err := ctx.Err(); err != nil {
			return reports, multierr.Append(errs, err)
		}
		report, err := s.Analyze(ctx, service)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, errs
}

func (s *Service) record(r *Report) {
	if s.exporter == nil {
		return
	}
	for _, a := range r.Anomalies {
		s.exporter.RecordAnomaly(r.Service, string(a.MetricType), string(a.Severity))
		if rule, ok := policy.RuleName(a); ok {
			s.exporter.RecordRuleMatch(r.Service, rule)
		}
	}
	s.exporter.RecordRecommendation(r.Service,
		float64(r.Analysis.Recommended.CPURequest.Value),
		float64(r.Analysis.Recommended.MemoryRequest.Value),
		r.Analysis.ConfidenceScore,
		r.Analysis.EstimatedMonthlySavings,
	)
	s.exporter.RecordReplicaRecommendation(r.Service, float64(r.Scaling.HPA.RecommendedReplicas))
	s.exporter.RecordDataQuality(r.Service, r.DataQuality.Score)
	s.exporter.RecordWorkloadPattern(r.Service, string(r.Profile.Pattern))
	s.exporter.RecordPredictions(r.Service, len(r.Predictions),
		prediction.CountEvents(r.Predictions, models.EventPeakLoad))
	s.exporter.RecordPredictedCost(r.Service, r.CostForecast.PredictedCost)
}
