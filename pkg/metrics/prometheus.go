package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exposes analysis outcomes to Prometheus
type PrometheusExporter struct {
	// Analysis run metrics
	AnalysisTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	SnapshotsLoaded  *prometheus.GaugeVec

	// Anomaly metrics
	AnomaliesDetected *prometheus.CounterVec
	RuleMatches       *prometheus.CounterVec

	// Resource recommendation metrics
	CPURecommendation        *prometheus.GaugeVec
	MemoryRecommendation     *prometheus.GaugeVec
	ReplicaRecommendation    *prometheus.GaugeVec
	RecommendationConfidence *prometheus.GaugeVec
	MonthlySavings           *prometheus.GaugeVec
	DataQualityScore         *prometheus.GaugeVec

	// Workload metrics
	WorkloadPattern *prometheus.GaugeVec

	// Prediction metrics
	PredictionsMade    *prometheus.CounterVec
	PeakLoadsPredicted *prometheus.CounterVec
	PredictedCost      *prometheus.GaugeVec
}

// NewPrometheusExporter creates an exporter whose metrics are registered with
// registerer. A nil registerer creates unregistered metrics.
func NewPrometheusExporter(namespace string, registerer prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(registerer)

	return &PrometheusExporter{
		// Analysis run metrics
		AnalysisTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_total",
				Help:      "Total number of service analyses by result (success/failure)",
			},
			[]string{"service", "result"},
		),
		AnalysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Duration of a service analysis in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		SnapshotsLoaded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshots_analyzed",
				Help:      "Number of snapshots in the last analyzed window",
			},
			[]string{"service", "window"},
		),

		// Anomaly metrics
		AnomaliesDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_detected_total",
				Help:      "Total number of anomalies detected by dimension and severity",
			},
			[]string{"service", "metric_type", "severity"},
		),
		RuleMatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_matches_total",
				Help:      "Total number of alert rule matches",
			},
			[]string{"service", "rule"},
		),

		// Resource recommendation metrics
		CPURecommendation: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cpu_recommendation_millicores",
				Help:      "Recommended CPU request in millicores",
			},
			[]string{"service"},
		),
		MemoryRecommendation: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_recommendation_mib",
				Help:      "Recommended memory request in MiB",
			},
			[]string{"service"},
		),
		ReplicaRecommendation: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "replica_recommendation",
				Help:      "Recommended replica count",
			},
			[]string{"service"},
		),
		RecommendationConfidence: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recommendation_confidence",
				Help:      "Confidence of the sizing recommendation (0-1)",
			},
			[]string{"service"},
		),
		MonthlySavings: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "estimated_monthly_savings",
				Help:      "Estimated monthly savings of the sizing recommendation",
			},
			[]string{"service"},
		),
		DataQualityScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "data_quality_score",
				Help:      "Data quality score of the analyzed window (0-100)",
			},
			[]string{"service"},
		),

		// Workload metrics
		WorkloadPattern: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workload_pattern",
				Help:      "Classified workload pattern, 1 for the current pattern",
			},
			[]string{"service", "pattern"},
		),

		// Prediction metrics
		PredictionsMade: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_made_total",
				Help:      "Total number of hourly scaling predictions made",
			},
			[]string{"service"},
		),
		PeakLoadsPredicted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "peak_loads_predicted_total",
				Help:      "Total number of peak loads predicted",
			},
			[]string{"service"},
		),
		PredictedCost: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "predicted_cost",
				Help:      "Predicted cost over the cost forecast horizon",
			},
			[]string{"service"},
		),
	}
}

// RecordAnalysis records an analysis run
func (e *PrometheusExporter) RecordAnalysis(service, result string, duration float64) {
	e.AnalysisTotal.WithLabelValues(service, result).Inc()
	e.AnalysisDuration.WithLabelValues(service).Observe(duration)
}

// RecordWindow records the size of an analyzed window ("recent" or "history")
func (e *PrometheusExporter) RecordWindow(service, window string, snapshots int) {
	e.SnapshotsLoaded.WithLabelValues(service, window).Set(float64(snapshots))
}

// RecordAnomaly records a detected anomaly
func (e *PrometheusExporter) RecordAnomaly(service, metricType, severity string) {
	e.AnomaliesDetected.WithLabelValues(service, metricType, severity).Inc()
}

// RecordRuleMatch records an alert rule match
func (e *PrometheusExporter) RecordRuleMatch(service, rule string) {
	e.RuleMatches.WithLabelValues(service, rule).Inc()
}

// RecordRecommendation records a sizing recommendation
func (e *PrometheusExporter) RecordRecommendation(service string, millicores, mib, confidence, savings float64) {
	e.CPURecommendation.WithLabelValues(service).Set(millicores)
	e.MemoryRecommendation.WithLabelValues(service).Set(mib)
	e.RecommendationConfidence.WithLabelValues(service).Set(confidence)
	e.MonthlySavings.WithLabelValues(service).Set(savings)
}

// RecordReplicaRecommendation records a replica recommendation
func (e *PrometheusExporter) RecordReplicaRecommendation(service string, replicas float64) {
	e.ReplicaRecommendation.WithLabelValues(service).Set(replicas)
}

// RecordDataQuality records the quality score of an analyzed window
func (e *PrometheusExporter) RecordDataQuality(service string, score float64) {
	e.DataQualityScore.WithLabelValues(service).Set(score)
}

// RecordWorkloadPattern marks pattern as the only current pattern of service
func (e *PrometheusExporter) RecordWorkloadPattern(service, pattern string) {
	e.WorkloadPattern.DeletePartialMatch(prometheus.Labels{"service": service})
	e.WorkloadPattern.WithLabelValues(service, pattern).Set(1)
}

// RecordPredictions records a forecast run
func (e *PrometheusExporter) RecordPredictions(service string, predictions, peakLoads int) {
	e.PredictionsMade.WithLabelValues(service).Add(float64(predictions))
	e.PeakLoadsPredicted.WithLabelValues(service).Add(float64(peakLoads))
}

// RecordPredictedCost records the cost forecast total
func (e *PrometheusExporter) RecordPredictedCost(service string, cost float64) {
	e.PredictedCost.WithLabelValues(service).Set(cost)
}
