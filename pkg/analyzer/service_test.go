package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	corev1 "k8s.io/api/core/v1"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/logger"
	"intelligent-resource-analyzer/pkg/metrics"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/storage"
)

var fixedNow = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// seed stores two days of 5 minute samples with a daily CPU wave
func seed(t *testing.T, store *storage.InMemoryStorage, service string) {
	t.Helper()
	const n = 2 * 24 * 12
	snaps := make([]models.Snapshot, 0, n)
	for i := 0; i < n; i++ {
		ts := fixedNow.Add(-time.Duration(i) * 5 * time.Minute)
		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		cpu := 45 + 25*math.Sin((hour-8)/24*2*math.Pi)
		active, poolMax := int32(8), int32(20)
		snaps = append(snaps, models.Snapshot{
			ServiceName:     service,
			Timestamp:       ts,
			CPUPercent:      cpu,
			HeapUsedBytes:   300 << 20,
			HeapMaxBytes:    512 << 20,
			HeapPercent:     58 + float64(i%3),
			ThreadCount:     40,
			HTTPCount:       3000,
			HTTPDurationP95: 120,
			PoolActive:      &active,
			PoolMax:         &poolMax,
		})
	}
	if err := store.Add(snaps...); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}
}

func newService(t *testing.T, cfg config.Config, store *storage.InMemoryStorage, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(clock), WithLogger(logger.Nop())}, opts...)
	svc, err := NewService(cfg, store, opts...)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc
}

func TestAnalyze_FullReport(t *testing.T) {
	store := storage.NewStorage()
	seed(t, store, "orders")
	svc := newService(t, config.Default(), store)

	report, err := svc.Analyze(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if report.Service != "orders" || !report.GeneratedAt.Equal(fixedNow) {
		t.Errorf("Expected orders report at %v, got %s at %v", fixedNow, report.Service, report.GeneratedAt)
	}
	if report.Analysis.ServiceName != "orders" || report.Analysis.SampleCount != 13 {
		t.Errorf("Expected sizing over the 13 samples of the last hour, got %s with %d",
			report.Analysis.ServiceName, report.Analysis.SampleCount)
	}
	if report.Profile.SampleCount != 576 {
		t.Errorf("Expected workload profile over 576 samples, got %d", report.Profile.SampleCount)
	}
	if len(report.Predictions) != config.Default().Forecast.HorizonHours {
		t.Errorf("Expected %d predictions, got %d", config.Default().Forecast.HorizonHours, len(report.Predictions))
	}
	if !report.Pattern.HasDailyPattern {
		t.Error("Expected the daily wave to be detected")
	}
	if report.Schedule == nil || !report.Schedule.Enabled {
		t.Errorf("Expected a scaling schedule, got %+v", report.Schedule)
	}
	if report.Scaling.Service != "orders" || report.Scaling.Summary.Primary == "" {
		t.Errorf("Expected a scaling summary, got %+v", report.Scaling.Summary)
	}
	if report.CostForecast.ServiceName != "orders" || len(report.CostForecast.DailyCosts) == 0 {
		t.Errorf("Expected a cost forecast, got %+v", report.CostForecast)
	}

	m := report.Manifests
	if m.HPA.ScaleTargetRef.Kind != "Deployment" || m.HPA.ScaleTargetRef.Name != "orders" {
		t.Errorf("Expected the HPA to target the orders Deployment, got %+v", m.HPA.ScaleTargetRef)
	}
	if m.HPA.MaxReplicas != report.Scaling.HPA.MaxReplicas {
		t.Errorf("Expected HPA max replicas %d, got %d", report.Scaling.HPA.MaxReplicas, m.HPA.MaxReplicas)
	}
	cpu := m.Resources.Requests[corev1.ResourceCPU]
	if cpu.MilliValue() != report.Scaling.VPA.Recommended.CPURequest.Value {
		t.Errorf("Expected %s cpu request, got %s", report.Scaling.VPA.Recommended.CPURequest, cpu.String())
	}
	minCPU, maxCPU := m.VPAMinAllowed[corev1.ResourceCPU], m.VPAMaxAllowed[corev1.ResourceCPU]
	if minCPU.Cmp(maxCPU) > 0 {
		t.Errorf("Expected min allowed cpu %s not above max %s", minCPU.String(), maxCPU.String())
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	store := storage.NewStorage()
	seed(t, store, "orders")
	svc := newService(t, config.Default(), store)

	first, err := svc.Analyze(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := svc.Analyze(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Error("Expected identical reports for identical input")
	}
}

func TestAnalyze_UnknownService(t *testing.T) {
	registry := prometheus.NewRegistry()
	exporter := metrics.NewPrometheusExporter("test", registry)
	svc := newService(t, config.Default(), storage.NewStorage(), WithExporter(exporter))

	_, err := svc.Analyze(context.Background(), "missing")
	if !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("Expected ErrNoSnapshots, got %v", err)
	}
	if v := testutil.ToFloat64(exporter.AnalysisTotal.WithLabelValues("missing", "failure")); v != 1 {
		t.Errorf("Expected 1 failed analysis, got %f", v)
	}
}

func TestAnalyze_CancelledContext(t *testing.T) {
	store := storage.NewStorage()
	seed(t, store, "orders")
	svc := newService(t, config.Default(), store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Analyze(ctx, "orders"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestAnalyze_RecordsMetrics(t *testing.T) {
	store := storage.NewStorage()
	seed(t, store, "orders")
	exporter := metrics.NewPrometheusExporter("test", prometheus.NewRegistry())
	svc := newService(t, config.Default(), store, WithExporter(exporter))

	report, err := svc.Analyze(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if v := testutil.ToFloat64(exporter.AnalysisTotal.WithLabelValues("orders", "success")); v != 1 {
		t.Errorf("Expected 1 successful analysis, got %f", v)
	}
	if v := testutil.ToFloat64(exporter.SnapshotsLoaded.WithLabelValues("orders", "recent")); v != 13 {
		t.Errorf("Expected 13 recent snapshots, got %f", v)
	}
	if v := testutil.ToFloat64(exporter.SnapshotsLoaded.WithLabelValues("orders", "history")); v != 576 {
		t.Errorf("Expected 576 history snapshots, got %f", v)
	}
	if v := testutil.ToFloat64(exporter.CPURecommendation.WithLabelValues("orders")); v != float64(report.Analysis.Recommended.CPURequest.Value) {
		t.Errorf("Expected CPU recommendation %d, got %f", report.Analysis.Recommended.CPURequest.Value, v)
	}
	if v := testutil.ToFloat64(exporter.WorkloadPattern.WithLabelValues("orders", string(report.Profile.Pattern))); v != 1 {
		t.Errorf("Expected pattern %s recorded, got %f", report.Profile.Pattern, v)
	}
	if v := testutil.ToFloat64(exporter.PredictionsMade.WithLabelValues("orders")); v != float64(len(report.Predictions)) {
		t.Errorf("Expected %d predictions recorded, got %f", len(report.Predictions), v)
	}
}

func TestAnalyze_RuleAnomalies(t *testing.T) {
	cfg := config.Default()
	cfg.Rules = []config.RuleConfig{
		{Name: "pool-in-use", Condition: "latest.hasPool && latest.poolActive >= 8", MetricType: "POOL", Severity: "LOW", Enabled: true},
		{Name: "never", Condition: "latest.cpu > 1000", Enabled: true},
	}
	store := storage.NewStorage()
	seed(t, store, "orders")
	exporter := metrics.NewPrometheusExporter("test", prometheus.NewRegistry())
	svc := newService(t, cfg, store, WithExporter(exporter))

	if len(svc.Rules()) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(svc.Rules()))
	}

	report, err := svc.Analyze(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var matched []string
	for _, a := range report.Anomalies {
		if a.MetricName == "rule:pool-in-use" || a.MetricName == "rule:never" {
			matched = append(matched, a.MetricName)
		}
	}
	if len(matched) != 1 || matched[0] != "rule:pool-in-use" {
		t.Errorf("Expected only the pool rule to match, got %v", matched)
	}
	if v := testutil.ToFloat64(exporter.RuleMatches.WithLabelValues("orders", "pool-in-use")); v != 1 {
		t.Errorf("Expected 1 rule match recorded, got %f", v)
	}
}

func TestService_RuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	write := func(content string) {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("Failed to write rule file: %v", err)
		}
	}
	write(`rules:
  - name: pool-in-use
    condition: "latest.hasPool && latest.poolActive >= 8"
    metricType: POOL
    enabled: true
`)

	cfg := config.Default()
	cfg.Rules = []config.RuleConfig{{Name: "from-config", Condition: "latest.cpu > 1000", Enabled: true}}
	store := storage.NewStorage()
	seed(t, store, "orders")
	svc := newService(t, cfg, store, WithRuleFile(path))

	if rules := svc.Rules(); len(rules) != 1 || rules[0].Name != "pool-in-use" {
		t.Fatalf("Expected the rule file to replace config rules, got %+v", rules)
	}

	write(`rules:
  - name: pool-in-use
    condition: "latest.hasPool && latest.poolActive >= 8"
    enabled: true
  - name: hot-cpu
    condition: "latest.cpu > 90"
    enabled: true
`)
	if err := svc.ReloadRules(); err != nil {
		t.Fatalf("Expected reload to succeed, got %v", err)
	}
	if len(svc.Rules()) != 2 {
		t.Errorf("Expected 2 rules after reload, got %d", len(svc.Rules()))
	}

	write("rules:\n  - name: broken\n    condition: \"latest.cpu >\"\n")
	if err := svc.ReloadRules(); err == nil {
		t.Error("Expected error for a rule that does not compile")
	}
	if len(svc.Rules()) != 2 {
		t.Errorf("Expected previous rules kept after a failed reload, got %d", len(svc.Rules()))
	}
}

func TestNewService_MissingRuleFile(t *testing.T) {
	_, err := NewService(config.Default(), storage.NewStorage(),
		WithLogger(logger.Nop()), WithRuleFile(filepath.Join(t.TempDir(), "missing.yaml")))
	if err == nil {
		t.Error("Expected error for a missing rule file")
	}
}

func TestNewService_InvalidRule(t *testing.T) {
	cfg := config.Default()
	cfg.Rules = []config.RuleConfig{{Name: "broken", Condition: "latest.cpu >", Enabled: true}}

	if _, err := NewService(cfg, storage.NewStorage(), WithLogger(logger.Nop())); err == nil {
		t.Error("Expected error for a rule that does not compile")
	}
}

func TestAnalyzeAll(t *testing.T) {
	store := storage.NewStorage()
	seed(t, store, "orders")
	seed(t, store, "billing")
	// only samples older than the history window
	if err := store.Add(models.Snapshot{ServiceName: "legacy", Timestamp: fixedNow.AddDate(0, 0, -30), CPUPercent: 10}); err != nil {
		t.Fatalf("Failed to add snapshot: %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	svc := newService(t, config.Default(), store, WithLogger(logger.FromZap(zap.New(core))))

	reports, err := svc.AnalyzeAll(context.Background())
	if !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("Expected the legacy service to fail with ErrNoSnapshots, got %v", err)
	}
	if len(reports) != 2 || reports[0].Service != "billing" || reports[1].Service != "orders" {
		t.Fatalf("Expected billing and orders reports in order, got %d reports", len(reports))
	}

	if n := logs.FilterMessage("Analysis complete").Len(); n != 2 {
		t.Errorf("Expected 2 completion log lines, got %d", n)
	}
	if n := logs.FilterMessage("Analysis failed").Len(); n != 1 {
		t.Errorf("Expected 1 failure log line, got %d", n)
	}
}
