// Package recommendation turns a snapshot window into a resource sizing
// recommendation. Each resource dimension is sized by its own Strategy; the
// Engine orchestrates them and adds cost, confidence and rationale.
package recommendation

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/cost"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// Engine generates sizing recommendations from a snapshot window
type Engine struct {
	cfg        config.Config
	strategies []Strategy
	cost       *cost.Calculator
	quality    *QualityScorer

	// defaultCurrent is used when the caller does not know the running resources
	defaultCurrent models.ResourceSpec

	now func() time.Time
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock injects the time source used for AnalyzedAt
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStrategies replaces the CPU, memory and pool strategies
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Engine) { e.strategies = strategies }
}

// NewEngine creates an engine from a validated configuration. calc may be nil,
// in which case a calculator is built from the cost section.
func NewEngine(cfg config.Config, calc *cost.Calculator, opts ...Option) *Engine {
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

	interval := time.Duration(cfg.Scaling.SampleIntervalSecond * float64(time.Second))
	e := &Engine{
		cfg: cfg,
		strategies: []Strategy{
			NewCPUStrategy(cfg),
			NewMemoryStrategy(cfg),
			NewPoolStrategy(cfg),
		},
		cost:           calc,
		quality:        NewQualityScorer(DefaultQualityConfig(interval)),
		defaultCurrent: current,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze sizes every dimension from the window. A zero current spec means
// the configured running resources. An empty window yields the default
// recommendation.
func (e *Engine) Analyze(service string, snaps []models.Snapshot, current models.ResourceSpec) models.AnalysisResult {
	if current.IsZero() {
		current = e.defaultCurrent
	}
	if len(snaps) == 0 {
		klog.V(3).Infof("No snapshots for %s, returning default recommendation", service)
		return e.DefaultRecommendation(service, current)
	}

	ordered := models.Chronological(snaps)
	result := models.AnalysisResult{
		ServiceName: service,
		AnalyzedAt:  e.now(),
		SampleCount: len(ordered),
		Current:     current,
		ThreadPool:  e.threadPool(),
	}

	for _, strategy := range e.strategies {
		strategy.Apply(&result, ordered)
	}

	result.DetectedIssues = e.DetectIssues(ordered)
	result.Cost = e.cost.Compare(current, result.Recommended)
	result.EstimatedMonthlySavings = e.cost.EstimateSavingsFromUsage(result.CPU.P95, result.Memory.P95, e.cfg.Sizing.SafetyMargin)
	result.ConfidenceScore = Confidence(len(ordered),
		stats.StdDev(models.CPUValues(ordered)),
		stats.StdDev(models.HeapPercentValues(ordered)))
	result.Rationale = rationale(result)

	klog.V(4).Infof("Sizing for %s: %d samples, cpu %s/%s, memory %s/%s, confidence %.2f",
		service, result.SampleCount,
		result.Recommended.CPURequest, result.Recommended.CPULimit,
		result.Recommended.MemoryRequest, result.Recommended.MemoryLimit,
		result.ConfidenceScore)
	return result
}

// DetectIssues collects the detailed diagnostics of every strategy
func (e *Engine) DetectIssues(snaps []models.Snapshot) map[string]string {
	ordered := models.Chronological(snaps)
	issues := make(map[string]string)
	for _, strategy := range e.strategies {
		for name, detail := range strategy.DetectIssues(ordered) {
			issues[name] = detail
		}
	}
	return issues
}

// AssessQuality grades the window the recommendation was built from
func (e *Engine) AssessQuality(snaps []models.Snapshot) DataQuality {
	return e.quality.Assess(snaps, e.now())
}

// DefaultRecommendation is returned when no snapshots are available: every
// dimension at its configured minimum, zero confidence.
func (e *Engine) DefaultRecommendation(service string, current models.ResourceSpec) models.AnalysisResult {
	s := e.cfg.Sizing
	if current.IsZero() {
		current = e.defaultCurrent
	}

	cpu := models.Millicores(s.MinCPUMillicores)
	memory := models.Mebibytes(s.MinMemoryMi)
	recommended := models.ResourceSpec{
		CPURequest:    cpu,
		CPULimit:      models.Millicores(int64(float64(cpu.Value) * s.CPULimitMultiplier)),
		MemoryRequest: memory,
		MemoryLimit:   models.Mebibytes(int64(float64(memory.Value) * s.MemoryLimitMultiplier)),
	}

	return models.AnalysisResult{
		ServiceName: service,
		AnalyzedAt:  e.now(),
		Current:     current,
		Recommended: recommended,
		Heap: models.HeapSettings{
			MinMi: int64(float64(memory.Value) * s.HeapMinFraction),
			MaxMi: int64(float64(memory.Value) * s.HeapMaxFraction),
		},
		ThreadPool:      e.threadPool(),
		DetectedIssues:  map[string]string{IssueNoData: "Service metrics not found"},
		Cost:            e.cost.Compare(current, recommended),
		ConfidenceScore: 0,
		Rationale:       "No metrics available for analysis",
	}
}

func (e *Engine) threadPool() models.ThreadPoolRecommendation {
	return models.ThreadPoolRecommendation{
		MaxThreads:      e.cfg.Sizing.MaxThreads,
		MinSpareThreads: e.cfg.Sizing.MinSpareThreads,
	}
}

// Confidence starts at 0.5, rises with sample count and with stable CPU and
// heap usage, and is capped at 0.95. No samples means no confidence.
func Confidence(samples int, cpuStdDev, memoryStdDev float64) float64 {
	if samples == 0 {
		return 0
	}
	score := 0.5
	switch {
	case samples > 50:
		score += 0.2
	case samples > 20:
		score += 0.1
	}
	if cpuStdDev < 10 {
		score += 0.15
	}
	if memoryStdDev < 10 {
		score += 0.15
	}
	if score > 0.95 {
		return 0.95
	}
	return stats.Round2(score)
}

func rationale(r models.AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString("Analysis based on recent metrics. ")
	fmt.Fprintf(&sb, "CPU P95: %.1f%%, recommending %s (current: %s). ",
		r.CPU.P95, r.Recommended.CPURequest, r.Current.CPURequest)
	fmt.Fprintf(&sb, "Memory P95: %.1f%%, recommending %s (current: %s). ",
		r.Memory.P95, r.Recommended.MemoryRequest, r.Current.MemoryRequest)

	if r.CPUThrottlingDetected {
		sb.WriteString("CPU throttling detected. ")
	}
	if r.MemoryLeakDetected {
		sb.WriteString("Potential memory leak detected. ")
	}
	if r.PoolExhaustionDetected {
		sb.WriteString("Connection pool exhaustion detected. ")
	}
	return sb.String()
}
