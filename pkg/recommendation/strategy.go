package recommendation

import (
	"fmt"

	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/config"
	"intelligent-resource-analyzer/pkg/leakdetector"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// Issue names used as keys of AnalysisResult.DetectedIssues
const (
	IssueCPUThrottling  = "CPU Throttling"
	IssueMemoryLeak     = "Memory Leak"
	IssuePoolExhaustion = "Connection Pool Exhaustion"
	IssueNoData         = "No Data"
)

const mebibyte = 1024 * 1024

// Strategy sizes one resource dimension. Each implementation reads only the
// snapshot fields of its own dimension.
type Strategy interface {
	// Dimension names the metric family the strategy sizes
	Dimension() models.MetricType

	// DetectIssues returns diagnostic details for problems found in the window,
	// keyed by issue name
	DetectIssues(snaps []models.Snapshot) map[string]string

	// Apply writes the dimension's recommendation, percentiles and issue flag
	// into result
	Apply(result *models.AnalysisResult, snaps []models.Snapshot)
}

// CPUStrategy sizes CPU requests and limits from the P95 of CPU usage
type CPUStrategy struct {
	sizing config.SizingConfig
	// throttleP95 is shared with the sustained-CPU anomaly threshold
	throttleP95 float64
}

// NewCPUStrategy creates the CPU strategy
func NewCPUStrategy(cfg config.Config) *CPUStrategy {
	return &CPUStrategy{sizing: cfg.Sizing, throttleP95: cfg.Anomaly.CPUSustainedThreshold}
}

// Dimension implements Strategy
func (s *CPUStrategy) Dimension() models.MetricType { return models.MetricCPU }

// DetectIssues implements Strategy
func (s *CPUStrategy) DetectIssues(snaps []models.Snapshot) map[string]string {
	summary := stats.Describe(models.CPUValues(snaps))
	issues := make(map[string]string)
	if s.throttled(summary) {
		issues[IssueCPUThrottling] = fmt.Sprintf(
			"CPU P95=%.1f%% (max %.1f%%) exceeds %.0f%% threshold, performance degradation likely",
			summary.P95, summary.Max, s.throttleP95)
	}
	return issues
}

// Apply implements Strategy
func (s *CPUStrategy) Apply(result *models.AnalysisResult, snaps []models.Snapshot) {
	summary := stats.Describe(models.CPUValues(snaps))

	request := s.Request(summary.P95)
	result.Recommended.CPURequest = request
	result.Recommended.CPULimit = models.Millicores(int64(float64(request.Value) * s.sizing.CPULimitMultiplier))
	result.CPU = percentiles(summary)
	result.CPUThrottlingDetected = s.throttled(summary)
}

// Request converts a P95 CPU percentage (100 = one core) into millicores
// with the safety margin, floored at the configured minimum
func (s *CPUStrategy) Request(p95 float64) models.Quantity {
	millicores := int64(stats.StableCeil(p95 / 100 * (1 + s.sizing.SafetyMargin) * 1000))
	if millicores < s.sizing.MinCPUMillicores {
		millicores = s.sizing.MinCPUMillicores
	}
	return models.Millicores(millicores)
}

func (s *CPUStrategy) throttled(summary stats.Summary) bool {
	return summary.Count > 0 && (summary.P95 > s.throttleP95 || summary.Max > s.sizing.CPUThrottleMaxPercent)
}

// MemoryStrategy sizes memory from observed heap bytes and heap percent, and
// derives runtime heap bounds from the resulting request
type MemoryStrategy struct {
	sizing config.SizingConfig
	leaks  *leakdetector.Detector
}

// NewMemoryStrategy creates the memory strategy
func NewMemoryStrategy(cfg config.Config) *MemoryStrategy {
	return &MemoryStrategy{
		sizing: cfg.Sizing,
		leaks:  leakdetector.NewDetector(cfg.Anomaly, cfg.Sizing),
	}
}

// Dimension implements Strategy
func (s *MemoryStrategy) Dimension() models.MetricType { return models.MetricMemory }

// DetectIssues implements Strategy
func (s *MemoryStrategy) DetectIssues(snaps []models.Snapshot) map[string]string {
	issues := make(map[string]string)
	if leak, ok := s.leak(snaps); ok {
		issues[IssueMemoryLeak] = leakDetail(leak)
	}
	return issues
}

// Apply implements Strategy
func (s *MemoryStrategy) Apply(result *models.AnalysisResult, snaps []models.Snapshot) {
	summary := stats.Describe(models.HeapPercentValues(snaps))

	var maxUsed, maxHeap int64
	for _, snap := range snaps {
		if snap.HeapUsedBytes > maxUsed {
			maxUsed = snap.HeapUsedBytes
		}
		if snap.HeapMaxBytes > maxHeap {
			maxHeap = snap.HeapMaxBytes
		}
	}

	request := s.Request(summary.P95, maxUsed, maxHeap)
	result.Recommended.MemoryRequest = request
	result.Recommended.MemoryLimit = models.Mebibytes(int64(float64(request.Value) * s.sizing.MemoryLimitMultiplier))
	result.Heap = models.HeapSettings{
		MinMi: int64(float64(request.Value) * s.sizing.HeapMinFraction),
		MaxMi: int64(float64(request.Value) * s.sizing.HeapMaxFraction),
	}
	result.Memory = percentiles(summary)
	_, result.MemoryLeakDetected = s.leak(snaps)
}

// Request sizes memory as the largest of the raw byte peak, the P95 heap
// percent applied to the largest heap, and the configured minimum, each with
// the safety margin
func (s *MemoryStrategy) Request(p95Percent float64, maxUsedBytes, maxHeapBytes int64) models.Quantity {
	factor := 1 + s.sizing.SafetyMargin
	mi := s.sizing.MinMemoryMi

	if fromBytes := int64(stats.StableCeil(float64(maxUsedBytes) * factor / mebibyte)); fromBytes > mi {
		mi = fromBytes
	}
	if fromPercent := int64(stats.StableCeil(p95Percent / 100 * float64(maxHeapBytes) * factor / mebibyte)); fromPercent > mi {
		mi = fromPercent
	}
	return models.Mebibytes(mi)
}

// leak reports a leak only once the window is long enough for the half
// comparison, so short windows never flag on slope alone
func (s *MemoryStrategy) leak(snaps []models.Snapshot) (leakdetector.Analysis, bool) {
	analysis := s.leaks.AnalyzeSnapshots(snaps)
	if analysis.SampleCount < s.sizing.LeakMinSamples {
		return analysis, false
	}
	return analysis, analysis.IsLeak()
}

// leakDetail extends the leak description with the projected exhaustion and
// whether adding memory is advisable
func leakDetail(leak leakdetector.Analysis) string {
	detail := leak.Description
	if leak.TimeToExhaustion > 0 {
		detail += fmt.Sprintf(", heap full in %s at %.2f%%/hour", leak.FormatExhaustion(), leak.PercentPerHour)
	}
	if _, reason := leak.ShouldPreventScaling(); reason != "" {
		detail += ". " + reason
	}
	return detail
}

// PoolStrategy sizes the database connection pool
type PoolStrategy struct {
	sizing          config.SizingConfig
	exhaustionRatio float64
}

// NewPoolStrategy creates the connection pool strategy
func NewPoolStrategy(cfg config.Config) *PoolStrategy {
	return &PoolStrategy{sizing: cfg.Sizing, exhaustionRatio: cfg.Anomaly.PoolExhaustionRatio}
}

// Dimension implements Strategy
func (s *PoolStrategy) Dimension() models.MetricType { return models.MetricPool }

// DetectIssues implements Strategy
func (s *PoolStrategy) DetectIssues(snaps []models.Snapshot) map[string]string {
	issues := make(map[string]string)
	saturated, total, pending := s.pressure(snaps)
	if s.exhausted(saturated, total, pending) {
		issues[IssuePoolExhaustion] = fmt.Sprintf(
			"Pool at or above %.0f%% capacity in %d/%d samples, %d samples with pending requests",
			s.exhaustionRatio*100, saturated, total, pending)
	}
	return issues
}

// Apply implements Strategy. Windows without pool data leave result.Pool nil.
func (s *PoolStrategy) Apply(result *models.AnalysisResult, snaps []models.Snapshot) {
	active := models.PoolActiveValues(snaps)
	summary := stats.Describe(active)
	result.PoolActive = percentiles(summary)

	saturated, total, pending := s.pressure(snaps)
	result.PoolExhaustionDetected = s.exhausted(saturated, total, pending)

	if len(active) == 0 {
		return
	}

	var maxPending int32
	for _, snap := range snaps {
		if p := snap.Pending(); p > maxPending {
			maxPending = p
		}
	}

	maxSize := s.MaxPoolSize(summary.P95, int32(summary.Max)+maxPending)
	minIdle := maxSize / s.sizing.IdleDivisor
	if minIdle < s.sizing.MinIdle {
		minIdle = s.sizing.MinIdle
	}

	result.Pool = &models.PoolRecommendation{
		MaxPoolSize:         maxSize,
		MinIdle:             minIdle,
		ConnectionTimeoutMs: s.sizing.ConnectionTimeoutMs,
		IdleTimeoutMs:       s.sizing.IdleTimeoutMs,
	}
	klog.V(4).Infof("Pool sizing: P95 active=%.1f, peak demand=%d, recommended=%d",
		summary.P95, int32(summary.Max)+maxPending, maxSize)
}

// MaxPoolSize is the larger of the P95 active count and the peak demand
// (active plus pending), each with the safety margin, floored at the minimum
func (s *PoolStrategy) MaxPoolSize(p95Active float64, peakDemand int32) int32 {
	factor := 1 + s.sizing.SafetyMargin
	size := int32(stats.StableCeil(p95Active * factor))
	if fromDemand := int32(stats.StableCeil(float64(peakDemand) * factor)); fromDemand > size {
		size = fromDemand
	}
	if size < s.sizing.MinPoolSize {
		size = s.sizing.MinPoolSize
	}
	return size
}

// pressure counts pool samples at the exhaustion ratio, pool samples overall,
// and samples reporting pending requests
func (s *PoolStrategy) pressure(snaps []models.Snapshot) (saturated, total, pending int) {
	for _, snap := range snaps {
		if ratio, ok := snap.PoolUsage(); ok {
			total++
			if ratio >= s.exhaustionRatio {
				saturated++
			}
		}
		if snap.Pending() > 0 {
			pending++
		}
	}
	return saturated, total, pending
}

func (s *PoolStrategy) exhausted(saturated, total, pending int) bool {
	if pending > 0 {
		return true
	}
	return total > 0 && float64(saturated) > float64(total)*s.sizing.PoolExhaustedFraction
}

func percentiles(summary stats.Summary) models.PercentileStats {
	return models.PercentileStats{
		P95: summary.P95,
		P99: summary.P99,
		Max: summary.Max,
	}
}
