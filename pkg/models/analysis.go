package models

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Unit of a sizing Quantity
type Unit string

const (
	UnitMillicores Unit = "m"
	UnitMebibytes  Unit = "Mi"
)

const mebibyte = 1024 * 1024

// Quantity is a value+unit pair such as 350m or 384Mi.
type Quantity struct {
	Value int64 `json:"value"`
	Unit  Unit  `json:"unit"`
}

// Millicores builds a CPU quantity.
func Millicores(v int64) Quantity { return Quantity{Value: v, Unit: UnitMillicores} }

// Mebibytes builds a memory quantity.
func Mebibytes(v int64) Quantity { return Quantity{Value: v, Unit: UnitMebibytes} }

// String renders the quantity in Kubernetes notation.
func (q Quantity) String() string {
	return fmt.Sprintf("%d%s", q.Value, q.Unit)
}

// Resource converts to a Kubernetes resource.Quantity.
func (q Quantity) Resource() resource.Quantity {
	switch q.Unit {
	case UnitMebibytes:
		return *resource.NewQuantity(q.Value*mebibyte, resource.BinarySI)
	default:
		return *resource.NewMilliQuantity(q.Value, resource.DecimalSI)
	}
}

// Bytes returns the memory size in bytes, 0 for CPU quantities.
func (q Quantity) Bytes() int64 {
	if q.Unit != UnitMebibytes {
		return 0
	}
	return q.Value * mebibyte
}

// ParseCPU converts Kubernetes CPU notation ("500m", "1.5") to millicores.
func ParseCPU(s string) (Quantity, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid cpu quantity %q: %w", s, err)
	}
	return Millicores(q.MilliValue()), nil
}

// ParseMemory converts Kubernetes memory notation ("512Mi", "1Gi", "1G") to
// MiB, rounding up.
func ParseMemory(s string) (Quantity, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid memory quantity %q: %w", s, err)
	}
	return Mebibytes(int64(math.Ceil(float64(q.Value()) / mebibyte))), nil
}

// ParseResourceSpec parses a request/limit set, reporting every invalid field.
func ParseResourceSpec(cpuRequest, cpuLimit, memoryRequest, memoryLimit string) (ResourceSpec, error) {
	var spec ResourceSpec
	var err, e error

	spec.CPURequest, e = ParseCPU(cpuRequest)
	err = multierr.Append(err, e)
	spec.CPULimit, e = ParseCPU(cpuLimit)
	err = multierr.Append(err, e)
	spec.MemoryRequest, e = ParseMemory(memoryRequest)
	err = multierr.Append(err, e)
	spec.MemoryLimit, e = ParseMemory(memoryLimit)
	err = multierr.Append(err, e)

	return spec, err
}

// Cores returns a CPU quantity in cores, 0 for memory quantities.
func (q Quantity) Cores() float64 {
	if q.Unit != UnitMillicores {
		return 0
	}
	return float64(q.Value) / 1000
}

// GiB returns a memory quantity in GiB, 0 for CPU quantities.
func (q Quantity) GiB() float64 {
	if q.Unit != UnitMebibytes {
		return 0
	}
	return float64(q.Value) / 1024
}

// IsZero reports whether the spec carries no values.
func (r ResourceSpec) IsZero() bool {
	return r == ResourceSpec{}
}

// PercentileStats holds the distribution tail of one dimension.
type PercentileStats struct {
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

// HeapSettings are runtime heap bounds derived from the memory request,
// rendered JVM-style as -Xms/-Xmx in MiB.
type HeapSettings struct {
	MinMi int64 `json:"minMi"`
	MaxMi int64 `json:"maxMi"`
}

// Flags returns the heap bounds as runtime flags.
func (h HeapSettings) Flags() (xms, xmx string) {
	return fmt.Sprintf("%dm", h.MinMi), fmt.Sprintf("%dm", h.MaxMi)
}

// PoolRecommendation sizes a database connection pool.
type PoolRecommendation struct {
	MaxPoolSize         int32 `json:"maxPoolSize"`
	MinIdle             int32 `json:"minIdle"`
	ConnectionTimeoutMs int64 `json:"connectionTimeoutMs"`
	IdleTimeoutMs       int64 `json:"idleTimeoutMs"`
}

// ThreadPoolRecommendation sizes the request-serving thread pool.
type ThreadPoolRecommendation struct {
	MaxThreads      int32 `json:"maxThreads"`
	MinSpareThreads int32 `json:"minSpareThreads"`
}

// ResourceSpec is a request/limit pair for CPU and memory.
type ResourceSpec struct {
	CPURequest    Quantity `json:"cpuRequest"`
	CPULimit      Quantity `json:"cpuLimit"`
	MemoryRequest Quantity `json:"memoryRequest"`
	MemoryLimit   Quantity `json:"memoryLimit"`
}

// CostAnalysis compares the monthly cost of two resource specs.
type CostAnalysis struct {
	CurrentMonthlyCost     float64 `json:"currentMonthlyCost"`
	RecommendedMonthlyCost float64 `json:"recommendedMonthlyCost"`
	MonthlySavings         float64 `json:"monthlySavings"`
	AnnualSavings          float64 `json:"annualSavings"`
	SavingsPercent         int     `json:"savingsPercent"`
}

// AnalysisResult is written once per sizing analysis.
type AnalysisResult struct {
	ServiceName string    `json:"serviceName"`
	AnalyzedAt  time.Time `json:"analyzedAt"`
	SampleCount int       `json:"sampleCount"`

	Current     ResourceSpec `json:"current"`
	Recommended ResourceSpec `json:"recommended"`

	Heap       HeapSettings             `json:"heap"`
	Pool       *PoolRecommendation      `json:"pool,omitempty"`
	ThreadPool ThreadPoolRecommendation `json:"threadPool"`

	CPU        PercentileStats `json:"cpu"`
	Memory     PercentileStats `json:"memory"`
	PoolActive PercentileStats `json:"poolActive"`

	CPUThrottlingDetected  bool              `json:"cpuThrottlingDetected"`
	MemoryLeakDetected     bool              `json:"memoryLeakDetected"`
	PoolExhaustionDetected bool              `json:"poolExhaustionDetected"`
	DetectedIssues         map[string]string `json:"detectedIssues,omitempty"`

	Cost                    CostAnalysis `json:"cost"`
	EstimatedMonthlySavings float64      `json:"estimatedMonthlySavings"`
	ConfidenceScore         float64      `json:"confidenceScore"`
	Rationale               string       `json:"rationale"`
}

// CostForecast projects daily spend of a service over the coming days.
type CostForecast struct {
	ServiceName     string    `json:"serviceName"`
	GeneratedAt     time.Time `json:"generatedAt"`
	DaysAhead       int       `json:"daysAhead"`
	DailyCosts      []float64 `json:"dailyCosts"`
	UpperBound      []float64 `json:"upperBound"`
	LowerBound      []float64 `json:"lowerBound"`
	ConfidenceLevel float64   `json:"confidenceLevel"`
	ModelType       string    `json:"modelType"`

	// PeakHourlyCost is the most expensive projected hour, PeakHoursAhead
	// hours after the last observation
	PeakHourlyCost float64 `json:"peakHourlyCost"`
	PeakHoursAhead int     `json:"peakHoursAhead"`
	// FitErrorPercent is the in-sample MAPE of the smoothing model, 0 for
	// linear and baseline projections
	FitErrorPercent float64 `json:"fitErrorPercent,omitempty"`

	CurrentMonthlyCost float64 `json:"currentMonthlyCost"`
	// PredictedCost is the total over DaysAhead
	PredictedCost    float64 `json:"predictedCost"`
	Trend            Trend   `json:"trend"`
	PercentageChange float64 `json:"percentageChange"`
	AccuracyScore    float64 `json:"accuracyScore"`
	Warning          string  `json:"warning,omitempty"`
}
