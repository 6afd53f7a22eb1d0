package scaling

import (
	"time"

	"intelligent-resource-analyzer/pkg/cost"
	"intelligent-resource-analyzer/pkg/models"
)

// Variability classifies how far CPU strays from its mean
type Variability string

const (
	VariabilityHigh       Variability = "HIGHLY_VARIABLE"
	VariabilityModerate   Variability = "MODERATE_VARIABLE"
	VariabilityHighSteady Variability = "HIGH_STEADY"
	VariabilityLowSteady  Variability = "LOW_STEADY"
	VariabilityStable     Variability = "STABLE"
)

// PolicyBehavior describes how fast a scaling policy reacts
type PolicyBehavior string

const (
	BehaviorAggressive   PolicyBehavior = "Aggressive"
	BehaviorModerate     PolicyBehavior = "Moderate"
	BehaviorConservative PolicyBehavior = "Conservative"
)

// ScalingPolicy is one direction of HPA behavior
type ScalingPolicy struct {
	StabilizationWindowSeconds int32 `json:"stabilizationWindowSeconds"`
	PeriodSeconds              int32 `json:"periodSeconds"`
	PercentPerScale            int32 `json:"percentPerScale"`
	// PodsPerScale is 0 when only the percent policy applies
	PodsPerScale int32          `json:"podsPerScale,omitempty"`
	Behavior     PolicyBehavior `json:"behavior"`
	Description  string         `json:"description"`
}

// CustomMetricTarget is a per-pod metric the HPA can scale on
type CustomMetricTarget struct {
	MetricName  string  `json:"metricName"`
	TargetValue float64 `json:"targetValue"`
	Description string  `json:"description"`
}

// HPARecommendation is a horizontal autoscaler configuration
type HPARecommendation struct {
	Service                 string               `json:"service"`
	Variability             Variability          `json:"variability"`
	MinReplicas             int32                `json:"minReplicas"`
	MaxReplicas             int32                `json:"maxReplicas"`
	CurrentReplicas         int32                `json:"currentReplicas"`
	RecommendedReplicas     int32                `json:"recommendedReplicas"`
	TargetCPUUtilization    int32                `json:"targetCpuUtilization"`
	TargetMemoryUtilization int32                `json:"targetMemoryUtilization"`
	ScaleUp                 ScalingPolicy        `json:"scaleUp"`
	ScaleDown               ScalingPolicy        `json:"scaleDown"`
	CustomMetrics           []CustomMetricTarget `json:"customMetrics"`
	Rationale               string               `json:"rationale"`
	Confidence              float64              `json:"confidence"`
	// EstimatedCostImpact is the monthly cost change of moving to the
	// recommended replicas; negative saves money
	EstimatedCostImpact float64 `json:"estimatedCostImpact"`
}

// UpdateMode is the VPA update mode
type UpdateMode string

const (
	UpdateOff      UpdateMode = "Off"
	UpdateInitial  UpdateMode = "Initial"
	UpdateRecreate UpdateMode = "Recreate"
	UpdateAuto     UpdateMode = "Auto"
)

// Approach is the overall scaling approach for a service
type Approach string

const (
	ApproachBoth   Approach = "USE_BOTH"
	ApproachHPA    Approach = "USE_HPA"
	ApproachVPA    Approach = "USE_VPA"
	ApproachManual Approach = "MANUAL_SCALING"
)

// ResourceRange bounds what the VPA may set
type ResourceRange struct {
	Min models.Quantity `json:"min"`
	Max models.Quantity `json:"max"`
}

// ResourcePolicy is the VPA container policy
type ResourcePolicy struct {
	CPU              ResourceRange `json:"cpu"`
	Memory           ResourceRange `json:"memory"`
	ControlledValues string        `json:"controlledValues"`
}

// VPARecommendation is a vertical autoscaler configuration
type VPARecommendation struct {
	Service     string              `json:"service"`
	Current     models.ResourceSpec `json:"current"`
	Recommended models.ResourceSpec `json:"recommended"`
	UpdateMode  UpdateMode          `json:"updateMode"`
	Policy      ResourcePolicy      `json:"policy"`
	Rationale   string              `json:"rationale"`
	Confidence  float64             `json:"confidence"`
	// EstimatedMonthlySavings is negative when the service needs more
	EstimatedMonthlySavings float64 `json:"estimatedMonthlySavings"`
	// Approach is empty when there was no data to judge
	Approach Approach `json:"approach,omitempty"`
}

// MetricType names the signal a custom metric hint scales on
type MetricType string

const (
	MetricRequestsPerSecond   MetricType = "REQUESTS_PER_SECOND"
	MetricConnectionPoolUsage MetricType = "CONNECTION_POOL_USAGE"
	MetricResponseTimeP95     MetricType = "RESPONSE_TIME_P95"
)

// CustomMetricScaling is a replica hint derived from one application metric
type CustomMetricScaling struct {
	MetricName          string     `json:"metricName"`
	Type                MetricType `json:"type"`
	CurrentValue        float64    `json:"currentValue"`
	CurrentPerPodValue  float64    `json:"currentPerPodValue"`
	TargetPerPodValue   float64    `json:"targetPerPodValue"`
	CurrentReplicas     int        `json:"currentReplicas"`
	RecommendedReplicas int        `json:"recommendedReplicas"`
	ScaleUpThreshold    float64    `json:"scaleUpThreshold"`
	ScaleDownThreshold  float64    `json:"scaleDownThreshold"`
	Rationale           string     `json:"rationale"`
	Recommendation      string     `json:"recommendation"`
}

// Urgency ranks how soon the scaling change matters
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// Summary condenses every scaling recommendation into one verdict
type Summary struct {
	Primary                Approach `json:"primary"`
	Urgency                Urgency  `json:"urgency"`
	KeyFindings            []string `json:"keyFindings"`
	ActionItems            []string `json:"actionItems"`
	ExpectedMonthlySavings float64  `json:"expectedMonthlySavings"`
	Confidence             float64  `json:"confidence"`
}

// Analysis is the complete scaling picture of a service
type Analysis struct {
	Service       string                     `json:"service"`
	AnalyzedAt    time.Time                  `json:"analyzedAt"`
	HPA           HPARecommendation          `json:"hpa"`
	VPA           VPARecommendation          `json:"vpa"`
	CostAware     cost.ScalingAnalysis       `json:"costAware"`
	CustomMetrics []CustomMetricScaling      `json:"customMetrics"`
	Predictions   []models.ScalingPrediction `json:"predictions"`
	Pattern       *models.TimeSeriesPattern  `json:"pattern,omitempty"`
	Summary       Summary                    `json:"summary"`
}
