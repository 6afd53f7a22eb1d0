package models

import "time"

// Trend labels the direction of a usage series
type Trend string

const (
	TrendStable            Trend = "STABLE"
	TrendIncreasing        Trend = "INCREASING"
	TrendRapidlyIncreasing Trend = "RAPIDLY_INCREASING"
	TrendDecreasing        Trend = "DECREASING"
	TrendRapidlyDecreasing Trend = "RAPIDLY_DECREASING"
)

// AllTrends lists the closed set of trend labels.
func AllTrends() []Trend {
	return []Trend{
		TrendStable,
		TrendIncreasing,
		TrendRapidlyIncreasing,
		TrendDecreasing,
		TrendRapidlyDecreasing,
	}
}

// LoadLevel buckets a weekday's load against the overall mean
type LoadLevel string

const (
	LoadVeryLow  LoadLevel = "VERY_LOW"
	LoadLow      LoadLevel = "LOW"
	LoadMedium   LoadLevel = "MEDIUM"
	LoadHigh     LoadLevel = "HIGH"
	LoadVeryHigh LoadLevel = "VERY_HIGH"
)

// EventType is a notable predicted condition
type EventType string

const (
	EventPeakLoad    EventType = "PEAK_LOAD"
	EventLowActivity EventType = "LOW_ACTIVITY"
)

// TimeSeriesPattern is the periodicity and trend picture of a history window.
type TimeSeriesPattern struct {
	HasDailyPattern        bool                       `json:"hasDailyPattern"`
	HasWeeklyPattern       bool                       `json:"hasWeeklyPattern"`
	PeakHours              []int                      `json:"peakHours"`
	LowActivityHours       []int                      `json:"lowActivityHours"`
	WeekdayLoadLevels      map[time.Weekday]LoadLevel `json:"weekdayLoadLevels"`
	Trend                  Trend                      `json:"trend"`
	TrendStrength          float64                    `json:"trendStrength"`
	HasSeasonality         bool                       `json:"hasSeasonality"`
	SeasonalityPeriodHours int                        `json:"seasonalityPeriodHours"`
	Volatility             float64                    `json:"volatility"`
	Description            string                     `json:"description"`
}

// IsPeakHour reports whether hour is one of the peak hours.
func (p *TimeSeriesPattern) IsPeakHour(hour int) bool {
	return containsHour(p.PeakHours, hour)
}

// IsLowActivityHour reports whether hour is one of the low-activity hours.
func (p *TimeSeriesPattern) IsLowActivityHour(hour int) bool {
	return containsHour(p.LowActivityHours, hour)
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}

// ScalingEvent is a predicted condition within the forecast horizon.
type ScalingEvent struct {
	EventTime           time.Time `json:"eventTime"`
	EventType           EventType `json:"eventType"`
	ExpectedCPU         float64   `json:"expectedCpu"`
	RecommendedReplicas int       `json:"recommendedReplicas"`
	Reason              string    `json:"reason"`
	Confidence          float64   `json:"confidence"`
}

// ScalingPrediction is the forecast for one future hour slot.
type ScalingPrediction struct {
	Service              string             `json:"service"`
	PredictionTime       time.Time          `json:"predictionTime"`
	ForecastFor          time.Time          `json:"forecastFor"`
	PredictedCPU         float64            `json:"predictedCpu"`
	PredictedMemory      float64            `json:"predictedMemory"`
	PredictedRequestRate float64            `json:"predictedRequestRate"`
	CurrentReplicas      int                `json:"currentReplicas"`
	RecommendedReplicas  int                `json:"recommendedReplicas"`
	Confidence           float64            `json:"confidence"`
	Reason               string             `json:"reason"`
	DetectedPattern      *TimeSeriesPattern `json:"detectedPattern,omitempty"`
	UpcomingEvents       []ScalingEvent     `json:"upcomingEvents"`
}
