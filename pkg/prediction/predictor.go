package prediction

import (
	"time"
)

// Forecast represents a predicted future value
type Forecast struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`

	// Bounds of the prediction interval
	LowerBound float64 `json:"lowerBound"`
	UpperBound float64 `json:"upperBound"`

	// HorizonIndex is how many periods ahead this forecast is (1 = next period)
	HorizonIndex int `json:"horizonIndex"`
}

// ForecastResult contains the complete smoothing output
type ForecastResult struct {
	Forecasts  []Forecast
	Parameters ModelParameters
	// Metrics are measured on the one-step errors after the seeding season
	Metrics ErrorMetrics
}

// ModelParameters contains the fitted smoothing parameters
type ModelParameters struct {
	Alpha          float64
	Beta           float64
	Gamma          float64
	SeasonalPeriod int
}

// ErrorMetrics contains in-sample accuracy metrics
type ErrorMetrics struct {
	MAE  float64
	RMSE float64
	// MAPE skips zero observations
	MAPE float64
}

// SmoothingConfig configures Holt-Winters smoothing
type SmoothingConfig struct {
	// SeasonalPeriod is the number of observations per season, 24 for hourly
	// data with daily seasonality
	SeasonalPeriod int

	// Smoothing parameters; any zero value triggers a grid search over all three
	Alpha float64
	Beta  float64
	Gamma float64

	// MinSeasons is the number of full seasons required to fit
	MinSeasons int

	// Z is the normal quantile of the prediction interval (1.96 for 95%)
	Z float64
}

// DefaultSmoothingConfig returns hourly data with daily seasonality and
// optimized parameters
func DefaultSmoothingConfig() SmoothingConfig {
	return SmoothingConfig{
		SeasonalPeriod: 24,
		MinSeasons:     2,
		Z:              1.96,
	}
}

// PeakForecast returns the maximum forecasted value
func (r *ForecastResult) PeakForecast() *Forecast {
	if len(r.Forecasts) == 0 {
		return nil
	}
	peak := &r.Forecasts[0]
	for i := range r.Forecasts {
		if r.Forecasts[i].Value > peak.Value {
			peak = &r.Forecasts[i]
		}
	}
	return peak
}
