package prediction

import (
	"fmt"
	"math"
	"time"
)

// HoltWinters is additive triple exponential smoothing:
//
//	Level:    L_t = α(Y_t - S_{t-m}) + (1-α)(L_{t-1} + T_{t-1})
//	Trend:    T_t = β(L_t - L_{t-1}) + (1-β)T_{t-1}
//	Seasonal: S_t = γ(Y_t - L_t) + (1-γ)S_{t-m}
//
//	Forecast: F_{t+h} = L_t + h*T_t + S_{t-m+h}
type HoltWinters struct {
	config SmoothingConfig

	level     float64
	trend     float64
	seasonals []float64

	alpha, beta, gamma float64

	data         []float64
	fittedValues []float64
	residuals    []float64
	fitted       bool
}

// NewHoltWinters creates a smoother with the given configuration
func NewHoltWinters(config SmoothingConfig) *HoltWinters {
	return &HoltWinters{
		config: config,
		alpha:  config.Alpha,
		beta:   config.Beta,
		gamma:  config.Gamma,
	}
}

// Fit trains the model on an evenly spaced series
func (hw *HoltWinters) Fit(data []float64) error {
	m := hw.config.SeasonalPeriod
	if m < 1 {
		return fmt.Errorf("seasonal period must be positive, got %d", m)
	}
	if minRequired := m * hw.config.MinSeasons; len(data) < minRequired || len(data) < 2*m {
		return fmt.Errorf("insufficient data: need at least %d points (%d seasons), got %d",
			max(minRequired, 2*m), max(hw.config.MinSeasons, 2), len(data))
	}

	hw.data = append([]float64(nil), data...)

	if hw.config.Alpha == 0 || hw.config.Beta == 0 || hw.config.Gamma == 0 {
		hw.optimizeParameters()
	}
	hw.fitModel()
	hw.fitted = true
	return nil
}

// initialState seeds the trend with the per-step change between the first two
// season means and the seasonals with the first season's deviations from that
// trend line. The level sits at the last point of the first season, so a
// purely linear series is fitted without error.
func (hw *HoltWinters) initialState() (level, trend float64, seasonals []float64) {
	m := hw.config.SeasonalPeriod
	var first, second float64
	for i := 0; i < m; i++ {
		first += hw.data[i]
		second += hw.data[m+i]
	}
	mean := first / float64(m)
	trend = (second/float64(m) - mean) / float64(m)
	mid := float64(m-1) / 2

	seasonals = make([]float64, m)
	for i := 0; i < m; i++ {
		seasonals[i] = hw.data[i] - (mean + trend*(float64(i)-mid))
	}
	level = mean + trend*mid
	return level, trend, seasonals
}

// run applies the smoothing equations from the second season on and returns
// the final state and the sum of squared one-step errors
func (hw *HoltWinters) run(alpha, beta, gamma float64, record bool) (level, trend float64, seasonals []float64, sse float64) {
	m := hw.config.SeasonalPeriod
	level, trend, seasonals = hw.initialState()

	for t := m; t < len(hw.data); t++ {
		idx := t % m
		forecast := level + trend + seasonals[idx]
		e := hw.data[t] - forecast
		sse += e * e
		if record {
			hw.fittedValues[t] = forecast
			hw.residuals[t] = e
		}

		prevLevel := level
		level = alpha*(hw.data[t]-seasonals[idx]) + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
		seasonals[idx] = gamma*(hw.data[t]-level) + (1-gamma)*seasonals[idx]
	}
	return level, trend, seasonals, sse
}

// optimizeParameters finds the smoothing parameters with the lowest SSE by
// grid search. Ties keep the first candidate, so the result is deterministic.
func (hw *HoltWinters) optimizeParameters() {
	best := math.MaxFloat64
	hw.alpha, hw.beta, hw.gamma = 0.2, 0.1, 0.1

	for a := 1; a <= 9; a++ {
		for b := 0; b < 10; b++ {
			for g := 0; g < 10; g++ {
				alpha := float64(a) / 10
				beta := 0.01 + float64(b)*0.05
				gamma := 0.01 + float64(g)*0.05
				if _, _, _, sse := hw.run(alpha, beta, gamma, false); sse < best {
					best = sse
					hw.alpha, hw.beta, hw.gamma = alpha, beta, gamma
				}
			}
		}
	}
}

func (hw *HoltWinters) fitModel() {
	n := len(hw.data)
	hw.fittedValues = make([]float64, n)
	hw.residuals = make([]float64, n)

	// The first season only seeds the state
	level, trend, seasonals := hw.initialState()
	m := hw.config.SeasonalPeriod
	for t := 0; t < m; t++ {
		hw.fittedValues[t] = level + trend*float64(t-m+1) + seasonals[t]
		hw.residuals[t] = hw.data[t] - hw.fittedValues[t]
	}

	hw.level, hw.trend, hw.seasonals, _ = hw.run(hw.alpha, hw.beta, hw.gamma, true)
}

// Predict generates forecasts for horizons periods after the last
// observation. Timestamps start at last + interval when last is non-zero.
func (hw *HoltWinters) Predict(horizons int, last time.Time, interval time.Duration) (*ForecastResult, error) {
	if !hw.fitted {
		return nil, fmt.Errorf("model not fitted: call Fit() first")
	}
	if horizons < 1 {
		return nil, fmt.Errorf("horizons must be at least 1, got %d", horizons)
	}

	m := hw.config.SeasonalPeriod
	n := len(hw.data)
	stdErr := hw.residualStdErr()

	forecasts := make([]Forecast, horizons)
	for h := 1; h <= horizons; h++ {
		value := hw.level + float64(h)*hw.trend + hw.seasonals[(n+h-1)%m]
		// Standard error grows with the square root of the horizon
		width := hw.config.Z * stdErr * math.Sqrt(float64(h))

		var ts time.Time
		if !last.IsZero() {
			ts = last.Add(time.Duration(h) * interval)
		}
		forecasts[h-1] = Forecast{
			Timestamp:    ts,
			Value:        value,
			LowerBound:   value - width,
			UpperBound:   value + width,
			HorizonIndex: h,
		}
	}

	return &ForecastResult{
		Forecasts: forecasts,
		Parameters: ModelParameters{
			Alpha:          hw.alpha,
			Beta:           hw.beta,
			Gamma:          hw.gamma,
			SeasonalPeriod: m,
		},
		Metrics: hw.errorMetrics(),
	}, nil
}

// residualStdErr is the standard error of the one-step residuals after the
// seeding season, with three degrees of freedom spent on the parameters
func (hw *HoltWinters) residualStdErr() float64 {
	residuals := hw.residuals[hw.config.SeasonalPeriod:]
	if len(residuals) < 2 {
		return 0
	}
	var sumSq float64
	for _, r := range residuals {
		sumSq += r * r
	}
	df := float64(len(residuals) - 3)
	if df < 1 {
		df = 1
	}
	return math.Sqrt(sumSq / df)
}

func (hw *HoltWinters) errorMetrics() ErrorMetrics {
	residuals := hw.residuals[hw.config.SeasonalPeriod:]
	if len(residuals) == 0 {
		return ErrorMetrics{}
	}

	var sumAbs, sumSq, sumAPE float64
	valid := 0
	for i, r := range residuals {
		sumAbs += math.Abs(r)
		sumSq += r * r
		if actual := hw.data[hw.config.SeasonalPeriod+i]; actual != 0 {
			sumAPE += math.Abs(r) / math.Abs(actual)
			valid++
		}
	}

	n := float64(len(residuals))
	metrics := ErrorMetrics{
		MAE:  sumAbs / n,
		RMSE: math.Sqrt(sumSq / n),
	}
	if valid > 0 {
		metrics.MAPE = sumAPE / float64(valid) * 100
	}
	return metrics
}

// Level returns the current level component
func (hw *HoltWinters) Level() float64 { return hw.level }

// Trend returns the current per-period trend component
func (hw *HoltWinters) Trend() float64 { return hw.trend }

// IsFitted returns whether the model has been fitted
func (hw *HoltWinters) IsFitted() bool { return hw.fitted }
