package prediction

import (
	"math"
	"time"

	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
	"intelligent-resource-analyzer/pkg/timepattern"
)

const (
	modelHoltWinters = "Holt-Winters Exponential Smoothing"
	modelLinear      = "Linear Trend Projection"
	modelBaseline    = "Baseline Estimate (No Historical Data)"

	costConfidenceLevel = 95.0
	costTrendBand       = 5.0
	costWarningPercent  = 20.0

	baselineDailyCost = 10.0
	bytesPerGiB       = 1024 * 1024 * 1024
)

// ForecastCost projects the daily spend of a service over the next days,
// falling back to CostForecastDays when days is not positive. Usage is priced
// per wall-clock hour at the hourly rates. Two days of hourly buckets or more
// are smoothed with Holt-Winters; shorter histories are projected linearly.
func (f *Forecaster) ForecastCost(service string, history []models.Snapshot, days int) models.CostForecast {
	if days < 1 {
		days = f.cfg.CostForecastDays
	}

	series := timepattern.HourlyBuckets(history, f.patterns.Location(), f.hourlyCost)
	if len(series) == 0 {
		klog.V(3).Infof("No usage to price for %s, returning baseline cost forecast", service)
		return f.defaultCostForecast(service, days)
	}

	projection := f.projectDaily(series, days)
	daily, model := projection.daily, projection.model

	hourlyMean := stats.Mean(series)
	baseline := hourlyMean * 24 * float64(days)
	var predicted float64
	for _, d := range daily {
		predicted += d
	}
	var change float64
	if baseline > 0 {
		change = (predicted - baseline) / baseline * 100
	}

	forecast := models.CostForecast{
		ServiceName:        service,
		GeneratedAt:        f.now(),
		DaysAhead:          days,
		DailyCosts:         roundAll(daily),
		UpperBound:         roundAll(projection.upper),
		LowerBound:         roundAll(projection.lower),
		ConfidenceLevel:    costConfidenceLevel,
		ModelType:          model,
		PeakHourlyCost:     stats.Round2(math.Max(0, projection.peak.Value)),
		PeakHoursAhead:     projection.peak.HorizonIndex,
		FitErrorPercent:    stats.Round2(projection.fit.MAPE),
		CurrentMonthlyCost: stats.Round2(hourlyMean * f.cost.HoursPerMonth),
		PredictedCost:      stats.Round2(predicted),
		Trend:              costTrend(change),
		PercentageChange:   stats.Round2(change),
		AccuracyScore:      70 + math.Min(25, float64(len(history))*0.5),
	}
	if change > costWarningPercent {
		forecast.Warning = "Cost increase exceeds 20% threshold"
	}

	klog.V(4).Infof("Cost forecast %s: %s over %d days, %.2f -> %.2f (%+.1f%%)",
		service, model, days, baseline, predicted, change)
	return forecast
}

// hourlyCost prices one sample as an hour of its CPU share and heap
func (f *Forecaster) hourlyCost(s models.Snapshot) (float64, bool) {
	if s.CPUPercent <= 0 && s.HeapUsedBytes <= 0 {
		return 0, false
	}
	cores := s.CPUPercent / 100
	gib := float64(s.HeapUsedBytes) / bytesPerGiB
	return cores*f.cost.CPUPerCoreHour + gib*f.cost.MemoryPerGBHour, true
}

// costProjection is the daily projection of an hourly cost series
type costProjection struct {
	daily, lower, upper []float64
	model               string

	// peak is the most expensive projected hour
	peak Forecast
	// fit is only measured for Holt-Winters
	fit ErrorMetrics
}

// projectDaily returns daily totals with their 95% bounds
func (f *Forecaster) projectDaily(series []float64, days int) costProjection {
	config := DefaultSmoothingConfig()
	if len(series) >= config.SeasonalPeriod*config.MinSeasons {
		hw := NewHoltWinters(config)
		if err := hw.Fit(series); err == nil {
			if result, err := hw.Predict(days*24, time.Time{}, time.Hour); err == nil {
				p := costProjection{model: modelHoltWinters, fit: result.Metrics}
				p.daily, p.lower, p.upper = sumDaily(result.Forecasts, days)
				if peak := result.PeakForecast(); peak != nil {
					p.peak = *peak
				}
				return p
			}
		}
	}

	reg := stats.Regress(series)
	sigma := stats.StdDev(series)
	n := len(series)

	p := costProjection{
		daily: make([]float64, days),
		lower: make([]float64, days),
		upper: make([]float64, days),
		model: modelLinear,
	}
	hourly := make([]Forecast, 0, days*24)
	for d := 0; d < days; d++ {
		var total float64
		for h := 0; h < 24; h++ {
			x := float64(n + d*24 + h)
			value := reg.Intercept + reg.Slope*x
			total += value
			hourly = append(hourly, Forecast{Value: math.Max(0, value), HorizonIndex: d*24 + h + 1})
		}
		total = math.Max(0, total)
		margin := 1.96 * sigma * math.Sqrt(24) * math.Sqrt(float64(d+1))
		p.daily[d] = total
		p.lower[d] = math.Max(0, total-margin)
		p.upper[d] = total + margin
	}
	if peak := (&ForecastResult{Forecasts: hourly}).PeakForecast(); peak != nil {
		p.peak = *peak
	}
	return p
}

func sumDaily(forecasts []Forecast, days int) (daily, lower, upper []float64) {
	daily = make([]float64, days)
	lower = make([]float64, days)
	upper = make([]float64, days)
	for i, fc := range forecasts {
		d := i / 24
		daily[d] += fc.Value
		lower[d] += fc.LowerBound
		upper[d] += fc.UpperBound
	}
	for d := range daily {
		daily[d] = math.Max(0, daily[d])
		lower[d] = math.Max(0, lower[d])
		upper[d] = math.Max(daily[d], upper[d])
	}
	return daily, lower, upper
}

func costTrend(change float64) models.Trend {
	switch {
	case change > costTrendBand:
		return models.TrendIncreasing
	case change < -costTrendBand:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func (f *Forecaster) defaultCostForecast(service string, days int) models.CostForecast {
	daily := make([]float64, days)
	lower := make([]float64, days)
	upper := make([]float64, days)
	for d := range daily {
		daily[d] = baselineDailyCost
		lower[d] = baselineDailyCost * 0.8
		upper[d] = baselineDailyCost * 1.2
	}
	return models.CostForecast{
		ServiceName:        service,
		GeneratedAt:        f.now(),
		DaysAhead:          days,
		DailyCosts:         daily,
		UpperBound:         upper,
		LowerBound:         lower,
		ConfidenceLevel:    costConfidenceLevel,
		ModelType:          modelBaseline,
		CurrentMonthlyCost: baselineDailyCost * 30,
		PredictedCost:      baselineDailyCost * float64(days),
		Trend:              models.TrendStable,
		AccuracyScore:      50,
		Warning:            "No historical data available - using baseline estimates",
	}
}

func roundAll(values []float64) []float64 {
	rounded := make([]float64, len(values))
	for i, v := range values {
		rounded[i] = stats.Round2(v)
	}
	return rounded
}
