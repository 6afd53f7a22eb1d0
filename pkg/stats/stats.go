// Package stats holds the rolling-window statistics shared by every analysis
// engine. All functions are pure and total: empty input returns a documented
// default instead of panicking.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// slopeEpsilon is the smallest regression denominator treated as non-degenerate.
const slopeEpsilon = 0.001

// Mean returns the arithmetic mean, or 0 for an empty window.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Variance returns the population variance, or 0 for an empty window.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(values, nil)
	return variance
}

// StdDev returns the population standard deviation, or 0 for an empty window.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(values, nil)
	return std
}

// Percentile returns the nearest-rank percentile: index ceil(N*p/100)-1
// clamped to [0, N-1] over the sorted window. Empty input returns 0.
// The input slice is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	// Empirical quantiles return the first element whose cumulative rank
	// reaches N*q, which is the nearest-rank definition.
	q := math.Min(math.Max(p/100, 0), 1)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

// Min returns the smallest value, or 0 for an empty window.
func Min(values []float64) float64 {
	min, _ := MinMax(values)
	return min
}

// Max returns the largest value, or 0 for an empty window.
func Max(values []float64) float64 {
	_, max := MinMax(values)
	return max
}

// MinMax returns both extremes in one pass, (0, 0) for an empty window.
func MinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return floats.Min(values), floats.Max(values)
}

// EMA returns the exponential moving average seeded with the first element,
// then ema = alpha*x + (1-alpha)*prev. Empty input returns 0.
func EMA(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// Slope returns the ordinary-least-squares slope of values against their
// index. It is 0 when fewer than two points exist or the denominator is
// degenerate.
func Slope(values []float64) float64 {
	return Regress(values).Slope
}

// ZScore returns (value-mean)/stddev, and exactly 0 when stddev is 0.
func ZScore(value, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return (value - mean) / stddev
}

// CoefficientOfVariation returns stddev/mean, or 0 when the mean is not positive.
func CoefficientOfVariation(values []float64) float64 {
	mean := Mean(values)
	if mean <= 0 {
		return 0
	}
	return StdDev(values) / mean
}

// Regression is the result of a least-squares fit y = Intercept + Slope*x
// with x being the sample index.
type Regression struct {
	Slope     float64
	Intercept float64
	RSquared  float64
	N         int
}

// Regress fits values against their index with the closed-form OLS solution:
// slope = (N*Sxy - Sx*Sy) / (N*Sxx - Sx^2).
// Denominators below slopeEpsilon yield a flat fit, which
// stat.LinearRegression does not guard against.
func Regress(values []float64) Regression {
	n := len(values)
	if n < 2 {
		return Regression{Intercept: Mean(values), N: n}
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	fn := float64(n)
	denominator := fn*sumX2 - sumX*sumX
	if math.Abs(denominator) < slopeEpsilon {
		return Regression{Intercept: sumY / fn, N: n}
	}

	slope := (fn*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / fn

	// R² = 1 - SSres/SStot
	meanY := sumY / fn
	var ssRes, ssTot float64
	for i, y := range values {
		predicted := intercept + slope*float64(i)
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - meanY) * (y - meanY)
	}
	var r2 float64
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	return Regression{Slope: slope, Intercept: intercept, RSquared: r2, N: n}
}

// Autocorrelation returns the Pearson autocorrelation of values at the given
// lag, or 0 when the window is shorter than lag+2 or has zero variance.
func Autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || n < lag+2 {
		return 0
	}
	mean := stat.Mean(values, nil)
	var num, den float64
	for i := 0; i < n; i++ {
		d := values[i] - mean
		den += d * d
		if i+lag < n {
			num += d * (values[i+lag] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Summary is a one-pass description of a window.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	P95    float64
	P99    float64
}

// Describe computes the Summary of a window.
func Describe(values []float64) Summary {
	min, max := MinMax(values)
	return Summary{
		Count:  len(values),
		Mean:   Mean(values),
		StdDev: StdDev(values),
		Min:    min,
		Max:    max,
		P95:    Percentile(values, 95),
		P99:    Percentile(values, 99),
	}
}

// Round2 rounds to two decimals, the precision of every monetary figure.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// StableCeil is math.Ceil after trimming floating-point noise below 1e-9, so
// 0.3*1.2*1000 ceils to 360 rather than 361.
func StableCeil(v float64) float64 {
	return math.Ceil(math.Round(v*1e9) / 1e9)
}
