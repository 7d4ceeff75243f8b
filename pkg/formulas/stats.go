// Package formulas holds the numeric building blocks of the return and
// regression calculations.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(252)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// LogTotalReturn is the log return between two sessions including the
// dividend paid on the later one and the split effective on the earlier one.
//
//	ln((close + div) / (prevClose * prevSplit))
func LogTotalReturn(prevClose, prevSplit, close, div float64) float64 {
	return math.Log((close + div) / (prevClose * prevSplit))
}

// WealthIndex compounds log returns into a value path starting at 1.
// The result has one more element than logReturns.
func WealthIndex(logReturns []float64) []float64 {
	out := make([]float64, len(logReturns)+1)
	out[0] = 1
	for i, r := range logReturns {
		out[i+1] = out[i] * math.Exp(r)
	}
	return out
}

func isNaN(f float64) bool {
	return math.IsNaN(f)
}
