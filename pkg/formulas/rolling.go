package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// RollingBeta calculates the beta of the asset on the benchmark over a
// trailing window of return observations. Inputs are aligned log returns;
// talib works on the simple returns of the compounded wealth paths. Element
// j covers returns j-window+1..j and is NaN until a full window exists.
func RollingBeta(benchmark, asset []float64, window int) []float64 {
	n := len(benchmark)
	if window < 2 || n != len(asset) || n < window {
		return nanSlice(n)
	}

	beta := talib.Beta(WealthIndex(benchmark), WealthIndex(asset), window)

	// beta is aligned with the wealth paths, which lead returns by one.
	out := nanSlice(n)
	for j := window - 1; j < n; j++ {
		out[j] = beta[j+1]
	}
	return out
}

// RollingCorrelation calculates the Pearson correlation of two aligned
// return series over a trailing window. Element j is NaN until a full
// window exists.
func RollingCorrelation(benchmark, asset []float64, window int) []float64 {
	n := len(benchmark)
	if window < 2 || n != len(asset) || n < window {
		return nanSlice(n)
	}

	correl := talib.Correl(benchmark, asset, window)

	out := nanSlice(n)
	for j := window - 1; j < n && j < len(correl); j++ {
		out[j] = correl[j]
	}
	return out
}
