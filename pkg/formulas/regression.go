package formulas

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// ErrDegenerate is returned when a regression has too few points or no
// variance in the regressor.
var ErrDegenerate = errors.New("degenerate regression input")

// OLSFit is a simple linear regression y = Alpha + Beta*x.
type OLSFit struct {
	Alpha    float64
	Beta     float64
	RSquared float64
}

// OLS fits y on x with an intercept by ordinary least squares.
func OLS(x, y []float64) (OLSFit, error) {
	if len(x) != len(y) || len(x) < 2 {
		return OLSFit{}, ErrDegenerate
	}
	if Variance(x) == 0 {
		return OLSFit{}, ErrDegenerate
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, alpha, beta)
	if isNaN(r2) {
		// Constant y is fitted exactly.
		r2 = 1
	}
	return OLSFit{Alpha: alpha, Beta: beta, RSquared: r2}, nil
}
