// Package regression fits the asset's returns on the benchmark's returns
// over a plot range and shapes the result for display.
package regression

import (
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/pkg/formulas"
)

var (
	// ErrColumnNotFound is returned when a selected instrument is not a column
	// of the return table.
	ErrColumnNotFound = errors.New("instrument not found in return table")
	// ErrInsufficientData is returned when fewer than two complete
	// observations exist or the benchmark has no variance.
	ErrInsufficientData = errors.New("insufficient data for regression")
)

// Point is one (benchmark, asset) return observation.
type Point struct {
	Date civil.Date `json:"date"`
	X    float64    `json:"x"`
	Y    float64    `json:"y"`
}

// Result is an OLS fit of asset return on benchmark return.
type Result struct {
	Benchmark   string  `json:"benchmark"`
	Asset       string  `json:"asset"`
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	RSquared    float64 `json:"r_squared"`
	Correlation float64 `json:"correlation"`
	N           int     `json:"n"`
	Points      []Point `json:"points"`
}

// FilterRange keeps the records dated within [start, end].
func FilterRange(table domain.ReturnTable, start, end civil.Date) domain.ReturnTable {
	r := domain.DateRange{Start: start, End: end}
	out := domain.ReturnTable{
		Instruments: table.Instruments,
		Records:     make([]domain.ReturnRecord, 0, len(table.Records)),
	}
	for _, rec := range table.Records {
		if r.Contains(rec.Date) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

// CompleteCases returns the observations where both instruments have a return.
func CompleteCases(table domain.ReturnTable, benchmark, asset string) ([]Point, error) {
	x := table.Column(benchmark)
	if x < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, benchmark)
	}
	y := table.Column(asset)
	if y < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, asset)
	}

	points := make([]Point, 0, table.Len())
	for i, rec := range table.Records {
		xv, okX := table.Value(i, x)
		yv, okY := table.Value(i, y)
		if okX && okY {
			points = append(points, Point{Date: rec.Date, X: xv, Y: yv})
		}
	}
	return points, nil
}

// Fit regresses the asset column on the benchmark column using complete
// cases only.
func Fit(table domain.ReturnTable, benchmark, asset string) (Result, error) {
	points, err := CompleteCases(table, benchmark, asset)
	if err != nil {
		return Result{}, err
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}

	fit, err := formulas.OLS(xs, ys)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %d observations of %s and %s", ErrInsufficientData, len(points), benchmark, asset)
	}

	corr := formulas.Correlation(xs, ys)
	if math.IsNaN(corr) {
		// Constant asset returns.
		corr = 0
	}

	return Result{
		Benchmark:   benchmark,
		Asset:       asset,
		Alpha:       fit.Alpha,
		Beta:        fit.Beta,
		RSquared:    fit.RSquared,
		Correlation: corr,
		N:           len(points),
		Points:      points,
	}, nil
}

// Summary renders the fit as "Alpha: {alpha} | Beta: {beta}".
func Summary(r Result) string {
	return fmt.Sprintf("Alpha: %v | Beta: %v", r.Alpha, r.Beta)
}
