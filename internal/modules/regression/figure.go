package regression

import (
	"math"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/pkg/formulas"
)

// LinePoint is an endpoint of the fitted line.
type LinePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SeriesStats describes one side of the fitted sample.
type SeriesStats struct {
	Instrument           string  `json:"instrument"`
	N                    int     `json:"n"`
	Mean                 float64 `json:"mean"`
	StdDev               float64 `json:"std_dev"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
}

// Figure is a scatter of returns with the fitted trend line.
type Figure struct {
	XTitle         string       `json:"x_title"`
	YTitle         string       `json:"y_title"`
	Points         []Point      `json:"points"`
	Line           [2]LinePoint `json:"line"`
	Summary        string       `json:"summary"`
	Fit            Result       `json:"fit"`
	BenchmarkStats SeriesStats  `json:"benchmark_stats"`
	AssetStats     SeriesStats  `json:"asset_stats"`
}

func newSeriesStats(instrument string, returns []float64) SeriesStats {
	return SeriesStats{
		Instrument:           instrument,
		N:                    len(returns),
		Mean:                 formulas.Mean(returns),
		StdDev:               formulas.StdDev(returns),
		AnnualizedVolatility: formulas.AnnualizedVolatility(returns),
	}
}

// NewFigure builds the scatter plot of a fit. The line spans the observed
// benchmark returns.
func NewFigure(r Result) Figure {
	minX, maxX := math.Inf(1), math.Inf(-1)
	xs := make([]float64, len(r.Points))
	ys := make([]float64, len(r.Points))
	for i, p := range r.Points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		xs[i], ys[i] = p.X, p.Y
	}
	if len(r.Points) == 0 {
		minX, maxX = 0, 0
	}

	return Figure{
		XTitle: r.Benchmark,
		YTitle: r.Asset,
		Points: r.Points,
		Line: [2]LinePoint{
			{X: minX, Y: r.Alpha + r.Beta*minX},
			{X: maxX, Y: r.Alpha + r.Beta*maxX},
		},
		Summary:        Summary(r),
		Fit:            r,
		BenchmarkStats: newSeriesStats(r.Benchmark, xs),
		AssetStats:     newSeriesStats(r.Asset, ys),
	}
}

// Render filters the table to the plot range and fits it.
func Render(table domain.ReturnTable, benchmark, asset string, start, end civil.Date) (Figure, error) {
	r, err := Fit(FilterRange(table, start, end), benchmark, asset)
	if err != nil {
		return Figure{}, err
	}
	return NewFigure(r), nil
}

// RollingPoint is the trailing-window statistics ending on a date.
type RollingPoint struct {
	Date        civil.Date `json:"date"`
	Beta        float64    `json:"beta"`
	Correlation float64    `json:"correlation"`
}

// Rolling computes trailing-window beta and correlation over the complete
// cases of the table. Dates without a full window are omitted.
func Rolling(table domain.ReturnTable, benchmark, asset string, window int) ([]RollingPoint, error) {
	points, err := CompleteCases(table, benchmark, asset)
	if err != nil {
		return nil, err
	}
	if window < 2 || len(points) < window {
		return nil, ErrInsufficientData
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}

	betas := formulas.RollingBeta(xs, ys, window)
	correls := formulas.RollingCorrelation(xs, ys, window)

	out := make([]RollingPoint, 0, len(points)-window+1)
	for j := window - 1; j < len(points); j++ {
		if math.IsNaN(betas[j]) || math.IsNaN(correls[j]) {
			continue
		}
		out = append(out, RollingPoint{Date: points[j].Date, Beta: betas[j], Correlation: correls[j]})
	}
	return out, nil
}
