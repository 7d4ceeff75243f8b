// Package testing provides gateway mocks and provider table fixtures for tests.
package testing

import (
	"github.com/aristath/alphabeta/internal/gateway"
)

// FixtureLabels are the header labels used by every fixture frame. They match
// the Eikon display names.
var FixtureLabels = gateway.Labels{
	Instrument: "Instrument",

	PriceDate: "Date",
	Open:      "Open Price",
	High:      "High Price",
	Low:       "Low Price",
	Close:     "Close Price",

	DivDate:   "Dividend Ex Date",
	DivAmount: "Gross Dividend Amount",
	DivType:   "Dividend Type",
	PayType:   "Dividend Payment Type",

	SplitDate:  "Capital Change Effective Date",
	SplitRatio: "Adjustment Factor",
}

// PriceFixture is one price row of a fixture frame.
type PriceFixture struct {
	Instrument string
	Date       string
	Close      float64
}

// DividendFixture is one dividend row of a fixture frame.
type DividendFixture struct {
	Instrument string
	Date       string
	Amount     float64
}

// SplitFixture is one split row of a fixture frame.
type SplitFixture struct {
	Instrument string
	Date       string
	Ratio      float64
}

// PriceFrame builds a price frame. Open, high and low are derived from the close.
func PriceFrame(rows ...PriceFixture) *gateway.Frame {
	l := FixtureLabels
	f := &gateway.Frame{Headers: []string{l.Instrument, l.Open, l.High, l.Low, l.Close, l.PriceDate}}
	for _, r := range rows {
		f.Rows = append(f.Rows, []gateway.Cell{
			gateway.StringCell(r.Instrument),
			gateway.NumberCell(r.Close * 0.99),
			gateway.NumberCell(r.Close * 1.01),
			gateway.NumberCell(r.Close * 0.98),
			gateway.NumberCell(r.Close),
			gateway.StringCell(r.Date),
		})
	}
	return f
}

// DividendFrame builds a dividend frame of quarterly cash dividends.
func DividendFrame(rows ...DividendFixture) *gateway.Frame {
	l := FixtureLabels
	f := &gateway.Frame{Headers: []string{l.Instrument, l.DivDate, l.DivAmount, l.DivType, l.PayType}}
	for _, r := range rows {
		f.Rows = append(f.Rows, []gateway.Cell{
			gateway.StringCell(r.Instrument),
			gateway.StringCell(r.Date),
			gateway.NumberCell(r.Amount),
			gateway.StringCell("Quarterly"),
			gateway.StringCell("Cash"),
		})
	}
	return f
}

// SplitFrame builds a split frame.
func SplitFrame(rows ...SplitFixture) *gateway.Frame {
	l := FixtureLabels
	f := &gateway.Frame{Headers: []string{l.Instrument, l.SplitDate, l.SplitRatio}}
	for _, r := range rows {
		f.Rows = append(f.Rows, []gateway.Cell{
			gateway.StringCell(r.Instrument),
			gateway.StringCell(r.Date),
			gateway.NumberCell(r.Ratio),
		})
	}
	return f
}

// NewBenchmarkAssetPrices returns five sessions for IVV and AAPL.O in which
// AAPL.O moves by exactly twice the IVV simple return each day.
func NewBenchmarkAssetPrices() *gateway.Frame {
	ivv := []float64{100, 101, 99.5, 102, 103}
	rows := make([]PriceFixture, 0, 2*len(ivv))
	dates := []string{"2017-01-03", "2017-01-04", "2017-01-05", "2017-01-06", "2017-01-09"}

	aapl := 50.0
	for i, c := range ivv {
		if i > 0 {
			aapl *= 1 + 2*(c/ivv[i-1]-1)
		}
		rows = append(rows,
			PriceFixture{Instrument: "IVV", Date: dates[i], Close: c},
			PriceFixture{Instrument: "AAPL.O", Date: dates[i], Close: aapl},
		)
	}
	return PriceFrame(rows...)
}
