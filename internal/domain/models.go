// Package domain provides the typed rows and tables that flow between the
// gateway, the return reconstruction pipeline and the regression adapter.
package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}

// Contains reports whether d falls within [Start, End].
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Validate checks both bounds are real dates and ordered.
func (r DateRange) Validate() error {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return fmt.Errorf("invalid date range %s..%s", r.Start, r.End)
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("start date %s is after end date %s", r.Start, r.End)
	}
	return nil
}

// PriceRow is one unadjusted daily OHLC session for an instrument.
type PriceRow struct {
	Instrument string     `json:"instrument"`
	Date       civil.Date `json:"date"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
}

// DividendRow is a cash distribution keyed by its ex-date.
type DividendRow struct {
	Instrument string     `json:"instrument"`
	Date       civil.Date `json:"date"`
	Amount     float64    `json:"div_amt"`
	DivType    string     `json:"div_type"`
	PayType    string     `json:"pay_type"`
}

// SplitRow is a multiplicative price adjustment effective on a date.
// A ratio of 1 means no adjustment.
type SplitRow struct {
	Instrument string     `json:"instrument"`
	Date       civil.Date `json:"date"`
	Ratio      float64    `json:"split_rto"`
}

// HistoryRow is one row of the unadjusted price history: a session price
// carrying the dividend and split factors effective on that date.
type HistoryRow struct {
	Instrument string     `json:"instrument"`
	Date       civil.Date `json:"date"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	DivAmt     float64    `json:"div_amt"`
	SplitRto   float64    `json:"split_rto"`
}

// History is the joined, fully populated unadjusted price history.
type History struct {
	Rows []HistoryRow `json:"rows"`
}

// Instruments returns the distinct instruments in first-seen order.
func (h History) Instruments() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, 2)
	for _, row := range h.Rows {
		if !seen[row.Instrument] {
			seen[row.Instrument] = true
			out = append(out, row.Instrument)
		}
	}
	return out
}

// ReturnRow is the log total return of an instrument between a session and
// the session before it.
type ReturnRow struct {
	Date       civil.Date `json:"date"`
	Instrument string     `json:"instrument"`
	Rtn        float64    `json:"rtn"`
}
