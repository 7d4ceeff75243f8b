// Package returns rebuilds unadjusted price history from provider tables and
// turns it into log total returns.
package returns

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/internal/gateway"
)

// ErrDataIntegrity is returned when the joined history still has missing or
// unusable values.
var ErrDataIntegrity = errors.New("data integrity violation")

// SchemaError is returned when a provider table lacks a required column.
type SchemaError struct {
	Table  gateway.Category
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s table has no %q column", e.Table, e.Column)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// parseDate reduces a provider timestamp to its calendar date.
func parseDate(c gateway.Cell) (civil.Date, bool) {
	s := strings.TrimSpace(c.Text())
	if s == "" {
		return civil.Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.Date{}, false
}

// DropStats counts rows removed while normalizing each table.
type DropStats struct {
	Prices    int
	Dividends int
	Splits    int
}

func columns(f *gateway.Frame, table gateway.Category, labels ...string) ([]int, error) {
	idx := make([]int, len(labels))
	for i, label := range labels {
		idx[i] = f.Index(label)
		if idx[i] < 0 {
			return nil, &SchemaError{Table: table, Column: label}
		}
	}
	return idx, nil
}

// Prices binds a price frame to typed rows, dropping incomplete rows.
func Prices(f *gateway.Frame, l gateway.Labels) ([]domain.PriceRow, int, error) {
	idx, err := columns(f, gateway.CategoryPrices, l.Instrument, l.PriceDate, l.Open, l.High, l.Low, l.Close)
	if err != nil {
		return nil, 0, err
	}

	rows := make([]domain.PriceRow, 0, f.Len())
	dropped := 0
	for r := 0; r < f.Len(); r++ {
		inst := strings.TrimSpace(f.Cell(r, idx[0]).Text())
		date, okDate := parseDate(f.Cell(r, idx[1]))
		open, okO := f.Cell(r, idx[2]).Float()
		high, okH := f.Cell(r, idx[3]).Float()
		low, okL := f.Cell(r, idx[4]).Float()
		closePrice, okC := f.Cell(r, idx[5]).Float()
		if inst == "" || !okDate || !okO || !okH || !okL || !okC {
			dropped++
			continue
		}
		rows = append(rows, domain.PriceRow{
			Instrument: inst,
			Date:       date,
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closePrice,
		})
	}
	return rows, dropped, nil
}

// Dividends binds a dividend frame to typed rows. Incomplete rows and
// non-positive amounts are dropped.
func Dividends(f *gateway.Frame, l gateway.Labels) ([]domain.DividendRow, int, error) {
	idx, err := columns(f, gateway.CategoryDividends, l.Instrument, l.DivDate, l.DivAmount, l.DivType, l.PayType)
	if err != nil {
		return nil, 0, err
	}

	rows := make([]domain.DividendRow, 0, f.Len())
	dropped := 0
	for r := 0; r < f.Len(); r++ {
		inst := strings.TrimSpace(f.Cell(r, idx[0]).Text())
		date, okDate := parseDate(f.Cell(r, idx[1]))
		amount, okAmt := f.Cell(r, idx[2]).Float()
		divType := f.Cell(r, idx[3])
		payType := f.Cell(r, idx[4])
		if inst == "" || !okDate || !okAmt || divType.IsNull() || payType.IsNull() || amount <= 0 {
			dropped++
			continue
		}
		rows = append(rows, domain.DividendRow{
			Instrument: inst,
			Date:       date,
			Amount:     amount,
			DivType:    divType.Text(),
			PayType:    payType.Text(),
		})
	}
	return rows, dropped, nil
}

// Splits binds a split frame to typed rows, dropping incomplete rows.
func Splits(f *gateway.Frame, l gateway.Labels) ([]domain.SplitRow, int, error) {
	idx, err := columns(f, gateway.CategorySplits, l.Instrument, l.SplitDate, l.SplitRatio)
	if err != nil {
		return nil, 0, err
	}

	rows := make([]domain.SplitRow, 0, f.Len())
	dropped := 0
	for r := 0; r < f.Len(); r++ {
		inst := strings.TrimSpace(f.Cell(r, idx[0]).Text())
		date, okDate := parseDate(f.Cell(r, idx[1]))
		ratio, okRatio := f.Cell(r, idx[2]).Float()
		if inst == "" || !okDate || !okRatio {
			dropped++
			continue
		}
		rows = append(rows, domain.SplitRow{Instrument: inst, Date: date, Ratio: ratio})
	}
	return rows, dropped, nil
}

type key struct {
	instrument string
	date       civil.Date
}

// joined is a history row under construction. Nil fields are missing.
type joined struct {
	key
	price *domain.PriceRow
	div   *float64
	split *float64
}

// outerJoin merges right values into left rows on key. Each match yields one
// row per right value; unmatched right keys yield rows without a price.
func outerJoin(left []joined, right []key, values []float64, set func(*joined, float64)) []joined {
	byKey := make(map[key][]float64, len(right))
	order := make([]key, 0, len(right))
	for i, k := range right {
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], values[i])
	}

	seen := make(map[key]bool, len(left))
	out := make([]joined, 0, len(left)+len(right))
	for _, row := range left {
		seen[row.key] = true
		matches, ok := byKey[row.key]
		if !ok {
			out = append(out, row)
			continue
		}
		for _, v := range matches {
			r := row
			set(&r, v)
			out = append(out, r)
		}
	}
	for _, k := range order {
		if seen[k] {
			continue
		}
		for _, v := range byKey[k] {
			r := joined{key: k}
			set(&r, v)
			out = append(out, r)
		}
	}
	return out
}

// NormalizeAndJoin builds the unadjusted price history: prices outer-joined
// with dividends and splits on (instrument, date), missing dividends as 0 and
// missing split ratios as 1. A row left without a price is ErrDataIntegrity.
func NormalizeAndJoin(raw gateway.RawTables) (domain.History, error) {
	h, _, err := normalizeAndJoin(raw)
	return h, err
}

func normalizeAndJoin(raw gateway.RawTables) (domain.History, DropStats, error) {
	var stats DropStats
	if raw.Prices == nil {
		return domain.History{}, stats, &SchemaError{Table: gateway.CategoryPrices, Column: raw.Labels.Close}
	}
	if raw.Dividends == nil {
		raw.Dividends = &gateway.Frame{}
	}
	if raw.Splits == nil {
		raw.Splits = &gateway.Frame{}
	}

	prices, dropped, err := Prices(raw.Prices, raw.Labels)
	if err != nil {
		return domain.History{}, stats, err
	}
	stats.Prices = dropped

	// An empty frame with no headers means the category had no events.
	var divs []domain.DividendRow
	if len(raw.Dividends.Headers) > 0 || raw.Dividends.Len() > 0 {
		if divs, stats.Dividends, err = Dividends(raw.Dividends, raw.Labels); err != nil {
			return domain.History{}, stats, err
		}
	}
	var splits []domain.SplitRow
	if len(raw.Splits.Headers) > 0 || raw.Splits.Len() > 0 {
		if splits, stats.Splits, err = Splits(raw.Splits, raw.Labels); err != nil {
			return domain.History{}, stats, err
		}
	}

	rows := make([]joined, len(prices))
	for i := range prices {
		rows[i] = joined{key: key{prices[i].Instrument, prices[i].Date}, price: &prices[i]}
	}

	divKeys := make([]key, len(divs))
	divAmts := make([]float64, len(divs))
	for i, d := range divs {
		divKeys[i] = key{d.Instrument, d.Date}
		divAmts[i] = d.Amount
	}
	rows = outerJoin(rows, divKeys, divAmts, func(r *joined, v float64) { r.div = &v })
	zero := 0.0
	for i := range rows {
		if rows[i].div == nil {
			rows[i].div = &zero
		}
	}

	splitKeys := make([]key, len(splits))
	splitRatios := make([]float64, len(splits))
	for i, s := range splits {
		splitKeys[i] = key{s.Instrument, s.Date}
		splitRatios[i] = s.Ratio
	}
	rows = outerJoin(rows, splitKeys, splitRatios, func(r *joined, v float64) { r.split = &v })
	one := 1.0
	for i := range rows {
		if rows[i].split == nil {
			rows[i].split = &one
		}
	}

	history := domain.History{Rows: make([]domain.HistoryRow, 0, len(rows))}
	for _, r := range rows {
		if r.price == nil {
			return domain.History{}, stats, fmt.Errorf("%w: %s has no price on %s", ErrDataIntegrity, r.instrument, r.date)
		}
		history.Rows = append(history.Rows, domain.HistoryRow{
			Instrument: r.instrument,
			Date:       r.date,
			Open:       r.price.Open,
			High:       r.price.High,
			Low:        r.price.Low,
			Close:      r.price.Close,
			DivAmt:     *r.div,
			SplitRto:   *r.split,
		})
	}

	sortHistory(history.Rows)
	return history, stats, nil
}

func sortHistory(rows []domain.HistoryRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Instrument != rows[j].Instrument {
			return rows[i].Instrument < rows[j].Instrument
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}
