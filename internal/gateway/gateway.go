// Package gateway defines the market data gateway: the three category
// requests (prices, dividends, splits) and the provider tables they return.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"
)

// Category names one of the three provider requests.
type Category string

const (
	CategoryPrices    Category = "prices"
	CategoryDividends Category = "dividends"
	CategorySplits    Category = "splits"
)

// ErrEmptyResult is returned when the provider answers a price request with no rows.
var ErrEmptyResult = errors.New("empty result")

// FetchError wraps any failure of a gateway request.
type FetchError struct {
	Category Category
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Query selects instruments and an inclusive date range.
type Query struct {
	Instruments []string
	Start       civil.Date
	End         civil.Date
}

// Validate checks the query is usable upstream.
func (q Query) Validate() error {
	if len(q.Instruments) == 0 {
		return errors.New("query needs at least one instrument")
	}
	for _, inst := range q.Instruments {
		if inst == "" {
			return errors.New("query contains an empty instrument")
		}
	}
	if !q.Start.IsValid() || !q.End.IsValid() {
		return fmt.Errorf("query has invalid dates %s..%s", q.Start, q.End)
	}
	if q.Start.After(q.End) {
		return fmt.Errorf("query start %s is after end %s", q.Start, q.End)
	}
	return nil
}

// Labels maps canonical column names to the header labels a provider uses.
type Labels struct {
	Instrument string

	PriceDate string
	Open      string
	High      string
	Low       string
	Close     string

	DivDate   string
	DivAmount string
	DivType   string
	PayType   string

	SplitDate  string
	SplitRatio string
}

// Gateway fetches provider tables for a query.
type Gateway interface {
	FetchPrices(ctx context.Context, q Query) (*Frame, error)
	FetchDividends(ctx context.Context, q Query) (*Frame, error)
	FetchSplits(ctx context.Context, q Query) (*Frame, error)
	// Labels describes the header labels of the frames this gateway returns.
	Labels() Labels
}

// RawTables are the three provider frames of one fetch.
type RawTables struct {
	Prices    *Frame
	Dividends *Frame
	Splits    *Frame
	Labels    Labels
}

// FetchAll issues the three requests concurrently. Any failure fails the
// whole fetch; there are no partial results.
func FetchAll(ctx context.Context, g Gateway, q Query) (RawTables, error) {
	if err := q.Validate(); err != nil {
		return RawTables{}, &FetchError{Category: CategoryPrices, Err: err}
	}

	var raw RawTables
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		f, err := g.FetchPrices(gctx, q)
		if err != nil {
			return wrap(CategoryPrices, err)
		}
		if f.Len() == 0 {
			return &FetchError{Category: CategoryPrices, Err: ErrEmptyResult}
		}
		raw.Prices = f
		return nil
	})
	group.Go(func() error {
		f, err := g.FetchDividends(gctx, q)
		if err != nil {
			return wrap(CategoryDividends, err)
		}
		raw.Dividends = f
		return nil
	})
	group.Go(func() error {
		f, err := g.FetchSplits(gctx, q)
		if err != nil {
			return wrap(CategorySplits, err)
		}
		raw.Splits = f
		return nil
	})

	if err := group.Wait(); err != nil {
		return RawTables{}, err
	}

	if raw.Dividends == nil {
		raw.Dividends = &Frame{}
	}
	if raw.Splits == nil {
		raw.Splits = &Frame{}
	}
	raw.Labels = g.Labels()
	return raw, nil
}

func wrap(cat Category, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Category: cat, Err: err}
}
