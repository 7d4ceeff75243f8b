package testing

import (
	"context"
	"sync"

	"github.com/aristath/alphabeta/internal/gateway"
)

// MockGateway is an in-memory gateway.Gateway for testing
type MockGateway struct {
	mu        sync.Mutex
	prices    *gateway.Frame
	dividends *gateway.Frame
	splits    *gateway.Frame
	errs      map[gateway.Category]error
	queries   []gateway.Query
	block     chan struct{}
}

// NewMockGateway creates a mock gateway with empty frames
func NewMockGateway() *MockGateway {
	return &MockGateway{
		prices:    PriceFrame(),
		dividends: DividendFrame(),
		splits:    SplitFrame(),
		errs:      make(map[gateway.Category]error),
	}
}

// SetPrices sets the price frame to return
func (m *MockGateway) SetPrices(f *gateway.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = f
}

// SetDividends sets the dividend frame to return
func (m *MockGateway) SetDividends(f *gateway.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dividends = f
}

// SetSplits sets the split frame to return
func (m *MockGateway) SetSplits(f *gateway.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.splits = f
}

// SetError makes requests of the category fail; nil clears it
func (m *MockGateway) SetError(cat gateway.Category, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, cat)
		return
	}
	m.errs[cat] = err
}

// Block makes every request wait until the returned func is called or the
// request context ends
func (m *MockGateway) Block() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.block = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Queries returns every query received, in order
func (m *MockGateway) Queries() []gateway.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.Query, len(m.queries))
	copy(out, m.queries)
	return out
}

// Labels implements gateway.Gateway
func (m *MockGateway) Labels() gateway.Labels {
	return FixtureLabels
}

// FetchPrices implements gateway.Gateway
func (m *MockGateway) FetchPrices(ctx context.Context, q gateway.Query) (*gateway.Frame, error) {
	return m.fetch(ctx, q, gateway.CategoryPrices)
}

// FetchDividends implements gateway.Gateway
func (m *MockGateway) FetchDividends(ctx context.Context, q gateway.Query) (*gateway.Frame, error) {
	return m.fetch(ctx, q, gateway.CategoryDividends)
}

// FetchSplits implements gateway.Gateway
func (m *MockGateway) FetchSplits(ctx context.Context, q gateway.Query) (*gateway.Frame, error) {
	return m.fetch(ctx, q, gateway.CategorySplits)
}

func (m *MockGateway) fetch(ctx context.Context, q gateway.Query, cat gateway.Category) (*gateway.Frame, error) {
	m.mu.Lock()
	if cat == gateway.CategoryPrices {
		m.queries = append(m.queries, q)
	}
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[cat]; err != nil {
		return nil, err
	}
	switch cat {
	case gateway.CategoryPrices:
		return m.prices, nil
	case gateway.CategoryDividends:
		return m.dividends, nil
	default:
		return m.splits, nil
	}
}
