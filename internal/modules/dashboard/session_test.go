package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/internal/gateway"
	"github.com/aristath/alphabeta/internal/modules/regression"
	"github.com/aristath/alphabeta/internal/modules/returns"
	testingpkg "github.com/aristath/alphabeta/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2017, time.February, 1, 15, 0, 0, 0, time.UTC)

func date(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2017, Month: m, Day: d}
}

func testDefaults() Defaults {
	return Defaults{
		Benchmark: "IVV",
		Asset:     "AAPL.O",
		Start:     date(time.January, 1),
		MinDate:   civil.Date{Year: 2015, Month: time.January, Day: 1},
	}
}

func newTestManager(t *testing.T) (*Manager, *testingpkg.MockGateway) {
	t.Helper()
	mock := testingpkg.NewMockGateway()
	mock.SetPrices(testingpkg.NewBenchmarkAssetPrices())

	m := NewManager(mock, testDefaults(), zerolog.Nop())
	m.SetClock(func() time.Time { return testNow })
	return m, mock
}

func newTestSession(t *testing.T) (*Session, *testingpkg.MockGateway) {
	t.Helper()
	m, mock := newTestManager(t)
	s, err := m.Create()
	require.NoError(t, err)
	return s, mock
}

func TestSession_Defaults(t *testing.T) {
	s, _ := newTestSession(t)
	snap := s.Snapshot()

	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, "IVV", snap.Inputs.Benchmark)
	assert.Equal(t, "AAPL.O", snap.Inputs.Asset)
	assert.Equal(t, domain.DateRange{Start: date(time.January, 1), End: date(time.February, 1)}, snap.Inputs.FetchRange)
	assert.Equal(t, snap.Inputs.FetchRange, snap.PlotRange)
	assert.Equal(t, date(time.January, 2), snap.PlotBounds.Start)
	assert.Equal(t, date(time.February, 1), snap.PlotBounds.End)
	assert.Empty(t, snap.Errors)
	assert.Empty(t, snap.Summary)

	_, err := s.History()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.Figure()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_QueryRunsEveryStage(t *testing.T) {
	s, mock := newTestSession(t)

	report := s.Query(context.Background())
	require.NoError(t, report.Err)
	assert.Equal(t, []string{StageHistory, StageReturns, StagePlot}, report.Ran)

	snap := s.Snapshot()
	assert.Equal(t, StatePlotReady, snap.State)
	assert.Equal(t, 10, snap.HistoryRows)
	assert.Equal(t, 4, snap.ReturnDates)
	assert.True(t, strings.HasPrefix(snap.Summary, "Alpha: "))
	assert.Contains(t, snap.Summary, " | Beta: ")
	assert.False(t, snap.Busy)

	queries := mock.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, []string{"IVV", "AAPL.O"}, queries[0].Instruments)
	assert.Equal(t, date(time.January, 1), queries[0].Start)
	assert.Equal(t, date(time.February, 1), queries[0].End)

	fig, err := s.Figure()
	require.NoError(t, err)
	assert.Equal(t, "IVV", fig.XTitle)
	assert.Equal(t, "AAPL.O", fig.YTitle)
	assert.Equal(t, 4, fig.Fit.N)
	assert.InDelta(t, 2.0, fig.Fit.Beta, 0.1)
}

func TestSession_FetchFailureKeepsPriorOutputs(t *testing.T) {
	s, mock := newTestSession(t)
	require.NoError(t, s.Query(context.Background()).Err)
	before, err := s.History()
	require.NoError(t, err)
	summary := s.Snapshot().Summary

	mock.SetError(gateway.CategoryDividends, errors.New("401 unauthorized"))
	report := s.Query(context.Background())

	require.Error(t, report.Err)
	assert.Equal(t, StageHistory, report.Failed)
	assert.Equal(t, []string{StageReturns, StagePlot}, report.Skipped)

	var fe *gateway.FetchError
	assert.True(t, errors.As(report.Err, &fe))

	snap := s.Snapshot()
	assert.Equal(t, StatePlotReady, snap.State, "state restored after a failed fetch")
	assert.Contains(t, snap.Errors[StageHistory], "401")
	assert.Equal(t, summary, snap.Summary)

	after, err := s.History()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// A successful retry clears the error.
	mock.SetError(gateway.CategoryDividends, nil)
	require.NoError(t, s.Query(context.Background()).Err)
	assert.Empty(t, s.Snapshot().Errors)
}

func TestSession_FirstFetchFailureStaysIdle(t *testing.T) {
	s, mock := newTestSession(t)
	mock.SetPrices(testingpkg.PriceFrame())

	report := s.Query(context.Background())
	assert.ErrorIs(t, report.Err, gateway.ErrEmptyResult)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestSession_DataIntegrityFailure(t *testing.T) {
	s, mock := newTestSession(t)
	mock.SetDividends(testingpkg.DividendFrame(testingpkg.DividendFixture{Instrument: "IVV", Date: "2017-01-07", Amount: 1}))

	report := s.Query(context.Background())
	assert.ErrorIs(t, report.Err, returns.ErrDataIntegrity)
	assert.Equal(t, StageHistory, report.Failed)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestSession_PlotRangeRerunsOnlyPlot(t *testing.T) {
	s, mock := newTestSession(t)
	require.NoError(t, s.Query(context.Background()).Err)

	report, err := s.SetPlotRange(context.Background(), domain.DateRange{Start: date(time.January, 4), End: date(time.January, 9)})
	require.NoError(t, err)
	require.NoError(t, report.Err)
	assert.Equal(t, []string{StagePlot}, report.Ran)
	assert.Len(t, mock.Queries(), 1, "no refetch")

	fig, err := s.Figure()
	require.NoError(t, err)
	assert.Equal(t, 4, fig.Fit.N)

	_, err = s.SetPlotRange(context.Background(), domain.DateRange{Start: date(time.January, 5), End: date(time.January, 6)})
	require.NoError(t, err)
	fig, err = s.Figure()
	require.NoError(t, err)
	assert.Equal(t, 2, fig.Fit.N)
}

func TestSession_PlotFailure(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Query(context.Background()).Err)
	require.NotEmpty(t, s.Snapshot().Summary)

	report, err := s.SetPlotRange(context.Background(), domain.DateRange{Start: date(time.January, 20), End: date(time.January, 25)})
	require.NoError(t, err)
	assert.Equal(t, StagePlot, report.Failed)
	assert.ErrorIs(t, report.Err, regression.ErrInsufficientData)

	snap := s.Snapshot()
	assert.Equal(t, StateReturnsReady, snap.State)
	assert.Empty(t, snap.Summary, "a failed render clears the alpha/beta text")
	assert.NotEmpty(t, snap.Errors[StagePlot])

	_, err = s.Figure()
	assert.ErrorIs(t, err, regression.ErrInsufficientData)

	_, err = s.Returns()
	assert.NoError(t, err, "upstream outputs survive a failed render")
}

func TestSession_PlotFailureAfterRefetchClearsFigure(t *testing.T) {
	s, mock := newTestSession(t)
	require.NoError(t, s.Query(context.Background()).Err)
	require.NotEmpty(t, s.Snapshot().Summary)

	// The asset now trades on a single session, so it has no returns.
	mock.SetPrices(testingpkg.PriceFrame(
		testingpkg.PriceFixture{Instrument: "IVV", Date: "2017-01-03", Close: 100},
		testingpkg.PriceFixture{Instrument: "IVV", Date: "2017-01-04", Close: 101},
		testingpkg.PriceFixture{Instrument: "IVV", Date: "2017-01-05", Close: 99.5},
		testingpkg.PriceFixture{Instrument: "AAPL.O", Date: "2017-01-03", Close: 50},
	))

	report := s.Query(context.Background())
	assert.Equal(t, []string{StageHistory, StageReturns}, report.Ran)
	assert.Equal(t, StagePlot, report.Failed)
	assert.ErrorIs(t, report.Err, regression.ErrColumnNotFound)

	snap := s.Snapshot()
	assert.Equal(t, StateReturnsReady, snap.State)
	assert.Equal(t, 2, snap.ReturnDates)
	assert.Empty(t, snap.Summary)

	_, err := s.Figure()
	assert.ErrorIs(t, err, regression.ErrColumnNotFound)
}

func TestSession_PlotFailureDuringQuery(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.SetPlotRange(context.Background(), domain.DateRange{Start: date(time.January, 20), End: date(time.January, 25)})
	require.NoError(t, err)

	report := s.Query(context.Background())
	assert.Equal(t, StagePlot, report.Failed)
	assert.Equal(t, []string{StageHistory, StageReturns}, report.Ran)
	assert.Equal(t, StateReturnsReady, s.Snapshot().State)
}

func TestSession_PlotRangeBeforeQuery(t *testing.T) {
	s, _ := newTestSession(t)

	report, err := s.SetPlotRange(context.Background(), domain.DateRange{Start: date(time.January, 3), End: date(time.January, 9)})
	require.NoError(t, err)
	require.NoError(t, report.Err)
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.Equal(t, date(time.January, 3), s.Snapshot().PlotRange.Start)
}

func TestSession_PlotRangeValidation(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.SetPlotRange(context.Background(), domain.DateRange{Start: date(time.January, 9), End: date(time.January, 3)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSession_SetInputsDoesNotFetch(t *testing.T) {
	s, mock := newTestSession(t)

	report, err := s.SetInputs(context.Background(), Inputs{
		Benchmark:  " SPY ",
		Asset:      "MSFT.O",
		FetchRange: domain.DateRange{Start: date(time.January, 3), End: date(time.January, 31)},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Ran)
	assert.Empty(t, mock.Queries())

	snap := s.Snapshot()
	assert.Equal(t, "SPY", snap.Inputs.Benchmark)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, date(time.January, 4), snap.PlotBounds.Start)

	s.Query(context.Background())
	queries := mock.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, []string{"SPY", "MSFT.O"}, queries[0].Instruments)
	assert.Equal(t, date(time.January, 3), queries[0].Start)
}

func TestSession_SetInputsValidation(t *testing.T) {
	s, _ := newTestSession(t)
	valid := s.Inputs()

	tests := []struct {
		name   string
		mutate func(in *Inputs)
	}{
		{name: "empty benchmark", mutate: func(in *Inputs) { in.Benchmark = "  " }},
		{name: "bad characters", mutate: func(in *Inputs) { in.Asset = "AAPL O;" }},
		{name: "reversed range", mutate: func(in *Inputs) {
			in.FetchRange = domain.DateRange{Start: date(time.January, 9), End: date(time.January, 3)}
		}},
		{name: "before min date", mutate: func(in *Inputs) {
			in.FetchRange.Start = civil.Date{Year: 2014, Month: time.December, Day: 31}
		}},
		{name: "after today", mutate: func(in *Inputs) { in.FetchRange.End = date(time.February, 2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := s.SetInputs(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Equal(t, valid, s.Inputs(), "rejected inputs are not applied")
}

func TestSession_SameInstrumentFetchedOnce(t *testing.T) {
	s, mock := newTestSession(t)
	in := s.Inputs()
	in.Asset = in.Benchmark
	_, err := s.SetInputs(context.Background(), in)
	require.NoError(t, err)

	report := s.Query(context.Background())
	require.NoError(t, report.Err)
	assert.Equal(t, []string{"IVV"}, mock.Queries()[0].Instruments)
}

func TestSession_Rolling(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Rolling(2)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, s.Query(context.Background()).Err)

	points, err := s.Rolling(2)
	require.NoError(t, err)
	assert.Len(t, points, 3)

	_, err = s.Rolling(10)
	assert.ErrorIs(t, err, regression.ErrInsufficientData)
}

func TestSession_Subscribe(t *testing.T) {
	s, _ := newTestSession(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Query(context.Background())

	var states []State
	timeout := time.After(time.Second)
	for len(states) == 0 || states[len(states)-1] != StatePlotReady {
		select {
		case snap := <-ch:
			states = append(states, snap.State)
		case <-timeout:
			t.Fatalf("no plot-ready snapshot, got %v", states)
		}
	}
	assert.Equal(t, StateFetching, states[0])

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestSession_CyclesDoNotOverlap(t *testing.T) {
	s, mock := newTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Query(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, mock.Queries(), 4)
	assert.Equal(t, StatePlotReady, s.Snapshot().State)
}

func TestSession_QueryHonoursContext(t *testing.T) {
	s, mock := newTestSession(t)
	release := mock.Block()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report := s.Query(ctx)
	assert.ErrorIs(t, report.Err, context.DeadlineExceeded)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}
