// Package dashboard is the interaction controller: per-session widget state,
// the stage graph that decides what re-runs, and the outputs each stage
// produces.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/internal/flow"
	"github.com/aristath/alphabeta/internal/gateway"
	"github.com/aristath/alphabeta/internal/modules/regression"
	"github.com/aristath/alphabeta/internal/modules/returns"
	"github.com/rs/zerolog"
)

// State is the position of a session in its update cycle.
type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateHistoryReady State = "history-ready"
	StateReturnsReady State = "returns-ready"
	StatePlotReady    State = "plot-ready"
)

// Graph node ids.
const (
	NodeQuery      = "query"
	NodeBenchmark  = "benchmark"
	NodeAsset      = "asset"
	NodeFetchRange = "fetch-range"
	NodePlotRange  = "plot-range"

	StageHistory = "history"
	StageReturns = "returns"
	StagePlot    = "plot"
)

var (
	// ErrNoHistory is returned when returns are computed before any history exists.
	ErrNoHistory = errors.New("no price history")
	// ErrNotReady is returned when an output has not been produced yet.
	ErrNotReady = errors.New("output not ready")
)

const subscriberBuffer = 8

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID          string            `json:"id"`
	State       State             `json:"state"`
	Inputs      Inputs            `json:"inputs"`
	PlotRange   domain.DateRange  `json:"plot_range"`
	PlotBounds  domain.DateRange  `json:"plot_bounds"`
	Errors      map[string]string `json:"errors,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	HistoryRows int               `json:"history_rows"`
	ReturnDates int               `json:"return_dates"`
	LastRun     *flow.Report      `json:"last_run,omitempty"`
	Busy        bool              `json:"busy"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Session is one dashboard: its widgets, its stage graph and the outputs.
// Update cycles of a session never overlap.
type Session struct {
	id       string
	gw       gateway.Gateway
	pipeline *returns.Pipeline
	graph    *flow.Graph
	minDate  civil.Date
	clock    func() time.Time
	log      zerolog.Logger

	cycle sync.Mutex
	busy  atomic.Bool

	mu         sync.RWMutex
	inputs     Inputs
	plotRange  domain.DateRange
	state      State
	history    *domain.History
	table      *domain.ReturnTable
	figure     *regression.Figure
	errs       map[string]error
	lastRun    *flow.Report
	lastActive time.Time
	updatedAt  time.Time

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

type sessionDeps struct {
	gw       gateway.Gateway
	pipeline *returns.Pipeline
	minDate  civil.Date
	clock    func() time.Time
	log      zerolog.Logger
}

func newSession(id string, deps sessionDeps, in Inputs, plotRange domain.DateRange) (*Session, error) {
	now := deps.clock()
	s := &Session{
		id:         id,
		gw:         deps.gw,
		pipeline:   deps.pipeline,
		minDate:    deps.minDate,
		clock:      deps.clock,
		log:        deps.log.With().Str("session", id).Logger(),
		inputs:     in,
		plotRange:  plotRange,
		state:      StateIdle,
		errs:       make(map[string]error),
		lastActive: now,
		updatedAt:  now,
		subs:       make(map[chan Snapshot]struct{}),
	}

	g, err := s.buildGraph()
	if err != nil {
		return nil, err
	}
	s.graph = g
	return s, nil
}

func (s *Session) buildGraph() (*flow.Graph, error) {
	g := flow.NewGraph(s.log)
	for _, id := range []string{NodeQuery, NodeBenchmark, NodeAsset, NodeFetchRange, NodePlotRange} {
		if err := g.Input(id); err != nil {
			return nil, err
		}
	}

	stages := []*flow.Stage{
		{
			ID:       StageHistory,
			Triggers: []string{NodeQuery},
			Reads:    []string{NodeBenchmark, NodeAsset, NodeFetchRange},
			Run:      s.runHistory,
		},
		{
			ID:       StageReturns,
			Triggers: []string{StageHistory},
			Run:      s.runReturns,
		},
		{
			ID:       StagePlot,
			Triggers: []string{StageReturns, NodePlotRange},
			Reads:    []string{NodeBenchmark, NodeAsset},
			Run:      s.runPlot,
		},
	}
	for _, st := range stages {
		if err := g.Register(st); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Busy reports whether an update cycle is running.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// LastActive returns the time of the last interaction.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		Inputs:     s.inputs,
		PlotRange:  s.plotRange,
		PlotBounds: PlotBounds(s.inputs.FetchRange),
		Busy:       s.busy.Load(),
		UpdatedAt:  s.updatedAt,
		LastRun:    s.lastRun,
	}
	if len(s.errs) > 0 {
		snap.Errors = make(map[string]string, len(s.errs))
		for stage, err := range s.errs {
			snap.Errors[stage] = err.Error()
		}
	}
	if s.history != nil {
		snap.HistoryRows = len(s.history.Rows)
	}
	if s.table != nil {
		snap.ReturnDates = s.table.Len()
	}
	if s.figure != nil {
		snap.Summary = s.figure.Summary
	}
	return snap
}

// Inputs returns the current query widgets.
func (s *Session) Inputs() Inputs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputs
}

// History returns the last built price history.
func (s *Session) History() (domain.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.history == nil {
		return domain.History{}, ErrNotReady
	}
	return *s.history, nil
}

// Returns returns the last computed return table.
func (s *Session) Returns() (domain.ReturnTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return domain.ReturnTable{}, ErrNotReady
	}
	return *s.table, nil
}

// Figure returns the last rendered plot, or the error of the last render
// if it failed.
func (s *Session) Figure() (regression.Figure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.errs[StagePlot]; err != nil {
		return regression.Figure{}, err
	}
	if s.figure == nil {
		return regression.Figure{}, ErrNotReady
	}
	return *s.figure, nil
}

// Rolling computes trailing-window beta and correlation of the selected
// instruments over the plot range.
func (s *Session) Rolling(window int) ([]regression.RollingPoint, error) {
	s.mu.RLock()
	table, in, pr := s.table, s.inputs, s.plotRange
	s.mu.RUnlock()

	if table == nil {
		return nil, ErrNotReady
	}
	return regression.Rolling(regression.FilterRange(*table, pr.Start, pr.End), in.Benchmark, in.Asset, window)
}

// SetInputs replaces the query widgets. Nothing re-runs until the next query.
func (s *Session) SetInputs(ctx context.Context, in Inputs) (flow.Report, error) {
	in = in.Normalize()
	if err := in.Validate(s.minDate, s.today()); err != nil {
		return flow.Report{}, err
	}

	s.mu.Lock()
	changed := make([]string, 0, 3)
	if in.Benchmark != s.inputs.Benchmark {
		changed = append(changed, NodeBenchmark)
	}
	if in.Asset != s.inputs.Asset {
		changed = append(changed, NodeAsset)
	}
	if in.FetchRange != s.inputs.FetchRange {
		changed = append(changed, NodeFetchRange)
	}
	s.inputs = in
	s.touchLocked()
	s.mu.Unlock()

	return s.propagate(ctx, changed...), nil
}

// SetPlotRange replaces the plot range and re-renders the plot.
func (s *Session) SetPlotRange(ctx context.Context, r domain.DateRange) (flow.Report, error) {
	if err := ValidatePlotRange(r); err != nil {
		return flow.Report{}, err
	}

	s.mu.Lock()
	s.plotRange = r
	s.touchLocked()
	s.mu.Unlock()

	return s.propagate(ctx, NodePlotRange), nil
}

// Query fetches fresh data and re-runs every stage.
func (s *Session) Query(ctx context.Context) flow.Report {
	return s.propagate(ctx, NodeQuery)
}

func (s *Session) propagate(ctx context.Context, changed ...string) flow.Report {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	s.busy.Store(true)
	report := s.graph.Propagate(ctx, changed...)
	s.busy.Store(false)

	s.mu.Lock()
	if len(report.Ran) > 0 || report.Err != nil {
		s.lastRun = &report
	}
	s.touchLocked()
	s.mu.Unlock()

	s.publish()
	return report
}

func (s *Session) today() civil.Date {
	return civil.DateOf(s.clock())
}

func (s *Session) touchLocked() {
	now := s.clock()
	s.lastActive = now
	s.updatedAt = now
}

func (s *Session) fail(stage string, err error, restore State) {
	s.mu.Lock()
	s.errs[stage] = err
	s.state = restore
	s.updatedAt = s.clock()
	s.mu.Unlock()
}

func (s *Session) runHistory(ctx context.Context) error {
	s.mu.Lock()
	in := s.inputs
	prev := s.state
	s.state = StateFetching
	s.mu.Unlock()
	s.publish()

	q := gateway.Query{
		Instruments: in.Instruments(),
		Start:       in.FetchRange.Start,
		End:         in.FetchRange.End,
	}

	raw, err := gateway.FetchAll(ctx, s.gw, q)
	if err != nil {
		s.fail(StageHistory, err, prev)
		return err
	}

	history, err := s.pipeline.History(raw)
	if err != nil {
		s.fail(StageHistory, err, prev)
		return err
	}

	s.mu.Lock()
	s.history = &history
	s.state = StateHistoryReady
	delete(s.errs, StageHistory)
	s.updatedAt = s.clock()
	s.mu.Unlock()
	return nil
}

func (s *Session) runReturns(ctx context.Context) error {
	s.mu.RLock()
	history := s.history
	prev := s.state
	s.mu.RUnlock()

	if history == nil {
		s.fail(StageReturns, ErrNoHistory, prev)
		return ErrNoHistory
	}

	table, err := s.pipeline.Returns(*history)
	if err != nil {
		s.fail(StageReturns, err, prev)
		return err
	}

	s.mu.Lock()
	s.table = &table
	s.state = StateReturnsReady
	delete(s.errs, StageReturns)
	s.updatedAt = s.clock()
	s.mu.Unlock()
	return nil
}

func (s *Session) runPlot(ctx context.Context) error {
	s.mu.RLock()
	table, in, pr, prev := s.table, s.inputs, s.plotRange, s.state
	s.mu.RUnlock()

	// Nothing to plot before the first query.
	if table == nil {
		return nil
	}

	fig, err := regression.Render(*table, in.Benchmark, in.Asset, pr.Start, pr.End)
	if err != nil {
		// The previous figure no longer describes the table or the range.
		if prev == StatePlotReady {
			prev = StateReturnsReady
		}
		s.mu.Lock()
		s.figure = nil
		s.errs[StagePlot] = err
		s.state = prev
		s.updatedAt = s.clock()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.figure = &fig
	s.state = StatePlotReady
	delete(s.errs, StagePlot)
	s.updatedAt = s.clock()
	s.mu.Unlock()

	s.log.Debug().Str("summary", fig.Summary).Int("points", fig.Fit.N).Msg("Plot rendered")
	return nil
}

// Subscribe returns a channel of snapshots published after every change.
// Slow subscribers miss snapshots rather than block the session.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.subMu.Unlock()
		})
	}
}

func (s *Session) publish() {
	snap := s.Snapshot()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// close ends every subscription.
func (s *Session) close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}
