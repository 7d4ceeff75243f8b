// Package flow is a small dependency graph of recomputation stages.
//
// Nodes are either inputs (values set from outside) or stages (computed
// values). A stage re-runs when one of its triggers changes. It may also read
// other nodes without being triggered by them. Stages must be registered after
// every node they reference, so the registration order is a topological
// order and the graph cannot contain cycles.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrUnknownNode is returned when a node id has not been declared.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateNode is returned when a node id is declared twice.
	ErrDuplicateNode = errors.New("duplicate node")
)

// Stage is a computed node.
type Stage struct {
	ID string
	// Triggers are the nodes whose change re-runs this stage.
	Triggers []string
	// Reads are nodes the stage reads without being re-run by them.
	Reads []string
	Run   func(ctx context.Context) error
}

// Report describes one propagation.
type Report struct {
	Ran     []string `json:"ran"`
	Failed  string   `json:"failed,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
	Err     error    `json:"-"`
}

// Graph holds inputs and stages in registration order.
type Graph struct {
	mu     sync.RWMutex
	inputs map[string]bool
	stages map[string]*Stage
	order  []string
	log    zerolog.Logger
}

// NewGraph creates an empty graph.
func NewGraph(log zerolog.Logger) *Graph {
	return &Graph{
		inputs: make(map[string]bool),
		stages: make(map[string]*Stage),
		log:    log.With().Str("component", "flow").Logger(),
	}
}

// Input declares an input node.
func (g *Graph) Input(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.exists(id) {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	g.inputs[id] = true
	return nil
}

// Register adds a stage. Every trigger and read must already be declared.
func (g *Graph) Register(s *Stage) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s.ID == "" || s.Run == nil {
		return fmt.Errorf("stage needs an id and a run function")
	}
	if g.exists(s.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, s.ID)
	}
	for _, ref := range append(append([]string{}, s.Triggers...), s.Reads...) {
		if !g.exists(ref) {
			return fmt.Errorf("%w: stage %s references %s", ErrUnknownNode, s.ID, ref)
		}
	}

	g.stages[s.ID] = s
	g.order = append(g.order, s.ID)
	return nil
}

// exists must be called with the lock held.
func (g *Graph) exists(id string) bool {
	return g.inputs[id] || g.stages[id] != nil
}

// dependents returns the stages directly triggered by a node. It must be
// called with the lock held.
func (g *Graph) dependents(id string) []string {
	out := make([]string, 0)
	for _, sid := range g.order {
		for _, trig := range g.stages[sid].Triggers {
			if trig == id {
				out = append(out, sid)
				break
			}
		}
	}
	return out
}

// plan returns, in topological order, every stage transitively triggered by
// the changed nodes. The changed nodes themselves are not included.
func (g *Graph) plan(changed []string) ([]string, error) {
	dirty := make(map[string]bool)
	queue := make([]string, 0, len(changed))
	for _, id := range changed {
		if !g.exists(id) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents(id) {
			if !dirty[dep] {
				dirty[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	out := make([]string, 0, len(dirty))
	for _, sid := range g.order {
		if dirty[sid] {
			out = append(out, sid)
		}
	}
	return out, nil
}

// Propagate re-runs the stages triggered by the changed nodes in
// topological order. A failed stage stops every stage downstream of it;
// those are reported as skipped.
func (g *Graph) Propagate(ctx context.Context, changed ...string) Report {
	g.mu.RLock()
	planned, err := g.plan(changed)
	stages := make([]*Stage, len(planned))
	for i, id := range planned {
		stages[i] = g.stages[id]
	}
	g.mu.RUnlock()

	if err != nil {
		return Report{Err: err}
	}

	report := Report{Ran: make([]string, 0, len(stages))}
	blocked := make(map[string]bool)

	for _, s := range stages {
		if isBlocked(s, blocked) {
			blocked[s.ID] = true
			report.Skipped = append(report.Skipped, s.ID)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			blocked[s.ID] = true
			report.Skipped = append(report.Skipped, s.ID)
			if report.Err == nil {
				report.Err = ctxErr
			}
			continue
		}

		g.log.Debug().Str("stage", s.ID).Msg("Running stage")
		if runErr := s.Run(ctx); runErr != nil {
			g.log.Warn().Err(runErr).Str("stage", s.ID).Msg("Stage failed")
			blocked[s.ID] = true
			if report.Err == nil {
				report.Failed = s.ID
				report.Err = runErr
			}
			continue
		}
		report.Ran = append(report.Ran, s.ID)
	}

	return report
}

func isBlocked(s *Stage, blocked map[string]bool) bool {
	for _, trig := range s.Triggers {
		if blocked[trig] {
			return true
		}
	}
	return false
}
