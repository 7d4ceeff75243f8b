package dashboard

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/internal/gateway"
	"github.com/aristath/alphabeta/internal/modules/returns"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Defaults are the widget values of a new session.
type Defaults struct {
	Benchmark string
	Asset     string
	Start     civil.Date
	MinDate   civil.Date
}

// Manager is the directory of live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	gw       gateway.Gateway
	pipeline *returns.Pipeline
	defaults Defaults
	clock    func() time.Time
	log      zerolog.Logger
}

// NewManager creates a session directory backed by the gateway.
func NewManager(gw gateway.Gateway, defaults Defaults, log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		gw:       gw,
		pipeline: returns.NewPipeline(log),
		defaults: defaults,
		clock:    time.Now,
		log:      log.With().Str("component", "dashboard").Logger(),
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Create starts a new idle session with the default widget values. Both
// date ranges default to the start date through today.
func (m *Manager) Create() (*Session, error) {
	m.mu.RLock()
	clock := m.clock
	m.mu.RUnlock()

	today := civil.DateOf(clock())
	start := m.defaults.Start
	if start.After(today) {
		start = today
	}

	in := Inputs{
		Benchmark:  m.defaults.Benchmark,
		Asset:      m.defaults.Asset,
		FetchRange: domain.DateRange{Start: start, End: today},
	}
	if err := in.Validate(m.defaults.MinDate, today); err != nil {
		return nil, fmt.Errorf("invalid session defaults: %w", err)
	}

	id := uuid.New().String()
	s, err := newSession(id, sessionDeps{
		gw:       m.gw,
		pipeline: m.pipeline,
		minDate:  m.defaults.MinDate,
		clock:    clock,
		log:      m.log,
	}, in, in.FetchRange)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.log.Info().Str("session", id).Int("sessions", count).Msg("Session created")
	return s, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete removes a session and ends its subscriptions.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.close()
	m.log.Info().Str("session", id).Msg("Session deleted")
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the live session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SweepIdle removes sessions without activity for longer than ttl. Sessions
// with a running update cycle are kept.
func (m *Manager) SweepIdle(ttl time.Duration) int {
	m.mu.Lock()
	cutoff := m.clock().Add(-ttl)
	removed := make([]*Session, 0)
	for id, s := range m.sessions {
		if s.Busy() || !s.LastActive().Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed = append(removed, s)
	}
	m.mu.Unlock()

	for _, s := range removed {
		s.close()
		m.log.Debug().Str("session", s.ID()).Msg("Idle session removed")
	}
	return len(removed)
}
