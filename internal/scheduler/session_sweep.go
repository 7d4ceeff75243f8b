package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// SessionSweepJob drops idle dashboard sessions.
type SessionSweepJob struct {
	sweeper SessionSweeper
	ttl     time.Duration
	log     zerolog.Logger
}

// NewSessionSweepJob creates a sweep job for sessions idle longer than ttl.
func NewSessionSweepJob(sweeper SessionSweeper, ttl time.Duration, log zerolog.Logger) *SessionSweepJob {
	return &SessionSweepJob{
		sweeper: sweeper,
		ttl:     ttl,
		log:     log.With().Str("job", "session_sweep").Logger(),
	}
}

// Name returns the job name
func (j *SessionSweepJob) Name() string {
	return "session_sweep"
}

// Run executes the sweep
func (j *SessionSweepJob) Run() error {
	removed := j.sweeper.SweepIdle(j.ttl)
	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Int("remaining", j.sweeper.Count()).
			Msg("Idle sessions removed")
	}
	return nil
}
