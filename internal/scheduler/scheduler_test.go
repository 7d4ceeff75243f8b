package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

type fakeSweeper struct {
	mu      sync.Mutex
	ttls    []time.Duration
	removed int
	count   int
}

func (f *fakeSweeper) SweepIdle(ttl time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls = append(f.ttls, ttl)
	return f.removed
}

func (f *fakeSweeper) Count() int { return f.count }

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 10m", &countingJob{}))
	require.NoError(t, s.AddJob("*/5 * * * *", &countingJob{}))
	assert.Equal(t, 2, s.Entries())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
	assert.Error(t, s.AddJob("0 */5 * * * *", &countingJob{}), "seconds field is not accepted")
}

type panickingJob struct {
	runs atomic.Int32
}

func (j *panickingJob) Run() error {
	j.runs.Add(1)
	panic("boom")
}

func (j *panickingJob) Name() string { return "panicking" }

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	s := New(zerolog.Nop())
	failing := &countingJob{err: errors.New("boom")}
	panicking := &panickingJob{}
	require.NoError(t, s.AddJob("@every 1s", failing))
	require.NoError(t, s.AddJob("@every 1s", panicking))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return failing.runs.Load() > 1 && panicking.runs.Load() > 1
	}, 4*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestSessionSweepJob(t *testing.T) {
	sweeper := &fakeSweeper{removed: 2, count: 1}
	job := NewSessionSweepJob(sweeper, time.Hour, zerolog.Nop())

	assert.Equal(t, "session_sweep", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []time.Duration{time.Hour}, sweeper.ttls)
}
