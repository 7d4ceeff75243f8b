package scheduler

import "time"

// SessionSweeper removes dashboard sessions idle for longer than ttl and
// reports how many were removed.
type SessionSweeper interface {
	SweepIdle(ttl time.Duration) int
	Count() int
}
