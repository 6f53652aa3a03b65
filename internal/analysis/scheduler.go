package analysis

import "time"

// DefaultUpdateInterval is the minimum wall-clock gap between analysis runs.
const DefaultUpdateInterval = 5 * time.Minute

// Scheduler gates how often the full analysis pipeline may run.
// Single-writer state: the engine both queries and advances it from the
// ingest loop, so no locking is needed.
type Scheduler struct {
	interval   time.Duration
	lastUpdate time.Time // zero until the first successful run
}

// NewScheduler creates a scheduler with the given update interval.
// A non-positive interval falls back to DefaultUpdateInterval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return &Scheduler{interval: interval}
}

// ShouldRun reports whether the gate is open at now: true on the first call
// ever, or once interval has elapsed since the last completed run. A false
// result is a valid "not yet" signal, not an error.
func (s *Scheduler) ShouldRun(now time.Time) bool {
	if s.lastUpdate.IsZero() {
		return true
	}
	return now.Sub(s.lastUpdate) >= s.interval
}

// MarkRun records a successful analysis completion at now. Failed attempts
// must not advance the gate.
func (s *Scheduler) MarkRun(now time.Time) {
	s.lastUpdate = now
}

// Interval returns the configured update interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
