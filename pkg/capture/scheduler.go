package capture

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Frame pacing.
const (
	DefaultFrameInterval = 33 * time.Millisecond
	MinFrameInterval     = 16 * time.Millisecond
)

// FrameScheduler fires ticks at a fixed frame interval. It stands in for a
// display refresh callback on hosts that have none.
type FrameScheduler struct {
	clock    clock.Clock
	interval time.Duration
}

var _ Scheduler = (*FrameScheduler)(nil)

// NewFrameScheduler creates a scheduler. Intervals below MinFrameInterval
// are raised to it.
func NewFrameScheduler(interval time.Duration) *FrameScheduler {
	return NewFrameSchedulerWithClock(clock.New(), interval)
}

// NewFrameSchedulerWithClock is NewFrameScheduler with an injectable clock.
func NewFrameSchedulerWithClock(c clock.Clock, interval time.Duration) *FrameScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if interval < MinFrameInterval {
		interval = MinFrameInterval
	}
	return &FrameScheduler{clock: c, interval: interval}
}

// Interval returns the delay between a Next call and its tick.
func (s *FrameScheduler) Interval() time.Duration {
	return s.interval
}

// Next runs fn once, one frame interval from now.
func (s *FrameScheduler) Next(fn func()) Cancel {
	t := s.clock.AfterFunc(s.interval, fn)
	return func() { t.Stop() }
}
