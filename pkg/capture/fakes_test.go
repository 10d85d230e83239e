package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// manualScheduler queues ticks until the test fires them.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTick
}

type manualTick struct {
	fn       func()
	canceled atomic.Bool
}

func (s *manualScheduler) Next(fn func()) Cancel {
	t := &manualTick{fn: fn}
	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()
	return func() { t.canceled.Store(true) }
}

// Fire runs every queued tick that was not cancelled and returns how many ran.
func (s *manualScheduler) Fire() int {
	return s.fire(false)
}

// FireAll also runs cancelled ticks, as a timer that lost the race with
// its cancellation would.
func (s *manualScheduler) FireAll() int {
	return s.fire(true)
}

func (s *manualScheduler) fire(includeCanceled bool) int {
	s.mu.Lock()
	ticks := s.pending
	s.pending = nil
	s.mu.Unlock()

	n := 0
	for _, t := range ticks {
		if t.canceled.Load() && !includeCanceled {
			continue
		}
		t.fn()
		n++
	}
	return n
}

// Pending counts queued ticks that are still live.
func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.canceled.Load() {
			n++
		}
	}
	return n
}

// fakeSampler hands out a fixed frame once ready.
type fakeSampler struct {
	ready    atomic.Bool
	samples  atomic.Int32
	released atomic.Int32
	frame    []byte
}

func newFakeSampler(ready bool) *fakeSampler {
	s := &fakeSampler{frame: []byte{0xFF, 0xD8, 0xFF, 0xE0}}
	s.ready.Store(ready)
	return s
}

func (s *fakeSampler) Sample() ([]byte, bool) {
	s.samples.Add(1)
	if !s.ready.Load() {
		return nil, false
	}
	return s.frame, true
}

func (s *fakeSampler) Release() error {
	s.released.Add(1)
	return nil
}

type estimateResult struct {
	pose pose.Pose
	err  error
}

// pendingCall is one blocked Estimate waiting for the test to answer.
type pendingCall struct {
	ctx   context.Context
	image []byte
	reply chan estimateResult
}

// blockingEstimator blocks every Estimate until the test replies.
type blockingEstimator struct {
	calls  chan *pendingCall
	active atomic.Int32
	peak   atomic.Int32
}

func newBlockingEstimator() *blockingEstimator {
	return &blockingEstimator{calls: make(chan *pendingCall, 16)}
}

func (e *blockingEstimator) Estimate(ctx context.Context, image []byte) (pose.Pose, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	call := &pendingCall{ctx: ctx, image: image, reply: make(chan estimateResult, 1)}
	e.calls <- call
	r := <-call.reply
	return r.pose, r.err
}

// next waits for the loop to issue an Estimate.
func (e *blockingEstimator) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case c := <-e.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Estimate")
		return nil
	}
}

// none asserts that no Estimate is issued for a short while.
func (e *blockingEstimator) none(t *testing.T) {
	t.Helper()
	select {
	case <-e.calls:
		t.Fatal("unexpected Estimate call")
	case <-time.After(50 * time.Millisecond):
	}
}

var errBoom = errors.New("service unavailable")

func samplePose() pose.Pose {
	return pose.Pose{
		{Name: pose.Nose, X: 0.5, Y: 0.2, Score: 0.9},
		{Name: pose.LeftShoulder, X: 0.6, Y: 0.4, Score: 0.8},
	}
}

// fakeAcquirer returns a fresh fakeSampler per Acquire, or err.
type fakeAcquirer struct {
	mu      sync.Mutex
	err     error
	streams []*fakeSampler
}

func (a *fakeAcquirer) Acquire(ctx context.Context) (Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	s := newFakeSampler(true)
	a.streams = append(a.streams, s)
	return s, nil
}

func (a *fakeAcquirer) last() *fakeSampler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.streams) == 0 {
		return nil
	}
	return a.streams[len(a.streams)-1]
}
