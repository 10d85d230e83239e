package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Phase is where the loop is within a cycle.
type Phase string

const (
	// PhaseStopped: not running. Initial phase and the phase after Stop.
	PhaseStopped Phase = "stopped"
	// PhaseIdle: running, first tick booked.
	PhaseIdle Phase = "idle"
	// PhaseSampling: a tick is reading the latest frame.
	PhaseSampling Phase = "sampling"
	// PhaseAwaitingInference: one estimate is in flight.
	PhaseAwaitingInference Phase = "awaiting_inference"
	// PhaseRescheduling: the cycle resolved and the next tick is booked.
	PhaseRescheduling Phase = "rescheduling"
)

// ErrNoSampler is returned by Start when no frame source is given.
var ErrNoSampler = errors.New("capture: frame sampler required")

// Snapshot is a copy of the loop state. LastPose and LastError are never
// both set.
type Snapshot struct {
	SessionID string    `json:"session_id,omitempty"`
	Running   bool      `json:"running"`
	InFlight  bool      `json:"in_flight"`
	Phase     Phase     `json:"phase"`
	LastPose  pose.Pose `json:"last_pose"`
	LastError string    `json:"last_error,omitempty"`

	// Totals since the loop was created.
	Cycles   uint64 `json:"cycles"`
	Failures uint64 `json:"failures"`
	Skipped  uint64 `json:"skipped"`
	Stale    uint64 `json:"stale"`

	// Seq increases with every published change.
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) { lp.logger = l }
}

// WithOnUpdate registers a hook that receives state changes in Seq order.
// It is called outside the loop lock, one call at a time, and must not
// block for long.
func WithOnUpdate(fn func(Snapshot)) LoopOption {
	return func(lp *Loop) { lp.onUpdate = fn }
}

// WithErrorText sets how failures are rendered into LastError.
func WithErrorText(fn func(error) string) LoopOption {
	return func(lp *Loop) { lp.errorText = fn }
}

// Loop is the self-rescheduling capture/inference cycle.
type Loop struct {
	estimator PoseEstimator
	scheduler Scheduler
	logger    *slog.Logger
	onUpdate  func(Snapshot)
	errorText func(error) string

	mu        sync.Mutex
	running   bool
	inFlight  bool
	lastPose  pose.Pose
	lastError string
	phase     Phase

	// epoch identifies the current session; ticks and results carry the
	// epoch they were issued under and are dropped when it has moved on.
	epoch      uint64
	sessionID  string
	sampler    FrameSampler
	cancelTick Cancel
	cancelCall context.CancelFunc
	callCtx    context.Context

	cycles, failures, skipped, stale uint64
	seq                              uint64
	updatedAt                        time.Time

	// pubMu orders hook calls; published is the last Seq handed out.
	pubMu     sync.Mutex
	published uint64
}

// NewLoop creates a stopped loop.
func NewLoop(est PoseEstimator, sched Scheduler, opts ...LoopOption) *Loop {
	l := &Loop{
		estimator: est,
		scheduler: sched,
		logger:    slog.Default(),
		errorText: func(err error) string { return err.Error() },
		phase:     PhaseStopped,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "capture.loop")
	return l
}

// Start begins a new session reading from sampler. It clears the previous
// pose and error. Starting a running loop does nothing.
func (l *Loop) Start(sampler FrameSampler) error {
	if sampler == nil {
		return ErrNoSampler
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.inFlight = false
	l.lastPose = nil
	l.lastError = ""
	l.phase = PhaseIdle
	l.epoch++
	l.sessionID = uuid.NewString()
	l.sampler = sampler
	l.callCtx, l.cancelCall = context.WithCancel(context.Background())
	l.scheduleLocked(l.epoch)
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.Info("capture loop started", "session", snap.SessionID)
	l.publish(snap)
	return nil
}

// Stop ends the session: the pending tick is cancelled, the in-flight
// estimate is abandoned and the state is reset. Stopping a stopped loop
// does nothing.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	session := l.sessionID
	l.running = false
	l.epoch++
	if l.cancelTick != nil {
		l.cancelTick()
		l.cancelTick = nil
	}
	if l.cancelCall != nil {
		l.cancelCall()
		l.cancelCall = nil
	}
	l.callCtx = nil
	l.inFlight = false
	l.lastPose = nil
	l.lastError = ""
	l.phase = PhaseStopped
	l.sessionID = ""
	l.sampler = nil
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.Info("capture loop stopped", "session", session)
	l.publish(snap)
}

// Running reports whether a session is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Snapshot returns a copy of the current state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyLocked()
}

// LatestPose returns the last successful pose, or nil.
func (l *Loop) LatestPose() pose.Pose {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastPose.Clone()
}

// tick is one scheduled cycle.
func (l *Loop) tick(epoch uint64) {
	l.mu.Lock()
	if !l.current(epoch) {
		l.mu.Unlock()
		return
	}
	l.cancelTick = nil
	if l.inFlight {
		// Never issue a second request; try again next frame.
		l.scheduleLocked(epoch)
		l.mu.Unlock()
		return
	}
	l.phase = PhaseSampling
	sampler := l.sampler
	l.mu.Unlock()

	frame, ok := sampler.Sample()

	l.mu.Lock()
	if !l.current(epoch) {
		l.mu.Unlock()
		return
	}
	if !ok || len(frame) == 0 {
		l.skipped++
		l.phase = PhaseRescheduling
		l.scheduleLocked(epoch)
		l.mu.Unlock()
		l.logger.Debug("frame not ready, waiting")
		return
	}
	l.inFlight = true
	l.phase = PhaseAwaitingInference
	ctx := l.callCtx
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.publish(snap)
	go l.estimate(ctx, epoch, frame)
}

func (l *Loop) estimate(ctx context.Context, epoch uint64, frame []byte) {
	start := time.Now()
	p, err := l.safeEstimate(ctx, frame)
	l.resolve(epoch, p, err, time.Since(start))
}

// safeEstimate converts an estimator panic into a failed cycle so the
// in-flight flag is always cleared.
func (l *Loop) safeEstimate(ctx context.Context, frame []byte) (p pose.Pose, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("capture: estimator panic: %v", r)
		}
	}()
	return l.estimator.Estimate(ctx, frame)
}

// resolve publishes one estimate outcome and books the next tick.
func (l *Loop) resolve(epoch uint64, p pose.Pose, err error, latency time.Duration) {
	l.mu.Lock()
	if !l.current(epoch) {
		l.stale++
		l.mu.Unlock()
		l.logger.Debug("discarding result from ended session", "error", err)
		return
	}

	l.inFlight = false
	l.cycles++
	if err != nil {
		l.failures++
		l.lastPose = nil
		l.lastError = l.errorText(err)
	} else {
		if p == nil {
			p = pose.Pose{}
		}
		l.lastPose = p
		l.lastError = ""
	}
	l.phase = PhaseRescheduling
	l.scheduleLocked(epoch)
	snap := l.snapshotLocked()
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("pose estimation failed",
			"session", snap.SessionID,
			"error", err,
			"latency_ms", latency.Milliseconds(),
		)
	} else {
		l.logger.Debug("pose estimated",
			"session", snap.SessionID,
			"keypoints", len(p),
			"latency_ms", latency.Milliseconds(),
		)
	}
	l.publish(snap)
}

// current reports whether work issued under epoch still belongs to the
// live session. Caller holds mu.
func (l *Loop) current(epoch uint64) bool {
	return l.running && epoch == l.epoch
}

// scheduleLocked books the next tick unless one is already booked, so a
// session never runs more than one chain of ticks. Caller holds mu.
func (l *Loop) scheduleLocked(epoch uint64) {
	if l.cancelTick != nil {
		return
	}
	l.cancelTick = l.scheduler.Next(func() { l.tick(epoch) })
}

// snapshotLocked copies the state and stamps a new sequence number.
// Caller holds mu.
func (l *Loop) snapshotLocked() Snapshot {
	l.seq++
	l.updatedAt = time.Now()
	return l.copyLocked()
}

func (l *Loop) copyLocked() Snapshot {
	return Snapshot{
		SessionID: l.sessionID,
		Running:   l.running,
		InFlight:  l.inFlight,
		Phase:     l.phase,
		LastPose:  l.lastPose.Clone(),
		LastError: l.lastError,
		Cycles:    l.cycles,
		Failures:  l.failures,
		Skipped:   l.skipped,
		Stale:     l.stale,
		Seq:       l.seq,
		UpdatedAt: l.updatedAt,
	}
}

// publish hands snap to the update hook. Snapshots are stamped under mu
// but published after it is released, so one that lost the race with a
// newer snapshot is dropped.
func (l *Loop) publish(snap Snapshot) {
	if l.onUpdate == nil {
		return
	}
	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	if snap.Seq <= l.published {
		l.logger.Debug("dropping superseded snapshot", "seq", snap.Seq, "published", l.published)
		return
	}
	l.published = snap.Seq
	l.onUpdate(snap)
}
