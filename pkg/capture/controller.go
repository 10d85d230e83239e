package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Controller is the sole owner of the camera stream. It starts the loop
// only once the camera is acquired and releases the camera after the loop
// has stopped.
type Controller struct {
	acquirer Acquirer
	loop     *Loop
	logger   *slog.Logger

	mu      sync.RWMutex
	stream  Stream
	lastErr error
}

// NewController creates a controller for loop using acquirer to open the camera.
func NewController(acquirer Acquirer, loop *Loop, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		acquirer: acquirer,
		loop:     loop,
		logger:   logger.With("component", "capture.controller"),
	}
}

// Start acquires the camera and starts the loop. On acquisition failure the
// error is returned unchanged and the loop is not started. Starting while
// running does nothing.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}
	c.lastErr = nil

	stream, err := c.acquirer.Acquire(ctx)
	if err != nil {
		c.lastErr = err
		c.logger.Warn("camera acquisition failed", "error", err)
		return err
	}

	if err := c.loop.Start(stream); err != nil {
		c.lastErr = err
		if rerr := stream.Release(); rerr != nil {
			c.logger.Warn("camera release failed", "error", rerr)
		}
		return err
	}

	c.stream = stream
	c.logger.Info("camera started")
	return nil
}

// Stop halts the loop and then releases the camera. It is synchronous and
// idempotent.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}

	c.loop.Stop()
	err := c.stream.Release()
	c.stream = nil
	if err != nil {
		c.logger.Warn("camera release failed", "error", err)
		return err
	}
	c.logger.Info("camera stopped")
	return nil
}

// Running reports whether the camera is held and the loop is active.
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stream != nil
}

// Snapshot returns the loop state.
func (c *Controller) Snapshot() Snapshot {
	return c.loop.Snapshot()
}

// LatestPose returns the most recent pose, or nil.
func (c *Controller) LatestPose() pose.Pose {
	return c.loop.LatestPose()
}

// LastStartError returns the error of the most recent failed Start, if any.
func (c *Controller) LastStartError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Frame samples the live stream for preview. ok is false when stopped or
// when no frame is buffered yet.
func (c *Controller) Frame() ([]byte, bool) {
	c.mu.RLock()
	s := c.stream
	c.mu.RUnlock()
	if s == nil {
		return nil, false
	}
	return s.Sample()
}

// Close stops everything. It satisfies io.Closer.
func (c *Controller) Close() error {
	return c.Stop()
}
