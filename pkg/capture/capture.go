// Package capture runs the frame-capture / pose-inference cycle.
//
// A Loop repeatedly samples the latest camera frame, sends it to a pose
// estimator and publishes the result. Each cycle books the next tick only
// after it has fully resolved, so at most one estimate is ever in flight.
// A Controller owns the camera stream and starts and stops the Loop with it.
package capture

import (
	"context"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// FrameSampler returns an encoded snapshot of the most recent frame.
// ok is false while the source has not buffered a displayable frame yet.
type FrameSampler interface {
	Sample() (frame []byte, ok bool)
}

// PoseEstimator turns one encoded frame into a Pose.
type PoseEstimator interface {
	Estimate(ctx context.Context, image []byte) (pose.Pose, error)
}

// Cancel withdraws a scheduled tick. Calling it more than once is safe.
type Cancel func()

// Scheduler runs fn once on the next display frame.
// Next must not call fn synchronously.
type Scheduler interface {
	Next(fn func()) Cancel
}

// Stream is an acquired camera: a frame source that must be released.
type Stream interface {
	FrameSampler
	Release() error
}

// Acquirer opens the camera. Failures are returned unchanged to the caller
// of Controller.Start.
type Acquirer interface {
	Acquire(ctx context.Context) (Stream, error)
}
