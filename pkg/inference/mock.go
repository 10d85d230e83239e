package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Mock implements Estimator for testing.
type Mock struct {
	// EstimateFunc is called when Estimate is invoked.
	EstimateFunc func(ctx context.Context, image []byte) (pose.Pose, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method    string
	ImageSize int
	Time      time.Time
}

var _ Estimator = (*Mock)(nil)

// NewMock creates a new mock estimator that reports a standing figure.
func NewMock() *Mock {
	return &Mock{
		EstimateFunc: func(ctx context.Context, image []byte) (pose.Pose, error) {
			return StandingPose(), nil
		},
	}
}

// Estimate calls EstimateFunc and records the call.
func (m *Mock) Estimate(ctx context.Context, image []byte) (pose.Pose, error) {
	m.record("Estimate", len(image))
	if m.EstimateFunc != nil {
		return m.EstimateFunc(ctx, image)
	}
	return nil, WrapError("mock", ErrEmptyResponse)
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", 0)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, ImageSize: size, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a specific method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// StandingPose returns a plausible front-facing figure with every keypoint
// confidently detected.
func StandingPose() pose.Pose {
	return pose.Pose{
		{Name: pose.Nose, X: 0.50, Y: 0.15, Score: 0.95},
		{Name: pose.LeftEye, X: 0.53, Y: 0.12, Score: 0.92},
		{Name: pose.RightEye, X: 0.47, Y: 0.12, Score: 0.92},
		{Name: pose.LeftEar, X: 0.56, Y: 0.14, Score: 0.80},
		{Name: pose.RightEar, X: 0.44, Y: 0.14, Score: 0.80},
		{Name: pose.LeftShoulder, X: 0.62, Y: 0.30, Score: 0.90},
		{Name: pose.RightShoulder, X: 0.38, Y: 0.30, Score: 0.90},
		{Name: pose.LeftElbow, X: 0.68, Y: 0.45, Score: 0.85},
		{Name: pose.RightElbow, X: 0.32, Y: 0.45, Score: 0.85},
		{Name: pose.LeftWrist, X: 0.70, Y: 0.58, Score: 0.80},
		{Name: pose.RightWrist, X: 0.30, Y: 0.58, Score: 0.80},
		{Name: pose.LeftHip, X: 0.58, Y: 0.60, Score: 0.88},
		{Name: pose.RightHip, X: 0.42, Y: 0.60, Score: 0.88},
		{Name: pose.LeftKnee, X: 0.59, Y: 0.78, Score: 0.82},
		{Name: pose.RightKnee, X: 0.41, Y: 0.78, Score: 0.82},
		{Name: pose.LeftAnkle, X: 0.60, Y: 0.95, Score: 0.75},
		{Name: pose.RightAnkle, X: 0.40, Y: 0.95, Score: 0.75},
	}
}
