package camera

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-posecam/pkg/capture"
)

// Acquirer opens the webcam with the Manager's current configuration.
type Acquirer struct {
	manager *Manager
	logger  *slog.Logger
	open    func(Config, *slog.Logger) (*Webcam, error)
}

var _ capture.Acquirer = (*Acquirer)(nil)

// NewAcquirer creates an acquirer reading its settings from manager.
func NewAcquirer(manager *Manager, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{manager: manager, logger: logger, open: Open}
}

type openResult struct {
	webcam *Webcam
	err    error
}

// Acquire opens the camera. Open failures are *Error values; if ctx ends
// first its error is returned and a device that opens late is released.
func (a *Acquirer) Acquire(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := a.manager.GetConfig()

	done := make(chan openResult, 1)
	go func() {
		w, err := a.open(cfg, a.logger)
		done <- openResult{webcam: w, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.webcam, nil
	case <-ctx.Done():
		a.logger.Warn("camera open timed out", "device", cfg.Device, "error", ctx.Err())
		go a.releaseLate(done, cfg.Device)
		return nil, ctx.Err()
	}
}

// releaseLate waits out an abandoned open and frees the device if it came up.
func (a *Acquirer) releaseLate(done <-chan openResult, device string) {
	r := <-done
	if r.err != nil {
		return
	}
	if err := r.webcam.Release(); err != nil {
		a.logger.Warn("releasing late camera failed", "device", device, "error", err)
		return
	}
	a.logger.Info("released camera that opened after timeout", "device", device)
}
