package camera

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// readRetryDelay is the pause after a failed read before trying again.
const readRetryDelay = 10 * time.Millisecond

// Webcam is an open capture device. A background pump keeps the latest
// frame buffered; Sample encodes a snapshot of it without touching the
// device.
type Webcam struct {
	cfg    Config
	vc     *gocv.VideoCapture
	logger *slog.Logger

	mu       sync.RWMutex
	latest   gocv.Mat
	hasFrame bool
	closed   bool

	frames    atomic.Uint64
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open acquires the camera described by cfg. Failures are returned as *Error.
func Open(cfg Config, logger *slog.Logger) (*Webcam, error) {
	return open(cfg, logger, probeDevice)
}

func open(cfg Config, logger *slog.Logger, probe probeFunc) (*Webcam, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "camera.webcam", "device", cfg.Device)

	vc, err := gocv.OpenVideoCapture(cfg.deviceID())
	if err == nil && !vc.IsOpened() {
		err = errors.New("device did not open")
	}
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		cerr := classify(cfg, err, probe)
		logger.Warn("camera open failed", "kind", cerr.Kind.String(), "error", err)
		return nil, cerr
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	w := newWebcam(cfg, logger)
	w.vc = vc
	w.wg.Add(1)
	go w.pump()

	logger.Info("camera opened",
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
	)
	return w, nil
}

func newWebcam(cfg Config, logger *slog.Logger) *Webcam {
	return &Webcam{
		cfg:    cfg,
		logger: logger,
		latest: gocv.NewMat(),
		done:   make(chan struct{}),
	}
}

// pump reads frames until Release.
func (w *Webcam) pump() {
	defer w.wg.Done()

	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for {
		select {
		case <-w.done:
			return
		default:
		}

		if ok := w.vc.Read(&img); !ok || img.Empty() {
			failures++
			if failures == 100 {
				w.logger.Warn("camera returned no frames", "attempts", failures)
			}
			time.Sleep(readRetryDelay)
			continue
		}
		failures = 0
		w.store(img)
	}
}

// store replaces the buffered frame with a copy of img.
func (w *Webcam) store(img gocv.Mat) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	img.CopyTo(&w.latest)
	w.hasFrame = true
	w.frames.Add(1)
}

// Sample returns the latest frame as a JPEG at the configured quality.
// ok is false until the first frame arrives and after Release.
func (w *Webcam) Sample() ([]byte, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed || !w.hasFrame || w.latest.Empty() {
		return nil, false
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, w.latest, []int{gocv.IMWriteJpegQuality, w.cfg.Quality})
	if err != nil {
		w.logger.Warn("frame encode failed", "error", err)
		return nil, false
	}
	defer buf.Close()

	data := append([]byte(nil), buf.GetBytes()...)
	return data, len(data) > 0
}

// Size returns the dimensions of the buffered frame, or zeros before the first frame.
func (w *Webcam) Size() (width, height int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.hasFrame {
		return 0, 0
	}
	return w.latest.Cols(), w.latest.Rows()
}

// Frames returns the number of frames read so far.
func (w *Webcam) Frames() uint64 {
	return w.frames.Load()
}

// Release stops the pump and frees the device. Safe to call more than once.
func (w *Webcam) Release() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		width, height := w.Size()

		w.mu.Lock()
		w.closed = true
		w.hasFrame = false
		w.latest.Close()
		w.mu.Unlock()

		if w.vc != nil {
			err = w.vc.Close()
		}
		w.logger.Info("camera released", "frames", w.Frames(), "width", width, "height", height)
	})
	return err
}
