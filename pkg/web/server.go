// Package web serves the posecam HTTP API and its live WebSockets.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/capture"
	"github.com/teslashibe/go-posecam/pkg/control"
	"github.com/teslashibe/go-posecam/pkg/hub"
	"github.com/teslashibe/go-posecam/pkg/overlay"
	"github.com/teslashibe/go-posecam/pkg/pose"
	"github.com/teslashibe/go-posecam/pkg/protocol"
)

// DefaultPreviewInterval is how often annotated frames are pushed to /ws/camera.
const DefaultPreviewInterval = 100 * time.Millisecond

// Controller is the capture side the server drives. *capture.Controller
// satisfies it.
type Controller interface {
	control.Backend
	Frame() ([]byte, bool)
}

// AnnotateFunc renders a pose onto an encoded frame.
type AnnotateFunc func(frame []byte, p pose.Pose, opts overlay.Options) ([]byte, error)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPreviewInterval sets the /ws/camera frame interval.
func WithPreviewInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.previewInterval = d
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRequestLogging logs every HTTP request.
func WithRequestLogging(on bool) Option {
	return func(s *Server) { s.requestLog = on }
}

// WithAnnotator replaces overlay.Annotate.
func WithAnnotator(fn AnnotateFunc) Option {
	return func(s *Server) { s.annotate = fn }
}

// Server is the posecam web server
type Server struct {
	app        *fiber.App
	port       string
	version    string
	logger     *slog.Logger
	requestLog bool

	controller Controller
	manager    *camera.Manager
	annotate   AnnotateFunc

	// Hubs for websocket broadcast
	poseHub   *hub.Hub
	cameraHub *hub.Hub
	control   *control.Hub

	previewInterval time.Duration
	frameID         atomic.Uint64
	startTimeout    time.Duration
}

// NewServer creates the web server. Routes are registered immediately so
// the app can be exercised with fiber's Test before Run.
func NewServer(port string, controller Controller, manager *camera.Manager, opts ...Option) *Server {
	s := &Server{
		port:            port,
		logger:          slog.Default(),
		controller:      controller,
		manager:         manager,
		annotate:        overlay.Annotate,
		previewInterval: DefaultPreviewInterval,
		startTimeout:    control.DefaultStartTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")

	s.poseHub = hub.New("pose", hub.WithLogger(s.logger), hub.WithReplay())
	s.cameraHub = hub.New("camera", hub.WithLogger(s.logger))
	s.control = control.NewHub(controller,
		control.WithLogger(s.logger),
		control.WithConfigure(manager.UpdateConfig),
		control.WithStartTimeout(s.startTimeout),
	)
	manager.OnChange(s.announceConfig)

	app := fiber.New(fiber.Config{
		AppName:               "posecam",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if s.requestLog {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/camera/start", s.handleStart)
	api.Post("/camera/stop", s.handleStop)
	api.Get("/camera/config", s.handleGetConfig)
	api.Put("/camera/config", s.handleUpdateConfig)
	api.Get("/camera/presets", s.handlePresets)
	api.Get("/camera/capabilities", s.handleCapabilities)
	s.control.RegisterAPIRoutes(api)

	s.control.RegisterRoutes(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/pose", websocket.New(s.hubHandler(s.poseHub)))
	app.Get("/ws/camera", websocket.New(s.hubHandler(s.cameraHub)))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs, the preview loop and the HTTP server on ln until ctx
// is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.poseHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.cameraHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.runPreview(ctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("web server listening", "addr", ln.Addr().String())
		return s.app.Listener(ln)
	})
	g.Go(func() error {
		<-ctx.Done()
		s.control.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	})

	return g.Wait()
}

// PublishSnapshot pushes a loop snapshot to /ws/pose. It is the loop's
// update hook and must not call back into the controller.
func (s *Server) PublishSnapshot(snap capture.Snapshot) {
	s.publishState(snap, "")
}

func (s *Server) publishState(snap capture.Snapshot, cameraError string) {
	msg, err := protocol.NewStateMessage(snap, cameraError)
	if err != nil {
		s.logger.Warn("state encode failed", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("state encode failed", "error", err)
		return
	}
	s.poseHub.Broadcast(hub.NewJSONMessage(data))
}

// announceConfig tells control sessions about camera settings that will
// apply on the next start.
func (s *Server) announceConfig(cfg camera.Config) error {
	msg, err := protocol.NewConfigMessage(protocol.ConfigUpdate{
		Device:    cfg.Device,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Framerate: cfg.Framerate,
		Quality:   cfg.Quality,
	})
	if err != nil {
		return err
	}
	s.logger.Info("camera config changed",
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height,
		"quality", cfg.Quality,
	)
	s.control.Broadcast(msg)
	return nil
}

// runPreview pushes annotated frames while anyone is watching.
func (s *Server) runPreview(ctx context.Context) {
	ticker := time.NewTicker(s.previewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cameraHub.ClientCount() == 0 {
				continue
			}
			if frame, ok := s.renderPreview(); ok {
				s.cameraHub.BroadcastBinary(frame)
			}
		}
	}
}

// renderPreview mirrors the current frame and draws the latest pose on it.
func (s *Server) renderPreview() ([]byte, bool) {
	frame, ok := s.controller.Frame()
	if !ok {
		return nil, false
	}
	snap := s.controller.Snapshot()
	out, err := s.annotate(frame, snap.LastPose, overlay.Options{Processing: snap.InFlight})
	if err != nil {
		s.logger.Debug("preview render failed", "error", err)
		return nil, false
	}
	s.frameID.Add(1)
	return out, true
}

// PreviewFrames returns how many preview frames were rendered.
func (s *Server) PreviewFrames() uint64 {
	return s.frameID.Load()
}

func (s *Server) hubHandler(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		client, err := hub.NewClient(h, c)
		if err != nil {
			c.Close()
			return
		}
		client.Run()
	}
}
