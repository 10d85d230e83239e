// posecam: live webcam pose estimation served over HTTP and WebSockets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-posecam/internal/config"
	"github.com/teslashibe/go-posecam/internal/log"
	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/capture"
	"github.com/teslashibe/go-posecam/pkg/inference"
	"github.com/teslashibe/go-posecam/pkg/web"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "posecam: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Credentials are checked before the camera is touched.
	estimator, err := newEstimator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, estimator.Close()) }()

	camCfg := camera.DefaultConfig()
	camCfg.Device = cfg.Camera.Device
	camCfg.Width = cfg.Camera.Width
	camCfg.Height = cfg.Camera.Height
	camCfg.Quality = cfg.Camera.JPEGQuality
	if problems := camCfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("camera config: %v", problems)
	}
	manager := camera.NewManager(camCfg)

	var server *web.Server
	loop := capture.NewLoop(estimator, capture.NewFrameScheduler(cfg.FrameInterval),
		capture.WithLogger(logger),
		capture.WithErrorText(inference.Message),
		capture.WithOnUpdate(func(s capture.Snapshot) {
			if server != nil {
				server.PublishSnapshot(s)
			}
		}),
	)
	controller := capture.NewController(camera.NewAcquirer(manager, logger), loop, logger)
	defer func() { err = multierr.Append(err, controller.Close()) }()

	server = web.NewServer(cfg.Port, controller, manager,
		web.WithLogger(logger),
		web.WithVersion(version),
		web.WithPreviewInterval(cfg.PreviewInterval),
		web.WithRequestLogging(log.ParseLevel(cfg.LogLevel) <= slog.LevelDebug),
	)

	log.Info("posecam starting",
		"version", version,
		"port", cfg.Port,
		"model", cfg.Inference.Model,
		"device", camCfg.Device,
		"frame_interval", cfg.FrameInterval,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return controller.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("goodbye")
	return nil
}

func newEstimator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (inference.Estimator, error) {
	if cfg.Inference.Mock {
		logger.Warn("using mock pose estimator")
		return inference.NewMock(), nil
	}

	opts := []inference.Option{
		inference.WithEndpoint(cfg.Inference.Endpoint),
		inference.WithModel(cfg.Inference.Model),
		inference.WithTimeout(cfg.Inference.Timeout),
		inference.WithLogger(logger),
	}
	if cfg.Inference.UseADC {
		opts = append(opts, inference.WithDefaultCredentials(true))
	} else {
		opts = append(opts, inference.WithAPIKey(cfg.Inference.APIKey))
	}
	return inference.NewGemini(ctx, opts...)
}
