package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/control"
	"github.com/teslashibe/go-posecam/pkg/protocol"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": s.version,
		"running": s.controller.Running(),
	})
}

// handleMetrics exposes loop and hub counters in Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	snap := s.controller.Snapshot()
	ctl := s.control.GetStats()
	running := gauge(snap.Running)
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(fmt.Sprintf(`# HELP posecam_running Whether the capture loop is running
# TYPE posecam_running gauge
posecam_running %d

# HELP posecam_cycles_total Completed inference cycles
# TYPE posecam_cycles_total counter
posecam_cycles_total %d

# HELP posecam_failures_total Cycles that ended in an error
# TYPE posecam_failures_total counter
posecam_failures_total %d

# HELP posecam_skipped_total Ticks with no frame available
# TYPE posecam_skipped_total counter
posecam_skipped_total %d

# HELP posecam_stale_total Results discarded after a stop or restart
# TYPE posecam_stale_total counter
posecam_stale_total %d

# HELP posecam_preview_frames_total Annotated preview frames rendered
# TYPE posecam_preview_frames_total counter
posecam_preview_frames_total %d

# HELP posecam_ws_clients Connected websocket clients
# TYPE posecam_ws_clients gauge
posecam_ws_clients{socket="pose"} %d
posecam_ws_clients{socket="camera"} %d
posecam_ws_clients{socket="control"} %d

# HELP posecam_ws_dropped_total Broadcasts dropped because a hub queue was full
# TYPE posecam_ws_dropped_total counter
posecam_ws_dropped_total{socket="%s"} %d
posecam_ws_dropped_total{socket="%s"} %d

# HELP posecam_hub_running Whether a broadcast hub is running
# TYPE posecam_hub_running gauge
posecam_hub_running{socket="%s"} %d
posecam_hub_running{socket="%s"} %d

# HELP posecam_control_commands_total Control commands received
# TYPE posecam_control_commands_total counter
posecam_control_commands_total %d
`, running, snap.Cycles, snap.Failures, snap.Skipped, snap.Stale, s.PreviewFrames(),
		s.poseHub.ClientCount(), s.cameraHub.ClientCount(), ctl.SessionCount,
		s.poseHub.Name(), s.poseHub.Dropped(), s.cameraHub.Name(), s.cameraHub.Dropped(),
		s.poseHub.Name(), gauge(s.poseHub.IsRunning()), s.cameraHub.Name(), gauge(s.cameraHub.IsRunning()),
		ctl.CommandsReceived))
}

func gauge(on bool) int {
	if on {
		return 1
	}
	return 0
}

// handleStatus returns the loop snapshot plus the last camera error
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.state())
}

// handleStart acquires the camera and starts the loop
func (s *Server) handleStart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.startTimeout)
	defer cancel()

	err := s.controller.Start(ctx)
	state := s.state()
	s.publishState(state.Snapshot, state.CameraError)
	s.control.BroadcastState()

	if err != nil {
		kind, msg := control.DescribeError(err)
		s.logger.Warn("camera start failed", "kind", kind, "error", err)
		return c.Status(startStatus(err)).JSON(fiber.Map{
			"error": msg,
			"kind":  kind,
		})
	}
	return c.JSON(state)
}

// handleStop stops the loop and releases the camera
func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.controller.Stop(); err != nil {
		s.logger.Warn("camera stop failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	state := s.state()
	s.control.BroadcastState()
	return c.JSON(state)
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.manager.GetConfig())
}

// handleUpdateConfig applies a partial update; it takes effect on the next start
func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON body",
		})
	}
	if err := s.manager.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"config":  s.manager.GetConfig(),
		"running": s.controller.Running(),
	})
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets": camera.Presets(),
		"names":   camera.PresetNames(),
	})
}

func (s *Server) handleCapabilities(c *fiber.Ctx) error {
	return c.JSON(camera.Capabilities())
}

func (s *Server) state() protocol.StateData {
	return protocol.StateData{
		Snapshot:    s.controller.Snapshot(),
		CameraError: control.CameraErrorText(s.controller.LastStartError()),
	}
}

// startStatus maps a start failure to an HTTP status
func startStatus(err error) int {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, camera.ErrNoDevice):
		return fiber.StatusNotFound
	case errors.Is(err, camera.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
