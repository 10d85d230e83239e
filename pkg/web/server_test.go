package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-posecam/internal/log"
	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/capture"
	"github.com/teslashibe/go-posecam/pkg/overlay"
	"github.com/teslashibe/go-posecam/pkg/pose"
	"github.com/teslashibe/go-posecam/pkg/protocol"
)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	startErr error
	lastErr  error
	frame    []byte
	snap     capture.Snapshot
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = f.startErr
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.snap.Running = true
	f.snap.Phase = capture.PhaseIdle
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.snap = capture.Snapshot{Phase: capture.PhaseStopped}
	return nil
}

func (f *fakeController) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeController) Snapshot() capture.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) LastStartError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *fakeController) Frame() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.frame != nil
}

func newTestServer(t *testing.T, ctrl *fakeController, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return NewServer("0", ctrl, camera.NewManager(camera.DefaultConfig()), opts...)
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t, &fakeController{snap: capture.Snapshot{Phase: capture.PhaseStopped}}, WithVersion("test"))

	code, body := do(t, s, "GET", "/health", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "test", body["version"])

	code, body = do(t, s, "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["running"])
	require.Equal(t, "stopped", body["phase"])
	require.NotContains(t, body, "camera_error")
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, &fakeController{snap: capture.Snapshot{Running: true, Cycles: 12, Failures: 2}})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := string(data)
	require.Contains(t, body, "posecam_running 1\n")
	require.Contains(t, body, "posecam_cycles_total 12\n")
	require.Contains(t, body, "posecam_failures_total 2\n")
	require.Contains(t, body, `posecam_ws_clients{socket="pose"} 0`)
	require.Contains(t, body, `posecam_ws_dropped_total{socket="camera"} 0`)
	require.Contains(t, body, `posecam_hub_running{socket="pose"} 0`, "hubs run only while serving")
}

func TestStartAndStop(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl)

	code, body := do(t, s, "POST", "/api/camera/start", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["running"])
	require.Equal(t, "idle", body["phase"])

	code, body = do(t, s, "POST", "/api/camera/stop", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["running"])

	code, _ = do(t, s, "POST", "/api/camera/stop", "")
	require.Equal(t, http.StatusOK, code, "stop is idempotent")
}

func TestStartErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"denied", &camera.Error{Kind: camera.KindPermissionDenied, Device: "0"}, http.StatusForbidden, "permission_denied", "Camera access was denied"},
		{"missing", &camera.Error{Kind: camera.KindNotFound, Device: "0"}, http.StatusNotFound, "not_found", "No camera was found"},
		{"busy", &camera.Error{Kind: camera.KindUnavailable, Device: "0"}, http.StatusServiceUnavailable, "unavailable", "Could not access the camera"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "cancelled", "cancelled"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal", "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeController{startErr: tt.err})

			code, body := do(t, s, "POST", "/api/camera/start", "")
			require.Equal(t, tt.status, code)
			require.Equal(t, tt.kind, body["kind"])
			require.Contains(t, body["error"], tt.message)

			_, status := do(t, s, "GET", "/api/status", "")
			require.Equal(t, false, status["running"])
			require.Contains(t, status["camera_error"], tt.message)
		})
	}
}

func TestCameraConfig(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	code, body := do(t, s, "GET", "/api/camera/config", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(640), body["width"])

	code, body = do(t, s, "PUT", "/api/camera/config", `{"preset":"low","quality":55}`)
	require.Equal(t, http.StatusOK, code)
	cfg := body["config"].(map[string]interface{})
	require.Equal(t, float64(320), cfg["width"])
	require.Equal(t, float64(55), cfg["quality"])

	code, body = do(t, s, "PUT", "/api/camera/config", `{"width":10}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.NotEmpty(t, body["error"])

	code, _ = do(t, s, "PUT", "/api/camera/config", `{`)
	require.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, s, "GET", "/api/camera/presets", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["names"], len(camera.PresetNames()))

	code, body = do(t, s, "GET", "/api/camera/capabilities", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(camera.MaxWidth), body["max_width"])
}

func TestWebSocketRoutesRequireUpgrade(t *testing.T) {
	s := newTestServer(t, &fakeController{})
	for _, path := range []string{"/ws/pose", "/ws/camera", "/ws/control"} {
		resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusUpgradeRequired, resp.StatusCode, path)
	}
}

func TestRenderPreview(t *testing.T) {
	ctrl := &fakeController{}
	var gotPose pose.Pose
	var gotOpts overlay.Options
	s := newTestServer(t, ctrl, WithAnnotator(func(frame []byte, p pose.Pose, opts overlay.Options) ([]byte, error) {
		gotPose, gotOpts = p, opts
		return append([]byte("annotated:"), frame...), nil
	}))

	_, ok := s.renderPreview()
	require.False(t, ok, "no frame while stopped")

	ctrl.frame = []byte("jpeg")
	ctrl.snap = capture.Snapshot{
		Running:  true,
		InFlight: true,
		LastPose: pose.Pose{{Name: pose.Nose, X: 0.5, Y: 0.5, Score: 0.9}},
	}
	out, ok := s.renderPreview()
	require.True(t, ok)
	require.Equal(t, "annotated:jpeg", string(out))
	require.Len(t, gotPose, 1)
	require.True(t, gotOpts.Processing)
	require.Equal(t, uint64(1), s.PreviewFrames())

	s.annotate = func([]byte, pose.Pose, overlay.Options) ([]byte, error) { return nil, overlay.ErrDecode }
	_, ok = s.renderPreview()
	require.False(t, ok)
}

// serve runs s on a free port and returns its ws base URL.
func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})

	base := "ws://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	return base
}

func TestPoseSocketStreamsSnapshots(t *testing.T) {
	s := newTestServer(t, &fakeController{})
	base := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/pose", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return s.poseHub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	s.PublishSnapshot(capture.Snapshot{
		Running:  true,
		Phase:    capture.PhaseRescheduling,
		LastPose: pose.Pose{{Name: pose.LeftWrist, X: 0.2, Y: 0.6, Score: 0.8}},
		Seq:      9,
	})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeState, msg.Type)
	state, err := msg.GetStateData()
	require.NoError(t, err)
	require.Equal(t, uint64(9), state.Seq)
	require.Equal(t, pose.LeftWrist, state.LastPose[0].Name)
}

func TestCameraSocketStreamsPreview(t *testing.T) {
	ctrl := &fakeController{frame: []byte("jpeg"), snap: capture.Snapshot{Running: true}}
	s := newTestServer(t, ctrl,
		WithPreviewInterval(10*time.Millisecond),
		WithAnnotator(func(frame []byte, _ pose.Pose, _ overlay.Options) ([]byte, error) {
			return append([]byte{0xFF, 0xD8}, frame...), nil
		}),
	)
	base := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/camera", nil)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, typ)
	require.Equal(t, append([]byte{0xFF, 0xD8}, "jpeg"...), data)
}

func TestControlSocketStartsCamera(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl)
	base := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/control", nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() *protocol.Message {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.ParseMessage(data)
		require.NoError(t, err)
		return msg
	}
	require.Equal(t, protocol.TypeState, read().Type)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","id":"a"}`)))
	ack := read()
	require.Equal(t, protocol.TypeAck, ack.Type)
	require.Equal(t, "a", ack.ID)
	require.True(t, ctrl.Running())

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"config","id":"b","data":{"preset":"720p"}}`)))
	read() // state broadcast from start
	announced := read()
	require.Equal(t, protocol.TypeConfig, announced.Type)
	update, err := announced.GetConfigUpdate()
	require.NoError(t, err)
	require.Equal(t, 1280, update.Width)
	require.Equal(t, protocol.TypeAck, read().Type)
	require.Equal(t, 1280, s.manager.GetConfig().Width)
}

func TestConfigChangeIsAnnouncedOnControlSocket(t *testing.T) {
	s := newTestServer(t, &fakeController{})
	base := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/control", nil)
	require.NoError(t, err)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage() // greeting
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.control.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	code, _ := do(t, s, "PUT", "/api/camera/config", `{"width":800,"height":600,"quality":90}`)
	require.Equal(t, http.StatusOK, code)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeConfig, msg.Type)
	update, err := msg.GetConfigUpdate()
	require.NoError(t, err)
	require.Equal(t, 800, update.Width)
	require.Equal(t, 600, update.Height)
	require.Equal(t, 90, update.Quality)
	require.Equal(t, "0", update.Device)

	// Rejected updates are not announced.
	code, _ = do(t, s, "PUT", "/api/camera/config", `{"width":10}`)
	require.Equal(t, http.StatusBadRequest, code)
	ws.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = ws.ReadMessage()
	require.Error(t, err)
}
