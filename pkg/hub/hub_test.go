package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-posecam/internal/log"
)

type written struct {
	typ  int
	data []byte
}

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	writes    chan written
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan written, 16), closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}
func (f *fakeConn) WriteMessage(typ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	case f.writes <- written{typ, data}:
		return nil
	}
}
func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func runHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	h := New("test", opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)
	return h
}

func TestBroadcastReachesClient(t *testing.T) {
	h := runHub(t)
	conn := newFakeConn()
	c, err := NewClient(h, conn)
	require.NoError(t, err)
	go c.Run()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]int{"seq": 1}))
	h.BroadcastBinary([]byte{0xFF, 0xD8})

	got := <-conn.writes
	require.Equal(t, websocket.TextMessage, got.typ)
	require.JSONEq(t, `{"seq":1}`, string(got.data))

	got = <-conn.writes
	require.Equal(t, websocket.BinaryMessage, got.typ)
	require.Equal(t, []byte{0xFF, 0xD8}, got.data)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestReplaySendsLastMessage(t *testing.T) {
	h := runHub(t, WithReplay())
	require.NoError(t, h.BroadcastJSON("first"))
	require.NoError(t, h.BroadcastJSON("second"))
	require.Eventually(t, func() bool { return h.lastMessage() != nil && string(h.lastMessage().Data) == `"second"` },
		time.Second, 5*time.Millisecond)

	conn := newFakeConn()
	c, err := NewClient(h, conn)
	require.NoError(t, err)
	go c.Run()
	defer conn.Close()

	got := <-conn.writes
	require.Equal(t, `"second"`, string(got.data))
}

func TestNoReplayByDefault(t *testing.T) {
	h := runHub(t)
	require.NoError(t, h.BroadcastJSON("old"))

	conn := newFakeConn()
	c, err := NewClient(h, conn)
	require.NoError(t, err)
	go c.Run()
	defer conn.Close()

	select {
	case got := <-conn.writes:
		t.Fatalf("unexpected write %q", got.data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterAfterStop(t *testing.T) {
	h := New("stopped", WithLogger(log.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)

	conn := newFakeConn()
	c, err := NewClient(h, conn)
	require.NoError(t, err)
	go c.Run()

	cancel()
	<-done
	require.False(t, h.IsRunning())
	require.Zero(t, h.ClientCount())

	// The write pump sends a close frame when its queue is closed.
	got := <-conn.writes
	require.Equal(t, websocket.CloseMessage, got.typ)

	_, err = NewClient(h, newFakeConn())
	require.ErrorIs(t, err, ErrClosed)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("idle", WithLogger(log.Discard()))
	for i := 0; i < 300; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	require.Equal(t, uint64(300-256), h.Dropped())
}

func TestGorillaClient(t *testing.T) {
	h := runHub(t)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c, err := NewClient(h, conn)
		if err != nil {
			conn.Close()
			return
		}
		c.Run()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]string{"phase": "idle"}))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	require.JSONEq(t, `{"phase":"idle"}`, string(data))
}
