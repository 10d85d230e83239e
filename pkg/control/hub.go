// Package control serves the command WebSocket: browsers connect, send
// start/stop/status/config commands and get acks and state back.
package control

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-posecam/pkg/capture"
	"github.com/teslashibe/go-posecam/pkg/protocol"
)

// DefaultStartTimeout bounds camera acquisition triggered by a start command.
const DefaultStartTimeout = 10 * time.Second

// Backend is what the commands drive. *capture.Controller satisfies it.
type Backend interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
	Snapshot() capture.Snapshot
	LastStartError() error
}

// Session represents a connected control client
type Session struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the client
func (s *Session) Send(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages control WebSocket sessions
type Hub struct {
	backend   Backend
	configure func(map[string]interface{}) error
	logger    *slog.Logger
	timeout   time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	// Stats
	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	messagesSent     atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithConfigure enables the config command.
func WithConfigure(fn func(map[string]interface{}) error) Option {
	return func(h *Hub) { h.configure = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithStartTimeout overrides DefaultStartTimeout.
func WithStartTimeout(d time.Duration) Option {
	return func(h *Hub) { h.timeout = d }
}

// NewHub creates a control hub driving backend
func NewHub(backend Backend, opts ...Option) *Hub {
	h := &Hub{
		backend:  backend,
		logger:   slog.Default(),
		timeout:  DefaultStartTimeout,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "control")
	return h
}

// RegisterRoutes registers the control WebSocket on a Fiber app
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/control", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/control", websocket.New(h.handleSession))
}

// RegisterAPIRoutes registers session introspection routes
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sessions := api.Group("/sessions")

	sessions.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": h.SessionInfos(),
			"count":    h.SessionCount(),
		})
	})

	sessions.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

func (h *Hub) handleSession(c *websocket.Conn) {
	session := &Session{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	count := len(h.sessions)
	h.mu.Unlock()
	h.logger.Debug("session connected", "session", session.ID, "sessions", count)

	defer func() {
		h.mu.Lock()
		delete(h.sessions, session.ID)
		count := len(h.sessions)
		h.mu.Unlock()
		h.logger.Debug("session disconnected", "session", session.ID, "sessions", count)
	}()

	// Greet with the current state.
	if msg, err := h.stateMessage(); err == nil {
		h.send(session, msg)
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		session.mu.Lock()
		session.LastSeen = time.Now()
		session.mu.Unlock()

		h.commandsReceived.Add(1)
		h.handleMessage(session, data)
	}
}

// handleMessage executes one command and replies to session
func (h *Hub) handleMessage(session *Session, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.reject(session, "", "", KindBadRequest, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeStart:
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := h.backend.Start(ctx)
		cancel()
		if err != nil {
			kind, text := DescribeError(err)
			h.reject(session, msg.ID, msg.Type, kind, text)
		} else {
			h.ack(session, msg)
		}
		h.BroadcastState()

	case protocol.TypeStop:
		if err := h.backend.Stop(); err != nil {
			kind, text := DescribeError(err)
			h.reject(session, msg.ID, msg.Type, kind, text)
		} else {
			h.ack(session, msg)
		}
		h.BroadcastState()

	case protocol.TypeStatus:
		state, err := h.stateMessage()
		if err != nil {
			h.reject(session, msg.ID, msg.Type, KindInternal, err.Error())
			return
		}
		state.ID = msg.ID
		h.send(session, state)

	case protocol.TypeConfig:
		if h.configure == nil {
			h.reject(session, msg.ID, msg.Type, KindUnknownCommand, "configuration is not supported")
			return
		}
		update, err := msg.GetConfigUpdate()
		if err != nil {
			h.reject(session, msg.ID, msg.Type, KindBadRequest, err.Error())
			return
		}
		if err := h.configure(update.Params()); err != nil {
			h.reject(session, msg.ID, msg.Type, KindInvalidConfig, err.Error())
			return
		}
		h.ack(session, msg)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(msg.ID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			pong.ID = msg.ID
			h.send(session, pong)
		}

	default:
		h.reject(session, msg.ID, msg.Type, KindUnknownCommand, "unknown command "+string(msg.Type))
	}
}

func (h *Hub) ack(session *Session, req *protocol.Message) {
	msg, err := protocol.NewAckMessage(req.ID, req.Type, h.backend.Running())
	if err != nil {
		return
	}
	h.send(session, msg)
}

func (h *Hub) reject(session *Session, id string, cmd protocol.MessageType, kind, text string) {
	h.commandsFailed.Add(1)
	h.logger.Debug("command failed", "session", session.ID, "command", cmd, "kind", kind)
	msg, err := protocol.NewErrorMessage(id, cmd, kind, text)
	if err != nil {
		return
	}
	h.send(session, msg)
}

func (h *Hub) send(session *Session, msg *protocol.Message) {
	h.messagesSent.Add(1)
	if err := session.Send(msg); err != nil {
		h.logger.Debug("send failed", "session", session.ID, "error", err)
	}
}

func (h *Hub) stateMessage() (*protocol.Message, error) {
	return protocol.NewStateMessage(h.backend.Snapshot(), CameraErrorText(h.backend.LastStartError()))
}

// BroadcastState pushes the current state to every session
func (h *Hub) BroadcastState() {
	msg, err := h.stateMessage()
	if err != nil {
		h.logger.Warn("state encode failed", "error", err)
		return
	}
	h.Broadcast(msg)
}

// Broadcast sends a message to all sessions
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		h.send(s, msg)
	}
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.mu.Lock()
		s.Conn.Close()
		s.mu.Unlock()
	}
}

// SessionCount returns the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stats contains hub statistics
type Stats struct {
	SessionCount     int    `json:"session_count"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	MessagesSent     uint64 `json:"messages_sent"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		SessionCount:     h.SessionCount(),
		CommandsReceived: h.commandsReceived.Load(),
		CommandsFailed:   h.commandsFailed.Load(),
		MessagesSent:     h.messagesSent.Load(),
	}
}

// SessionInfo describes a connected session
type SessionInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// SessionInfos returns info about all connected sessions
func (h *Hub) SessionInfos() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		s.mu.Lock()
		infos = append(infos, SessionInfo{
			ID:        s.ID,
			Connected: s.Connected,
			LastSeen:  s.LastSeen,
		})
		s.mu.Unlock()
	}
	return infos
}
