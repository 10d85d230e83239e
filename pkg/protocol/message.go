// Package protocol defines the JSON envelope exchanged over the posecam
// WebSockets: commands from browsers and state pushed back to them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-posecam/pkg/capture"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → server
	TypeStart  MessageType = "start"  // Acquire the camera and start the loop
	TypeStop   MessageType = "stop"   // Stop the loop and release the camera
	TypeStatus MessageType = "status" // Request a state message
	TypeConfig MessageType = "config" // Change camera settings; also sent after a change

	// Server → client
	TypeState MessageType = "state" // Loop snapshot
	TypeAck   MessageType = "ack"   // Command accepted
	TypeError MessageType = "error" // Command failed

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"` // Echoed in the reply
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// StateData is the loop snapshot plus the camera start error, if any.
type StateData struct {
	capture.Snapshot
	CameraError string `json:"camera_error,omitempty"`
}

// ConfigUpdate changes camera settings. Zero fields are left alone.
type ConfigUpdate struct {
	Preset    string `json:"preset,omitempty"` // "default", "low", "720p", ...
	Device    string `json:"device,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Framerate int    `json:"framerate,omitempty"`
	Quality   int    `json:"quality,omitempty"`
}

// AckData confirms a command.
type AckData struct {
	Command MessageType `json:"command"`
	Running bool        `json:"running"`
}

// ErrorData reports a failed command. Message is safe to show to users.
type ErrorData struct {
	Command MessageType `json:"command,omitempty"`
	Kind    string      `json:"kind,omitempty"` // "permission_denied", "not_found", ...
	Message string      `json:"message"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
