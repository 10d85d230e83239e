package protocol

import (
	"github.com/teslashibe/go-posecam/pkg/capture"
)

// NewStateMessage wraps a loop snapshot.
func NewStateMessage(snap capture.Snapshot, cameraError string) (*Message, error) {
	return NewMessage(TypeState, StateData{Snapshot: snap, CameraError: cameraError})
}

// NewAckMessage confirms cmd.
func NewAckMessage(id string, cmd MessageType, running bool) (*Message, error) {
	msg, err := NewMessage(TypeAck, AckData{Command: cmd, Running: running})
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// NewErrorMessage reports a failed command.
func NewErrorMessage(id string, cmd MessageType, kind, message string) (*Message, error) {
	msg, err := NewMessage(TypeError, ErrorData{Command: cmd, Kind: kind, Message: message})
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// NewConfigMessage announces the camera settings now in effect
func NewConfigMessage(update ConfigUpdate) (*Message, error) {
	return NewMessage(TypeConfig, update)
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetConfigUpdate extracts a configuration update from a message
func (m *Message) GetConfigUpdate() (*ConfigUpdate, error) {
	var data ConfigUpdate
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Params converts the update into the map accepted by camera.Manager.UpdateConfig.
func (u ConfigUpdate) Params() map[string]interface{} {
	params := make(map[string]interface{})
	if u.Preset != "" {
		params["preset"] = u.Preset
	}
	if u.Device != "" {
		params["device"] = u.Device
	}
	if u.Width != 0 {
		params["width"] = u.Width
	}
	if u.Height != 0 {
		params["height"] = u.Height
	}
	if u.Framerate != 0 {
		params["framerate"] = u.Framerate
	}
	if u.Quality != 0 {
		params["quality"] = u.Quality
	}
	return params
}
