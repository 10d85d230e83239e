package control

import (
	"context"
	"errors"

	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/inference"
)

// Error kinds reported to clients.
const (
	KindBadRequest     = "bad_request"
	KindUnknownCommand = "unknown_command"
	KindInvalidConfig  = "invalid_config"
	KindConfiguration  = "configuration"
	KindInference      = "inference"
	KindCancelled      = "cancelled"
	KindInternal       = "internal"
)

// DescribeError classifies err and returns a message fit for users.
// Camera failures keep their own kind ("permission_denied", "not_found",
// "unavailable").
func DescribeError(err error) (kind, message string) {
	if err == nil {
		return "", ""
	}

	var camErr *camera.Error
	switch {
	case errors.As(err, &camErr):
		return camErr.Kind.Code(), camErr.UserMessage()
	case errors.Is(err, inference.ErrConfiguration):
		return KindConfiguration, inference.Message(err)
	case errors.Is(err, inference.ErrInference), errors.Is(err, inference.ErrInvalidInput):
		return KindInference, inference.Message(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled, "The request was cancelled."
	}
	return KindInternal, err.Error()
}

// CameraErrorText is the user message for a failed camera start, or "".
func CameraErrorText(err error) string {
	if err == nil {
		return ""
	}
	_, msg := DescribeError(err)
	return msg
}
