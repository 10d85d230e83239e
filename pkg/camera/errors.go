package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Kind classifies why a camera could not be opened.
type Kind int

const (
	// KindUnavailable: the device exists but could not be opened (busy,
	// unsupported format, driver failure).
	KindUnavailable Kind = iota
	// KindPermissionDenied: the process may not open the device.
	KindPermissionDenied
	// KindNotFound: there is no such device.
	KindNotFound
)

// Sentinels matched by errors.Is on an *Error of the same kind.
var (
	ErrUnavailable      = errors.New("camera: unavailable")
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrNoDevice         = errors.New("camera: no device found")
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission denied"
	case KindNotFound:
		return "not found"
	default:
		return "unavailable"
	}
}

// Code is the machine-readable form of String, e.g. "permission_denied".
func (k Kind) Code() string {
	return strings.ReplaceAll(k.String(), " ", "_")
}

func (k Kind) sentinel() error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindNotFound:
		return ErrNoDevice
	default:
		return ErrUnavailable
	}
}

// Error is returned when the camera cannot be acquired.
type Error struct {
	Kind   Kind
	Device string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("camera %s: %s", e.Device, e.Kind)
	}
	return fmt.Sprintf("camera %s: %s: %v", e.Device, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// UserMessage returns the text shown to the user for this failure.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Camera access was denied. Please grant permission and try again."
	case KindNotFound:
		return "No camera was found. Please connect a camera and try again."
	default:
		return "Could not access the camera. Please try again."
	}
}

// probeFunc opens a device node and reports why it failed, if it did.
type probeFunc func(path string) error

func probeDevice(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	return f.Close()
}

// classify turns an OpenCV open failure into an *Error by probing the
// device node directly, since OpenCV does not say why it failed.
func classify(cfg Config, openErr error, probe probeFunc) *Error {
	e := &Error{Kind: KindUnavailable, Device: cfg.Device, Err: openErr}

	perr := probe(cfg.devicePath())
	switch {
	case errors.Is(perr, fs.ErrNotExist):
		e.Kind = KindNotFound
	case errors.Is(perr, fs.ErrPermission):
		e.Kind = KindPermissionDenied
	}
	if e.Err == nil {
		e.Err = perr
	}
	return e
}
