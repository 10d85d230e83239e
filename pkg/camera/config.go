// Package camera opens a local webcam through OpenCV and keeps its most
// recent frame available for sampling.
package camera

import "strconv"

// Config holds all camera configuration parameters.
// Changes made through the Manager apply on the next start.
type Config struct {
	// Device is an OpenCV device index ("0") or a device path ("/dev/video2").
	Device string `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Requested FPS, 0 for the driver default

	// Quality is the JPEG quality of sampled frames (1-100).
	Quality int `json:"quality"`
}

// Limits accepted by Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the 640x480 configuration the pose model is tuned for.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   70,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 0 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 0 (driver default) and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}

// deviceID returns the value OpenCV expects: an int index or a path.
func (c *Config) deviceID() interface{} {
	if n, err := strconv.Atoi(c.Device); err == nil {
		return n
	}
	return c.Device
}

// devicePath returns the V4L2 node backing the configured device.
func (c *Config) devicePath() string {
	if n, err := strconv.Atoi(c.Device); err == nil {
		return "/dev/video" + strconv.Itoa(n)
	}
	return c.Device
}

// Capabilities returns the limits and presets the camera API accepts.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"min_width":     MinWidth,
		"min_height":    MinHeight,
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
