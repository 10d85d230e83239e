// Package config loads go-posecam settings from the environment.
// A .env file in the working directory is honoured when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultModel            = "gemini-2.5-flash"
	DefaultEndpoint         = "https://generativelanguage.googleapis.com/"
	DefaultInferenceTimeout = 30 * time.Second
	DefaultDevice           = "0"
	DefaultWidth            = 640
	DefaultHeight           = 480
	DefaultJPEGQuality      = 70
	DefaultFrameInterval    = 33 * time.Millisecond
	MinFrameInterval        = 16 * time.Millisecond
	DefaultPreviewInterval  = 100 * time.Millisecond
	DefaultPort             = "8080"
)

// Inference holds pose service settings.
type Inference struct {
	APIKey   string
	UseADC   bool
	Mock     bool // answer with a canned pose instead of calling the service
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// Camera holds capture device settings.
type Camera struct {
	Device      string
	Width       int
	Height      int
	JPEGQuality int
}

// Config is the full process configuration.
type Config struct {
	Inference       Inference
	Camera          Camera
	FrameInterval   time.Duration
	PreviewInterval time.Duration
	Port            string
	LogLevel        string
}

// Load reads the configuration. Credential presence is not checked here;
// the inference client rejects missing credentials when it is built.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := &reader{getenv: getenv}

	cfg := &Config{
		Inference: Inference{
			APIKey:   e.first("GEMINI_API_KEY", "API_KEY", "GOOGLE_API_KEY"),
			UseADC:   e.bool("GEMINI_USE_ADC", false),
			Mock:     e.bool("INFERENCE_MOCK", false),
			Model:    e.str("GEMINI_MODEL", DefaultModel),
			Endpoint: e.str("GEMINI_ENDPOINT", DefaultEndpoint),
			Timeout:  e.duration("INFERENCE_TIMEOUT", DefaultInferenceTimeout),
		},
		Camera: Camera{
			Device:      e.str("CAMERA_DEVICE", DefaultDevice),
			Width:       e.int("CAMERA_WIDTH", DefaultWidth),
			Height:      e.int("CAMERA_HEIGHT", DefaultHeight),
			JPEGQuality: e.int("CAMERA_JPEG_QUALITY", DefaultJPEGQuality),
		},
		FrameInterval:   e.duration("FRAME_INTERVAL", DefaultFrameInterval),
		PreviewInterval: e.duration("PREVIEW_INTERVAL", DefaultPreviewInterval),
		Port:            e.str("PORT", DefaultPort),
		LogLevel:        e.str("LOG_LEVEL", "info"),
	}
	if e.err != nil {
		return nil, e.err
	}

	if cfg.FrameInterval < MinFrameInterval {
		cfg.FrameInterval = MinFrameInterval
	}
	if cfg.Camera.JPEGQuality < 1 || cfg.Camera.JPEGQuality > 100 {
		return nil, fmt.Errorf("config: CAMERA_JPEG_QUALITY must be between 1 and 100, got %d", cfg.Camera.JPEGQuality)
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return nil, fmt.Errorf("config: camera resolution must be positive, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if !strings.HasSuffix(cfg.Inference.Endpoint, "/") {
		cfg.Inference.Endpoint += "/"
	}
	return cfg, nil
}

// reader keeps the first parse error so Load can report it by variable name.
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) first(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are milliseconds.
		if ms, aerr := strconv.Atoi(v); aerr == nil {
			return time.Duration(ms) * time.Millisecond
		}
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("config: invalid %s=%q: %w", key, value, err)
	}
}
