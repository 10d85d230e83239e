package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	require.Equal(t, "", cfg.Inference.APIKey)
	require.False(t, cfg.Inference.UseADC)
	require.False(t, cfg.Inference.Mock)
	require.Equal(t, DefaultModel, cfg.Inference.Model)
	require.Equal(t, DefaultEndpoint, cfg.Inference.Endpoint)
	require.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	require.Equal(t, "0", cfg.Camera.Device)
	require.Equal(t, 640, cfg.Camera.Width)
	require.Equal(t, 480, cfg.Camera.Height)
	require.Equal(t, 70, cfg.Camera.JPEGQuality)
	require.Equal(t, DefaultFrameInterval, cfg.FrameInterval)
	require.Equal(t, "8080", cfg.Port)
}

func TestFromEnvAPIKeyFallback(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"gemini key wins", map[string]string{"GEMINI_API_KEY": "a", "API_KEY": "b"}, "a"},
		{"api key fallback", map[string]string{"API_KEY": "b", "GOOGLE_API_KEY": "c"}, "b"},
		{"google key fallback", map[string]string{"GOOGLE_API_KEY": "c"}, "c"},
		{"blank ignored", map[string]string{"GEMINI_API_KEY": "  ", "API_KEY": "b"}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromEnv(env(tt.vars))
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.Inference.APIKey)
		})
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"GEMINI_USE_ADC":      "true",
		"INFERENCE_MOCK":      "1",
		"GEMINI_MODEL":        "gemini-2.0-flash",
		"GEMINI_ENDPOINT":     "http://localhost:9999",
		"INFERENCE_TIMEOUT":   "5s",
		"CAMERA_DEVICE":       "/dev/video2",
		"CAMERA_WIDTH":        "1280",
		"CAMERA_HEIGHT":       "720",
		"CAMERA_JPEG_QUALITY": "90",
		"FRAME_INTERVAL":      "50",
		"PORT":                "9000",
		"LOG_LEVEL":           "debug",
	}))
	require.NoError(t, err)

	require.True(t, cfg.Inference.UseADC)
	require.True(t, cfg.Inference.Mock)
	require.Equal(t, "gemini-2.0-flash", cfg.Inference.Model)
	require.Equal(t, "http://localhost:9999/", cfg.Inference.Endpoint)
	require.Equal(t, 5*time.Second, cfg.Inference.Timeout)
	require.Equal(t, "/dev/video2", cfg.Camera.Device)
	require.Equal(t, 1280, cfg.Camera.Width)
	require.Equal(t, 720, cfg.Camera.Height)
	require.Equal(t, 90, cfg.Camera.JPEGQuality)
	require.Equal(t, 50*time.Millisecond, cfg.FrameInterval)
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnvFrameIntervalFloor(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"FRAME_INTERVAL": "1ms"}))
	require.NoError(t, err)
	require.Equal(t, MinFrameInterval, cfg.FrameInterval)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad width", map[string]string{"CAMERA_WIDTH": "wide"}, "CAMERA_WIDTH"},
		{"bad bool", map[string]string{"GEMINI_USE_ADC": "maybe"}, "GEMINI_USE_ADC"},
		{"bad duration", map[string]string{"INFERENCE_TIMEOUT": "soon"}, "INFERENCE_TIMEOUT"},
		{"quality range", map[string]string{"CAMERA_JPEG_QUALITY": "0"}, "CAMERA_JPEG_QUALITY"},
		{"negative size", map[string]string{"CAMERA_HEIGHT": "-1"}, "resolution"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.vars))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}
