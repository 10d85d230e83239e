package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultSystemInstruction is sent with every request. It pins the output
// to the 17 keypoints with normalized coordinates.
const DefaultSystemInstruction = "You are an expert pose estimation model. Analyze the provided image and identify the locations of 17 key human body points. Return the data as a JSON object that adheres to the provided schema. The keypoints are: nose, left_eye, right_eye, left_ear, right_ear, left_shoulder, right_shoulder, left_elbow, right_elbow, left_wrist, right_wrist, left_hip, right_hip, left_knee, right_knee, left_ankle, right_ankle. The x and y coordinates should be normalized between 0.0 and 1.0, where (0,0) is the top-left corner of the image. Provide a confidence score between 0.0 and 1.0 for each point. If a point is not visible, its score should be low."

// Config holds estimator configuration.
type Config struct {
	// Connection
	Endpoint string // API base URL, with trailing slash
	APIKey   string // API key, sent as x-goog-api-key
	UseADC   bool   // use application default credentials instead of APIKey

	// Model
	Model             string
	SystemInstruction string

	// Timeout bounds a single Estimate call. Zero means no extra bound.
	Timeout time.Duration

	// HTTPClient supplies the base transport. Auth is layered on top of it.
	HTTPClient *http.Client

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring estimators.
type Option func(*Config)

// WithEndpoint sets the API base URL.
// Example: "https://generativelanguage.googleapis.com/"
func WithEndpoint(url string) Option {
	return func(c *Config) { c.Endpoint = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithDefaultCredentials switches authentication to Google application
// default credentials.
func WithDefaultCredentials(enabled bool) Option {
	return func(c *Config) { c.UseADC = enabled }
}

// WithModel sets the model name, without the "models/" prefix.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSystemInstruction replaces the default instruction text.
func WithSystemInstruction(text string) Option {
	return func(c *Config) { c.SystemInstruction = text }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the base HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for Gemini.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:          "https://generativelanguage.googleapis.com/",
		Model:             "gemini-2.5-flash",
		SystemInstruction: DefaultSystemInstruction,
		Timeout:           30 * time.Second,
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrNoModel
	}
	if !c.UseADC && c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
