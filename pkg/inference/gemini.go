package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-posecam/internal/httpc"
	"github.com/teslashibe/go-posecam/pkg/pose"
)

const (
	providerGemini = "gemini"

	scopeGenerativeLanguage = "https://www.googleapis.com/auth/generative-language"
	scopeCloudPlatform      = "https://www.googleapis.com/auth/cloud-platform"
)

// Gemini implements Estimator on top of the Gemini generateContent API.
type Gemini struct {
	config *Config
	svc    *generativelanguage.Service
	req    *generativelanguage.GenerateContentRequest
	logger *slog.Logger
}

var _ Estimator = (*Gemini)(nil)

// NewGemini creates a Gemini estimator. Missing credentials fail here with
// an error matching ErrConfiguration, before any request is sent.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Provider: providerGemini, Err: err}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc, err := authClient(ctx, cfg)
	if err != nil {
		return nil, &ConfigError{Provider: providerGemini, Err: err}
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if cfg.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := generativelanguage.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, &ConfigError{Provider: providerGemini, Err: err}
	}

	return &Gemini{
		config: cfg,
		svc:    svc,
		req:    newPoseRequest(cfg.SystemInstruction),
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// authClient layers API key or default-credential auth over the base client.
func authClient(ctx context.Context, cfg *Config) (*http.Client, error) {
	base := cfg.HTTPClient
	if base == nil {
		base = httpc.NewClient(cfg.Timeout)
	}
	rt := base.Transport
	if rt == nil {
		rt = httpc.NewTransport()
	}

	if cfg.UseADC {
		creds, err := google.FindDefaultCredentials(ctx, scopeGenerativeLanguage, scopeCloudPlatform)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoCredentials, err)
		}
		rt = &oauth2.Transport{Source: creds.TokenSource, Base: rt}
	} else {
		rt = &httpc.HeaderTransport{Key: "x-goog-api-key", Value: cfg.APIKey, Base: rt}
	}
	return httpc.NewClientWithTransport(base.Timeout, rt), nil
}

// newPoseRequest builds the fixed part of every request: instruction,
// JSON output and the keypoint array schema.
func newPoseRequest(instruction string) *generativelanguage.GenerateContentRequest {
	keypoint := &generativelanguage.Schema{
		Type: "OBJECT",
		Properties: map[string]generativelanguage.Schema{
			"name":  {Type: "STRING", Description: "Keypoint name, e.g. nose or left_wrist"},
			"x":     {Type: "NUMBER", Description: "Normalized x coordinate (0.0 to 1.0)"},
			"y":     {Type: "NUMBER", Description: "Normalized y coordinate (0.0 to 1.0)"},
			"score": {Type: "NUMBER", Description: "Confidence score (0.0 to 1.0)"},
		},
		Required: []string{"name", "x", "y", "score"},
	}
	return &generativelanguage.GenerateContentRequest{
		SystemInstruction: &generativelanguage.Content{
			Parts: []*generativelanguage.Part{{Text: instruction}},
		},
		GenerationConfig: &generativelanguage.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema: &generativelanguage.Schema{
				Type:  "ARRAY",
				Items: keypoint,
			},
		},
	}
}

// Estimate sends one image to the model and parses the keypoints it returns.
func (g *Gemini) Estimate(ctx context.Context, image []byte) (pose.Pose, error) {
	mime, err := DetectImageType(image)
	if err != nil {
		return nil, err
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	req := *g.req
	req.Contents = []*generativelanguage.Content{{
		Role: "user",
		Parts: []*generativelanguage.Part{{
			InlineData: &generativelanguage.Blob{
				MimeType: mime,
				Data:     base64.StdEncoding.EncodeToString(image),
			},
		}},
	}}

	resp, err := g.svc.Models.GenerateContent(g.modelName(), &req).Context(ctx).Do()
	if err != nil {
		return nil, g.callError(err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	p, err := ParsePose(text)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	g.logger.Debug("pose estimated",
		"keypoints", len(p),
		"bytes", len(image),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return p, nil
}

// Close releases resources. The underlying HTTP client has nothing to release.
func (g *Gemini) Close() error {
	return nil
}

func (g *Gemini) modelName() string {
	if strings.HasPrefix(g.config.Model, "models/") {
		return g.config.Model
	}
	return "models/" + g.config.Model
}

// callError maps a transport or API failure to APIError or ProviderError.
func (g *Gemini) callError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr := &APIError{
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Provider:   providerGemini,
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(gerr.Body)
		}
		if len(gerr.Errors) > 0 {
			apiErr.Code = gerr.Errors[0].Reason
		}
		g.logger.Debug("gemini api error",
			"status", apiErr.StatusCode,
			"code", apiErr.Code,
			"retryable", apiErr.IsRetryable(),
		)
		return apiErr
	}
	return WrapError(providerGemini, err)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *generativelanguage.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if len(resp.Candidates) == 0 {
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, fb.BlockReason)
		}
		return "", ErrEmptyResponse
	}

	c := resp.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 {
		if c.FinishReason != "" {
			return "", fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, c.FinishReason)
		}
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range c.Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
