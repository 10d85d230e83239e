package inference

import (
	"errors"
	"fmt"
)

// Error classes. Match them with errors.Is.
var (
	// ErrConfiguration means the estimator cannot be built. It is raised
	// before any network call and is never retried.
	ErrConfiguration = errors.New("inference: configuration error")

	// ErrInvalidInput means the image was empty or not a JPEG/PNG.
	ErrInvalidInput = errors.New("inference: invalid input image")

	// ErrInference covers transport, authentication, API and response failures.
	ErrInference = errors.New("inference: request failed")
)

// Sentinel errors for specific conditions.
var (
	// ErrNoAPIKey is returned when API key is required but missing.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrNoCredentials is returned when default credentials were requested but none were found.
	ErrNoCredentials = errors.New("inference: no default credentials found")

	// ErrNoModel is returned when model is required but missing.
	ErrNoModel = errors.New("inference: model required")

	// ErrEmptyResponse is returned when the service answered with no content.
	ErrEmptyResponse = errors.New("inference: empty response")

	// ErrMalformedResponse is returned when the answer is not a keypoint list.
	ErrMalformedResponse = errors.New("inference: malformed response")
)

// ConfigError reports a setup problem detected while building an estimator.
type ConfigError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("inference [%s]: configuration: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigError match ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// APIError represents an error response from an inference API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error reason (if provided).
	Code string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference [%s]: API error %d (%s): %s",
			e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference [%s]: API error %d: %s",
		e.Provider, e.StatusCode, e.Message)
}

// Is makes every APIError match ErrInference.
func (e *APIError) Is(target error) bool {
	return target == ErrInference
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if the credentials were rejected (HTTP 401 or 403).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if a later attempt could succeed.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is makes every ProviderError match ErrInference.
func (e *ProviderError) Is(target error) bool {
	return target == ErrInference
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// Message returns a short human-readable description of an estimation
// failure, suitable for showing to a user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "The captured frame could not be used. " + err.Error()
	case errors.As(err, &apiErr) && apiErr.IsUnauthorized():
		return "The pose service rejected the credentials. Check the API key."
	case errors.As(err, &apiErr) && apiErr.IsRateLimited():
		return "The pose service is rate limiting requests."
	case errors.As(err, &apiErr) && apiErr.IsServerError():
		return "The pose service is temporarily unavailable."
	case errors.Is(err, ErrMalformedResponse):
		return "The pose service returned an unreadable answer."
	}
	return err.Error()
}
