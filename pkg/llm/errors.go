package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoModel is returned when no model identifier is configured.
	ErrNoModel = errors.New("llm: model required")

	// ErrEmptyResponse is returned when the provider returns no alternatives.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrNoSpeakableOutput is returned when a turn produced neither text
	// nor a usable tool result.
	ErrNoSpeakableOutput = errors.New("llm: no speakable output")
)

// APIError represents an error response from the completion API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the provider error code, when present.
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llm: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// WrapError adds the adapter prefix while keeping the cause unwrappable.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("llm: %w", err)
}
