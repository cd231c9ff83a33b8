package stt

import (
	"log/slog"
	"time"
)

// Config holds recognition adapter configuration.
type Config struct {
	// Connection
	URL string // WebSocket endpoint

	// Recognition
	Language     string
	Model        string
	SampleRateHz int

	// SessionMaxAge is how long one underlying stream may live before
	// the client renews it. Kept under the provider's hard limit.
	SessionMaxAge time.Duration

	// Timeouts
	DialTimeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the adapter.
type Option func(*Config)

// WithURL sets the WebSocket endpoint.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithLanguage sets the recognition language.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithModel sets the recognition model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSampleRate sets the input sample rate in Hz.
func WithSampleRate(hz int) Option {
	return func(c *Config) { c.SampleRateHz = hz }
}

// WithSessionMaxAge sets the renewal interval.
func WithSessionMaxAge(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SessionMaxAge = d
		}
	}
}

// WithDialTimeout sets the WebSocket handshake timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns adapter defaults. The provider cuts streams at
// five minutes; renewing at 290 seconds leaves margin for the handshake.
func DefaultConfig() *Config {
	return &Config{
		Language:      "ru-RU",
		Model:         "general",
		SampleRateHz:  16000,
		SessionMaxAge: 290 * time.Second,
		DialTimeout:   10 * time.Second,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
