package llm

import (
	"log/slog"
	"time"
)

// Config holds completion adapter configuration.
type Config struct {
	// Connection
	BaseURL string // Completion API base URL
	Model   string // Model identifier sent with every request

	// Request defaults
	MaxTokens   int
	Temperature float64

	// Timeouts
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// HoldThreshold is the tool-execution wall time past which the
	// spoken answer is prefixed with HoldPhrase. Zero disables it.
	HoldThreshold time.Duration

	// HoldPhrase is spoken before a slow tool's answer.
	HoldPhrase string

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the adapter.
type Option func(*Config)

// WithBaseURL sets the completion API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHoldPhrase configures the slow-tool filler. An empty phrase or
// zero threshold disables the prefix entirely.
func WithHoldPhrase(phrase string, threshold time.Duration) Option {
	return func(c *Config) {
		c.HoldPhrase = phrase
		c.HoldThreshold = threshold
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns adapter defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://llm.api.cloud.yandex.net/foundationModels/v1",
		MaxTokens:     400,
		Temperature:   0.4,
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		HoldThreshold: time.Second,
		HoldPhrase:    "One moment please.",
		Logger:        slog.Default(),
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
	return nil
}
