// Package config loads and validates the agent configuration.
//
// Configuration comes from the environment; an optional YAML identity
// file overlays the agent's name, system prompt and canned phrases.
// Invalid configuration is a startup error, never a runtime surprise.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by Load.
const (
	EnvRTCURL          = "RTC_URL"
	EnvRTCAPIKey       = "RTC_API_KEY"
	EnvRTCAPISecret    = "RTC_API_SECRET"
	EnvSTTURL          = "STT_URL"
	EnvTTSURL          = "TTS_URL"
	EnvLLMURL          = "LLM_URL"
	EnvLLMModel        = "LLM_MODEL"
	EnvTelemetryURL    = "TELEMETRY_URL"
	EnvTelemetryKey    = "TELEMETRY_API_KEY"
	EnvTelemetryDB     = "TELEMETRY_DB"
	EnvIdentityFile    = "AGENT_IDENTITY_FILE"
	EnvSilenceTimeout  = "SILENCE_TIMEOUT_SECONDS"
	EnvToolTimeout     = "TOOL_TIMEOUT_SECONDS"
	EnvTTSVoice        = "TTS_VOICE"
	EnvSTTLanguage     = "STT_LANGUAGE"
	EnvLLMTemperature  = "LLM_TEMPERATURE"
	EnvLLMMaxTokens    = "LLM_MAX_TOKENS"
	EnvHoldPhrase      = "HOLD_PHRASE"
	EnvWeatherDisabled = "DISABLE_WEATHER_TOOL"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultSTTURL         = "wss://stt.api.cloud.yandex.net/speech/v1/stt:stream"
	DefaultLLMModel       = "yandexgpt-lite/latest"
	DefaultSilenceTimeout = 30 * time.Second
	DefaultToolTimeout    = 10 * time.Second
	DefaultSTTLanguage    = "ru-RU"
	DefaultTTSVoice       = "alena"
	DefaultLLMTemperature = 0.4
	DefaultLLMMaxTokens   = 400
)

// RTC holds platform connection settings.
type RTC struct {
	URL       string
	APIKey    string
	APISecret string
}

// Providers holds the speech and completion service endpoints. Empty
// URLs select each adapter's built-in default endpoint.
type Providers struct {
	STTURL      string
	STTLanguage string

	TTSURL   string
	TTSVoice string

	LLMURL         string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
}

// Telemetry holds the sink settings. With URL set the REST sink is
// used; otherwise DBPath selects a local SQLite file; with neither the
// agent runs on the no-op sink.
type Telemetry struct {
	URL    string
	APIKey string
	DBPath string
}

// Config is the full agent configuration.
type Config struct {
	RTC       RTC
	Providers Providers
	Telemetry Telemetry
	Identity  Identity

	SilenceTimeout time.Duration
	ToolTimeout    time.Duration
	HoldPhrase     string

	// DisableWeatherTool skips registering the weather tool, for
	// deployments without outbound internet access.
	DisableWeatherTool bool
}

// Load reads configuration from the environment and applies the
// identity overlay file when one is configured.
func Load() (*Config, error) {
	cfg := &Config{
		RTC: RTC{
			URL:       os.Getenv(EnvRTCURL),
			APIKey:    os.Getenv(EnvRTCAPIKey),
			APISecret: os.Getenv(EnvRTCAPISecret),
		},
		Providers: Providers{
			STTURL:         envString(EnvSTTURL, DefaultSTTURL),
			STTLanguage:    envString(EnvSTTLanguage, DefaultSTTLanguage),
			TTSURL:         os.Getenv(EnvTTSURL),
			TTSVoice:       envString(EnvTTSVoice, DefaultTTSVoice),
			LLMURL:         os.Getenv(EnvLLMURL),
			LLMModel:       envString(EnvLLMModel, DefaultLLMModel),
			LLMTemperature: DefaultLLMTemperature,
			LLMMaxTokens:   DefaultLLMMaxTokens,
		},
		Telemetry: Telemetry{
			URL:    os.Getenv(EnvTelemetryURL),
			APIKey: os.Getenv(EnvTelemetryKey),
			DBPath: os.Getenv(EnvTelemetryDB),
		},
		Identity:   DefaultIdentity(),
		HoldPhrase: os.Getenv(EnvHoldPhrase),
	}

	var err error
	if cfg.SilenceTimeout, err = envSeconds(EnvSilenceTimeout, DefaultSilenceTimeout); err != nil {
		return nil, err
	}
	if cfg.ToolTimeout, err = envSeconds(EnvToolTimeout, DefaultToolTimeout); err != nil {
		return nil, err
	}
	if cfg.Providers.LLMTemperature, err = envFloat(EnvLLMTemperature, DefaultLLMTemperature); err != nil {
		return nil, err
	}
	if cfg.Providers.LLMMaxTokens, err = envInt(EnvLLMMaxTokens, DefaultLLMMaxTokens); err != nil {
		return nil, err
	}
	cfg.DisableWeatherTool = envBool(EnvWeatherDisabled)

	if path := os.Getenv(EnvIdentityFile); path != "" {
		identity, err := LoadIdentity(path)
		if err != nil {
			return nil, fmt.Errorf("config: identity file %s: %w", path, err)
		}
		cfg.Identity = cfg.Identity.Merge(identity)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	var errs []error
	if c.RTC.URL == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvRTCURL))
	}
	if c.Providers.LLMModel == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", EnvLLMModel))
	}
	if c.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvSilenceTimeout))
	}
	if c.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvToolTimeout))
	}
	if c.Providers.LLMTemperature < 0 || c.Providers.LLMTemperature > 1 {
		errs = append(errs, fmt.Errorf("%s must be within [0, 1]", EnvLLMTemperature))
	}
	if c.Providers.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvLLMMaxTokens))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: expected seconds as integer, got %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: expected integer, got %q", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: expected number, got %q", key, v)
	}
	return f, nil
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
