package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voxline/voxline/pkg/creds"
)

// Client is the REST synthesis provider adapter. Input text may carry
// SSML markup; anything starting with <speak is passed through as SSML.
type Client struct {
	baseURL string
	creds   *creds.Credentials
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a synthesis client.
func NewClient(cr *creds.Credentials, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		creds:   cr,
		config:  cfg,
		http:    &http.Client{Timeout: cfg.StreamTimeout},
		logger:  cfg.Logger.With("component", "tts.client"),
	}, nil
}

// Synthesize converts one complete utterance to audio.
func (c *Client) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	resp, err := c.request(ctx, text)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(fmt.Errorf("read audio: %w", err))
	}

	format := c.format()
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  EstimateDuration(len(audio), format.SampleRate, format.Channels),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Stream opens a segment stream delivering audio into out.
func (c *Client) Stream(ctx context.Context, out Output) (Stream, error) {
	s := &segmentStream{
		client:   c,
		out:      out,
		segments: make(chan segItem, 16),
		done:     make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	go s.run()
	return s, nil
}

// Health synthesizes a single word to verify connectivity.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Synthesize(ctx, "ok")
	return err
}

// Close releases resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) format() AudioFormat {
	return AudioFormat{
		Encoding:   c.config.Format,
		SampleRate: c.config.SampleRateHz,
		Channels:   1,
	}
}

// request performs one synthesis POST, retrying retryable statuses. The
// returned response body streams raw audio.
func (c *Client) request(ctx context.Context, text string) (*http.Response, error) {
	form := url.Values{}
	if strings.HasPrefix(strings.TrimSpace(text), "<speak") {
		form.Set("ssml", text)
	} else {
		form.Set("text", text)
	}
	form.Set("voice", c.config.Voice)
	form.Set("lang", c.config.Language)
	form.Set("speed", strconv.FormatFloat(c.config.Speed, 'f', -1, 64))
	form.Set("format", string(c.config.Format))
	if c.config.Format == EncodingLPCM {
		form.Set("sampleRateHertz", strconv.Itoa(c.config.SampleRateHz))
	}
	body := form.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/tts:synthesize", strings.NewReader(body))
		if err != nil {
			return nil, WrapError(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if c.creds != nil {
			c.creds.Apply(req.Header)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = WrapError(err)
			c.logger.Warn("synthesis request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(msg)}
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		c.logger.Warn("retrying synthesis request", "attempt", attempt+1, "status", resp.StatusCode)
	}

	return nil, lastErr
}

// Verify Client implements Provider at compile time.
var _ Provider = (*Client)(nil)
