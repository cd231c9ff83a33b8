package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxline/voxline/pkg/creds"
	"github.com/voxline/voxline/pkg/tools"
)

// Alternative status values on the completion wire. Anything other than
// the tool-call status is treated as a text completion.
const (
	statusFinal     = "ALTERNATIVE_STATUS_FINAL"
	statusToolCalls = "ALTERNATIVE_STATUS_TOOL_CALLS"
)

// Provider is the completion backend contract.
type Provider interface {
	// Complete performs one request round and returns either text or
	// a tool-call request.
	Complete(ctx context.Context, messages []Message, toolset []tools.Tool) (*Response, error)

	// Health checks API connectivity.
	Health(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Usage reports token accounting for one completion round.
type Usage struct {
	InputTokens      int
	CompletionTokens int
	TotalTokens      int
}

// Response is one completion round's outcome.
type Response struct {
	// Text is the assistant's answer. Empty when the provider requests
	// tool calls instead.
	Text string

	// ToolCalls is non-empty when the provider signalled tool-call
	// intent for this round.
	ToolCalls []tools.Call

	// Usage is the provider's token accounting.
	Usage Usage

	// LatencyMs is the round's wall time.
	LatencyMs int64
}

// WantsTools reports whether the provider asked for tool execution
// instead of answering.
func (r *Response) WantsTools() bool {
	return len(r.ToolCalls) > 0
}

// Client is the REST completion provider adapter.
type Client struct {
	baseURL string
	creds   *creds.Credentials
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a completion client. The model identifier is
// required; everything else has defaults.
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
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger.With("component", "llm.client"),
	}, nil
}

// Complete performs one completion round.
func (c *Client) Complete(ctx context.Context, messages []Message, toolset []tools.Tool) (*Response, error) {
	start := time.Now()

	payload := c.buildPayload(messages, toolset)

	resp, err := c.post(ctx, "/completion", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(fmt.Errorf("decode response: %w", err))
	}

	if len(result.Alternatives) == 0 {
		return nil, ErrEmptyResponse
	}

	alt := result.Alternatives[0]
	out := &Response{
		Usage: Usage{
			InputTokens:      result.Usage.InputTextTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}

	if alt.Status == statusToolCalls {
		out.ToolCalls = parseToolCalls(alt.Message.ToolCallList)
		if len(out.ToolCalls) == 0 {
			return nil, WrapError(fmt.Errorf("tool-call status without tool calls"))
		}
		return out, nil
	}

	out.Text = alt.Message.Text
	return out, nil
}

// Health checks API connectivity with a minimal request.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Complete(ctx, []Message{NewUserMessage("ping")}, nil)
	return err
}

// Close releases resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// buildPayload constructs the completion request body.
func (c *Client) buildPayload(messages []Message, toolset []tools.Tool) map[string]any {
	wire := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		m := map[string]any{"role": string(msg.Role)}

		switch {
		case len(msg.ToolCalls) > 0:
			m["toolCallList"] = map[string]any{"toolCalls": buildToolCalls(msg.ToolCalls)}
		case len(msg.ToolResults) > 0:
			m["toolResultList"] = map[string]any{"toolResults": buildToolResults(msg.ToolResults)}
		default:
			m["text"] = msg.Content
		}
		wire = append(wire, m)
	}

	payload := map[string]any{
		"model":       c.config.Model,
		"temperature": c.config.Temperature,
		"maxTokens":   c.config.MaxTokens,
		"messages":    wire,
	}

	if len(toolset) > 0 {
		declared := make([]map[string]any, len(toolset))
		for i, t := range toolset {
			declared[i] = map[string]any{
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.JSONSchema(),
				},
			}
		}
		payload["tools"] = declared
	}

	return payload
}

func buildToolCalls(calls []tools.Call) []map[string]any {
	out := make([]map[string]any, len(calls))
	for i, call := range calls {
		out[i] = map[string]any{
			"functionCall": map[string]any{
				"name":      call.Name,
				"arguments": call.Arguments,
			},
		}
	}
	return out
}

func buildToolResults(results []tools.Result) []map[string]any {
	out := make([]map[string]any, len(results))
	for i, r := range results {
		out[i] = map[string]any{
			"functionResult": map[string]any{
				"name":    r.Name,
				"content": r.Content,
			},
		}
	}
	return out
}

// post makes a POST request with retry on retryable statuses.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.creds != nil {
		c.creds.Apply(req.Header)
	}

	return c.doWithRetry(ctx, req, body)
}

// doWithRetry performs the request, retrying rate limits and server errors.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = WrapError(err)
			c.logger.Warn("completion request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			c.logger.Warn("retrying completion request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error.Message != "":
			message = errResp.Error.Message
			code = errResp.Error.Code
		case errResp.Message != "":
			message = errResp.Message
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
	}
}

func parseToolCalls(list *wireToolCallList) []tools.Call {
	if list == nil {
		return nil
	}
	out := make([]tools.Call, 0, len(list.ToolCalls))
	for _, tc := range list.ToolCalls {
		out = append(out, tools.Call{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	return out
}

// Wire response types.
type completionResponse struct {
	Alternatives []struct {
		Status  string `json:"status"`
		Message struct {
			Role         string            `json:"role"`
			Text         string            `json:"text"`
			ToolCallList *wireToolCallList `json:"toolCallList"`
		} `json:"message"`
	} `json:"alternatives"`
	Usage struct {
		InputTextTokens  int `json:"inputTextTokens"`
		CompletionTokens int `json:"completionTokens"`
		TotalTokens      int `json:"totalTokens"`
	} `json:"usage"`
}

type wireToolCallList struct {
	ToolCalls []struct {
		ID           string `json:"id"`
		FunctionCall struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		} `json:"functionCall"`
	} `json:"toolCalls"`
}

// Verify Client implements Provider at compile time.
var _ Provider = (*Client)(nil)
