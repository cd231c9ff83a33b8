package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxline/voxline/internal/httpc"
)

// Table names used by the REST sink. The backend exposes them as
// PostgREST-style insert endpoints under /rest/v1/<table>.
const (
	tableCalls          = "calls"
	tableEvents         = "call_events"
	tableMetrics        = "call_metrics"
	tableTranscripts    = "transcripts"
	tableToolExecutions = "tool_executions"
)

// resultSnippetLimit bounds stored tool results.
const resultSnippetLimit = 500

// RESTSink writes analytics rows to a hosted Postgres REST backend.
type RESTSink struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// RESTOption configures a RESTSink.
type RESTOption func(*RESTSink)

// WithRESTClient overrides the HTTP client.
func WithRESTClient(c *http.Client) RESTOption {
	return func(s *RESTSink) { s.http = c }
}

// WithRESTLogger sets the structured logger.
func WithRESTLogger(l *slog.Logger) RESTOption {
	return func(s *RESTSink) { s.logger = l.With("component", "telemetry.rest") }
}

// NewRESTSink creates a sink writing to baseURL with the given service key.
func NewRESTSink(baseURL, apiKey string, opts ...RESTOption) *RESTSink {
	s := &RESTSink{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpc.Client,
		logger:  slog.Default().With("component", "telemetry.rest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogEvent inserts a row into call_events.
func (s *RESTSink) LogEvent(ctx context.Context, callID, eventType string, data map[string]any) bool {
	return s.insert(ctx, tableEvents, map[string]any{
		"call_id":    callID,
		"event_type": eventType,
		"data":       orEmpty(data),
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// LogLatencyMetric inserts a row into call_metrics.
func (s *RESTSink) LogLatencyMetric(ctx context.Context, callID, metricType string, valueMs float64) bool {
	return s.insert(ctx, tableMetrics, map[string]any{
		"call_id":     callID,
		"metric_type": metricType,
		"value_ms":    valueMs,
		"recorded_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// LogTranscript inserts a row into transcripts.
func (s *RESTSink) LogTranscript(ctx context.Context, callID, role, content string) bool {
	return s.insert(ctx, tableTranscripts, map[string]any{
		"call_id":   callID,
		"role":      role,
		"content":   content,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// LogToolExecution inserts a row into tool_executions.
func (s *RESTSink) LogToolExecution(ctx context.Context, callID, name string, args map[string]any, result string, success bool, latencyMs int64) bool {
	if len(result) > resultSnippetLimit {
		result = result[:resultSnippetLimit]
	}
	return s.insert(ctx, tableToolExecutions, map[string]any{
		"call_id":     callID,
		"tool_name":   name,
		"parameters":  orEmpty(args),
		"result":      map[string]any{"value": result},
		"success":     success,
		"latency_ms":  latencyMs,
		"executed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// LogCallStart inserts a row into calls.
func (s *RESTSink) LogCallStart(ctx context.Context, callID, phoneNumber, roomName string) bool {
	return s.insert(ctx, tableCalls, map[string]any{
		"call_id":      callID,
		"phone_number": phoneNumber,
		"room_name":    roomName,
		"status":       "active",
		"start_time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// LogCallEnd inserts a completion row into calls.
func (s *RESTSink) LogCallEnd(ctx context.Context, callID, status string, metrics map[string]any) bool {
	return s.insert(ctx, tableCalls, map[string]any{
		"call_id":  callID,
		"status":   status,
		"end_time": time.Now().UTC().Format(time.RFC3339Nano),
		"metadata": map[string]any{"metrics": orEmpty(metrics)},
	})
}

// Close releases idle connections.
func (s *RESTSink) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

// insert POSTs one row. Failures are logged and reported as false,
// never raised: the sink contract is best-effort.
func (s *RESTSink) insert(ctx context.Context, table string, row map[string]any) bool {
	body, err := json.Marshal(row)
	if err != nil {
		s.logger.Warn("marshal row", "table", table, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/rest/v1/"+table, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("create request", "table", table, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("insert failed", "table", table, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("insert rejected", "table", table, "status", resp.StatusCode)
		return false
	}
	return true
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Verify RESTSink implements Sink at compile time.
var _ Sink = (*RESTSink)(nil)
