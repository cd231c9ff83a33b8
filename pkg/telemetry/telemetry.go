// Package telemetry writes call analytics to an external sink.
//
// All writes are best-effort: every Sink method returns a success flag
// instead of an error, and callers must never treat false as fatal. The
// Emitter wraps a Sink behind a bounded queue so the call's event loop
// is never blocked by a slow analytics backend.
package telemetry

import (
	"context"
)

// Sink is the destination for call analytics. Implementations return
// false on failure; they never panic and never block beyond their own
// request timeout.
type Sink interface {
	// LogEvent records a generic call event.
	LogEvent(ctx context.Context, callID, eventType string, data map[string]any) bool

	// LogLatencyMetric records one latency sample in milliseconds.
	LogLatencyMetric(ctx context.Context, callID, metricType string, valueMs float64) bool

	// LogTranscript records one side of the conversation.
	LogTranscript(ctx context.Context, callID, role, content string) bool

	// LogToolExecution records a tool invocation with its outcome.
	LogToolExecution(ctx context.Context, callID, name string, args map[string]any, result string, success bool, latencyMs int64) bool

	// LogCallStart records call establishment.
	LogCallStart(ctx context.Context, callID, phoneNumber, roomName string) bool

	// LogCallEnd records call completion with summary metrics.
	LogCallEnd(ctx context.Context, callID, status string, metrics map[string]any) bool

	// Close releases sink resources.
	Close() error
}

// Nop is a Sink that discards everything. Used when analytics is not
// configured; keeps call sites unconditional.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, map[string]any) bool { return true }

func (Nop) LogLatencyMetric(context.Context, string, string, float64) bool { return true }

func (Nop) LogTranscript(context.Context, string, string, string) bool { return true }

func (Nop) LogToolExecution(context.Context, string, string, map[string]any, string, bool, int64) bool {
	return true
}
func (Nop) LogCallStart(context.Context, string, string, string) bool { return true }

func (Nop) LogCallEnd(context.Context, string, string, map[string]any) bool { return true }

func (Nop) Close() error { return nil }

// Verify Nop implements Sink at compile time.
var _ Sink = Nop{}
