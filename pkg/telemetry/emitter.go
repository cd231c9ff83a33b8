package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the emitter queue depth before records are dropped.
const DefaultBufferSize = 256

// defaultWriteTimeout bounds each sink write issued by the worker.
const defaultWriteTimeout = 10 * time.Second

type recordKind int

const (
	kindEvent recordKind = iota
	kindLatency
	kindTranscript
	kindTool
	kindCallStart
	kindCallEnd
)

// record is one queued telemetry write.
type record struct {
	kind       recordKind
	callID     string
	eventType  string
	data       map[string]any
	metricType string
	valueMs    float64
	role       string
	content    string
	toolName   string
	toolArgs   map[string]any
	toolResult string
	success    bool
	latencyMs  int64
	phone      string
	room       string
	status     string
}

// Emitter decouples the call path from the sink: every Log method
// enqueues and returns immediately. When the queue is full the newest
// record is dropped, so a stalled backend degrades to lost analytics,
// never to a stalled call.
type Emitter struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	ch      chan record
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the queue depth.
func WithBufferSize(n int) EmitterOption {
	return func(e *Emitter) {
		if n > 0 {
			e.ch = make(chan record, n)
		}
	}
}

// WithEmitterLogger sets the structured logger.
func WithEmitterLogger(l *slog.Logger) EmitterOption {
	return func(e *Emitter) { e.logger = l.With("component", "telemetry.emitter") }
}

// WithWriteTimeout bounds each sink write.
func WithWriteTimeout(d time.Duration) EmitterOption {
	return func(e *Emitter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEmitter starts a background worker draining records into sink.
// Call Close to stop the worker and flush what is already queued.
func NewEmitter(sink Sink, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		sink:    sink,
		logger:  slog.Default().With("component", "telemetry.emitter"),
		timeout: defaultWriteTimeout,
		ch:      make(chan record, DefaultBufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	go e.drain()
	return e
}

// LogEvent enqueues a generic event record.
func (e *Emitter) LogEvent(callID, eventType string, data map[string]any) {
	e.enqueue(record{kind: kindEvent, callID: callID, eventType: eventType, data: data})
}

// LogLatencyMetric enqueues a latency sample.
func (e *Emitter) LogLatencyMetric(callID, metricType string, valueMs float64) {
	e.enqueue(record{kind: kindLatency, callID: callID, metricType: metricType, valueMs: valueMs})
}

// LogTranscript enqueues a transcript line.
func (e *Emitter) LogTranscript(callID, role, content string) {
	e.enqueue(record{kind: kindTranscript, callID: callID, role: role, content: content})
}

// LogToolExecution enqueues a tool invocation record.
func (e *Emitter) LogToolExecution(callID, name string, args map[string]any, result string, success bool, latencyMs int64) {
	e.enqueue(record{
		kind: kindTool, callID: callID, toolName: name, toolArgs: args,
		toolResult: result, success: success, latencyMs: latencyMs,
	})
}

// LogCallStart enqueues a call-start record.
func (e *Emitter) LogCallStart(callID, phoneNumber, roomName string) {
	e.enqueue(record{kind: kindCallStart, callID: callID, phone: phoneNumber, room: roomName})
}

// LogCallEnd enqueues a call-end record.
func (e *Emitter) LogCallEnd(callID, status string, metrics map[string]any) {
	e.enqueue(record{kind: kindCallEnd, callID: callID, status: status, data: metrics})
}

// Dropped returns how many records were discarded due to backpressure.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close stops the worker after draining the queued records and closes
// the underlying sink. Idempotent.
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		close(e.ch)
		<-e.done
	})
	return e.sink.Close()
}

// enqueue adds a record without blocking; drops the newest under load.
func (e *Emitter) enqueue(r record) {
	defer func() {
		// Sends after Close race with channel shutdown; a dropped
		// record is acceptable, a panic in the call path is not.
		if recover() != nil {
			e.dropped.Add(1)
		}
	}()

	select {
	case e.ch <- r:
	default:
		if e.dropped.Add(1)%100 == 1 {
			e.logger.Warn("telemetry queue full, dropping records", "dropped", e.dropped.Load())
		}
	}
}

// drain is the worker loop. Sink failures are already non-fatal by
// contract; the emitter only counts them.
func (e *Emitter) drain() {
	defer close(e.done)

	for r := range e.ch {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		ok := e.write(ctx, r)
		cancel()
		if !ok {
			e.logger.Debug("telemetry write failed", "call_id", r.callID, "kind", int(r.kind))
		}
	}
}

func (e *Emitter) write(ctx context.Context, r record) bool {
	switch r.kind {
	case kindEvent:
		return e.sink.LogEvent(ctx, r.callID, r.eventType, r.data)
	case kindLatency:
		return e.sink.LogLatencyMetric(ctx, r.callID, r.metricType, r.valueMs)
	case kindTranscript:
		return e.sink.LogTranscript(ctx, r.callID, r.role, r.content)
	case kindTool:
		return e.sink.LogToolExecution(ctx, r.callID, r.toolName, r.toolArgs, r.toolResult, r.success, r.latencyMs)
	case kindCallStart:
		return e.sink.LogCallStart(ctx, r.callID, r.phone, r.room)
	case kindCallEnd:
		return e.sink.LogCallEnd(ctx, r.callID, r.status, r.data)
	}
	return false
}
