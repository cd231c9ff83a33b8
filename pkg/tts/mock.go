package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	// StreamFunc is called when Stream is invoked.
	StreamFunc func(ctx context.Context, out Output) (Stream, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a mock that returns a short silent PCM buffer for
// every utterance.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			audio := make([]byte, 320)
			format := AudioFormat{Encoding: EncodingLPCM, SampleRate: 16000, Channels: 1}
			return &AudioResult{
				Audio:     audio,
				Format:    format,
				Duration:  EstimateDuration(len(audio), format.SampleRate, format.Channels),
				CharCount: len(text),
			}, nil
		},
	}
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return nil, ErrProviderUnavailable
}

// Stream calls StreamFunc and records the call. Without StreamFunc it
// returns a MockStream that synthesizes each segment via Synthesize.
func (m *Mock) Stream(ctx context.Context, out Output) (Stream, error) {
	m.record("Stream", "")
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, out)
	}
	return &MockStream{provider: m, out: out, ctx: ctx}, nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close releases nothing.
func (m *Mock) Close() error {
	m.record("Close", "")
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// MockStream synthesizes segments synchronously through the mock
// provider, initializing the output on the first audio byte.
type MockStream struct {
	provider *Mock
	out      Output
	ctx      context.Context

	mu     sync.Mutex
	inited bool
	closed bool
	err    error
}

// WriteText synthesizes one segment immediately.
func (s *MockStream) WriteText(segment string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.mu.Unlock()

	result, err := s.provider.Synthesize(s.ctx, segment)
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return err
	}

	if len(result.Audio) == 0 {
		return nil
	}

	s.mu.Lock()
	first := !s.inited
	s.inited = true
	s.mu.Unlock()

	if first {
		if err := s.out.Init(result.Format); err != nil {
			return err
		}
	}
	return s.out.Write(result.Audio)
}

// Flush is immediate for the synchronous mock.
func (s *MockStream) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close marks the stream closed. Idempotent.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Verify implementations at compile time.
var (
	_ Provider = (*Mock)(nil)
	_ Stream   = (*MockStream)(nil)
)
