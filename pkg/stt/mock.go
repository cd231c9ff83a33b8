package stt

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// StartFunc is called when Start is invoked.
	StartFunc func(ctx context.Context) (Session, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	mu     sync.Mutex
	starts int
}

// Start calls StartFunc and records the call. Without StartFunc it
// returns a fresh MockSession.
func (m *Mock) Start(ctx context.Context) (Session, error) {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()

	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return NewMockSession(), nil
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close releases nothing.
func (m *Mock) Close() error { return nil }

// Starts returns how many sessions were opened.
func (m *Mock) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// MockSession is a scriptable Session for tests.
type MockSession struct {
	mu      sync.Mutex
	events  chan TranscriptEvent
	written [][]byte
	err     error
	closed  bool
}

// NewMockSession creates an open mock session.
func NewMockSession() *MockSession {
	return &MockSession{events: make(chan TranscriptEvent, 32)}
}

// Emit pushes a transcript event to the consumer.
func (s *MockSession) Emit(text string, final bool) {
	s.events <- TranscriptEvent{Text: text, Final: final}
}

// Fail records a terminal error and ends the stream.
func (s *MockSession) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.events)
}

// WriteAudio records the frame.
func (s *MockSession) WriteAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.written = append(s.written, data)
	return nil
}

// Events delivers scripted events.
func (s *MockSession) Events() <-chan TranscriptEvent { return s.events }

// Err returns the scripted terminal error.
func (s *MockSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream cleanly. Idempotent.
func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Written returns all submitted audio frames.
func (s *MockSession) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}

// Verify implementations at compile time.
var (
	_ Provider = (*Mock)(nil)
	_ Session  = (*MockSession)(nil)
)
