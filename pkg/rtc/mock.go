package rtc

import (
	"context"
	"sync"
	"time"
)

// Mock implements Session for testing. Tests emit events and inspect
// the replies the orchestrator requested.
type Mock struct {
	// Room is returned by RoomName.
	Room string

	// ConnectErr is returned by Connect when set.
	ConnectErr error

	// PlayoutErr is returned by WaitForPlayout when set. Defaults to
	// ErrNoPlayoutSignal so orchestrator tests exercise the fallback.
	PlayoutErr error

	// PlayoutDelay simulates audio still playing.
	PlayoutDelay time.Duration

	mu       sync.Mutex
	events   chan Event
	replies  []string
	ended    bool
	endCount int
}

// NewMock creates a mock session for the given room.
func NewMock(room string) *Mock {
	return &Mock{
		Room:       room,
		PlayoutErr: ErrNoPlayoutSignal,
		events:     make(chan Event, 64),
	}
}

// Connect returns ConnectErr.
func (m *Mock) Connect(ctx context.Context) error {
	return m.ConnectErr
}

// GenerateReply records the requested instructions.
func (m *Mock) GenerateReply(ctx context.Context, instructions string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return ErrSessionEnded
	}
	m.replies = append(m.replies, instructions)
	return nil
}

// WaitForPlayout simulates the platform's playout signal.
func (m *Mock) WaitForPlayout(ctx context.Context) error {
	if m.PlayoutErr != nil {
		return m.PlayoutErr
	}
	select {
	case <-time.After(m.PlayoutDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EndSession marks the session ended and emits EventClosed once.
func (m *Mock) EndSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endCount++
	if m.ended {
		return nil
	}
	m.ended = true
	m.events <- Event{Kind: EventClosed, Time: time.Now()}
	close(m.events)
	return nil
}

// Events delivers emitted events.
func (m *Mock) Events() <-chan Event {
	return m.events
}

// RoomName returns the configured room.
func (m *Mock) RoomName() string {
	return m.Room
}

// Emit pushes one event to the consumer. No-op after EndSession.
func (m *Mock) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.events <- ev
}

// Replies returns all requested reply instructions in order.
func (m *Mock) Replies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.replies))
	copy(out, m.replies)
	return out
}

// EndCount returns how many times EndSession was called.
func (m *Mock) EndCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endCount
}

// Ended reports whether the session was terminated.
func (m *Mock) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

// Verify Mock implements Session at compile time.
var _ Session = (*Mock)(nil)
