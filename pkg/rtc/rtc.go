// Package rtc defines the boundary with the real-time media platform.
//
// The platform's own event objects never cross this boundary. A thin
// translation layer turns them into the tagged Event union below, so
// the orchestrator pattern-matches on event kinds instead of
// introspecting provider types.
package rtc

import (
	"context"
	"time"
)

// EventKind tags the Event union.
type EventKind int

const (
	// EventSpeakingStarted fires when the caller starts speaking.
	EventSpeakingStarted EventKind = iota

	// EventSpeakingStopped fires when the caller stops speaking.
	EventSpeakingStopped

	// EventTranscript carries a recognition update.
	EventTranscript

	// EventMetrics carries a pipeline stage latency sample.
	EventMetrics

	// EventError carries a non-fatal platform error.
	EventError

	// EventClosed fires once when the session ends. No events follow.
	EventClosed
)

// String returns the kind's name for logging.
func (k EventKind) String() string {
	switch k {
	case EventSpeakingStarted:
		return "speaking_started"
	case EventSpeakingStopped:
		return "speaking_stopped"
	case EventTranscript:
		return "transcript"
	case EventMetrics:
		return "metrics"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one tagged session event. Only the fields for its kind are set.
type Event struct {
	Kind EventKind

	// Transcript fields.
	Text  string
	Final bool

	// Metrics fields.
	Stage    string
	Duration time.Duration

	// Error field.
	Err error

	// Time is when the translation layer saw the platform event.
	Time time.Time
}

// Session is one live platform session for a single call.
type Session interface {
	// Connect joins the session's room and starts event delivery.
	Connect(ctx context.Context) error

	// GenerateReply asks the platform's agent pipeline to speak a reply
	// following the given instructions.
	GenerateReply(ctx context.Context, instructions string) error

	// WaitForPlayout blocks until queued audio finishes playing, or the
	// context expires. Platforms without a playout signal return
	// ErrNoPlayoutSignal immediately.
	WaitForPlayout(ctx context.Context) error

	// EndSession terminates the call on the platform side.
	EndSession(ctx context.Context) error

	// Events delivers session events. Closes after EventClosed.
	Events() <-chan Event

	// RoomName returns the platform room this session is bound to.
	RoomName() string
}
