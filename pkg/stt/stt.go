// Package stt adapts the streaming speech recognition provider.
//
// A Session is one live recognition stream: audio goes in, transcript
// events come out tagged interim or final. The provider enforces a
// maximum stream duration, so the client transparently renews the
// underlying connection shortly before the limit.
package stt

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrSessionClosed is returned when writing to a closed session.
	ErrSessionClosed = errors.New("stt: session closed")

	// ErrNotConnected is returned when the stream has no live connection.
	ErrNotConnected = errors.New("stt: not connected")
)

// TranscriptEvent is one recognition update.
type TranscriptEvent struct {
	// Text is the recognized utterance so far.
	Text string

	// Final marks the end of an utterance. Interim events may be
	// revised by later events; final ones never are.
	Final bool

	// Received is when the adapter saw the event.
	Received time.Time
}

// Session is one live recognition stream.
type Session interface {
	// WriteAudio submits one audio frame. Frames written during a
	// session renewal are best-effort.
	WriteAudio(data []byte) error

	// Events delivers transcript updates. The channel closes when the
	// stream ends; check Err afterwards.
	Events() <-chan TranscriptEvent

	// Err returns the terminal stream error, nil on clean shutdown.
	Err() error

	// Close tears the stream down. Idempotent.
	Close() error
}

// Provider opens recognition sessions.
type Provider interface {
	// Start opens a new recognition stream.
	Start(ctx context.Context) (Session, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}
