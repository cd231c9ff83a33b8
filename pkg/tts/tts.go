// Package tts provides a unified interface for speech synthesis providers.
//
// Two synthesis modes are supported: whole-utterance synthesis for short
// replies, and segment streaming where text arrives incrementally and
// audio starts flowing before the full reply is known. A streaming
// output is initialized exactly once, on the first audio byte, so a
// synthesis failure before any audio never produces an empty header.
package tts

import (
	"context"
	"time"
)

// Provider defines the synthesis provider interface.
type Provider interface {
	// Synthesize converts one complete utterance to audio.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream opens a segment stream delivering audio into out.
	Stream(ctx context.Context, out Output) (Stream, error)

	// Health checks provider connectivity and key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Stream accepts text segments as they become available.
type Stream interface {
	// WriteText queues one text segment for synthesis.
	WriteText(segment string) error

	// Flush waits until all queued segments have produced audio.
	Flush(ctx context.Context) error

	// Close abandons the stream. Idempotent.
	Close() error
}

// Output receives synthesized audio. Init runs exactly once, before the
// first Write, and only after the first audio byte exists.
type Output interface {
	// Init prepares the output for the given format.
	Init(format AudioFormat) error

	// Write delivers one audio chunk.
	Write(chunk []byte) error
}

// AudioResult represents a complete synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio container/codec.
	Encoding Encoding

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo. Telephony is mono.
	Channels int
}

// Encoding represents synthesis output formats.
type Encoding string

const (
	// EncodingLPCM is raw 16-bit little-endian PCM, the format the call
	// pipeline feeds to the RTC platform.
	EncodingLPCM Encoding = "lpcm"

	// EncodingOggOpus is Opus in an Ogg container.
	EncodingOggOpus Encoding = "oggopus"

	// EncodingMP3 is MP3, for debugging dumps only.
	EncodingMP3 Encoding = "mp3"
)

// EstimateDuration approximates playback time for raw PCM audio.
func EstimateDuration(byteCount, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteCount / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
