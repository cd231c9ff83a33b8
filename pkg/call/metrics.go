package call

import (
	"sync"
	"time"
)

// Stage names the pipeline marks tracked per turn.
type Stage string

const (
	// StageUserSpeechEnd is when the caller stopped speaking.
	StageUserSpeechEnd Stage = "user_speech_end"

	// StageSTTComplete is when the final transcript arrived.
	StageSTTComplete Stage = "stt_complete"

	// StageLLMFirstToken is when the completion produced its first output.
	StageLLMFirstToken Stage = "llm_first_token"

	// StageTTSFirstAudio is when the reply's first audio byte played.
	// Marking it completes the turn.
	StageTTSFirstAudio Stage = "tts_first_audio"
)

// LatencyTracker accumulates per-turn pipeline marks and derives total
// turn latencies. A turn completes only when both the speech-end and
// first-audio marks exist; the derived latency is their difference.
type LatencyTracker struct {
	mu    sync.Mutex
	marks map[Stage]time.Time
	turns []time.Duration
}

// NewLatencyTracker creates an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{marks: make(map[Stage]time.Time)}
}

// Mark records a stage timestamp at the current time.
func (t *LatencyTracker) Mark(stage Stage) {
	t.MarkAt(stage, time.Now())
}

// MarkAt records a stage timestamp. Marking TTS first audio closes the
// turn when a speech-end mark exists; marks then reset for the next
// turn. An inverted pair (audio before speech end) is discarded.
func (t *LatencyTracker) MarkAt(stage Stage, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.marks[stage] = at

	if stage != StageTTSFirstAudio {
		return
	}
	speechEnd, ok := t.marks[StageUserSpeechEnd]
	if !ok {
		return
	}
	if latency := at.Sub(speechEnd); latency >= 0 {
		t.turns = append(t.turns, latency)
	}
	t.marks = make(map[Stage]time.Time)
}

// TurnCount returns how many turns completed.
func (t *LatencyTracker) TurnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}

// Turns returns the derived per-turn latencies in order.
func (t *LatencyTracker) Turns() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.turns))
	copy(out, t.turns)
	return out
}

// Summary holds end-of-call latency statistics in milliseconds.
type Summary struct {
	TurnCount int
	AvgMs     float64
	MinMs     float64
	MaxMs     float64
}

// Summary computes count/avg/min/max over the completed turns.
func (t *LatencyTracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{TurnCount: len(t.turns)}
	if len(t.turns) == 0 {
		return s
	}

	var total time.Duration
	min, max := t.turns[0], t.turns[0]
	for _, d := range t.turns {
		total += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	s.AvgMs = float64(total.Milliseconds()) / float64(len(t.turns))
	s.MinMs = float64(min.Milliseconds())
	s.MaxMs = float64(max.Milliseconds())
	return s
}
