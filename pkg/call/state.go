// Package call orchestrates one phone call: it wires the conversation
// context, latency tracking, silence watchdog and provider adapters
// around a single RTC session and drives the call lifecycle.
package call

import (
	"sync"
	"sync/atomic"
)

// State is the per-call flag set shared between the termination
// triggers. Once ending is set it never reverts.
type State struct {
	ending atomic.Bool
	failed atomic.Bool

	mu     sync.Mutex
	reason string
}

// NewState creates a fresh call state.
func NewState() *State {
	return &State{}
}

// BeginEnding atomically transitions the call into ending. Returns true
// for exactly one caller; losers observe the call is already ending and
// must become no-ops.
func (s *State) BeginEnding(reason string) bool {
	if !s.ending.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
	return true
}

// Ending reports whether termination has begun.
func (s *State) Ending() bool {
	return s.ending.Load()
}

// EndReason returns why the call is ending, empty until BeginEnding.
func (s *State) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// MarkFailed records that the call hit a top-level failure.
func (s *State) MarkFailed() {
	s.failed.Store(true)
}

// Failed reports whether the call hit a top-level failure.
func (s *State) Failed() bool {
	return s.failed.Load()
}

// Status summarizes the call outcome for telemetry.
func (s *State) Status() string {
	if s.Failed() {
		return "failed"
	}
	return "completed"
}
