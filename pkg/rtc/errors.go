package rtc

import "errors"

// Sentinel errors.
var (
	// ErrNoPlayoutSignal means the platform cannot report playout
	// completion; callers fall back to a fixed delay.
	ErrNoPlayoutSignal = errors.New("rtc: platform has no playout signal")

	// ErrSessionEnded is returned by operations on an ended session.
	ErrSessionEnded = errors.New("rtc: session ended")
)
