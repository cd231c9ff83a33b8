package call

import (
	"log/slog"
	"sync"
	"time"
)

// monitorState tracks the silence monitor lifecycle.
type monitorState int

const (
	monitorIdle monitorState = iota
	monitorRunning
	monitorStopped
)

// defaultPollInterval is how often the watchdog checks for inactivity.
const defaultPollInterval = time.Second

// SilenceMonitor watches caller inactivity. When nothing resets it for
// the configured timeout it invokes the callback exactly once and
// stops; it is a one-shot trigger, not a repeating alarm.
type SilenceMonitor struct {
	timeout  time.Duration
	interval time.Duration
	onExpire func()
	logger   *slog.Logger

	mu           sync.Mutex
	state        monitorState
	lastActivity time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSilenceMonitor creates an idle monitor. The callback runs on the
// monitor's own goroutine when the timeout fires.
func NewSilenceMonitor(timeout time.Duration, onExpire func(), logger *slog.Logger) *SilenceMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SilenceMonitor{
		timeout:  timeout,
		interval: defaultPollInterval,
		onExpire: onExpire,
		logger:   logger.With("component", "call.silence"),
	}
}

// Start transitions idle to running and spawns the polling loop. No-op
// in any other state.
func (m *SilenceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != monitorIdle {
		return
	}
	m.state = monitorRunning
	m.lastActivity = time.Now()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop()
}

// Reset refreshes the activity timestamp. Callable from any state, a
// no-op unless running.
func (m *SilenceMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == monitorRunning {
		m.lastActivity = time.Now()
	}
}

// Stop cancels the loop and waits for it to exit. Idempotent; safe to
// call even if the monitor never started or already fired.
func (m *SilenceMonitor) Stop() {
	m.mu.Lock()
	if m.state == monitorRunning {
		close(m.stop)
	}
	m.state = monitorStopped
	done := m.done
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the polling loop is active.
func (m *SilenceMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == monitorRunning
}

// loop polls elapsed inactivity. Firing the callback is terminal.
func (m *SilenceMonitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			elapsed := time.Since(m.lastActivity)
			expired := m.state == monitorRunning && elapsed >= m.timeout
			if expired {
				m.state = monitorStopped
			}
			m.mu.Unlock()

			if expired {
				m.logger.Info("silence timeout fired", "elapsed", elapsed)
				if m.onExpire != nil {
					m.onExpire()
				}
				return
			}
		}
	}
}
