package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxline/voxline/pkg/dialog"
	"github.com/voxline/voxline/pkg/llm"
	"github.com/voxline/voxline/pkg/rtc"
	"github.com/voxline/voxline/pkg/telemetry"
	"github.com/voxline/voxline/pkg/tools"
)

// Phase tracks the call lifecycle.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseGreeting
	PhaseConversing
	PhaseEnding
	PhaseTerminated
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseGreeting:
		return "greeting"
	case PhaseConversing:
		return "conversing"
	case PhaseEnding:
		return "ending"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config holds per-call orchestration settings.
type Config struct {
	// Greeting is the reply instruction issued right after connect,
	// before any caller input.
	Greeting string

	// Farewell is spoken when the silence watchdog ends the call.
	Farewell string

	// Apology is spoken when a turn fails before the call continues.
	Apology string

	// SystemPrompt seeds the conversation context.
	SystemPrompt string

	// MaxMessages bounds the conversation history.
	MaxMessages int

	// SilenceTimeout is the allowed caller inactivity.
	SilenceTimeout time.Duration

	// PlayoutWait bounds waiting on the platform's playout signal.
	PlayoutWait time.Duration

	// PlayoutFallback is the fixed delay used when the platform has no
	// playout signal.
	PlayoutFallback time.Duration
}

// DefaultConfig returns orchestration defaults.
func DefaultConfig() Config {
	return Config{
		Greeting:        "Greet the caller warmly and ask how you can help.",
		Farewell:        "It seems you are no longer there. Ending the call, goodbye.",
		Apology:         "Sorry, something went wrong on my side. Could you repeat that?",
		MaxMessages:     dialog.DefaultMaxMessages,
		SilenceTimeout:  30 * time.Second,
		PlayoutWait:     10 * time.Second,
		PlayoutFallback: 4 * time.Second,
	}
}

// Orchestrator drives one call from connect to teardown.
type Orchestrator struct {
	session   rtc.Session
	responder *llm.Responder
	emitter   *telemetry.Emitter
	config    Config
	logger    *slog.Logger

	callID  string
	dialog  *dialog.Context
	tracker *LatencyTracker
	monitor *SilenceMonitor
	state   *State

	phase         atomic.Int32
	prevTurnCount int
	usage         llm.Usage
	terminateOnce sync.Once
	cleanupOnce   sync.Once
}

// New creates an orchestrator for one call. A nil emitter gets a
// no-op telemetry sink so call sites stay unconditional.
func New(session rtc.Session, responder *llm.Responder, emitter *telemetry.Emitter, cfg Config, logger *slog.Logger) *Orchestrator {
	if emitter == nil {
		emitter = telemetry.NewEmitter(telemetry.Nop{})
	}
	if logger == nil {
		logger = slog.Default()
	}

	callID := uuid.NewString()
	o := &Orchestrator{
		session:   session,
		responder: responder,
		emitter:   emitter,
		config:    cfg,
		logger:    logger.With("component", "call.orchestrator", "call_id", callID),
		callID:    callID,
		dialog:    dialog.NewContext(callID, cfg.MaxMessages, cfg.SystemPrompt),
		tracker:   NewLatencyTracker(),
		state:     NewState(),
	}
	o.monitor = NewSilenceMonitor(cfg.SilenceTimeout, o.onSilenceTimeout, logger)
	return o
}

// CallID returns this call's identifier.
func (o *Orchestrator) CallID() string {
	return o.callID
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

// State exposes the call flags; the end_call tool and tests use it.
func (o *Orchestrator) State() *State {
	return o.state
}

// RunContext returns the per-call context handed to tool handlers. The
// EndCall hook only flags intent; teardown happens after the farewell
// reply finishes.
func (o *Orchestrator) RunContext() *tools.RunContext {
	return &tools.RunContext{
		CallID: o.callID,
		EndCall: func(reason string) {
			if o.state.BeginEnding(reason) {
				o.logger.Info("call end requested by tool", "reason", reason)
				o.emitter.LogEvent(o.callID, "end_call_tool", map[string]any{"reason": reason})
			}
		},
	}
}

// Run drives the call until the session closes or the context expires.
// Cleanup is guaranteed regardless of how the conversation exits.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.cleanup()

	o.setPhase(PhaseConnecting)
	if err := o.session.Connect(ctx); err != nil {
		o.state.MarkFailed()
		return fmt.Errorf("connect session: %w", err)
	}

	room := o.session.RoomName()
	phone, ok := PhoneFromRoom(room)
	if !ok {
		phone = room
	}
	o.emitter.LogCallStart(o.callID, phone, room)
	o.logger.Info("call connected", "room", room, "phone", phone)

	o.monitor.Start()

	o.setPhase(PhaseGreeting)
	if err := o.session.GenerateReply(ctx, o.config.Greeting); err != nil {
		o.logger.Warn("greeting failed", "error", err)
	}
	o.setPhase(PhaseConversing)

	for {
		select {
		case <-ctx.Done():
			o.state.BeginEnding("context cancelled")
			o.finishTermination(context.Background(), "")
			return ctx.Err()
		case ev, open := <-o.session.Events():
			if !open {
				return nil
			}
			done, err := o.handleEvent(ctx, ev)
			if err != nil {
				o.state.MarkFailed()
				o.state.BeginEnding("fatal error")
				o.finishTermination(ctx, "")
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// handleEvent dispatches one session event. A returned error is fatal
// for the call; done means the session closed.
func (o *Orchestrator) handleEvent(ctx context.Context, ev rtc.Event) (done bool, err error) {
	switch ev.Kind {
	case rtc.EventSpeakingStarted:
		o.monitor.Reset()

	case rtc.EventSpeakingStopped:
		o.monitor.Reset()
		o.tracker.MarkAt(StageUserSpeechEnd, ev.Time)

	case rtc.EventTranscript:
		o.monitor.Reset()
		if !ev.Final {
			return false, nil
		}
		o.tracker.MarkAt(StageSTTComplete, ev.Time)
		o.emitter.LogTranscript(o.callID, "user", ev.Text)
		return false, o.handleTurn(ctx, ev.Text)

	case rtc.EventMetrics:
		o.handleMetrics(ev)

	case rtc.EventError:
		o.logger.Error("session error", "error", ev.Err)
		o.emitter.LogEvent(o.callID, "session_error", map[string]any{"error": fmt.Sprint(ev.Err)})

	case rtc.EventClosed:
		o.logger.Info("session closed")
		return true, nil
	}
	return false, nil
}

// handleTurn runs one conversation turn. Provider failures are
// recoverable: apologize and keep the call alive. Only a failed apology
// escalates to the fatal path.
func (o *Orchestrator) handleTurn(ctx context.Context, text string) error {
	o.dialog.AddMessage(dialog.RoleUser, text)

	reply, usage, err := o.responder.RespondWithUsage(ctx, o.RunContext(), o.llmMessages())
	o.usage = llm.Usage{
		InputTokens:      o.usage.InputTokens + usage.InputTokens,
		CompletionTokens: o.usage.CompletionTokens + usage.CompletionTokens,
		TotalTokens:      o.usage.TotalTokens + usage.TotalTokens,
	}
	if err != nil {
		o.logger.Error("turn failed", "error", err)
		o.emitter.LogEvent(o.callID, "turn_failed", map[string]any{"error": err.Error()})
		if aerr := o.session.GenerateReply(ctx, o.config.Apology); aerr != nil {
			return fmt.Errorf("turn failed and apology undeliverable: %w", errors.Join(err, aerr))
		}
		return nil
	}

	o.tracker.Mark(StageLLMFirstToken)
	o.dialog.AddMessage(dialog.RoleAssistant, reply)
	o.emitter.LogTranscript(o.callID, "assistant", reply)

	if err := o.session.GenerateReply(ctx, reply); err != nil {
		o.logger.Warn("reply delivery failed", "error", err)
	}

	// A tool may have flagged the call for ending; the reply just
	// delivered was the farewell.
	if o.state.Ending() {
		o.finishTermination(ctx, "")
	}
	return nil
}

// handleMetrics folds a platform latency sample into the tracker and
// forwards it to telemetry.
func (o *Orchestrator) handleMetrics(ev rtc.Event) {
	o.emitter.LogLatencyMetric(o.callID, ev.Stage, float64(ev.Duration.Milliseconds()))

	switch stage := Stage(ev.Stage); stage {
	case StageUserSpeechEnd, StageSTTComplete, StageLLMFirstToken, StageTTSFirstAudio:
		o.tracker.MarkAt(stage, ev.Time)
	default:
		return
	}

	if count := o.tracker.TurnCount(); count > o.prevTurnCount {
		o.prevTurnCount = count
		turns := o.tracker.Turns()
		latency := turns[len(turns)-1]
		o.logger.Info("turn completed", "turn", count, "latency_ms", latency.Milliseconds())
		o.emitter.LogLatencyMetric(o.callID, "turn_total", float64(latency.Milliseconds()))
	}
}

// onSilenceTimeout runs on the watchdog goroutine when the caller goes
// quiet. Exactly one termination trigger wins the ending flag.
func (o *Orchestrator) onSilenceTimeout() {
	if !o.state.BeginEnding("silence timeout") {
		return
	}
	o.logger.Info("silence timeout, ending call")
	o.emitter.LogEvent(o.callID, "silence_timeout", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	o.finishTermination(ctx, o.config.Farewell)
}

// finishTermination runs the hangup sequence exactly once: optional
// farewell, bounded playout wait, then session teardown.
func (o *Orchestrator) finishTermination(ctx context.Context, farewell string) {
	o.terminateOnce.Do(func() {
		o.setPhase(PhaseEnding)

		if farewell != "" {
			if err := o.session.GenerateReply(ctx, farewell); err != nil {
				o.logger.Warn("farewell failed", "error", err)
			}
		}

		o.waitPlayout(ctx)

		if err := o.session.EndSession(ctx); err != nil {
			o.logger.Warn("end session failed", "error", err)
		}
	})
}

// waitPlayout lets queued audio finish before hangup, preferring the
// platform's signal and falling back to a fixed delay without one.
func (o *Orchestrator) waitPlayout(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, o.config.PlayoutWait)
	defer cancel()

	err := o.session.WaitForPlayout(wctx)
	if err == nil {
		return
	}
	if errors.Is(err, rtc.ErrNoPlayoutSignal) {
		select {
		case <-time.After(o.config.PlayoutFallback):
		case <-ctx.Done():
		}
		return
	}
	o.logger.Warn("playout wait failed", "error", err)
}

// cleanup runs exactly once after the call: stop the watchdog, flush
// the latency summary and record the call outcome.
func (o *Orchestrator) cleanup() {
	o.cleanupOnce.Do(func() {
		o.monitor.Stop()

		summary := o.tracker.Summary()
		o.emitter.LogCallEnd(o.callID, o.state.Status(), map[string]any{
			"turn_count":        summary.TurnCount,
			"avg_ms":            summary.AvgMs,
			"min_ms":            summary.MinMs,
			"max_ms":            summary.MaxMs,
			"end_reason":        o.state.EndReason(),
			"message_count":     o.dialog.Len(),
			"input_tokens":      o.usage.InputTokens,
			"completion_tokens": o.usage.CompletionTokens,
			"total_tokens":      o.usage.TotalTokens,
		})

		o.setPhase(PhaseTerminated)
		o.logger.Info("call finished",
			"status", o.state.Status(),
			"reason", o.state.EndReason(),
			"turns", summary.TurnCount,
			"avg_latency_ms", summary.AvgMs,
		)
	})
}

// llmMessages converts the dialog history to completion messages.
func (o *Orchestrator) llmMessages() []llm.Message {
	history := o.dialog.ToLLMMessages()
	out := make([]llm.Message, len(history))
	for i, m := range history {
		out[i] = llm.Message{
			Role:    llm.NormalizeRole(string(m.Role)),
			Content: m.Content,
		}
	}
	return out
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase.Store(int32(p))
}
