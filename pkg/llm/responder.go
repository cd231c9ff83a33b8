package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxline/voxline/pkg/tools"
)

// Responder drives the two-round tool-calling protocol on top of a
// Provider. One Respond call is one conversation turn: it always
// produces speakable text or an error, never an unresolved tool-call.
type Responder struct {
	provider      Provider
	exec          *tools.Executor
	holdThreshold time.Duration
	holdPhrase    string
	logger        *slog.Logger
}

// NewResponder creates a responder. Hold-phrase behavior and logging
// come from the same options as the client.
func NewResponder(p Provider, exec *tools.Executor, opts ...Option) *Responder {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Responder{
		provider:      p,
		exec:          exec,
		holdThreshold: cfg.HoldThreshold,
		holdPhrase:    cfg.HoldPhrase,
		logger:        cfg.Logger.With("component", "llm.responder"),
	}
}

// Respond runs one turn. When round one signals tool-call intent, the
// requested tools are executed sequentially and their results are sent
// back in round two. If round two asks for tools again the responder
// speaks the first tool result directly instead of looping.
func (r *Responder) Respond(ctx context.Context, rc *tools.RunContext, messages []Message) (string, error) {
	text, _, err := r.RespondWithUsage(ctx, rc, messages)
	return text, err
}

// RespondWithUsage is Respond plus the turn's accumulated token usage
// across both completion rounds.
func (r *Responder) RespondWithUsage(ctx context.Context, rc *tools.RunContext, messages []Message) (string, Usage, error) {
	var usage Usage

	round1, err := r.provider.Complete(ctx, messages, r.toolset())
	if err != nil {
		return "", usage, err
	}
	usage = addUsage(usage, round1.Usage)

	if !round1.WantsTools() {
		if round1.Text == "" {
			return "", usage, ErrNoSpeakableOutput
		}
		return round1.Text, usage, nil
	}

	calls := ensureCallIDs(round1.ToolCalls)
	r.logger.Info("provider requested tools", "count", len(calls))

	toolStart := time.Now()
	results := r.exec.ExecuteBatch(ctx, rc, calls)
	toolTime := time.Since(toolStart)

	round2Messages := append(append([]Message{}, messages...),
		NewToolCallMessage(calls),
		NewToolResultMessage(results),
	)

	round2, err := r.provider.Complete(ctx, round2Messages, r.toolset())
	if err != nil {
		return "", usage, err
	}
	usage = addUsage(usage, round2.Usage)

	text := round2.Text
	if round2.WantsTools() || text == "" {
		// Repeated tool-call intent would loop forever. Speak the first
		// tool result instead so the turn still produces output.
		r.logger.Warn("provider asked for tools again, speaking first result")
		if len(results) == 0 {
			return "", usage, ErrNoSpeakableOutput
		}
		text = results[0].Content
	}

	if r.holdPhrase != "" && r.holdThreshold > 0 && toolTime > r.holdThreshold {
		text = r.holdPhrase + " " + text
	}
	return text, usage, nil
}

func addUsage(a, b Usage) Usage {
	return Usage{
		InputTokens:      a.InputTokens + b.InputTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}

func (r *Responder) toolset() []tools.Tool {
	if r.exec == nil {
		return nil
	}
	return r.exec.Tools()
}

// ensureCallIDs fills in IDs the provider omitted.
func ensureCallIDs(calls []tools.Call) []tools.Call {
	out := make([]tools.Call, len(calls))
	copy(out, calls)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}
