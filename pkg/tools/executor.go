package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/voxline/voxline/pkg/telemetry"
)

// Executor is the name-to-tool registry. Register everything at process
// start; after that the registry is read-only and safe for concurrent
// lookups from per-call goroutines.
type Executor struct {
	tools    map[string]Tool
	schemas  map[string]*jsonschema.Schema
	compiler *jsonschema.Compiler
	emitter  *telemetry.Emitter
	timeout  time.Duration
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTelemetry attaches the fire-and-forget analytics emitter.
func WithTelemetry(em *telemetry.Emitter) ExecutorOption {
	return func(e *Executor) { e.emitter = em }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l.With("component", "tools.executor") }
}

// WithTimeout bounds each tool execution. Zero means no bound beyond
// the caller's context.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// NewExecutor creates an executor and registers the given tools.
func NewExecutor(toolset []Tool, opts ...ExecutorOption) *Executor {
	e := &Executor{
		tools:    make(map[string]Tool),
		schemas:  make(map[string]*jsonschema.Schema),
		compiler: jsonschema.NewCompiler(),
		logger:   slog.Default().With("component", "tools.executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, t := range toolset {
		e.Register(t)
	}
	return e
}

// Register adds a tool. Duplicate names overwrite the previous
// registration; last one wins. Intended for test overrides.
func (e *Executor) Register(t Tool) {
	e.tools[t.Name] = t

	raw, err := json.Marshal(t.JSONSchema())
	if err == nil {
		if schema, cerr := e.compiler.Compile(raw); cerr == nil {
			e.schemas[t.Name] = schema
		} else {
			err = cerr
		}
	}
	if err != nil {
		// Tool still runs, just without upfront argument validation.
		e.logger.Warn("tool schema rejected, skipping validation", "tool", t.Name, "error", err)
		delete(e.schemas, t.Name)
	}

	e.logger.Debug("registered tool", "tool", t.Name)
}

// Names returns all registered tool names, sorted.
func (e *Executor) Names() []string {
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a tool is registered under name.
func (e *Executor) Has(name string) bool {
	_, ok := e.tools[name]
	return ok
}

// Tools returns the registered tools in name order, for building the
// completion request's tool declarations.
func (e *Executor) Tools() []Tool {
	out := make([]Tool, 0, len(e.tools))
	for _, name := range e.Names() {
		out = append(out, e.tools[name])
	}
	return out
}

// Execute runs a tool by exact name and returns its textual result.
// Never returns an error: unknown tools, invalid arguments, handler
// errors and panics all become descriptive strings the model can speak.
func (e *Executor) Execute(ctx context.Context, rc *RunContext, name string, args map[string]any) string {
	if rc == nil {
		rc = &RunContext{}
	}
	if args == nil {
		args = map[string]any{}
	}

	tool, ok := e.tools[name]
	if !ok {
		result := fmt.Sprintf("Error: tool not found: %s. Available: %s", name, strings.Join(e.Names(), ", "))
		e.logger.Error("tool not found", "tool", name)
		e.report(rc.CallID, name, args, result, false, 0)
		return result
	}

	if schema, ok := e.schemas[name]; ok {
		if result := e.validate(schema, args); result != "" {
			result = fmt.Sprintf("Error: invalid arguments for %s: %s", name, result)
			e.logger.Error("tool argument validation failed", "tool", name, "error", result)
			e.report(rc.CallID, name, args, result, false, 0)
			return result
		}
	}

	e.logger.Info("executing tool", "tool", name, "args", args)

	start := time.Now()
	result, err := e.invoke(ctx, tool, rc, args)
	latency := time.Since(start).Milliseconds()
	success := err == nil

	if err != nil {
		result = fmt.Sprintf("Error: tool %s failed: %v", name, err)
		e.logger.Error("tool failed", "tool", name, "error", err, "latency_ms", latency)
	} else {
		e.logger.Info("tool completed", "tool", name, "latency_ms", latency)
	}

	e.report(rc.CallID, name, args, result, success, latency)
	return result
}

// ExecuteBatch runs calls sequentially in input order, pairing each
// result with the originating call so the completion adapter can build
// its result message.
func (e *Executor) ExecuteBatch(ctx context.Context, rc *RunContext, calls []Call) []Result {
	results := make([]Result, 0, len(calls))
	for _, c := range calls {
		results = append(results, Result{
			CallID:  c.ID,
			Name:    c.Name,
			Content: e.Execute(ctx, rc, c.Name, c.Arguments),
		})
	}
	return results
}

// invoke runs the handler with panic containment and the configured
// per-execution timeout.
func (e *Executor) invoke(ctx context.Context, tool Tool, rc *RunContext, args map[string]any) (result string, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	result, err = tool.Handler(ctx, rc, args)
	if err == nil && result == "" {
		result = "OK"
	}
	return result, err
}

// validate checks args against the compiled schema, returning an empty
// string when valid or a compact description of the violations.
func (e *Executor) validate(schema *jsonschema.Schema, args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return err.Error()
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return err.Error()
	}
	result := schema.Validate(instance)
	if result.IsValid() {
		return ""
	}
	return fmt.Sprintf("%v", result.Errors)
}

// report fires one best-effort telemetry write. Only attempted when a
// call is in flight; telemetry must never affect the turn outcome.
func (e *Executor) report(callID, name string, args map[string]any, result string, success bool, latencyMs int64) {
	if e.emitter == nil || callID == "" {
		return
	}
	e.emitter.LogToolExecution(callID, name, args, result, success, latencyMs)
}
