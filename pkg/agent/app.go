// Package agent assembles the voice assistant worker: provider
// adapters, tool registry, telemetry and the platform dispatcher, with
// one call orchestrator per inbound session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxline/voxline/pkg/call"
	"github.com/voxline/voxline/pkg/config"
	"github.com/voxline/voxline/pkg/creds"
	"github.com/voxline/voxline/pkg/health"
	"github.com/voxline/voxline/pkg/llm"
	"github.com/voxline/voxline/pkg/rtc"
	"github.com/voxline/voxline/pkg/stt"
	"github.com/voxline/voxline/pkg/telemetry"
	"github.com/voxline/voxline/pkg/tools"
	"github.com/voxline/voxline/pkg/tts"
)

// App is the assembled worker. Create with New, then Init, Run,
// Shutdown.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	creds      *creds.Credentials
	sttClient  *stt.Client
	ttsChain   *tts.Chain
	llmClient  *llm.Client
	responder  *llm.Responder
	executor   *tools.Executor
	emitter    *telemetry.Emitter
	dispatcher *rtc.Dispatcher
}

// New validates the configuration and returns an unwired app.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger.With("component", "agent")}, nil
}

// Init builds every adapter and verifies the dependency services are
// reachable. A failed required probe is a startup error.
func (a *App) Init(ctx context.Context) error {
	cr, err := creds.FromEnv()
	if err != nil {
		return err
	}
	a.creds = cr

	if err := a.buildTelemetry(ctx); err != nil {
		return err
	}
	if err := a.buildProviders(); err != nil {
		return err
	}
	a.buildTools()

	a.responder = llm.NewResponder(a.llmClient, a.executor,
		llm.WithHoldPhrase(a.holdPhrase(), time.Second),
		llm.WithLogger(a.logger),
	)

	dispatcher, err := rtc.NewDispatcher(rtc.DispatcherConfig{
		URL:       a.cfg.RTC.URL,
		AgentName: a.cfg.Identity.Name,
		APIKey:    a.cfg.RTC.APIKey,
		APISecret: a.cfg.RTC.APISecret,
		Logger:    a.logger,
	}, a.handleSession)
	if err != nil {
		return err
	}
	a.dispatcher = dispatcher

	return a.checkHealth(ctx)
}

// Run serves inbound calls until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("agent ready",
		"agent", a.cfg.Identity.Name,
		"tools", strings.Join(a.executor.Names(), ","),
	)
	err := a.dispatcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases provider connections and flushes telemetry.
func (a *App) Shutdown() {
	if a.sttClient != nil {
		a.sttClient.Close()
	}
	if a.ttsChain != nil {
		a.ttsChain.Close()
	}
	if a.llmClient != nil {
		a.llmClient.Close()
	}
	if a.emitter != nil {
		a.emitter.Close()
	}
	a.logger.Info("agent stopped")
}

// handleSession runs one call to completion.
func (a *App) handleSession(ctx context.Context, session rtc.Session) {
	cfg := call.DefaultConfig()
	cfg.Greeting = a.cfg.Identity.Greeting
	cfg.Farewell = a.cfg.Identity.Farewell
	cfg.Apology = a.cfg.Identity.Apology
	cfg.SystemPrompt = a.cfg.Identity.SystemPrompt
	cfg.SilenceTimeout = a.cfg.SilenceTimeout

	orch := call.New(session, a.responder, a.emitter, cfg, a.logger)

	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("call failed", "call_id", orch.CallID(), "room", session.RoomName(), "error", err)
	}
}

func (a *App) buildTelemetry(ctx context.Context) error {
	var sink telemetry.Sink = telemetry.Nop{}
	switch {
	case a.cfg.Telemetry.URL != "":
		sink = telemetry.NewRESTSink(a.cfg.Telemetry.URL, a.cfg.Telemetry.APIKey,
			telemetry.WithRESTLogger(a.logger))
	case a.cfg.Telemetry.DBPath != "":
		s, err := telemetry.OpenSQLite(ctx, a.cfg.Telemetry.DBPath, a.logger)
		if err != nil {
			return fmt.Errorf("open telemetry db: %w", err)
		}
		sink = s
	default:
		a.logger.Warn("telemetry not configured, analytics disabled")
	}
	a.emitter = telemetry.NewEmitter(sink, telemetry.WithEmitterLogger(a.logger))
	return nil
}

func (a *App) buildProviders() error {
	sttClient, err := stt.NewClient(a.creds,
		stt.WithURL(a.cfg.Providers.STTURL),
		stt.WithLanguage(a.cfg.Providers.STTLanguage),
		stt.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.sttClient = sttClient

	var ttsOpts []tts.Option
	if a.cfg.Providers.TTSURL != "" {
		ttsOpts = append(ttsOpts, tts.WithBaseURL(a.cfg.Providers.TTSURL))
	}
	ttsOpts = append(ttsOpts,
		tts.WithVoice(a.cfg.Providers.TTSVoice),
		tts.WithLogger(a.logger),
	)
	ttsClient, err := tts.NewClient(a.creds, ttsOpts...)
	if err != nil {
		return err
	}
	chain, err := tts.NewChainWithLogger(a.logger, ttsClient)
	if err != nil {
		return err
	}
	a.ttsChain = chain

	var llmOpts []llm.Option
	if a.cfg.Providers.LLMURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(a.cfg.Providers.LLMURL))
	}
	llmOpts = append(llmOpts,
		llm.WithModel(a.cfg.Providers.LLMModel),
		llm.WithTemperature(a.cfg.Providers.LLMTemperature),
		llm.WithMaxTokens(a.cfg.Providers.LLMMaxTokens),
		llm.WithLogger(a.logger),
	)
	llmClient, err := llm.NewClient(a.creds, llmOpts...)
	if err != nil {
		return err
	}
	a.llmClient = llmClient
	return nil
}

func (a *App) buildTools() {
	toolset := []tools.Tool{
		tools.EndCallTool(),
		tools.TimeTool(time.Local),
	}
	if !a.cfg.DisableWeatherTool {
		toolset = append(toolset, tools.WeatherTool(nil))
	}
	a.executor = tools.NewExecutor(toolset,
		tools.WithTelemetry(a.emitter),
		tools.WithTimeout(a.cfg.ToolTimeout),
		tools.WithLogger(a.logger),
	)
}

// checkHealth probes every dependency. STT, TTS and LLM are required;
// the RTC endpoint is probed for reachability only since registration
// retries anyway.
func (a *App) checkHealth(ctx context.Context) error {
	checker := health.NewChecker(health.WithLogger(a.logger))
	a.addProbes(checker)
	results := checker.Run(ctx)
	if !health.AllHealthy(results) {
		return fmt.Errorf("agent: unhealthy services: %s", strings.Join(health.Unhealthy(results), ", "))
	}
	return nil
}

func (a *App) addProbes(checker *health.Checker) {
	checker.AddEndpoint("rtc", a.cfg.RTC.URL)
	checker.AddService("stt", a.sttClient)
	checker.AddService("tts", a.ttsChain)
	checker.AddService("llm", a.llmClient)
}

// Probe builds the provider adapters and runs the dependency probes
// without registering with the platform. Used by the healthcheck CLI.
func (a *App) Probe(ctx context.Context, timeout time.Duration) ([]health.Result, error) {
	cr, err := creds.FromEnv()
	if err != nil {
		return nil, err
	}
	a.creds = cr
	if err := a.buildProviders(); err != nil {
		return nil, err
	}
	defer a.Shutdown()

	checker := health.NewChecker(health.WithLogger(a.logger), health.WithTimeout(timeout))
	a.addProbes(checker)
	return checker.Run(ctx), nil
}

func (a *App) holdPhrase() string {
	if a.cfg.HoldPhrase != "" {
		return a.cfg.HoldPhrase
	}
	if a.cfg.Identity.HoldPhrase != "" {
		return a.cfg.Identity.HoldPhrase
	}
	return llm.DefaultConfig().HoldPhrase
}
