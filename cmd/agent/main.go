// Voxline agent worker. Registers with the RTC platform and serves
// inbound phone calls, one orchestrator per session.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxline/voxline/internal/log"
	"github.com/voxline/voxline/pkg/agent"
	"github.com/voxline/voxline/pkg/config"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	identityFile := flag.String("identity", "", "Agent identity YAML file (overrides AGENT_IDENTITY_FILE)")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()

	if *identityFile != "" {
		os.Setenv(config.EnvIdentityFile, *identityFile)
	}

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Configuration error: %v", err)
	}

	app, err := agent.New(cfg, logger)
	if err != nil {
		stdlog.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		stdlog.Fatalf("Initialization failed: %v", err)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		stdlog.Fatalf("Runtime error: %v", err)
	}
}
