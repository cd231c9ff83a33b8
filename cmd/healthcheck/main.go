// Healthcheck probes the services the agent depends on and exits
// non-zero when any of them is down. Intended for container health
// checks and deploy gates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voxline/voxline/internal/log"
	"github.com/voxline/voxline/pkg/agent"
	"github.com/voxline/voxline/pkg/config"
	"github.com/voxline/voxline/pkg/health"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "Per-probe timeout")
	flag.Parse()

	log.Init("warn")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	app, err := agent.New(cfg, log.L())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := app.Probe(ctx, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(2)
	}

	for _, r := range results {
		status := "ok"
		if !r.Healthy {
			status = "DOWN"
		}
		fmt.Printf("%-12s %-5s %6dms", r.Name, status, r.Latency.Milliseconds())
		if r.Err != nil {
			fmt.Printf("  %v", r.Err)
		}
		fmt.Println()
	}
	if !health.AllHealthy(results) {
		os.Exit(1)
	}
	fmt.Println("all services healthy")
}
