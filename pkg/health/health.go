// Package health runs startup probes against the services the agent
// depends on. Each probe reports reachability and latency; the agent
// refuses to take calls when a required service is down.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxline/voxline/internal/httpc"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Service is anything with a health probe. The provider adapters all
// satisfy it.
type Service interface {
	Health(ctx context.Context) error
}

// Result is the outcome of one probe.
type Result struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Err     error
}

// Check is a named probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Checker runs a set of probes sequentially with a per-probe timeout.
type Checker struct {
	timeout time.Duration
	checks  []Check
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l.With("component", "health") }
}

// NewChecker creates an empty checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers a probe function.
func (c *Checker) Add(name string, probe func(ctx context.Context) error) {
	c.checks = append(c.checks, Check{Name: name, Probe: probe})
}

// AddService registers a provider adapter's own health probe.
func (c *Checker) AddService(name string, svc Service) {
	c.Add(name, svc.Health)
}

// AddEndpoint registers a reachability probe for a URL. Any HTTP
// response counts as reachable, including auth rejections; only
// transport failures mark the service down. WebSocket schemes are
// probed over HTTP.
func (c *Checker) AddEndpoint(name, rawURL string) {
	c.Add(name, func(ctx context.Context) error {
		return probeEndpoint(ctx, rawURL)
	})
}

// Run executes all probes in registration order. It never aborts early;
// the caller gets a complete picture of what is up and what is not.
func (c *Checker) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(c.checks))
	for _, check := range c.checks {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := check.Probe(pctx)
		latency := time.Since(start)
		cancel()

		r := Result{Name: check.Name, Healthy: err == nil, Latency: latency, Err: err}
		results = append(results, r)

		if err != nil {
			c.logger.Error("health probe failed", "service", check.Name, "latency_ms", latency.Milliseconds(), "error", err)
		} else {
			c.logger.Info("health probe ok", "service", check.Name, "latency_ms", latency.Milliseconds())
		}
	}
	return results
}

// AllHealthy reports whether every result passed.
func AllHealthy(results []Result) bool {
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// Unhealthy returns the names of failed probes.
func Unhealthy(results []Result) []string {
	var names []string
	for _, r := range results {
		if !r.Healthy {
			names = append(names, r.Name)
		}
	}
	return names
}

func probeEndpoint(ctx context.Context, rawURL string) error {
	url := rawURL
	switch {
	case strings.HasPrefix(url, "wss://"):
		url = "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := httpc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
