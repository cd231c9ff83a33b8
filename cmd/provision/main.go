// Provision configures inbound telephony on the RTC platform: SIP
// trunks and the dispatch rules that route a phone number's calls to an
// agent. Thin glue over the platform admin REST API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/voxline/voxline/internal/httpc"
	"github.com/voxline/voxline/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("config: %v", err)
	}
	c := &client{
		baseURL: adminURL(cfg.RTC.URL),
		apiKey:  cfg.RTC.APIKey,
		secret:  cfg.RTC.APISecret,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "trunk":
		err = createTrunk(ctx, c, os.Args[2:])
	case "rule":
		err = createRule(ctx, c, os.Args[2:])
	case "list":
		err = list(ctx, c)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal("%v", err)
	}
}

func createTrunk(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("trunk", flag.ExitOnError)
	name := fs.String("name", "inbound", "Trunk name")
	number := fs.String("number", "", "Phone number in E.164 form (required)")
	host := fs.String("sip-host", "", "SIP provider host (required)")
	user := fs.String("sip-user", "", "SIP auth username")
	pass := fs.String("sip-pass", "", "SIP auth password")
	fs.Parse(args)

	if *number == "" || *host == "" {
		return fmt.Errorf("trunk: -number and -sip-host are required")
	}

	resp, err := c.post(ctx, "/trunks", map[string]any{
		"name":         *name,
		"numbers":      []string{*number},
		"sipHost":      *host,
		"authUsername": *user,
		"authPassword": *pass,
	})
	if err != nil {
		return err
	}
	fmt.Printf("trunk created: %s\n", resp)
	return nil
}

func createRule(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("rule", flag.ExitOnError)
	number := fs.String("number", "", "Phone number to route (required)")
	agent := fs.String("agent", "assistant", "Agent name to dispatch to")
	prefix := fs.String("room-prefix", "call-", "Room name prefix")
	fs.Parse(args)

	if *number == "" {
		return fmt.Errorf("rule: -number is required")
	}

	resp, err := c.post(ctx, "/dispatch-rules", map[string]any{
		"number":     *number,
		"agentName":  *agent,
		"roomPrefix": *prefix,
	})
	if err != nil {
		return err
	}
	fmt.Printf("dispatch rule created: %s\n", resp)
	return nil
}

func list(ctx context.Context, c *client) error {
	for _, path := range []string{"/trunks", "/dispatch-rules"} {
		resp, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n%s\n", strings.TrimPrefix(path, "/"), resp)
	}
	return nil
}

// client is a minimal admin API caller.
type client struct {
	baseURL string
	apiKey  string
	secret  string
}

func (c *client) post(ctx context.Context, path string, body map[string]any) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
}

func (c *client) get(ctx context.Context, path string) (string, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey+":"+c.secret)

	resp, err := httpc.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return strings.TrimSpace(string(data)), nil
}

// adminURL maps the worker's WebSocket endpoint to the admin REST base.
func adminURL(rtcURL string) string {
	url := rtcURL
	switch {
	case strings.HasPrefix(url, "wss://"):
		url = "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}
	return strings.TrimSuffix(url, "/") + "/admin/v1"
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: provision <command> [flags]

commands:
  trunk  create a SIP trunk for a phone number
  rule   create a dispatch rule routing a number to an agent
  list   show configured trunks and dispatch rules`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
