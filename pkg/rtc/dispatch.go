package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dispatch frame types on the worker registration channel.
const (
	frameRegister   = "register"
	frameRegistered = "registered"
	frameJob        = "job"
	framePing       = "ping"
	framePong       = "pong"
)

// dispatchFrame is the JSON envelope on the registration channel.
type dispatchFrame struct {
	Type  string `json:"type"`
	Agent string `json:"agent,omitempty"`
	Room  string `json:"room,omitempty"`
}

// JobHandler runs one inbound call. The session is connected by the
// handler; the dispatcher only carries the assignment.
type JobHandler func(ctx context.Context, session Session)

// DispatcherConfig holds worker registration settings.
type DispatcherConfig struct {
	// URL is the platform dispatch endpoint (ws:// or wss://).
	URL string

	// AgentName identifies this worker to the platform.
	AgentName string

	// APIKey and APISecret authenticate the worker.
	APIKey    string
	APISecret string

	// ReconnectDelay is the wait between registration attempts after the
	// dispatch channel drops.
	ReconnectDelay time.Duration

	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration

	// Logger receives dispatcher diagnostics.
	Logger *slog.Logger
}

// Dispatcher registers the worker with the platform and hands each
// assigned room to the job handler on its own goroutine. The dispatch
// channel reconnects until the context is cancelled.
type Dispatcher struct {
	config  DispatcherConfig
	handler JobHandler
	logger  *slog.Logger

	// newSession builds the session for an assigned room. Swappable in
	// tests.
	newSession func(room string) (Session, error)

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering jobs to handler.
func NewDispatcher(cfg DispatcherConfig, handler JobHandler) (*Dispatcher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rtc: dispatch URL is required")
	}
	if handler == nil {
		return nil, errors.New("rtc: job handler is required")
	}
	if cfg.AgentName == "" {
		cfg.AgentName = "agent"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		config:  cfg,
		handler: handler,
		logger:  logger.With("component", "rtc.dispatcher", "agent", cfg.AgentName),
	}
	d.newSession = func(room string) (Session, error) {
		return NewRemoteSession(RemoteConfig{
			URL:       cfg.URL,
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Room:      room,
			Logger:    cfg.Logger,
		})
	}
	return d, nil
}

// Run registers with the platform and serves job assignments until the
// context is cancelled. It returns after all in-flight calls finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()

	for {
		err := d.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("dispatch channel lost, reconnecting",
			"error", err, "delay", d.config.ReconnectDelay)

		select {
		case <-time.After(d.config.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// serve holds one registration and processes assignments until the
// channel drops.
func (d *Dispatcher) serve(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, d.config.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.config.APIKey+":"+d.config.APISecret)

	conn, resp, err := websocket.DefaultDialer.DialContext(dctx, d.config.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial dispatch: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial dispatch: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(dispatchFrame{Type: frameRegister, Agent: d.config.AgentName}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	var ack dispatchFrame
	conn.SetReadDeadline(time.Now().Add(d.config.DialTimeout))
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("read register ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if ack.Type != frameRegistered {
		return fmt.Errorf("unexpected register ack %q", ack.Type)
	}
	d.logger.Info("registered with platform")

	// Unblock reads when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		var f dispatchFrame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read dispatch: %w", err)
		}

		switch f.Type {
		case frameJob:
			if f.Room == "" {
				d.logger.Warn("job assignment without a room")
				continue
			}
			d.dispatch(ctx, f.Room)
		case framePing:
			if err := conn.WriteJSON(dispatchFrame{Type: framePong}); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		default:
			d.logger.Debug("ignoring dispatch frame", "type", f.Type)
		}
	}
}

// dispatch spawns the handler for one assignment.
func (d *Dispatcher) dispatch(ctx context.Context, room string) {
	session, err := d.newSession(room)
	if err != nil {
		d.logger.Error("session setup failed", "room", room, "error", err)
		return
	}

	d.logger.Info("job assigned", "room", room)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handler(ctx, session)
	}()
}
