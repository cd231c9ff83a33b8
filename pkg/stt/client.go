package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/pkg/creds"
)

// Client opens WebSocket recognition sessions.
type Client struct {
	config *Config
	creds  *creds.Credentials
}

// NewClient creates a recognition client. The endpoint URL is required.
func NewClient(cr *creds.Credentials, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.URL == "" {
		return nil, fmt.Errorf("stt: endpoint URL required")
	}

	return &Client{config: cfg, creds: cr}, nil
}

// Start opens a recognition stream.
func (c *Client) Start(ctx context.Context) (Session, error) {
	s := &wsSession{
		config: c.config,
		creds:  c.creds,
		logger: c.config.Logger.With("component", "stt.session"),
		events: make(chan TranscriptEvent, 32),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	conn, err := s.dial()
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.setConn(conn)

	s.loops.Add(2)
	go s.readLoop(conn)
	go s.renewLoop()
	go s.closeEventsWhenDone()
	return s, nil
}

// Health dials the endpoint and immediately disconnects.
func (c *Client) Health(ctx context.Context) error {
	s, err := c.Start(ctx)
	if err != nil {
		return err
	}
	return s.Close()
}

// Close releases resources. Open sessions keep running until their own Close.
func (c *Client) Close() error {
	return nil
}

// wsSession is one live recognition stream over a renewable WebSocket.
type wsSession struct {
	config *Config
	creds  *creds.Credentials
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conn   *websocket.Conn

	// loops counts the read and renew goroutines; the events channel is
	// closed exactly once, after all of them have exited.
	loops  sync.WaitGroup
	events chan TranscriptEvent

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// dial opens a connection and sends the session config frame.
func (s *wsSession) dial() (*websocket.Conn, error) {
	headers := http.Header{}
	if s.creds != nil {
		s.creds.Apply(headers)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.config.DialTimeout}
	conn, resp, err := dialer.DialContext(s.ctx, s.config.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stt: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("stt: dial failed: %w", err)
	}

	bos := map[string]any{
		"sessionConfig": map[string]any{
			"language":     s.config.Language,
			"model":        s.config.Model,
			"sampleRateHz": s.config.SampleRateHz,
		},
	}
	if err := conn.WriteJSON(bos); err != nil {
		conn.Close()
		return nil, fmt.Errorf("stt: send session config: %w", err)
	}
	return conn, nil
}

func (s *wsSession) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

// WriteAudio submits one binary audio frame.
func (s *wsSession) WriteAudio(data []byte) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Events delivers transcript updates.
func (s *wsSession) Events() <-chan TranscriptEvent {
	return s.events
}

// Err returns the terminal stream error.
func (s *wsSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close tears the stream down. Idempotent.
func (s *wsSession) Close() error {
	s.shutdown()
	return nil
}

// readLoop reads transcript frames from one connection. It exits
// quietly when the connection was replaced by a renewal; a read error
// on the live connection records a terminal error and triggers
// shutdown unless the teardown was deliberate. Renewals mean several
// read loops can coexist on the same events channel, so no loop closes
// it; that happens once, when the last loop exits.
func (s *wsSession) readLoop(conn *websocket.Conn) {
	defer s.loops.Done()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.replaced(conn) {
				return
			}
			if s.ctx.Err() == nil {
				s.recordErr(err)
				s.logger.Error("recognition stream failed", "error", err)
				s.shutdown()
			}
			return
		}

		var frame struct {
			Alternatives []struct {
				Text string `json:"text"`
			} `json:"alternatives"`
			Final bool `json:"final"`
		}
		if err := json.Unmarshal(message, &frame); err != nil {
			s.logger.Warn("unparseable transcript frame", "error", err)
			continue
		}
		if len(frame.Alternatives) == 0 {
			continue
		}

		event := TranscriptEvent{
			Text:     frame.Alternatives[0].Text,
			Final:    frame.Final,
			Received: time.Now(),
		}
		select {
		case s.events <- event:
		case <-s.ctx.Done():
			return
		}
	}
}

// closeEventsWhenDone is the single owner of the events channel close.
func (s *wsSession) closeEventsWhenDone() {
	s.loops.Wait()
	close(s.events)
}

// renewLoop replaces the connection before the provider's stream limit.
func (s *wsSession) renewLoop() {
	defer s.loops.Done()

	ticker := time.NewTicker(s.config.SessionMaxAge)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.logger.Warn("stream age limit approaching, renewing session")

			conn, err := s.dial()
			if err != nil {
				s.recordErr(fmt.Errorf("stt: session renewal: %w", err))
				s.logger.Error("session renewal failed", "error", err)
				s.shutdown()
				return
			}

			s.connMu.Lock()
			old := s.conn
			s.conn = conn
			s.connMu.Unlock()

			s.loops.Add(1)
			go s.readLoop(conn)
			if old != nil {
				old.Close()
			}
		}
	}
}

// replaced reports whether conn was swapped out by a renewal. A nil
// current connection means shutdown, not replacement.
func (s *wsSession) replaced(conn *websocket.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil && s.conn != conn
}

// recordErr keeps the first terminal error.
func (s *wsSession) recordErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// shutdown cancels the stream and drops the connection. Idempotent.
// Closing the connection unblocks every read loop; the events channel
// closes once they have all exited.
func (s *wsSession) shutdown() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.connMu.Lock()
		if s.conn != nil {
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
	})
}

// Verify implementations at compile time.
var (
	_ Provider = (*Client)(nil)
	_ Session  = (*wsSession)(nil)
)
