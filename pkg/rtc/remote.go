package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Wire frame types exchanged with the platform's control channel.
const (
	frameConnect         = "connect"
	frameConnected       = "connected"
	frameGenerateReply   = "generate_reply"
	frameEndSession      = "end_session"
	frameSpeakingStarted = "speaking_started"
	frameSpeakingStopped = "speaking_stopped"
	frameTranscript      = "transcript"
	frameMetrics         = "metrics"
	frameError           = "error"
	framePlayoutComplete = "playout_complete"
	frameClosed          = "closed"
)

// frame is the JSON envelope on the control channel. Only the fields
// for its type are set.
type frame struct {
	Type         string  `json:"type"`
	Room         string  `json:"room,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
	Text         string  `json:"text,omitempty"`
	Final        bool    `json:"final,omitempty"`
	Stage        string  `json:"stage,omitempty"`
	DurationMs   float64 `json:"durationMs,omitempty"`
	Message      string  `json:"message,omitempty"`

	// PlayoutSignal is advertised on the connected frame.
	PlayoutSignal bool `json:"playoutSignal,omitempty"`
}

// RemoteConfig holds connection settings for a platform session.
type RemoteConfig struct {
	// URL is the platform control endpoint (ws:// or wss://).
	URL string

	// APIKey and APISecret authenticate the worker.
	APIKey    string
	APISecret string

	// Room is the platform room to join.
	Room string

	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration

	// Logger receives session diagnostics.
	Logger *slog.Logger
}

// RemoteSession is a Session driven over the platform's WebSocket
// control channel. Incoming platform frames are translated into the
// tagged Event union; media never crosses this boundary.
type RemoteSession struct {
	config RemoteConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	conn    *websocket.Conn

	events chan Event

	mu            sync.Mutex
	playoutSignal bool
	playoutWait   chan struct{}
	playoutDone   bool
	connected     bool

	closeOnce sync.Once
}

// NewRemoteSession creates an unconnected session for cfg.Room.
func NewRemoteSession(cfg RemoteConfig) (*RemoteSession, error) {
	if cfg.URL == "" {
		return nil, errors.New("rtc: URL is required")
	}
	if cfg.Room == "" {
		return nil, errors.New("rtc: room is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteSession{
		config: cfg,
		logger: logger.With("component", "rtc.session", "room", cfg.Room),
		events: make(chan Event, 32),
	}, nil
}

// Connect dials the control channel, joins the room and starts the
// event translation loop.
func (s *RemoteSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return errors.New("rtc: already connected")
	}
	s.connected = true
	s.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.config.APIKey+":"+s.config.APISecret)

	conn, resp, err := websocket.DefaultDialer.DialContext(dctx, s.config.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("rtc: dial %s: status %d: %w", s.config.URL, resp.StatusCode, err)
		}
		return fmt.Errorf("rtc: dial %s: %w", s.config.URL, err)
	}

	if err := conn.WriteJSON(frame{Type: frameConnect, Room: s.config.Room}); err != nil {
		conn.Close()
		return fmt.Errorf("rtc: join room: %w", err)
	}

	var ack frame
	conn.SetReadDeadline(time.Now().Add(s.config.DialTimeout))
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("rtc: read join ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if ack.Type != frameConnected {
		conn.Close()
		return fmt.Errorf("rtc: unexpected join ack %q", ack.Type)
	}

	s.mu.Lock()
	s.playoutSignal = ack.PlayoutSignal
	s.mu.Unlock()

	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.readLoop()

	s.logger.Info("session connected", "playout_signal", ack.PlayoutSignal)
	return nil
}

// GenerateReply asks the platform pipeline to speak a reply.
func (s *RemoteSession) GenerateReply(ctx context.Context, instructions string) error {
	return s.write(ctx, frame{Type: frameGenerateReply, Instructions: instructions})
}

// WaitForPlayout blocks until the platform reports queued audio has
// finished. A completion frame that arrived before the call is consumed
// immediately. Returns ErrNoPlayoutSignal when the platform did not
// advertise the capability.
func (s *RemoteSession) WaitForPlayout(ctx context.Context) error {
	s.mu.Lock()
	if !s.playoutSignal {
		s.mu.Unlock()
		return ErrNoPlayoutSignal
	}
	if s.playoutDone {
		s.playoutDone = false
		s.mu.Unlock()
		return nil
	}
	if s.playoutWait == nil {
		s.playoutWait = make(chan struct{})
	}
	wait := s.playoutWait
	s.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.sessionDone():
		return ErrSessionEnded
	}
}

// EndSession asks the platform to hang up and tears the channel down.
func (s *RemoteSession) EndSession(ctx context.Context) error {
	err := s.write(ctx, frame{Type: frameEndSession})
	s.shutdown()
	if err != nil && !errors.Is(err, ErrSessionEnded) {
		return err
	}
	return nil
}

// Events delivers translated session events.
func (s *RemoteSession) Events() <-chan Event {
	return s.events
}

// RoomName returns the room this session is bound to.
func (s *RemoteSession) RoomName() string {
	return s.config.Room
}

func (s *RemoteSession) write(ctx context.Context, f frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return ErrSessionEnded
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		return ErrSessionEnded
	}
	if err := s.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("rtc: write %s: %w", f.Type, err)
	}
	return nil
}

// readLoop translates platform frames into Events. It owns the events
// channel: EventClosed is always the last delivery before close.
func (s *RemoteSession) readLoop() {
	defer func() {
		// EventClosed must not depend on the session context, which is
		// already cancelled on a normal teardown.
		select {
		case s.events <- Event{Kind: EventClosed, Time: time.Now()}:
		default:
		}
		close(s.events)
		s.abortPlayoutWait()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("control channel read failed", "error", err)
				s.send(Event{Kind: EventError, Err: err, Time: time.Now()})
				s.shutdown()
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("bad control frame", "error", err)
			continue
		}

		now := time.Now()
		switch f.Type {
		case frameSpeakingStarted:
			s.send(Event{Kind: EventSpeakingStarted, Time: now})
		case frameSpeakingStopped:
			s.send(Event{Kind: EventSpeakingStopped, Time: now})
		case frameTranscript:
			s.send(Event{Kind: EventTranscript, Text: f.Text, Final: f.Final, Time: now})
		case frameMetrics:
			s.send(Event{
				Kind:     EventMetrics,
				Stage:    f.Stage,
				Duration: time.Duration(f.DurationMs * float64(time.Millisecond)),
				Time:     now,
			})
		case frameError:
			s.send(Event{Kind: EventError, Err: errors.New(f.Message), Time: now})
		case framePlayoutComplete:
			s.completePlayout()
		case frameClosed:
			s.shutdown()
			return
		default:
			s.logger.Debug("ignoring control frame", "type", f.Type)
		}
	}
}

func (s *RemoteSession) send(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		// Drop rather than block teardown; the consumer is gone.
	}
}

// completePlayout wakes the current waiter, or latches the completion
// when the frame beats the WaitForPlayout call.
func (s *RemoteSession) completePlayout() {
	s.mu.Lock()
	if s.playoutWait != nil {
		close(s.playoutWait)
		s.playoutWait = nil
	} else {
		s.playoutDone = true
	}
	s.mu.Unlock()
}

// abortPlayoutWait unblocks a waiter during teardown without latching
// a completion that never happened.
func (s *RemoteSession) abortPlayoutWait() {
	s.mu.Lock()
	if s.playoutWait != nil {
		close(s.playoutWait)
		s.playoutWait = nil
	}
	s.mu.Unlock()
}

func (s *RemoteSession) sessionDone() <-chan struct{} {
	if s.ctx != nil {
		return s.ctx.Done()
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// shutdown tears the connection down once. The read loop notices the
// cancelled context and finishes the events channel.
func (s *RemoteSession) shutdown() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.writeMu.Lock()
		if s.conn != nil {
			deadline := time.Now().Add(time.Second)
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			s.conn.Close()
		}
		s.writeMu.Unlock()
	})
}

// Verify RemoteSession implements Session at compile time.
var _ Session = (*RemoteSession)(nil)
