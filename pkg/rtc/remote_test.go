package rtc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakePlatform is a control-channel server for session tests. The
// script runs once a client joins a room.
type fakePlatform struct {
	upgrader      websocket.Upgrader
	playoutSignal bool
	script        func(conn *websocket.Conn)
	joins         atomic.Int32
}

func (p *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var join frame
	if err := conn.ReadJSON(&join); err != nil || join.Type != frameConnect {
		return
	}
	p.joins.Add(1)
	conn.WriteJSON(frame{Type: frameConnected, PlayoutSignal: p.playoutSignal})
	if p.script != nil {
		p.script(conn)
	}
}

func wsURL(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func connectSession(t *testing.T, platform *fakePlatform) (*RemoteSession, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)

	s, err := NewRemoteSession(RemoteConfig{URL: wsURL(t, srv), Room: "call-_79990001122_x7"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s, srv
}

func nextEvent(t *testing.T, s *RemoteSession) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRemoteSessionTranslatesEvents(t *testing.T) {
	platform := &fakePlatform{
		script: func(conn *websocket.Conn) {
			conn.WriteJSON(frame{Type: frameSpeakingStarted})
			conn.WriteJSON(frame{Type: frameSpeakingStopped})
			conn.WriteJSON(frame{Type: frameTranscript, Text: "hello", Final: true})
			conn.WriteJSON(frame{Type: frameMetrics, Stage: "tts_first_audio", DurationMs: 250})
			conn.WriteJSON(frame{Type: frameError, Message: "jitter"})
			conn.WriteJSON(frame{Type: frameClosed})
			time.Sleep(100 * time.Millisecond)
		},
	}
	s, _ := connectSession(t, platform)

	if ev := nextEvent(t, s); ev.Kind != EventSpeakingStarted {
		t.Errorf("kind = %v", ev.Kind)
	}
	if ev := nextEvent(t, s); ev.Kind != EventSpeakingStopped {
		t.Errorf("kind = %v", ev.Kind)
	}

	ev := nextEvent(t, s)
	if ev.Kind != EventTranscript || ev.Text != "hello" || !ev.Final {
		t.Errorf("transcript = %+v", ev)
	}

	ev = nextEvent(t, s)
	if ev.Kind != EventMetrics || ev.Stage != "tts_first_audio" || ev.Duration != 250*time.Millisecond {
		t.Errorf("metrics = %+v", ev)
	}

	ev = nextEvent(t, s)
	if ev.Kind != EventError || ev.Err == nil {
		t.Errorf("error = %+v", ev)
	}

	if ev := nextEvent(t, s); ev.Kind != EventClosed {
		t.Errorf("kind = %v, want closed", ev.Kind)
	}
	if _, ok := <-s.Events(); ok {
		t.Error("events channel still open after closed event")
	}
}

func TestRemoteSessionGenerateReply(t *testing.T) {
	got := make(chan frame, 1)
	platform := &fakePlatform{
		script: func(conn *websocket.Conn) {
			var f frame
			if err := conn.ReadJSON(&f); err == nil {
				got <- f
			}
		},
	}
	s, _ := connectSession(t, platform)
	defer s.EndSession(context.Background())

	if err := s.GenerateReply(context.Background(), "Say hello."); err != nil {
		t.Fatalf("generate reply: %v", err)
	}

	select {
	case f := <-got:
		if f.Type != frameGenerateReply || f.Instructions != "Say hello." {
			t.Errorf("frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the reply request")
	}
}

func TestRemoteSessionPlayoutSignal(t *testing.T) {
	platform := &fakePlatform{
		playoutSignal: true,
		script: func(conn *websocket.Conn) {
			time.Sleep(30 * time.Millisecond)
			conn.WriteJSON(frame{Type: framePlayoutComplete})
			time.Sleep(100 * time.Millisecond)
		},
	}
	s, _ := connectSession(t, platform)
	defer s.EndSession(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitForPlayout(ctx); err != nil {
		t.Errorf("wait for playout: %v", err)
	}
}

func TestRemoteSessionPlayoutCompletesBeforeWait(t *testing.T) {
	platform := &fakePlatform{
		playoutSignal: true,
		script: func(conn *websocket.Conn) {
			conn.WriteJSON(frame{Type: framePlayoutComplete})
			conn.WriteJSON(frame{Type: frameTranscript, Text: "done", Final: true})
			time.Sleep(100 * time.Millisecond)
		},
	}
	s, _ := connectSession(t, platform)
	defer s.EndSession(context.Background())

	// The transcript event proves the completion frame was already
	// handled before the wait starts.
	if ev := nextEvent(t, s); ev.Kind != EventTranscript {
		t.Fatalf("kind = %v, want transcript", ev.Kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := s.WaitForPlayout(ctx); err != nil {
		t.Errorf("wait after early completion: %v", err)
	}
}

func TestRemoteSessionNoPlayoutSignal(t *testing.T) {
	platform := &fakePlatform{script: func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	}}
	s, _ := connectSession(t, platform)
	defer s.EndSession(context.Background())

	if err := s.WaitForPlayout(context.Background()); !errors.Is(err, ErrNoPlayoutSignal) {
		t.Errorf("err = %v, want ErrNoPlayoutSignal", err)
	}
}

func TestRemoteSessionEndCloses(t *testing.T) {
	platform := &fakePlatform{script: func(conn *websocket.Conn) {
		// Hold the connection open until the client closes it.
		conn.ReadMessage()
		conn.ReadMessage()
	}}
	s, _ := connectSession(t, platform)

	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// The channel drains to EventClosed and then closes.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			if ev.Kind == EventClosed {
				continue
			}
		case <-deadline:
			t.Fatal("events channel never closed")
		}
	}
}

func TestRemoteSessionWriteAfterEnd(t *testing.T) {
	platform := &fakePlatform{script: func(conn *websocket.Conn) {
		conn.ReadMessage()
	}}
	s, _ := connectSession(t, platform)
	s.EndSession(context.Background())

	if err := s.GenerateReply(context.Background(), "hello"); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("err = %v, want ErrSessionEnded", err)
	}
}

func TestNewRemoteSessionValidation(t *testing.T) {
	if _, err := NewRemoteSession(RemoteConfig{Room: "r"}); err == nil {
		t.Error("missing URL accepted")
	}
	if _, err := NewRemoteSession(RemoteConfig{URL: "ws://x"}); err == nil {
		t.Error("missing room accepted")
	}
}
