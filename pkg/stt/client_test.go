package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeRecognizer upgrades connections and replays scripted transcript
// frames after reading the session config.
type fakeRecognizer struct {
	upgrader websocket.Upgrader
	dials    atomic.Int32

	// script runs per connection after the config frame is read.
	script func(conn *websocket.Conn)
}

func (f *fakeRecognizer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.dials.Add(1)

	var cfg map[string]any
	if err := conn.ReadJSON(&cfg); err != nil {
		conn.Close()
		return
	}
	if _, ok := cfg["sessionConfig"]; !ok {
		conn.Close()
		return
	}

	if f.script != nil {
		f.script(conn)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func transcriptFrame(text string, final bool) []byte {
	b, _ := json.Marshal(map[string]any{
		"alternatives": []map[string]any{{"text": text}},
		"final":        final,
	})
	return b
}

func TestSessionDeliversTranscripts(t *testing.T) {
	rec := &fakeRecognizer{
		script: func(conn *websocket.Conn) {
			// Echo one interim and one final event per audio frame pair.
			conn.ReadMessage()
			conn.WriteMessage(websocket.TextMessage, transcriptFrame("hel", false))
			conn.ReadMessage()
			conn.WriteMessage(websocket.TextMessage, transcriptFrame("hello", true))
			// Hold the connection open until the client closes.
			conn.ReadMessage()
			conn.Close()
		},
	}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	client, err := NewClient(nil, WithURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	session, err := client.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	if err := session.WriteAudio([]byte{1, 2}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	first := waitEvent(t, session)
	if first.Text != "hel" || first.Final {
		t.Errorf("unexpected first event: %+v", first)
	}

	if err := session.WriteAudio([]byte{3, 4}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	second := waitEvent(t, session)
	if second.Text != "hello" || !second.Final {
		t.Errorf("unexpected second event: %+v", second)
	}
}

func TestSessionTerminalError(t *testing.T) {
	rec := &fakeRecognizer{
		script: func(conn *websocket.Conn) {
			// Drop the connection abruptly after the config frame.
			conn.Close()
		},
	}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	client, err := NewClient(nil, WithURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	session, err := client.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	select {
	case _, open := <-session.Events():
		if open {
			t.Fatal("expected closed events channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}

	if session.Err() == nil {
		t.Error("expected terminal error after abrupt close")
	}
}

func TestSessionRenewal(t *testing.T) {
	rec := &fakeRecognizer{
		script: func(conn *websocket.Conn) {
			// Keep reading so the connection stays up until replaced.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	client, err := NewClient(nil,
		WithURL(wsURL(srv)),
		WithSessionMaxAge(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	session, err := client.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	deadline := time.Now().Add(2 * time.Second)
	for rec.dials.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := rec.dials.Load(); got < 2 {
		t.Fatalf("expected renewal dial, got %d connections", got)
	}

	// The renewed stream must still accept audio.
	if err := session.WriteAudio([]byte{9}); err != nil {
		t.Errorf("write after renewal: %v", err)
	}
	if session.Err() != nil {
		t.Errorf("unexpected terminal error: %v", session.Err())
	}
}

func TestRenewalWithBackloggedConsumer(t *testing.T) {
	rec := &fakeRecognizer{
		script: func(conn *websocket.Conn) {
			// Flood well past the event buffer so the read loop blocks
			// on delivery across the renewal.
			for i := 0; i < 200; i++ {
				if err := conn.WriteMessage(websocket.TextMessage, transcriptFrame("line", true)); err != nil {
					return
				}
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	client, err := NewClient(nil,
		WithURL(wsURL(srv)),
		WithSessionMaxAge(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	session, err := client.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Leave the events unread until the old and the renewed connection
	// both have a read loop stalled on the full channel.
	deadline := time.Now().Add(2 * time.Second)
	for rec.dials.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := rec.dials.Load(); got < 2 {
		t.Fatalf("expected renewal dial, got %d connections", got)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Both loops drain out through a single close of the channel.
	closed := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-session.Events():
			if !open {
				return
			}
		case <-closed:
			t.Fatal("events channel never closed after Close")
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	rec := &fakeRecognizer{
		script: func(conn *websocket.Conn) {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	client, err := NewClient(nil, WithURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	session, err := client.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	session.Close()
	if err := session.WriteAudio([]byte{1}); err != ErrSessionClosed {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(nil); err == nil {
		t.Error("expected error without endpoint URL")
	}
}

func waitEvent(t *testing.T, s Session) TranscriptEvent {
	t.Helper()
	select {
	case ev, open := <-s.Events():
		if !open {
			t.Fatalf("events channel closed early: %v", s.Err())
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript event")
		return TranscriptEvent{}
	}
}
