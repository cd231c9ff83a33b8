package rtc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeDispatch registers workers and pushes scripted job assignments.
type fakeDispatch struct {
	upgrader websocket.Upgrader
	rooms    []string
	dials    atomic.Int32
	keepOpen time.Duration
}

func (d *fakeDispatch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	d.dials.Add(1)

	var reg dispatchFrame
	if err := conn.ReadJSON(&reg); err != nil || reg.Type != frameRegister {
		return
	}
	conn.WriteJSON(dispatchFrame{Type: frameRegistered})

	for _, room := range d.rooms {
		conn.WriteJSON(dispatchFrame{Type: frameJob, Room: room})
	}
	if d.keepOpen > 0 {
		time.Sleep(d.keepOpen)
	}
}

func TestDispatcherDeliversJobs(t *testing.T) {
	server := &fakeDispatch{
		rooms:    []string{"call-_79990001111_a", "call-_79990002222_b"},
		keepOpen: 5 * time.Second,
	}
	srv := httptest.NewServer(server)
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	handled := make(chan struct{}, 4)

	d, err := NewDispatcher(DispatcherConfig{
		URL:       wsURL(t, srv),
		AgentName: "voxline",
	}, func(ctx context.Context, session Session) {
		mu.Lock()
		got = append(got, session.RoomName())
		mu.Unlock()
		handled <- struct{}{}
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.newSession = func(room string) (Session, error) {
		return NewMock(room), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatal("job not delivered")
		}
	}

	mu.Lock()
	if len(got) != 2 {
		t.Errorf("handled rooms = %v", got)
	}
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherReconnects(t *testing.T) {
	// The server drops the channel right after each registration.
	server := &fakeDispatch{}
	srv := httptest.NewServer(server)
	defer srv.Close()

	d, err := NewDispatcher(DispatcherConfig{
		URL:            wsURL(t, srv),
		ReconnectDelay: 10 * time.Millisecond,
	}, func(ctx context.Context, session Session) {})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for server.dials.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.dials.Load() < 3 {
		t.Errorf("dials = %d, want reconnects", server.dials.Load())
	}

	cancel()
	<-done
}

func TestDispatcherWaitsForCalls(t *testing.T) {
	server := &fakeDispatch{rooms: []string{"room-1"}, keepOpen: 5 * time.Second}
	srv := httptest.NewServer(server)
	defer srv.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	d, err := NewDispatcher(DispatcherConfig{URL: wsURL(t, srv)}, func(ctx context.Context, session Session) {
		close(started)
		<-release
		finished.Store(true)
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.newSession = func(room string) (Session, error) { return NewMock(room), nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("dispatcher returned with a call in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
	if !finished.Load() {
		t.Error("in-flight call not finished")
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	if _, err := NewDispatcher(DispatcherConfig{}, func(context.Context, Session) {}); err == nil {
		t.Error("missing URL accepted")
	}
	if _, err := NewDispatcher(DispatcherConfig{URL: "ws://x"}, nil); err == nil {
		t.Error("missing handler accepted")
	}
}
