package telemetry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/voxline/voxline/pkg/telemetry"
)

// captureSink records writes for verification.
type captureSink struct {
	mu      sync.Mutex
	events  []string
	blockCh chan struct{} // when set, writes block until closed
}

func (c *captureSink) record(kind string) bool {
	if c.blockCh != nil {
		<-c.blockCh
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, kind)
	return true
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *captureSink) LogEvent(context.Context, string, string, map[string]any) bool {
	return c.record("event")
}

func (c *captureSink) LogLatencyMetric(context.Context, string, string, float64) bool {
	return c.record("latency")
}

func (c *captureSink) LogTranscript(context.Context, string, string, string) bool {
	return c.record("transcript")
}

func (c *captureSink) LogToolExecution(context.Context, string, string, map[string]any, string, bool, int64) bool {
	return c.record("tool")
}

func (c *captureSink) LogCallStart(context.Context, string, string, string) bool {
	return c.record("call_start")
}

func (c *captureSink) LogCallEnd(context.Context, string, string, map[string]any) bool {
	return c.record("call_end")
}

func (c *captureSink) Close() error { return nil }

func TestEmitterDeliversAll(t *testing.T) {
	sink := &captureSink{}
	em := telemetry.NewEmitter(sink)

	em.LogEvent("call-1", "started", nil)
	em.LogLatencyMetric("call-1", "turn_total", 1400)
	em.LogTranscript("call-1", "user", "hello")
	em.LogToolExecution("call-1", "get_time", nil, "15:04", true, 3)
	em.LogCallStart("call-1", "+70001112233", "room-1")
	em.LogCallEnd("call-1", "completed", nil)

	if err := em.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := sink.count(); got != 6 {
		t.Errorf("expected 6 records delivered, got %d", got)
	}
	if em.Dropped() != 0 {
		t.Errorf("expected 0 drops, got %d", em.Dropped())
	}
}

func TestEmitterNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	sink := &captureSink{blockCh: block}
	em := telemetry.NewEmitter(sink, telemetry.WithBufferSize(2))

	// The worker stalls on the first record; everything past the
	// buffer must be dropped without blocking this goroutine.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			em.LogEvent("call-1", "noise", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emitter blocked the caller")
	}

	if em.Dropped() == 0 {
		t.Error("expected drops under backpressure")
	}

	close(block)
	em.Close()
}

func TestRESTSinkInsert(t *testing.T) {
	var (
		mu   sync.Mutex
		rows []map[string]any
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Errorf("bad body: %v", err)
		}
		mu.Lock()
		rows = append(rows, row)
		path = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := telemetry.NewRESTSink(srv.URL, "service-key")
	defer sink.Close()

	ctx := context.Background()
	if !sink.LogTranscript(ctx, "call-1", "assistant", "hello there") {
		t.Fatal("expected successful insert")
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/rest/v1/transcripts" {
		t.Errorf("unexpected path: %s", path)
	}
	if len(rows) != 1 || rows[0]["content"] != "hello there" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestRESTSinkFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := telemetry.NewRESTSink(srv.URL, "service-key")
	defer sink.Close()

	if sink.LogEvent(context.Background(), "call-1", "x", nil) {
		t.Error("expected false on server error")
	}
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink, err := telemetry.OpenSQLite(ctx, t.TempDir()+"/telemetry.db", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	if !sink.LogCallStart(ctx, "call-1", "+70001112233", "room-1") {
		t.Error("call start insert failed")
	}
	if !sink.LogToolExecution(ctx, "call-1", "get_weather", map[string]any{"city": "Moscow"}, "sunny", true, 120) {
		t.Error("tool insert failed")
	}
	if !sink.LogCallEnd(ctx, "call-1", "completed", map[string]any{"turns": 3}) {
		t.Error("call end insert failed")
	}
}
