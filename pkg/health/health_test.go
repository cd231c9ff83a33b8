package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeService struct {
	err error
}

func (f *fakeService) Health(ctx context.Context) error { return f.err }

func TestRunReportsAllProbes(t *testing.T) {
	c := NewChecker()
	c.AddService("stt", &fakeService{})
	c.AddService("llm", &fakeService{err: errors.New("connection refused")})
	c.Add("tts", func(ctx context.Context) error { return nil })

	results := c.Run(context.Background())
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if !results[0].Healthy || results[1].Healthy || !results[2].Healthy {
		t.Errorf("results = %+v", results)
	}
	if AllHealthy(results) {
		t.Error("AllHealthy with a failed probe")
	}
	if got := Unhealthy(results); len(got) != 1 || got[0] != "llm" {
		t.Errorf("unhealthy = %v", got)
	}
}

func TestRunMeasuresLatency(t *testing.T) {
	c := NewChecker()
	c.Add("slow", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	results := c.Run(context.Background())
	if results[0].Latency < 20*time.Millisecond {
		t.Errorf("latency = %v", results[0].Latency)
	}
}

func TestProbeTimeout(t *testing.T) {
	c := NewChecker(WithTimeout(20 * time.Millisecond))
	c.Add("hung", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	results := c.Run(context.Background())
	if results[0].Healthy {
		t.Error("hung probe reported healthy")
	}
	if !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Errorf("err = %v", results[0].Err)
	}
}

func TestEndpointProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewChecker()
	c.AddEndpoint("rtc", srv.URL)
	results := c.Run(context.Background())

	// Auth rejection still proves the service is reachable.
	if !results[0].Healthy {
		t.Errorf("reachable endpoint reported down: %v", results[0].Err)
	}
}

func TestEndpointProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewChecker(WithTimeout(time.Second))
	c.AddEndpoint("rtc", srv.URL)
	results := c.Run(context.Background())

	if results[0].Healthy {
		t.Error("closed endpoint reported healthy")
	}
}

func TestEndpointProbeWebSocketScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	wsURL := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	c := NewChecker()
	c.AddEndpoint("stt", wsURL)
	results := c.Run(context.Background())

	if !results[0].Healthy {
		t.Errorf("ws endpoint reported down: %v", results[0].Err)
	}
}

func TestAllHealthyEmpty(t *testing.T) {
	if !AllHealthy(nil) {
		t.Error("no probes should be healthy")
	}
}
