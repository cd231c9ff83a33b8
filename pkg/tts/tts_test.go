package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// captureOutput records Init and Write calls.
type captureOutput struct {
	mu     sync.Mutex
	inits  int
	format AudioFormat
	audio  []byte
}

func (o *captureOutput) Init(format AudioFormat) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inits++
	o.format = format
	return nil
}

func (o *captureOutput) Write(chunk []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audio = append(o.audio, chunk...)
	return nil
}

func (o *captureOutput) snapshot() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inits, len(o.audio)
}

func synthServer(t *testing.T, audioPerRequest []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts:synthesize" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("text") == "" && r.PostForm.Get("ssml") == "" {
			t.Error("neither text nor ssml set")
		}
		w.Write(audioPerRequest)
	}))
}

func TestSynthesize(t *testing.T) {
	audio := make([]byte, 3200)
	srv := synthServer(t, audio)
	defer srv.Close()

	client, err := NewClient(nil, WithBaseURL(srv.URL), WithFormat(EncodingLPCM, 16000))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	result, err := client.Synthesize(context.Background(), "hello caller")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(result.Audio) != len(audio) {
		t.Errorf("audio length = %d", len(result.Audio))
	}
	if result.Format.SampleRate != 16000 || result.Format.Channels != 1 {
		t.Errorf("format = %+v", result.Format)
	}
	// 3200 bytes of 16 kHz mono PCM16 is 100 ms.
	if result.Duration != 100*time.Millisecond {
		t.Errorf("duration = %v", result.Duration)
	}
}

func TestSynthesizeSSMLPassthrough(t *testing.T) {
	var gotSSML string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotSSML = r.PostForm.Get("ssml")
		w.Write([]byte{0, 0})
	}))
	defer srv.Close()

	client, err := NewClient(nil, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	ssml := `<speak>Hello <break time="200ms"/> there</speak>`
	if _, err := client.Synthesize(context.Background(), ssml); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if gotSSML != ssml {
		t.Errorf("ssml = %q", gotSSML)
	}
}

func TestStreamInitializesOutputOnce(t *testing.T) {
	srv := synthServer(t, []byte{1, 2, 3, 4})
	defer srv.Close()

	client, err := NewClient(nil, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	out := &captureOutput{}
	stream, err := client.Stream(context.Background(), out)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	for _, seg := range []string{"first segment", "second segment", "third segment"} {
		if err := stream.WriteText(seg); err != nil {
			t.Fatalf("write text: %v", err)
		}
	}
	if err := stream.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	inits, audioLen := out.snapshot()
	if inits != 1 {
		t.Errorf("output initialized %d times, want 1", inits)
	}
	if audioLen != 12 {
		t.Errorf("audio length = %d, want 12", audioLen)
	}
}

func TestStreamNoInitWithoutAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "synthesis rejected", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(nil, WithBaseURL(srv.URL), WithRetry(0, time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	out := &captureOutput{}
	stream, err := client.Stream(context.Background(), out)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	if err := stream.WriteText("doomed segment"); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := stream.Flush(context.Background()); err == nil {
		t.Fatal("expected flush to surface the synthesis error")
	}

	inits, _ := out.snapshot()
	if inits != 0 {
		t.Errorf("output initialized %d times before any audio byte", inits)
	}
}

func TestSynthesizeRetriesServerError(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte{0, 0})
	}))
	defer srv.Close()

	client, err := NewClient(nil, WithBaseURL(srv.URL), WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	if _, err := client.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestChainFallsBack(t *testing.T) {
	failing := &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return nil, fmt.Errorf("primary down")
		},
	}
	working := NewMock()

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	result, err := chain.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(result.Audio) == 0 {
		t.Error("expected audio from fallback provider")
	}
	if working.CallCount("Synthesize") != 1 {
		t.Error("fallback provider not used")
	}
}

func TestChainAllFail(t *testing.T) {
	failing := &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return nil, fmt.Errorf("down")
		},
	}

	chain, err := NewChain(failing, failing)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	_, err = chain.Synthesize(context.Background(), "hello")
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %v", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("errors = %d", len(chainErr.Errors))
	}
}

func TestNewChainRequiresProvider(t *testing.T) {
	if _, err := NewChain(); err != ErrProviderUnavailable {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestNewClientRequiresVoice(t *testing.T) {
	if _, err := NewClient(nil, WithVoice("")); err != ErrNoVoice {
		t.Errorf("expected ErrNoVoice, got %v", err)
	}
}
