package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxline/voxline/pkg/creds"
	"github.com/voxline/voxline/pkg/tools"
)

func testCreds(t *testing.T) *creds.Credentials {
	t.Helper()
	c, err := creds.New(creds.Credentials{APIKey: "test-key", FolderID: "folder-1"})
	if err != nil {
		t.Fatalf("creds: %v", err)
	}
	return c
}

func TestCompleteText(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Api-Key test-key" {
			t.Errorf("unexpected auth header: %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"alternatives": []map[string]any{{
				"status":  "ALTERNATIVE_STATUS_FINAL",
				"message": map[string]any{"role": "assistant", "text": "Hello caller"},
			}},
			"usage": map[string]any{"inputTextTokens": 12, "completionTokens": 4, "totalTokens": 16},
		})
	}))
	defer srv.Close()

	client, err := NewClient(testCreds(t), WithBaseURL(srv.URL), WithModel("gpt://folder-1/model"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	resp, err := client.Complete(context.Background(), []Message{NewUserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "Hello caller" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.WantsTools() {
		t.Error("unexpected tool-call intent")
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if gotBody["model"] != "gpt://folder-1/model" {
		t.Errorf("model = %v", gotBody["model"])
	}
}

func TestCompleteToolCallIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"alternatives": []map[string]any{{
				"status": "ALTERNATIVE_STATUS_TOOL_CALLS",
				"message": map[string]any{
					"role": "assistant",
					"toolCallList": map[string]any{
						"toolCalls": []map[string]any{{
							"functionCall": map[string]any{
								"name":      "get_weather",
								"arguments": map[string]any{"city": "Moscow"},
							},
						}},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(testCreds(t), WithBaseURL(srv.URL), WithModel("m"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	resp, err := client.Complete(context.Background(), []Message{NewUserMessage("weather?")}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !resp.WantsTools() {
		t.Fatal("expected tool-call intent")
	}
	if resp.ToolCalls[0].Name != "get_weather" {
		t.Errorf("tool = %q", resp.ToolCalls[0].Name)
	}
	if resp.ToolCalls[0].Arguments["city"] != "Moscow" {
		t.Errorf("args = %v", resp.ToolCalls[0].Arguments)
	}
}

func TestCompleteDeclaresTools(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"alternatives": []map[string]any{{
				"status":  "ALTERNATIVE_STATUS_FINAL",
				"message": map[string]any{"role": "assistant", "text": "ok"},
			}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(testCreds(t), WithBaseURL(srv.URL), WithModel("m"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	toolset := []tools.Tool{{
		Name:        "get_time",
		Description: "Current time.",
		Parameters:  map[string]tools.Param{},
	}}
	if _, err := client.Complete(context.Background(), []Message{NewUserMessage("time?")}, toolset); err != nil {
		t.Fatalf("complete: %v", err)
	}

	declared, ok := gotBody["tools"].([]any)
	if !ok || len(declared) != 1 {
		t.Fatalf("tools not declared: %v", gotBody["tools"])
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"alternatives": []map[string]any{{
				"status":  "ALTERNATIVE_STATUS_FINAL",
				"message": map[string]any{"role": "assistant", "text": "recovered"},
			}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(testCreds(t),
		WithBaseURL(srv.URL),
		WithModel("m"),
		WithRetry(3, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	resp, err := client.Complete(context.Background(), []Message{NewUserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("text = %q", resp.Text)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d", got)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad key", "code": "UNAUTHENTICATED"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(testCreds(t), WithBaseURL(srv.URL), WithModel("m"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	_, err = client.Complete(context.Background(), []Message{NewUserMessage("hi")}, nil)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if !apiErr.IsUnauthorized() || apiErr.IsRetryable() {
		t.Errorf("unexpected classification: %+v", apiErr)
	}
	if apiErr.Message != "bad key" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestNewClientRequiresModel(t *testing.T) {
	if _, err := NewClient(testCreds(t)); err != ErrNoModel {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"system", RoleSystem},
		{"developer", RoleSystem},
		{"user", RoleUser},
		{"assistant", RoleAssistant},
		{"function", RoleUser},
		{"", RoleUser},
	}
	for _, tt := range tests {
		if got := NormalizeRole(tt.in); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
