package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0x6d61/redagent/internal/backend"
)

// mockOpenAIServer は OpenAI 互換 Chat Completions API の最低限のモックを提供する。
func mockOpenAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}]}`)) //nolint:errcheck
	}))
}

func TestOpenAICompat_Complete(t *testing.T) {
	srv := mockOpenAIServer(t, `{\"thought\":\"scan\",\"action\":\"think\"}`)
	defer srv.Close()

	b, err := backend.New(backend.NameOpenAICompat, backend.Settings{
		"api_key":  "sk-test",
		"base_url": srv.URL,
	})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	text, err := b.Complete(context.Background(), backend.Request{
		System:   "you are a pentest agent",
		Messages: []backend.Message{{Role: "user", Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text == "" {
		t.Error("Complete returned empty text")
	}
}

func TestOpenAICompat_MissingAPIKey_FailsFast(t *testing.T) {
	_, err := backend.New(backend.NameOpenAICompat, backend.Settings{})
	if err == nil {
		t.Fatal("expected construction error for missing api_key")
	}
}

func TestGroq_DelegatesToOpenAICompat(t *testing.T) {
	srv := mockOpenAIServer(t, "hello from groq")
	defer srv.Close()

	b, err := backend.New(backend.NameGroq, backend.Settings{
		"api_key":  "gsk-test",
		"base_url": srv.URL,
	})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	if b.Name() != "groq" {
		t.Errorf("Name: got %q, want groq", b.Name())
	}

	text, err := b.Complete(context.Background(), backend.Request{
		Messages: []backend.Message{{Role: "user", Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "hello from groq" {
		t.Errorf("text: got %q", text)
	}
}

func TestAnthropic_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "" {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("anthropic-version") == "" {
			http.Error(w, "missing version", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"next step decided"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	b, err := backend.New(backend.NameAnthropic, backend.Settings{
		"api_key":  "sk-ant-test",
		"base_url": srv.URL,
	})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	text, err := b.Complete(context.Background(), backend.Request{
		Messages: []backend.Message{{Role: "user", Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "next step decided" {
		t.Errorf("text: got %q", text)
	}
}

func TestOllama_Complete_NativeChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"local model says hi"},"done_reason":"stop"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	b, err := backend.New(backend.NameOllama, backend.Settings{"host": srv.URL})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	text, err := b.Complete(context.Background(), backend.Request{
		Messages: []backend.Message{{Role: "user", Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "local model says hi" {
		t.Errorf("text: got %q", text)
	}
}

func TestOllama_HealthCheck_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	b, err := backend.New(backend.NameOllama, backend.Settings{"host": srv.URL, "model": "llama3.1:8b"})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	ok, msg := b.HealthCheck(context.Background())
	if !ok {
		t.Error("daemon is reachable, HealthCheck should report ok")
	}
	if msg == "" {
		t.Error("HealthCheck should hint that the model is not pulled")
	}
}

func TestComplete_RetriesTransientFailureOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporary", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	b, err := backend.New(backend.NameOpenAICompat, backend.Settings{"api_key": "k", "base_url": srv.URL})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	text, err := b.Complete(context.Background(), backend.Request{Messages: []backend.Message{{Role: "user", Content: "go"}}})
	if err != nil {
		t.Fatalf("Complete after retry: %v", err)
	}
	if text != "recovered" {
		t.Errorf("text: got %q", text)
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got %d, want 2", calls.Load())
	}
}

func TestComplete_UnavailableAfterSingleRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b, err := backend.New(backend.NameOpenAICompat, backend.Settings{"api_key": "k", "base_url": srv.URL})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	_, err = b.Complete(context.Background(), backend.Request{Messages: []backend.Message{{Role: "user", Content: "go"}}})
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("err: got %v, want ErrUnavailable", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got %d, want exactly 2 (one retry)", calls.Load())
	}
}

func TestComplete_TimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	b, err := backend.New(backend.NameOpenAICompat, backend.Settings{
		"api_key": "k", "base_url": srv.URL, "timeout": "1",
	})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	_, err = b.Complete(context.Background(), backend.Request{Messages: []backend.Message{{Role: "user", Content: "go"}}})
	if !errors.Is(err, backend.ErrTimeout) {
		t.Fatalf("err: got %v, want ErrTimeout", err)
	}
}

func TestComplete_ProtocolErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	b, err := backend.New(backend.NameOpenAICompat, backend.Settings{"api_key": "k", "base_url": srv.URL})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}

	_, err = b.Complete(context.Background(), backend.Request{Messages: []backend.Message{{Role: "user", Content: "go"}}})
	if !errors.Is(err, backend.ErrProtocol) {
		t.Fatalf("err: got %v, want ErrProtocol", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1 (protocol errors are not transient)", calls.Load())
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := backend.New("watson", backend.Settings{})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_InvalidTimeout(t *testing.T) {
	_, err := backend.New(backend.NameOllama, backend.Settings{"timeout": "soon"})
	if err == nil {
		t.Error("expected error for non-numeric timeout")
	}
}
