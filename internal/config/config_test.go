package config_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/0x6d61/redagent/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `backend:
  name: groq
  settings:
    model: llama3-70b-8192
budgets:
  steps: 15
  time_minutes: 45
max_sessions: 3
auto_approve: true
tools:
  paths:
    nmap: /opt/nmap/bin/nmap
  dir: custom-tools
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Name != "groq" {
		t.Errorf("backend name = %q", cfg.Backend.Name)
	}
	if cfg.Backend.Settings["model"] != "llama3-70b-8192" {
		t.Errorf("model = %q", cfg.Backend.Settings["model"])
	}
	if cfg.Budgets.Steps != 15 || cfg.Budgets.TimeMinutes != 45 {
		t.Errorf("budgets = %+v", cfg.Budgets)
	}
	if cfg.MaxSessions != 3 || !cfg.AutoApprove {
		t.Errorf("sessions/auto_approve = %d/%v", cfg.MaxSessions, cfg.AutoApprove)
	}
	if cfg.Tools.Paths["nmap"] != "/opt/nmap/bin/nmap" || cfg.Tools.Dir != "custom-tools" {
		t.Errorf("tools section = %+v", cfg.Tools)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults, got %v", err)
	}
	if cfg.Backend.Name != "ollama" {
		t.Errorf("default backend = %q, want ollama", cfg.Backend.Name)
	}
	if cfg.Budgets.Steps != 10 || cfg.Budgets.TimeMinutes != 30 {
		t.Errorf("default budgets = %+v", cfg.Budgets)
	}
	if cfg.MaxSessions != 2 {
		t.Errorf("default max_sessions = %d, want 2", cfg.MaxSessions)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_WORDLIST_HOME", "/opt/lists")
	path := writeConfig(t, `tools:
  paths:
    gobuster: "${TEST_WORDLIST_HOME}/bin/gobuster"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.Paths["gobuster"] != "/opt/lists/bin/gobuster" {
		t.Errorf("path not expanded: %q", cfg.Tools.Paths["gobuster"])
	}
}

func TestLoad_CredentialFromEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test123")
	path := writeConfig(t, `backend:
  name: groq
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Settings["api_key"] != "gsk_test123" {
		t.Errorf("api_key not resolved from env: %q", cfg.Backend.Settings["api_key"])
	}
}

func TestLoad_OllamaHostFromEnv(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	path := writeConfig(t, `backend:
  name: ollama
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Settings["host"] != "http://gpu-box:11434" {
		t.Errorf("host not resolved: %q", cfg.Backend.Settings["host"])
	}
}

// OLLAMA_HOST で解決した設定が実際にそのホストへの接続に使われること。
func TestNewBackend_OllamaHostReachesWire(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"llama3.1:8b"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	t.Setenv("OLLAMA_HOST", srv.URL)
	path := writeConfig(t, `backend:
  name: ollama
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	be, err := cfg.NewBackend()
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if ok, hint := be.HealthCheck(context.Background()); !ok {
		t.Fatalf("HealthCheck against OLLAMA_HOST server failed: %s", hint)
	}
	if hits.Load() == 0 {
		t.Error("backend never contacted the OLLAMA_HOST server")
	}
}

func TestNewBackend_MissingKeyHint(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := writeConfig(t, `backend:
  name: anthropic
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = cfg.NewBackend()
	if err == nil {
		t.Fatal("missing api_key should fail backend construction")
	}
	if !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("error should name the env var to set: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `{{{invalid`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
