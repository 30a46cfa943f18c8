package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ollamaBackend はローカル推論デーモン（Ollama）の native /api/chat を使う。
//
// Ollama native API:
//   POST <host>/api/chat   （認証不要）
//   GET  <host>/api/tags   （ヘルスチェック兼モデル一覧）
type ollamaBackend struct {
	host    string
	model   string
	timeout time.Duration
	client  *http.Client
}

func newOllama(settings Settings) (*ollamaBackend, error) {
	timeout, err := settings.timeout(defaultTimeout)
	if err != nil {
		return nil, err
	}
	return &ollamaBackend{
		host:    strings.TrimRight(settings.get("host", DefaultOllamaHost), "/"),
		model:   settings.get("model", DefaultOllamaModel),
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

func (b *ollamaBackend) Name() string  { return string(NameOllama) }
func (b *ollamaBackend) Model() string { return b.model }

// ollamaChatResponse は /api/chat のレスポンス構造体（必要最小限）。
type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	DoneReason string `json:"done_reason"`
}

func (b *ollamaBackend) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":    b.model,
		"messages": msgs,
		"stream":   false,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: send request: %w", classifyTransport(ctx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", classifyTransport(ctx, err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: API error %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(respBytes)), classifyStatus(resp.StatusCode))
	}

	var chat ollamaChatResponse
	if err := json.Unmarshal(respBytes, &chat); err != nil {
		return "", fmt.Errorf("ollama: unmarshal response: %v: %w", err, ErrProtocol)
	}
	if chat.Message.Content == "" {
		return "", fmt.Errorf("ollama: empty message content: %w", ErrProtocol)
	}
	return chat.Message.Content, nil
}

// HealthCheck は /api/tags でデーモンの到達性とモデルの有無を確認する。
func (b *ollamaBackend) HealthCheck(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.host+"/api/tags", nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("ollama not reachable at %s: %v", b.host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("unexpected status %d from ollama", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Sprintf("unexpected response from ollama: %v", err)
	}
	for _, m := range tags.Models {
		if m.Name == b.model || strings.Contains(m.Name, b.model) {
			return true, fmt.Sprintf("ollama OK - %s available", b.model)
		}
	}
	return true, fmt.Sprintf("ollama running but model %q not pulled. Run: ollama pull %s", b.model, b.model)
}
