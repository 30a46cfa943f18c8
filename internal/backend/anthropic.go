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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicMessagesPath   = "/v1/messages"
	anthropicVersion        = "2023-06-01"
)

// anthropicBackend はホスト型推論 API（Anthropic Messages API）を使う。
type anthropicBackend struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
	client    *http.Client
}

func newAnthropic(settings Settings) (*anthropicBackend, error) {
	apiKey, err := settings.require(NameAnthropic, "api_key")
	if err != nil {
		return nil, err
	}
	timeout, err := settings.timeout(defaultTimeout)
	if err != nil {
		return nil, err
	}
	return &anthropicBackend{
		baseURL:   strings.TrimRight(settings.get("base_url", defaultAnthropicBaseURL), "/"),
		apiKey:    apiKey,
		model:     settings.get("model", DefaultAnthropicModel),
		maxTokens: 4096,
		timeout:   timeout,
		client:    &http.Client{},
	}, nil
}

func (b *anthropicBackend) Name() string  { return string(NameAnthropic) }
func (b *anthropicBackend) Model() string { return b.model }

// anthropicResponse は Messages API のレスポンス構造体（必要最小限）。
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (b *anthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.maxTokens
	}
	body := map[string]any{
		"model":      b.model,
		"max_tokens": maxTokens,
		"system":     req.System,
		"messages":   msgs,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+anthropicMessagesPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("x-api-key", b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: send request: %w", classifyTransport(ctx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", classifyTransport(ctx, err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: API error %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(respBytes)), classifyStatus(resp.StatusCode))
	}

	var msg anthropicResponse
	if err := json.Unmarshal(respBytes, &msg); err != nil {
		return "", fmt.Errorf("anthropic: unmarshal response: %v: %w", err, ErrProtocol)
	}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: no text content in response: %w", ErrProtocol)
}

// HealthCheck は最小リクエストで認証と到達性を確認する。
// Anthropic にはヘルス専用エンドポイントがないため 1 トークンの messages を投げる。
func (b *anthropicBackend) HealthCheck(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	body := []byte(fmt.Sprintf(`{"model":%q,"max_tokens":1,"messages":[{"role":"user","content":"ping"}]}`, b.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+anthropicMessagesPath, bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("x-api-key", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("anthropic not reachable at %s: %v", b.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, fmt.Sprintf("anthropic OK - model %s", b.model)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, "anthropic rejected the API key"
	default:
		return false, fmt.Sprintf("unexpected status %d from anthropic", resp.StatusCode)
	}
}
