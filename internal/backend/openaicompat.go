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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAICompatBackend は OpenAI 互換の Chat Completions API を話す汎用クライアント。
// Groq もこの実装に委譲する（base_url とデフォルトが違うだけ）。
type openAICompatBackend struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
}

func newOpenAICompat(settings Settings) (*openAICompatBackend, error) {
	apiKey, err := settings.require(NameOpenAICompat, "api_key")
	if err != nil {
		return nil, err
	}
	timeout, err := settings.timeout(defaultTimeout)
	if err != nil {
		return nil, err
	}
	return &openAICompatBackend{
		name:    string(NameOpenAICompat),
		baseURL: strings.TrimRight(settings.get("base_url", defaultOpenAIBaseURL), "/"),
		apiKey:  apiKey,
		model:   settings.get("model", DefaultOpenAIModel),
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

func (b *openAICompatBackend) Name() string  { return b.name }
func (b *openAICompatBackend) Model() string { return b.model }

// openAIChatResponse は Chat Completions のレスポンス構造体（必要最小限）。
type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (b *openAICompatBackend) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	body := map[string]any{
		"model":       b.model,
		"messages":    msgs,
		"max_tokens":  maxTokens,
		"temperature": 0.2,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", b.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", b.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s: send request: %w", b.name, classifyTransport(ctx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", b.name, classifyTransport(ctx, err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: API error %d: %s: %w", b.name, resp.StatusCode, strings.TrimSpace(string(respBytes)), classifyStatus(resp.StatusCode))
	}

	var chat openAIChatResponse
	if err := json.Unmarshal(respBytes, &chat); err != nil {
		return "", fmt.Errorf("%s: unmarshal response: %v: %w", b.name, err, ErrProtocol)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices in response: %w", b.name, ErrProtocol)
	}
	return chat.Choices[0].Message.Content, nil
}

// HealthCheck は GET /models で到達性と認証を確認する。
func (b *openAICompatBackend) HealthCheck(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("%s not reachable at %s: %v", b.name, b.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, fmt.Sprintf("%s OK - model %s", b.name, b.model)
	case resp.StatusCode == http.StatusUnauthorized:
		return false, fmt.Sprintf("%s rejected the API key (401)", b.name)
	default:
		return false, fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, b.name)
	}
}
