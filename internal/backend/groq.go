package backend

import (
	"context"
	"net/http"
	"strings"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// groqBackend は高速クラウド推論（Groq）を使う。Groq の API は OpenAI 互換
// なので openAICompatBackend に委譲し、エンドポイントとデフォルトだけ差し替える。
// Groq 固有の挙動が必要になった場合はこのファイルだけを変更すれば済む。
type groqBackend struct {
	inner *openAICompatBackend
}

func newGroq(settings Settings) (*groqBackend, error) {
	apiKey, err := settings.require(NameGroq, "api_key")
	if err != nil {
		return nil, err
	}
	timeout, err := settings.timeout(defaultGroqTimeout)
	if err != nil {
		return nil, err
	}
	inner := &openAICompatBackend{
		name:    string(NameGroq),
		baseURL: strings.TrimRight(settings.get("base_url", defaultGroqBaseURL), "/"),
		apiKey:  apiKey,
		model:   settings.get("model", DefaultGroqModel),
		timeout: timeout,
		client:  &http.Client{},
	}
	return &groqBackend{inner: inner}, nil
}

func (b *groqBackend) Name() string  { return string(NameGroq) }
func (b *groqBackend) Model() string { return b.inner.model }

func (b *groqBackend) Complete(ctx context.Context, req Request) (string, error) {
	return b.inner.Complete(ctx, req)
}

func (b *groqBackend) HealthCheck(ctx context.Context) (bool, string) {
	return b.inner.HealthCheck(ctx)
}
