// Package backend は推論プロバイダーを共通インターフェースで抽象化する。
// ローカル推論デーモン（Ollama）・高速クラウド推論（Groq）・ホスト型推論
// API（Anthropic）・汎用 OpenAI 互換エンドポイントの4種をサポートする。
package backend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Name は backend プロバイダーを識別する。
type Name string

const (
	NameOllama       Name = "ollama"
	NameGroq         Name = "groq"
	NameAnthropic    Name = "anthropic"
	NameOpenAICompat Name = "openai_compat"
)

// デフォルトモデル・エンドポイント。
const (
	DefaultOllamaHost     = "http://localhost:11434"
	DefaultOllamaModel    = "llama3.1:8b"
	DefaultGroqModel      = "llama3-70b-8192"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultOpenAIModel    = "gpt-4o-mini"

	defaultTimeout     = 120 * time.Second
	defaultGroqTimeout = 60 * time.Second
	healthTimeout      = 5 * time.Second
)

// Message は会話履歴の1メッセージ。Role は user / assistant のいずれか。
type Message struct {
	Role    string
	Content string
}

// Request は Complete に渡す推論コンテキスト。
type Request struct {
	// System はシステムプロンプト（アクション形式・ツールマニフェスト込み）。
	System string
	// Messages は user/assistant の交互履歴。末尾は必ず user。
	Messages []Message
	// MaxTokens は応答の上限トークン数。0 ならプロバイダーのデフォルト。
	MaxTokens int
}

// Backend is the uniform contract over one reasoning-model provider.
//
// Complete has no side effects beyond the network call: it never mutates
// session or transcript state. The caller appends the result.
type Backend interface {
	// Name はプロバイダー名を返す。
	Name() string
	// Model はアクティブなモデル名を返す。
	Model() string
	// Complete はコンテキストを送り、正規化済みの最終テキストを返す。
	// 失敗は ErrUnavailable / ErrTimeout / ErrProtocol のいずれかに分類される。
	Complete(ctx context.Context, req Request) (string, error)
	// HealthCheck は到達性を短いタイムアウトで確認する。
	HealthCheck(ctx context.Context) (bool, string)
}

// Settings は backend variant に渡す不透明な key/value 設定。
// 必須キーの欠落は構築時に検出する（fail fast）。
type Settings map[string]string

// get は key の値を返す。未設定なら def。
func (s Settings) get(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

// require は必須キーの値を返す。未設定ならエラー。
func (s Settings) require(name Name, key string) (string, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", fmt.Errorf("backend %s: required setting %q is missing", name, key)
	}
	return v, nil
}

// timeout は "timeout" キー（秒）を Duration として返す。
func (s Settings) timeout(def time.Duration) (time.Duration, error) {
	v, ok := s["timeout"]
	if !ok || v == "" {
		return def, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0, fmt.Errorf("backend: invalid timeout %q (want positive seconds)", v)
	}
	return time.Duration(sec) * time.Second, nil
}

// New は name に応じた Backend を構築する。
// 一時的なネットワーク障害を1回だけ再試行するラッパーを被せて返す。
func New(name Name, settings Settings) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch name {
	case NameOllama:
		b, err = newOllama(settings)
	case NameGroq:
		b, err = newGroq(settings)
	case NameAnthropic:
		b, err = newAnthropic(settings)
	case NameOpenAICompat:
		b, err = newOpenAICompat(settings)
	default:
		return nil, fmt.Errorf("backend: unknown provider %q (supported: %s)", name, supportedNames())
	}
	if err != nil {
		return nil, err
	}
	return withRetry(b), nil
}

func supportedNames() string {
	names := []string{string(NameOllama), string(NameGroq), string(NameAnthropic), string(NameOpenAICompat)}
	sort.Strings(names)
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
