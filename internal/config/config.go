// Package config loads the engine configuration from YAML with ${VAR}
// environment expansion and environment-based credential resolution.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/0x6d61/redagent/internal/agent"
	"github.com/0x6d61/redagent/internal/backend"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// BackendSection は使用する backend とその不透明設定。
// Settings の中身は backend variant が構築時に検証する。
type BackendSection struct {
	Name     string            `yaml:"name"`
	Settings map[string]string `yaml:"settings"`
}

// BudgetSection はセッション予算。
type BudgetSection struct {
	Steps       int `yaml:"steps"`
	TimeMinutes int `yaml:"time_minutes"`
}

// ToolsSection はツール実行系の設定。
type ToolsSection struct {
	// Paths はツール名 → バイナリ名/パスの上書き。
	Paths map[string]string `yaml:"paths"`
	// Dir はカスタムツール定義 (*.yaml) のディレクトリ。
	Dir string `yaml:"dir"`
}

// AppConfig は config.yaml の統合設定構造。
type AppConfig struct {
	Backend     BackendSection `yaml:"backend"`
	Budgets     BudgetSection  `yaml:"budgets"`
	MaxSessions int            `yaml:"max_sessions"`
	AutoApprove bool           `yaml:"auto_approve"`
	Tools       ToolsSection   `yaml:"tools"`
}

// applyDefaults はゼロ値のフィールドにデフォルト値を適用する。
func (c *AppConfig) applyDefaults() {
	if c.Backend.Name == "" {
		c.Backend.Name = string(backend.NameOllama)
	}
	if c.Backend.Settings == nil {
		c.Backend.Settings = map[string]string{}
	}
	if c.Budgets.Steps == 0 {
		c.Budgets.Steps = agent.DefaultStepBudget
	}
	if c.Budgets.TimeMinutes == 0 {
		c.Budgets.TimeMinutes = int(agent.DefaultTimeBudget.Minutes())
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = agent.DefaultMaxSessions
	}
	if c.Tools.Dir == "" {
		c.Tools.Dir = "tools"
	}
}

// Load は設定ファイルを読み込む。値中の ${VAR} は環境変数で展開する。
// ファイルが存在しない場合はデフォルトの AppConfig を返す。
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := &AppConfig{}
			cfg.applyDefaults()
			cfg.resolveCredentials()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	for k, v := range cfg.Backend.Settings {
		cfg.Backend.Settings[k] = expandEnvString(v)
	}
	for k, v := range cfg.Tools.Paths {
		cfg.Tools.Paths[k] = expandEnvString(v)
	}
	cfg.Tools.Dir = expandEnvString(cfg.Tools.Dir)

	cfg.applyDefaults()
	cfg.resolveCredentials()
	return &cfg, nil
}

// credentialEnv は provider ごとの API キー環境変数。
var credentialEnv = map[string]string{
	string(backend.NameGroq):         "GROQ_API_KEY",
	string(backend.NameAnthropic):    "ANTHROPIC_API_KEY",
	string(backend.NameOpenAICompat): "OPENAI_API_KEY",
}

// resolveCredentials は設定に無い資格情報を環境変数から補う。
// 設定ファイルに直接キーを書かずとも .env / 環境だけで動かせる。
func (c *AppConfig) resolveCredentials() {
	if c.Backend.Settings["api_key"] == "" {
		if env, ok := credentialEnv[c.Backend.Name]; ok {
			if v := os.Getenv(env); v != "" {
				c.Backend.Settings["api_key"] = v
			}
		}
	}
	if c.Backend.Name == string(backend.NameOllama) && c.Backend.Settings["host"] == "" {
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			c.Backend.Settings["host"] = host
		}
	}
}

// NewBackend は設定から Backend を構築する。必須キーの欠落はどの環境変数を
// 設定すべきかを含む説明的なエラーで失敗する（fail fast）。
func (c *AppConfig) NewBackend() (backend.Backend, error) {
	b, err := backend.New(backend.Name(c.Backend.Name), backend.Settings(c.Backend.Settings))
	if err != nil {
		if env, ok := credentialEnv[c.Backend.Name]; ok {
			return nil, fmt.Errorf("%w\nHint: set %s in the environment or .env, or settings.api_key in the config file", err, env)
		}
		return nil, err
	}
	return b, nil
}

// expandEnvString は文字列内の ${VAR} をホスト環境変数で展開する。
func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
