package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/0x6d61/redagent/internal/agent"
	"github.com/0x6d61/redagent/internal/config"
	"github.com/0x6d61/redagent/internal/store"
	"github.com/0x6d61/redagent/internal/tools"
	"github.com/0x6d61/redagent/internal/tui"
)

func main() {
	var (
		backendName = flag.String("backend", "", "推論バックエンド: ollama, groq, anthropic, openai_compat")
		model       = flag.String("model", "", "モデル名（省略時はバックエンドのデフォルト）")
		configPath  = flag.String("config", "config/config.yaml", "設定ファイルパス")
		headless    = flag.Bool("headless", false, "TUI なしで1セッションを実行して終了する")
		goal        = flag.String("goal", "", "headless 時のゴールテキスト")
		yes         = flag.Bool("yes", false, "危険ツールを承認なしで実行する")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `⚡ redagent: AI-driven reasoning loop for authorized penetration testing

Usage:
  redagent [flags] [target]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  OLLAMA_HOST        Ollama サーバー URL (default: http://localhost:11434)
  GROQ_API_KEY       Groq API キー
  ANTHROPIC_API_KEY  Anthropic API キー
  OPENAI_API_KEY     OpenAI 互換エンドポイントの API キー

Examples:
  redagent 10.0.0.5                                  # TUI でセッション開始
  redagent -backend groq 10.0.0.5
  redagent -headless -goal "find web vulns" 10.0.0.5 # パイプライン実行
`)
	}
	flag.Parse()

	// .env → 環境変数（存在しなければ何もしない）
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("設定エラー", err)
	}
	if *backendName != "" {
		cfg.Backend.Name = *backendName
	}
	if *model != "" {
		cfg.Backend.Settings["model"] = *model
	}
	if *yes {
		cfg.AutoApprove = true
	}

	be, err := cfg.NewBackend()
	if err != nil {
		fatal("バックエンド初期化エラー", err)
	}

	registry := tools.DefaultRegistry(tools.BinaryPaths(cfg.Tools.Paths))
	if err := registry.LoadDir(cfg.Tools.Dir); err != nil {
		fatal("ツールロードエラー", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 起動時に一度だけプローブし、以降はキャッシュを使う
	registry.ProbeAll(ctx)
	if ok, hint := be.HealthCheck(ctx); !ok {
		fmt.Fprintf(os.Stderr, "警告: backend %s が応答しません: %s\n", be.Name(), hint)
	}

	bridge := agent.NewBridge(agent.BridgeConfig{
		Backend:     be,
		Registry:    registry,
		Targets:     store.NewMemoryStore(),
		MaxSessions: cfg.MaxSessions,
		StepBudget:  cfg.Budgets.Steps,
		TimeBudget:  time.Duration(cfg.Budgets.TimeMinutes) * time.Minute,
		AutoApprove: cfg.AutoApprove || *headless,
	})

	if *headless {
		runHeadless(ctx, bridge, flag.Arg(0), *goal)
		return
	}

	m := tui.New(bridge)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// CLI 引数のターゲットは起動直後にセッション開始する
	if target := flag.Arg(0); target != "" {
		if _, err := bridge.Start("Perform an authorized security assessment of the target.", target); err != nil {
			fatal("セッション開始エラー", err)
		}
	}

	if _, err := p.Run(); err != nil {
		fatal("TUI エラー", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bridge.Shutdown(shutdownCtx)
}

func fatal(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
	os.Exit(1)
}

// headless 出力のスタイル
var (
	hlThought = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D7FF"))
	hlTool    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AF87FF"))
	hlErr     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	hlOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#87FF5F")).Bold(true)
)

// runHeadless は TUI なしで1セッションを実行し、イベントを行出力する。
func runHeadless(ctx context.Context, bridge *agent.Bridge, target, goal string) {
	if target == "" {
		fatal("headless 実行", fmt.Errorf("ターゲットを指定してください"))
	}
	if goal == "" {
		goal = "Perform an authorized security assessment of the target."
	}

	h, err := bridge.Start(goal, target)
	if err != nil {
		fatal("セッション開始エラー", err)
	}

	go func() {
		<-ctx.Done()
		bridge.Cancel(h.Session().ID)
	}()

	for e := range bridge.Events() {
		switch e.Type {
		case agent.EventThought:
			fmt.Println(hlThought.Render("[AI  ] ") + e.Message)
		case agent.EventActionStarted:
			fmt.Println(hlTool.Render("[TOOL] ") + e.Message)
		case agent.EventObservation:
			fmt.Println("[OBS ] " + e.Message)
		case agent.EventSessionEnded:
			if e.Status == agent.StatusCompleted {
				fmt.Println(hlOK.Render("session completed"))
			} else {
				fmt.Println(hlErr.Render(fmt.Sprintf("session %s (%s)", e.Status, e.Reason)))
			}
			if e.Status != agent.StatusCompleted {
				os.Exit(1)
			}
			return
		}
	}
}
