package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Status はツール実行の終了クラス。
type Status string

const (
	StatusSuccess      Status = "success"
	StatusToolError    Status = "tool_error"    // 非ゼロ exit / 起動失敗
	StatusTimeout      Status = "timeout"       // ツールタイムアウト超過
	StatusNotAvailable Status = "not_available" // バイナリ/エンドポイント不在
)

const (
	// defaultToolTimeout は ToolDef/adapter が指定しない場合のデフォルト。
	defaultToolTimeout = 120 * time.Second

	// killGracePeriod はキャンセル/タイムアウト後にプロセス終了を待つ猶予。
	// 超えたらプロセスを切り離して即座に結果を返す（teardown で無限に待たない）。
	killGracePeriod = 3 * time.Second

	// captureLimit は stdout/stderr それぞれの取り込み上限バイト数。
	captureLimit = 256 * 1024
)

// Result はツール実行の完了結果。生成後は不変。
type Result struct {
	Tool     string
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration

	// Truncated は取り込み上限に達して出力が切り詰められた場合 true。
	Truncated bool
	// Err は起動失敗等の詳細（Status 判定の補足）。
	Err error
}

// Output は stdout に stderr を連結したテキストを返す。
func (r *Result) Output() string {
	out := strings.TrimRight(r.Stdout, "\n")
	if r.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += "[stderr]\n" + strings.TrimRight(r.Stderr, "\n")
	}
	return out
}

// resolveBinary は名前を PATH 上の絶対パスに解決する。
//
// セキュリティ上の考慮:
//   - 名前にパス区切り文字（/ \）が含まれる場合はエラー。
//     backend 生成の引数経由の相対パスやパストラバーサルを防ぐ。
//   - exec.LookPath で PATH 内の実在バイナリのみを許可する。
func resolveBinary(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("binary name must not contain path separators: %q", name)
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("binary name must not be empty")
	}
	absPath, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found in PATH: %w", name, err)
	}
	if !filepath.IsAbs(absPath) {
		return "", fmt.Errorf("resolved path is not absolute: %q", absPath)
	}
	return absPath, nil
}

// limitWriter は上限バイトまで取り込み、超過分を捨てる。
type limitWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}

// Run は Invocation を実行して Result を返す。
//
// 全ての終了パスでプロセスの終了または切り離しを保証する:
// タイムアウト/キャンセル時は SIGKILL を送り、killGracePeriod 以内に
// 終わらなければ Wait を放棄してプロセスを切り離す（cmd.WaitDelay）。
// 非ゼロ exit はエラーではなく StatusToolError の Result として返す。
func Run(ctx context.Context, tool string, inv *Invocation) *Result {
	started := time.Now()

	absPath, err := resolveBinary(inv.Binary)
	if err != nil {
		return &Result{
			Tool:     tool,
			Status:   StatusNotAvailable,
			ExitCode: -1,
			Duration: time.Since(started),
			Err:      err,
		}
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, absPath, inv.Args...) // nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command -- absPath は resolveBinary で検証済み
	cmd.WaitDelay = killGracePeriod

	stdout := &limitWriter{limit: captureLimit}
	stderr := &limitWriter{limit: captureLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	duration := time.Since(started)

	res := &Result{
		Tool:      tool,
		Stdout:    stdout.buf.String(),
		Stderr:    stderr.buf.String(),
		Duration:  duration,
		Truncated: stdout.truncated || stderr.truncated,
	}

	switch {
	case runErr == nil:
		res.Status = StatusSuccess

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Status = StatusTimeout
		res.ExitCode = 124
		res.Err = fmt.Errorf("command timed out after %s", timeout)

	case errors.Is(ctx.Err(), context.Canceled):
		res.Status = StatusToolError
		res.ExitCode = -1
		res.Err = ctx.Err()

	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.Status = StatusToolError
			res.ExitCode = exitErr.ExitCode()
			res.Err = runErr
		} else if errors.Is(runErr, exec.ErrWaitDelay) {
			// 出力パイプが猶予内に閉じなかった。ここまでの出力で続行する。
			res.Status = StatusSuccess
		} else {
			res.Status = StatusToolError
			res.ExitCode = -1
			res.Err = runErr
		}
	}

	return res
}

// Dispatch は adapter を1回実行する。Executor 実装（HTTP 等の組み込み
// アダプター）を優先し、それ以外は BuildInvocation + Run で外部プロセスを呼ぶ。
func Dispatch(ctx context.Context, a Adapter, args map[string]any) (*Result, error) {
	if ex, ok := a.(Executor); ok {
		return ex.Execute(ctx, args)
	}
	inv, err := a.BuildInvocation(args)
	if err != nil {
		return nil, err
	}
	return Run(ctx, a.Name(), inv), nil
}

// readAllLimited は r から captureLimit まで読み込む（HTTP アダプター用）。
func readAllLimited(r io.Reader) (string, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, captureLimit+1))
	if err != nil {
		return "", false, err
	}
	if len(data) > captureLimit {
		return string(data[:captureLimit]), true, nil
	}
	return string(data), false, nil
}
