package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/redagent/internal/tools"
)

// writeFakeBinary は dir に実行可能なシェルスクリプトを置き、PATH を dir に向ける。
func writeFakeBinary(t *testing.T, dir, name, script string) {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "#!/bin/sh\nPATH=/usr/bin:/bin\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
}

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	writeFakeBinary(t, dir, "fakescan", `echo "scan complete"`)
	t.Setenv("PATH", dir)

	res := tools.Run(context.Background(), "fakescan", &tools.Invocation{
		Binary:  "fakescan",
		Timeout: 5 * time.Second,
	})

	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %s, want success (err: %v)", res.Status, res.Err)
	}
	if !strings.Contains(res.Stdout, "scan complete") {
		t.Errorf("stdout = %q, want to contain 'scan complete'", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	writeFakeBinary(t, dir, "failtool", `echo "bad flag" >&2; exit 3`)
	t.Setenv("PATH", dir)

	res := tools.Run(context.Background(), "failtool", &tools.Invocation{
		Binary:  "failtool",
		Timeout: 5 * time.Second,
	})

	// 非ゼロ exit は Result で返す。エラー扱いでプロセスを落とさない。
	if res.Status != tools.StatusToolError {
		t.Fatalf("status = %s, want tool_error", res.Status)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "bad flag") {
		t.Errorf("stderr = %q, want to contain 'bad flag'", res.Stderr)
	}
}

func TestRun_Timeout(t *testing.T) {
	dir := t.TempDir()
	writeFakeBinary(t, dir, "slowtool", `sleep 5`)
	t.Setenv("PATH", dir)

	start := time.Now()
	res := tools.Run(context.Background(), "slowtool", &tools.Invocation{
		Binary:  "slowtool",
		Timeout: 200 * time.Millisecond,
	})

	if res.Status != tools.StatusTimeout {
		t.Fatalf("status = %s, want timeout", res.Status)
	}
	if res.ExitCode != 124 {
		t.Errorf("exit code = %d, want 124", res.ExitCode)
	}
	// killGracePeriod 込みでも sleep の満了よりずっと早く返るはず
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("Run took %s, termination guarantee violated", elapsed)
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	res := tools.Run(context.Background(), "ghosttool", &tools.Invocation{
		Binary: "ghosttool",
	})

	if res.Status != tools.StatusNotAvailable {
		t.Fatalf("status = %s, want not_available", res.Status)
	}
	if res.Err == nil {
		t.Error("expected descriptive error for missing binary")
	}
}

func TestRun_RejectsPathSeparators(t *testing.T) {
	res := tools.Run(context.Background(), "evil", &tools.Invocation{
		Binary: "../bin/evil",
	})

	if res.Status != tools.StatusNotAvailable {
		t.Fatalf("status = %s, want not_available", res.Status)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "path separators") {
		t.Errorf("err = %v, want path separator rejection", res.Err)
	}
}

func TestRun_CaptureLimit(t *testing.T) {
	dir := t.TempDir()
	// 256KB 上限を超える 1MB を出力する
	writeFakeBinary(t, dir, "noisytool", `dd if=/dev/zero bs=1024 count=1024 2>/dev/null | tr '\0' 'x'`)
	t.Setenv("PATH", dir)

	res := tools.Run(context.Background(), "noisytool", &tools.Invocation{
		Binary:  "noisytool",
		Timeout: 30 * time.Second,
	})

	if res.Status != tools.StatusSuccess {
		t.Fatalf("status = %s, want success (err: %v)", res.Status, res.Err)
	}
	if !res.Truncated {
		t.Error("expected Truncated=true for oversized output")
	}
	if len(res.Stdout) > 256*1024 {
		t.Errorf("stdout length %d exceeds capture limit", len(res.Stdout))
	}
}

func TestRun_ContextCancel(t *testing.T) {
	dir := t.TempDir()
	writeFakeBinary(t, dir, "slowtool", `sleep 5`)
	t.Setenv("PATH", dir)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := tools.Run(ctx, "slowtool", &tools.Invocation{
		Binary:  "slowtool",
		Timeout: 30 * time.Second,
	})

	if res.Status != tools.StatusToolError {
		t.Fatalf("status = %s, want tool_error for cancellation", res.Status)
	}
}

func TestResult_Output_JoinsStderr(t *testing.T) {
	res := &tools.Result{Stdout: "found ports\n", Stderr: "warning: slow host\n"}
	out := res.Output()

	if !strings.Contains(out, "found ports") {
		t.Errorf("output missing stdout: %q", out)
	}
	if !strings.Contains(out, "[stderr]\nwarning: slow host") {
		t.Errorf("output missing labelled stderr: %q", out)
	}
}

func TestDispatch_PrefersExecutor(t *testing.T) {
	a := &stubHTTPAdapter{}
	res, err := tools.Dispatch(context.Background(), a, map[string]any{"q": "x"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Stdout != "from executor" {
		t.Errorf("stdout = %q, want executor result", res.Stdout)
	}
	if a.buildCalled {
		t.Error("BuildInvocation must not be called for Executor adapters")
	}
}

// stubHTTPAdapter はプロセスを介さない Executor 実装のスタブ。
type stubHTTPAdapter struct {
	buildCalled bool
}

func (s *stubHTTPAdapter) Name() string        { return "stub_http" }
func (s *stubHTTPAdapter) Description() string { return "stub" }
func (s *stubHTTPAdapter) Dangerous() bool     { return false }

func (s *stubHTTPAdapter) Probe(context.Context) (bool, string) { return true, "" }

func (s *stubHTTPAdapter) BuildInvocation(map[string]any) (*tools.Invocation, error) {
	s.buildCalled = true
	return nil, nil
}

func (s *stubHTTPAdapter) ParseOutput(raw string) string { return raw }

func (s *stubHTTPAdapter) Execute(context.Context, map[string]any) (*tools.Result, error) {
	return &tools.Result{Tool: "stub_http", Status: tools.StatusSuccess, Stdout: "from executor"}, nil
}
