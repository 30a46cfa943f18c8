// Package tools provides the tool-adapter contract, the adapter registry and
// the scoped external-process executor that the agent loop dispatches through.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidArguments は adapter が引数マッピングを拒否したことを示す。
var ErrInvalidArguments = errors.New("invalid arguments")

// Invocation は実行可能なコマンド仕様。BuildInvocation が構築する。
type Invocation struct {
	Binary  string
	Args    []string
	Timeout time.Duration // 0 ならツールクラスのデフォルト
}

// Command はコマンド文字列表現を返す（トランスクリプトの Action 表示用）。
func (inv *Invocation) Command() string {
	out := inv.Binary
	for _, a := range inv.Args {
		out += " " + a
	}
	return out
}

// Adapter wraps one external capability behind a uniform contract.
//
// adapters never fail on a missing binary: Probe reports the condition so
// the loop controller can substitute a synthetic observation instead of
// dispatching.
type Adapter interface {
	// Name はツールの一意な識別子（snake_case）。
	Name() string
	// Description は backend のツールマニフェストに載せる短い説明。
	Description() string
	// Dangerous はユーザー承認が必要なツールなら true。
	Dangerous() bool
	// Probe は利用可否を短時間（数秒以内）で確認し、状態ヒントを返す。
	// 結果は Registry がキャッシュする。
	Probe(ctx context.Context) (bool, string)
	// BuildInvocation は引数マッピングから実行コマンドを組み立てる。
	// 引数が不正なら ErrInvalidArguments を wrap したエラーを返す。
	BuildInvocation(args map[string]any) (*Invocation, error)
	// ParseOutput はツール固有の生出力を backend が読める要約テキストに変換する。
	ParseOutput(raw string) string
}

// Executor は外部プロセスを介さず自前で実行するアダプター（HTTP API 等）。
// Dispatch は Executor を実装するアダプターを優先して呼び出す。
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// --- 引数マッピングのヘルパー ---
// backend の JSON から来る値は string / float64 / bool のいずれか。

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func requireString(args map[string]any, key string) (string, error) {
	v := argString(args, key)
	if v == "" {
		return "", fmt.Errorf("%w: required argument %q is missing", ErrInvalidArguments, key)
	}
	return v, nil
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
