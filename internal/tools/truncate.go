package tools

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// 観察テキストの既定の切り詰めパラメータ。
// head/tail は行単位の省略、cap は backend コンテキストに渡す最終バイト上限。
const (
	DefaultHeadLines      = 50
	DefaultTailLines      = 30
	DefaultObservationCap = 4000

	// TruncationMarker は上限超過時に観察テキストの末尾に必ず付くマーカー。
	TruncationMarker = "[output truncated]"
)

// TruncateConfig は観察テキストの切り詰め設定。
type TruncateConfig struct {
	HeadLines int
	TailLines int
	CapBytes  int
}

// DefaultTruncate は汎用ツール向けのデフォルト設定。
var DefaultTruncate = TruncateConfig{
	HeadLines: DefaultHeadLines,
	TailLines: DefaultTailLines,
	CapBytes:  DefaultObservationCap,
}

// Truncate は text に行単位の head/tail 省略とバイト上限を適用する。
// 上限を超えた場合、返るテキストは必ず CapBytes 以下で TruncationMarker で終わる。
func Truncate(text string, cfg TruncateConfig) string {
	if cfg.HeadLines <= 0 {
		cfg.HeadLines = DefaultHeadLines
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = DefaultTailLines
	}
	if cfg.CapBytes <= 0 {
		cfg.CapBytes = DefaultObservationCap
	}

	out := headTail(text, cfg.HeadLines, cfg.TailLines)
	return clamp(out, cfg.CapBytes)
}

// headTail は先頭 head 行 + 末尾 tail 行を残し中間を省略する。
// 合計行数が head+tail 以下なら全行を返す。
func headTail(text string, head, tail int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	total := len(lines)
	if total <= head+tail {
		return strings.Join(lines, "\n")
	}

	omitted := total - head - tail
	var sb strings.Builder
	for _, l := range lines[:head] {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	sb.WriteString(fmt.Sprintf("\n--- %d lines omitted ---\n\n", omitted))
	for _, l := range lines[total-tail:] {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// clamp はバイト上限を適用する。超過時は上限内に収め、末尾をマーカーにする。
func clamp(text string, capBytes int) string {
	if len(text) <= capBytes {
		return text
	}
	keep := capBytes - len(TruncationMarker) - 1
	if keep < 0 {
		keep = 0
	}
	// マルチバイト文字の途中で切らない
	for keep > 0 && !utf8.RuneStart(text[keep]) {
		keep--
	}
	return text[:keep] + "\n" + TruncationMarker
}
