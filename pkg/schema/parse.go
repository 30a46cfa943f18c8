package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// jsonBlockRe は LLM がコードブロックで JSON を返した場合に抽出するパターン。
var jsonBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*({.*?})\\s*```")

// ParseStep extracts and parses a Step from raw backend response text.
// Handles JSON wrapped in markdown code fences and JSON surrounded by prose.
// パース失敗はセッションを殺さない: 呼び出し側が synthetic Observation に変換する。
func ParseStep(text string) (*Step, error) {
	raw := text
	text = strings.TrimSpace(text)

	// コードブロック内の JSON を取り出す試み
	if m := jsonBlockRe.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}

	// 先頭の { から末尾の } までを抽出（前後にテキストがある場合の対策）
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	var step Step
	if err := json.Unmarshal([]byte(text), &step); err != nil {
		return nil, fmt.Errorf("schema: invalid JSON from backend: %w\nraw: %s", err, text)
	}

	if step.Action == "" {
		return nil, fmt.Errorf("schema: backend response missing 'action' field: %s", text)
	}
	switch step.Action {
	case ActionRunTool, ActionThink, ActionRecordFinding, ActionFinal:
	default:
		return nil, fmt.Errorf("schema: unknown action %q", step.Action)
	}
	if step.Action == ActionRunTool && step.Tool == "" {
		return nil, fmt.Errorf("schema: run_tool step missing 'tool' field: %s", text)
	}

	step.Raw = raw
	return &step, nil
}
