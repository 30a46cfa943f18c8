package agent

import (
	"fmt"
	"strings"

	"github.com/0x6d61/redagent/internal/backend"
	"github.com/0x6d61/redagent/internal/tools"
)

// 会話履歴の概算トークン予算。超過時は古いステップから刈り込む。
// トークン数は 4 文字 ≒ 1 トークンで概算する。
const (
	historyTokenBudget = 8000
	charsPerToken      = 4
)

const systemPromptTemplate = `You are an authorized penetration-testing assistant executing a ReAct loop.
You investigate the target step by step: reason about what you know, run one
tool, read its output, and repeat until you can give a final assessment.

Rules:
- Only test the target you were given. Never touch other hosts.
- Respond with EXACTLY ONE JSON object per turn, nothing else.
- Run one tool at a time and base the next step on its observation.
- Record each confirmed vulnerability with the record_finding action before
  your final answer.

Response format (one of):
{"thought":"<reasoning>","action":"run_tool","tool":"<name>","args":{...}}
{"thought":"<reasoning>","action":"think"}
{"thought":"<reasoning>","action":"record_finding","finding":{"title":"...","description":"...","severity":"critical|high|medium|low|info","cve":"CVE-..."}}
{"thought":"<reasoning>","action":"final","final":"<assessment summary in markdown>"}

Available tools:
%s%s`

// buildSystemPrompt はアクション形式の指示・ツールマニフェスト・
// ターゲットの既知情報からシステムプロンプトを構築する。
func buildSystemPrompt(reg *tools.Registry, targetContext string) string {
	var manifest strings.Builder
	for _, a := range reg.All() {
		fmt.Fprintf(&manifest, "- %s: %s", a.Name(), a.Description())
		if !reg.IsAvailable(a.Name()) {
			manifest.WriteString(" [UNAVAILABLE: ")
			manifest.WriteString(reg.Hint(a.Name()))
			manifest.WriteString("]")
		}
		if a.Dangerous() {
			manifest.WriteString(" (requires user approval)")
		}
		manifest.WriteByte('\n')
	}

	ctxSection := ""
	if targetContext != "" {
		ctxSection = "\n\nTarget context:\n" + targetContext
	}
	return fmt.Sprintf(systemPromptTemplate, manifest.String(), ctxSection)
}

// pruneHistory は履歴をトークン予算内に収める。
// 先頭のゴール（最初の user メッセージ）は常に残し、古い
// assistant/user ペアから落とす。刈り込んだ場合はその旨のマーカーを挟む。
func pruneHistory(msgs []backend.Message) []backend.Message {
	if approxTokens(msgs) <= historyTokenBudget {
		return msgs
	}

	// msgs[0] はゴール。それ以降を新しい側から予算内まで採る。
	kept := []backend.Message{msgs[0]}
	budget := historyTokenBudget - len(msgs[0].Content)/charsPerToken

	var tail []backend.Message
	for i := len(msgs) - 1; i >= 1; i-- {
		cost := len(msgs[i].Content)/charsPerToken + 1
		if budget-cost < 0 {
			break
		}
		budget -= cost
		tail = append(tail, msgs[i])
	}
	// tail は逆順。刈り込みマーカーを挟んでから正順に戻す。
	if len(tail) < len(msgs)-1 {
		kept = append(kept, backend.Message{
			Role:    "user",
			Content: "[earlier steps pruned to fit the context window]",
		})
	}
	for i := len(tail) - 1; i >= 0; i-- {
		kept = append(kept, tail[i])
	}
	return kept
}

func approxTokens(msgs []backend.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)/charsPerToken + 1
	}
	return total
}
