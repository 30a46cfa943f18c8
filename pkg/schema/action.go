// Package schema defines the JSON reasoning-step types exchanged between the
// loop controller and the backend (LLM).
package schema

// ActionType defines the kind of step the backend wants to take next.
type ActionType string

const (
	// ActionRunTool は Adapter Registry 経由でツールを1つ実行する。
	ActionRunTool ActionType = "run_tool"

	// ActionThink は発見内容を分析するだけで何も実行しない。
	ActionThink ActionType = "think"

	// ActionRecordFinding は発見した脆弱性・認証情報を Target Store に記録する。
	ActionRecordFinding ActionType = "record_finding"

	// ActionFinal はアセスメント完了を宣言し、最終回答を返す。
	ActionFinal ActionType = "final"
)

// Step is the JSON payload emitted by the backend on every reasoning round.
//
// The backend always responds in this shape:
//
//	{
//	  "thought": "port 80 open, running nikto",
//	  "action":  "run_tool",
//	  "tool":    "nikto",
//	  "args":    {"target": "http://10.0.0.5/"}
//	}
type Step struct {
	Thought string     `json:"thought"`
	Action  ActionType `json:"action"`

	// Tool / Args は ActionRunTool のとき使用。
	// Args の値は string / number / bool のいずれか。
	Tool string         `json:"tool,omitempty"`
	Args map[string]any `json:"args,omitempty"`

	// Final は ActionFinal のときの最終回答テキスト。
	Final string `json:"final,omitempty"`

	// Finding は ActionRecordFinding のとき使用。
	Finding *Finding `json:"finding,omitempty"`

	// Raw はパース元のレスポンステキスト（トランスクリプト参照用）。
	Raw string `json:"-"`
}

// Finding は backend が Target Store に記録する発見物。
type Finding struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"` // critical/high/medium/low/info
	CVE         string `json:"cve,omitempty"`
}

// IsToolCall reports whether the step requests a tool invocation.
// A step carrying both a tool call and a final answer counts as a tool
// call: gathering more evidence beats premature termination.
func (s *Step) IsToolCall() bool {
	return s.Tool != "" && (s.Action == ActionRunTool || s.Action == ActionFinal)
}

// IsFinal reports whether the step terminates the session with a final
// answer. A final answer accompanied by a tool call does not terminate.
func (s *Step) IsFinal() bool {
	if s.IsToolCall() {
		return false
	}
	return s.Action == ActionFinal
}
