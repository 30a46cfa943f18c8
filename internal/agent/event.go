package agent

import "github.com/0x6d61/redagent/pkg/schema"

// EventType はループから購読者へ送るイベントの種別。
type EventType string

const (
	// EventThought は backend の推論テキストがトランスクリプトに追加されたとき。
	EventThought EventType = "thought_added"
	// EventActionStarted はツール実行の開始（Action エントリ追加）時。
	EventActionStarted EventType = "action_started"
	// EventObservation はツール結果（または synthetic 観察）の追加時。
	EventObservation EventType = "observation_added"
	// EventApprovalRequired は危険ツールの実行承認を待っているとき。
	EventApprovalRequired EventType = "approval_required"
	// EventSessionEnded はセッションが終端状態に達したとき。
	EventSessionEnded EventType = "session_ended"
)

// Event はループから購読者へ送るメッセージ。
// 1セッション内ではトランスクリプトと同じ順序で届く。
type Event struct {
	SessionID string
	Type      EventType

	Seq     int    // 対応するトランスクリプトエントリの Seq（該当する場合）
	Tool    string // EventActionStarted / EventObservation 時
	Message string

	// Step は EventApprovalRequired 時の承認対象ステップ。
	Step *schema.Step

	// Status / Reason は EventSessionEnded 時の終端状態。
	Status Status
	Reason FailReason
}
