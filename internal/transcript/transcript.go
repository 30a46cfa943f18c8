// Package transcript provides the ordered, append-only record of one
// session's reasoning/acting/observing history.
package transcript

import (
	"sync"
	"time"
)

// Kind はトランスクリプトエントリの種別。
type Kind string

const (
	// KindThought は backend の推論テキスト。
	KindThought Kind = "thought"
	// KindAction はツール実行の宣言（tool 名と引数の文字列表現）。
	KindAction Kind = "action"
	// KindObservation はツール実行結果（または synthetic エラー観察）。
	KindObservation Kind = "observation"
	// KindFinalAnswer はセッションの最終回答。
	KindFinalAnswer Kind = "final_answer"
)

// Entry is one record in a session's transcript.
//
// Invariant: entries form a total order by Seq, contiguous from 0.
// An Action entry is always followed (once resolved) by exactly one
// Observation entry with the same Tool name.
type Entry struct {
	Seq     int
	Kind    Kind
	Payload string
	Tool    string // Action / Observation のときのツール名
	Time    time.Time

	// Synthetic は実行されなかったツールの代替観察（tool not found 等）。
	Synthetic bool
}

// Store はセッション1つ分の追記専用トランスクリプト。
//
// 書き込みはそのセッションの Loop Controller ただ1つ。読み手（TUI・レポート）
// は Snapshot で末尾確定済みエントリまでの一貫したコピーを得る。
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStore は空の Store を返す。
func NewStore() *Store {
	return &Store{entries: make([]Entry, 0, 32)}
}

// Append は次の連番を割り当ててエントリを追記し、確定したエントリを返す。
func (s *Store) Append(kind Kind, payload, tool string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		Seq:     len(s.entries),
		Kind:    kind,
		Payload: payload,
		Tool:    tool,
		Time:    time.Now(),
	}
	s.entries = append(s.entries, e)
	return e
}

// AppendSynthetic は実行されなかったツール呼び出しの代替観察を追記する。
func (s *Store) AppendSynthetic(payload, tool string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		Seq:       len(s.entries),
		Kind:      KindObservation,
		Payload:   payload,
		Tool:      tool,
		Time:      time.Now(),
		Synthetic: true,
	}
	s.entries = append(s.entries, e)
	return e
}

// Snapshot は全エントリのコピーを返す。追記専用のため、返されたスライスは
// その時点までの確定済み履歴として安全に読める。
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len は確定済みエントリ数を返す。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Last は末尾のエントリを返す。空なら ok=false。
func (s *Store) Last() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}
