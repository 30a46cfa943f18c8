// Package tui implements the session-monitor console. It is a pure
// consumer of the execution bridge: it renders the event subscription and
// sends start / cancel / approve commands, never touching Session or
// Transcript state directly.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0x6d61/redagent/internal/agent"
)

// FocusState tracks which pane has keyboard focus.
type FocusState int

const (
	FocusInput    FocusState = iota // bottom: goal input bar
	FocusViewport                   // session log
)

// EventMsg は bridge から届く Bubble Tea メッセージ。
type EventMsg agent.Event

// logLine はセッションログの1行（描画前の素データ）。
type logLine struct {
	kind    agent.EventType
	tool    string
	message string
}

// sessionView は1セッションぶんの表示状態。
type sessionView struct {
	handle  *agent.Handle
	lines   []logLine
	pending *agent.Event // 承認待ちイベント（なければ nil）
	final   string       // 最終回答（glamour で描画）
}

// Model is the root Bubble Tea model for the session monitor.
type Model struct {
	bridge *agent.Bridge

	width    int
	height   int
	ready    bool
	focus    FocusState
	quitting bool

	sessions []*sessionView
	byID     map[string]*sessionView
	selected int

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
}

// New は bridge に接続した Model を初期化する。
func New(bridge *agent.Bridge) Model {
	ti := textinput.New()
	ti.Placeholder = "target goal...  (e.g. 10.0.0.5 assess the web server)"
	ti.CharLimit = 500
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	return Model{
		bridge: bridge,
		focus:  FocusInput,
		byID:   make(map[string]*sessionView),
		input:  ti,
		spin:   sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEvent(m.bridge.Events()), m.spin.Tick)
}

// waitEvent は次の bridge イベントを待つ Bubble Tea コマンド。
func waitEvent(ch <-chan agent.Event) tea.Cmd {
	return func() tea.Msg {
		return EventMsg(<-ch)
	}
}

// activeSession returns the currently selected session view, or nil.
func (m *Model) activeSession() *sessionView {
	if m.selected < 0 || m.selected >= len(m.sessions) {
		return nil
	}
	return m.sessions[m.selected]
}

// trackSession はセッションを表示対象に加える。
func (m *Model) trackSession(h *agent.Handle) {
	sv := &sessionView{handle: h}
	m.sessions = append(m.sessions, sv)
	m.byID[h.Session().ID] = sv
	m.selected = len(m.sessions) - 1
}

// statusLabel はセッション状態の色付きラベルを返す。
func statusLabel(s agent.Status) string {
	switch s {
	case agent.StatusCompleted:
		return statusCompletedStyle.Render(string(s))
	case agent.StatusFailed:
		return statusFailedStyle.Render(string(s))
	case agent.StatusCancelled:
		return statusCancelledStyle.Render(string(s))
	default:
		return statusRunningStyle.Render(string(s))
	}
}

// sessionTitle はヘッダー/タブに出すセッションの短い表記。
func sessionTitle(sv *sessionView) string {
	sess := sv.handle.Session()
	id := sess.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s %s [%s]", id, sess.Target, sess.Status())
}
