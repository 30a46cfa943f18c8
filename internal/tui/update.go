package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/redagent/internal/agent"
)

// Update implements tea.Model and routes all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg.Width, msg.Height)
		m.ready = true
		m.rebuildViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	// bridge からのイベントを処理し、次のイベント待ちを再登録する
	// （Bubble Tea の非同期ループパターン）。
	case EventMsg:
		m.handleEvent(agent.Event(msg))
		m.rebuildViewport()
		return m, waitEvent(m.bridge.Events())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleResize(w, h int) {
	m.width = w
	m.height = h
	vpHeight := h - 6 // status bar + input bar + borders
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(w-2, vpHeight)
	} else {
		m.viewport.Width = w - 2
		m.viewport.Height = vpHeight
	}
	m.input.Width = w - 6
}

// handleEvent はイベントをセッションビューに反映する。
func (m *Model) handleEvent(e agent.Event) {
	sv, ok := m.byID[e.SessionID]
	if !ok {
		// TUI 外（ヘッドレス API 等）から開始されたセッションも追従する
		h, found := m.bridge.Get(e.SessionID)
		if !found {
			return
		}
		m.trackSession(h)
		sv = m.byID[e.SessionID]
	}

	switch e.Type {
	case agent.EventApprovalRequired:
		ev := e
		sv.pending = &ev
	case agent.EventSessionEnded:
		sv.pending = nil
		if e.Status == agent.StatusCompleted {
			if last, ok := sv.handle.Transcript().Last(); ok {
				sv.final = last.Payload
			}
		}
		sv.lines = append(sv.lines, logLine{kind: e.Type, message: fmt.Sprintf("session %s (%s)", e.Status, e.Reason)})
	default:
		sv.lines = append(sv.lines, logLine{kind: e.Type, tool: e.Tool, message: e.Message})
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// 承認待ちがあるときの y/n は他のキー処理より優先
	if sv := m.activeSession(); sv != nil && sv.pending != nil && m.focus != FocusInput {
		switch key {
		case "y":
			m.bridge.Approve(sv.handle.Session().ID, true)
			sv.pending = nil
			m.rebuildViewport()
			return m, nil
		case "n":
			m.bridge.Approve(sv.handle.Session().ID, false)
			sv.pending = nil
			m.rebuildViewport()
			return m, nil
		}
	}

	switch key {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		if m.focus == FocusInput {
			m.focus = FocusViewport
			m.input.Blur()
		} else {
			m.focus = FocusInput
			m.input.Focus()
		}
		return m, nil

	case "ctrl+x":
		if sv := m.activeSession(); sv != nil {
			m.bridge.Cancel(sv.handle.Session().ID)
		}
		return m, nil
	}

	if m.focus == FocusInput {
		if key == "enter" {
			return m.submitGoal()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	// viewport フォーカス時: セッション切り替えとスクロール
	switch key {
	case "left", "h":
		if m.selected > 0 {
			m.selected--
			m.rebuildViewport()
		}
		return m, nil
	case "right", "l":
		if m.selected < len(m.sessions)-1 {
			m.selected++
			m.rebuildViewport()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// submitGoal は入力行 "target goal..." を解釈してセッションを開始する。
func (m Model) submitGoal() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	target, goal, ok := parseGoalInput(line)
	if !ok {
		return m, nil
	}

	h, err := m.bridge.Start(goal, target)
	if err != nil {
		// 上限到達等。アクティブセッションのログに出す場所がないため
		// 新規ビューの代わりに入力欄へ差し戻す
		m.input.SetValue(line)
		return m, nil
	}
	m.trackSession(h)
	m.input.SetValue("")
	m.rebuildViewport()
	return m, nil
}

// parseGoalInput は "10.0.0.5 assess the host" 形式を (target, goal) に分ける。
// ゴール省略時は汎用アセスメントゴールを使う。
func parseGoalInput(line string) (target, goal string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", false
	}
	target = fields[0]
	if len(fields) == 1 {
		return target, "Perform an authorized security assessment of the target.", true
	}
	return target, strings.Join(fields[1:], " "), true
}
