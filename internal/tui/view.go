package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/0x6d61/redagent/internal/agent"
)

// View implements tea.Model and renders the monitor layout.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "\n  ⚡ starting redagent...\n"
	}

	statusBar := m.renderStatusBar()

	var pane lipgloss.Style
	if m.focus == FocusViewport {
		pane = paneActiveStyle.Width(m.width - 2)
	} else {
		pane = paneStyle.Width(m.width - 2)
	}
	logPane := pane.Render(m.viewport.View())

	inputBar := m.renderInputBar()

	return lipgloss.JoinVertical(lipgloss.Left, statusBar, logPane, inputBar)
}

// renderStatusBar renders the single-line header with session tabs.
func (m Model) renderStatusBar() string {
	appName := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Render("⚡ REDAGENT")

	var tabs []string
	for i, sv := range m.sessions {
		title := sessionTitle(sv)
		if i == m.selected {
			title = lipgloss.NewStyle().Foreground(colorWarning).Render("▸ " + title)
		}
		tabs = append(tabs, title)
	}
	line := appName
	if len(tabs) > 0 {
		line += "  " + strings.Join(tabs, "  ")
	} else {
		line += "  " + lipgloss.NewStyle().Foreground(colorMuted).Render("no sessions")
	}
	if m.hasRunningSession() {
		line += "  " + m.spin.View()
	}
	return statusBarStyle.Width(m.width).Render(truncateWidth(line, m.width-2))
}

func (m Model) hasRunningSession() bool {
	for _, sv := range m.sessions {
		if sv.handle.Session().Status() == agent.StatusRunning {
			return true
		}
	}
	return false
}

// renderInputBar renders the goal input with focus-dependent border.
func (m Model) renderInputBar() string {
	style := paneStyle
	if m.focus == FocusInput {
		style = paneActiveStyle
	}
	hint := lipgloss.NewStyle().Foreground(colorMuted).
		Render(" tab: focus  ctrl+x: cancel session  y/n: approve/deny  ctrl+c: quit")
	return style.Width(m.width - 2).Render(m.input.View() + "\n" + hint)
}

// rebuildViewport はアクティブセッションのログからビューポート内容を再生成する。
func (m *Model) rebuildViewport() {
	if !m.ready {
		return
	}
	sv := m.activeSession()
	if sv == nil {
		m.viewport.SetContent("  セッションがありません。\n\n  入力欄にターゲットとゴールを入力して開始:\n    例: 10.0.0.5 assess the web server")
		return
	}

	var sb strings.Builder
	sess := sv.handle.Session()
	header := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).
		Render(fmt.Sprintf("═══ %s → %s ═══", sess.Target, sess.Goal))
	sb.WriteString(header + "\n\n")

	for _, line := range sv.lines {
		sb.WriteString(renderLogLine(line, m.viewport.Width) + "\n")
	}

	// 最終回答は markdown として描画
	if sv.final != "" {
		sb.WriteString("\n" + renderMarkdown(sv.final, m.viewport.Width) + "\n")
	}

	// 承認待ちボックス
	if p := sv.pending; p != nil {
		boxWidth := m.viewport.Width - 2
		if boxWidth < 10 {
			boxWidth = 10
		}
		title := lipgloss.NewStyle().Foreground(colorWarning).Bold(true).Render("⚠  承認待ち")
		controls := lipgloss.NewStyle().Foreground(colorMuted).Render("  [y] 承認して実行   [n] 拒否")
		sb.WriteString("\n" + approvalBoxStyle.Width(boxWidth).Render(title+"\n\n  "+p.Message+"\n\n"+controls) + "\n")
	}

	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

// renderLogLine は1イベントを色付きの行に変換する。
func renderLogLine(line logLine, width int) string {
	var label string
	switch line.kind {
	case agent.EventThought:
		label = labelThoughtStyle.Render("[AI  ]")
	case agent.EventActionStarted:
		label = labelToolStyle.Render("[TOOL]")
	case agent.EventObservation:
		label = labelObsStyle.Render("[OBS ]")
	default:
		label = labelSysStyle.Render("[SYS ]")
	}
	msg := line.message
	if line.tool != "" && line.kind == agent.EventObservation {
		msg = line.tool + ": " + msg
	}
	// 複数行の観察は字下げして折り返す
	msg = strings.ReplaceAll(msg, "\n", "\n        ")
	return truncateWidth(fmt.Sprintf("%s  %s", label, msg), width*8)
}

// renderMarkdown は glamour で markdown を端末向けに描画する。
// 失敗時は素のテキストをそのまま返す。
func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// truncateWidth は表示幅ベースで文字列を切り詰める（East Asian 幅対応）。
func truncateWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
