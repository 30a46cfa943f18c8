package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary = lipgloss.Color("#00D7FF") // cyan: focus / thought
	colorTool    = lipgloss.Color("#AF87FF") // purple: tool actions
	colorSuccess = lipgloss.Color("#87FF5F") // green: completed
	colorWarning = lipgloss.Color("#FFD700") // yellow: approval pending
	colorDanger  = lipgloss.Color("#FF5555") // red: failed
	colorMuted   = lipgloss.Color("#555577") // dim gray: timestamps / hints
	colorBorder  = lipgloss.Color("#333355")
	colorActive  = lipgloss.Color("#00D7FF")
)

// Panes
var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	paneActiveStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorActive)
)

// Status bar (top)
var statusBarStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("#0D0D1A")).
	Foreground(colorPrimary).
	Padding(0, 1)

// Approval box (rendered inside the log viewport)
var approvalBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorWarning).
	Padding(0, 1)

// Log source labels
var (
	labelThoughtStyle = lipgloss.NewStyle().Foreground(colorPrimary)
	labelToolStyle    = lipgloss.NewStyle().Foreground(colorTool)
	labelObsStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	labelSysStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	timestampStyle    = lipgloss.NewStyle().Foreground(colorMuted)
)

// Session status styles
var (
	statusRunningStyle   = lipgloss.NewStyle().Foreground(colorPrimary)
	statusCompletedStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	statusFailedStyle    = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	statusCancelledStyle = lipgloss.NewStyle().Foreground(colorMuted)
)
