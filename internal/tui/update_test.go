package tui

import (
	"strings"
	"testing"

	"github.com/0x6d61/redagent/internal/agent"
)

func TestParseGoalInput(t *testing.T) {
	cases := []struct {
		in         string
		target     string
		goal       string
		ok         bool
	}{
		{"10.0.0.5 assess the web server", "10.0.0.5", "assess the web server", true},
		{"example.com", "example.com", "Perform an authorized security assessment of the target.", true},
		{"   ", "", "", false},
	}
	for _, tc := range cases {
		target, goal, ok := parseGoalInput(tc.in)
		if ok != tc.ok || target != tc.target || goal != tc.goal {
			t.Errorf("parseGoalInput(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, target, goal, ok, tc.target, tc.goal, tc.ok)
		}
	}
}

func TestRenderLogLine_Labels(t *testing.T) {
	cases := []struct {
		kind  agent.EventType
		label string
	}{
		{agent.EventThought, "[AI  ]"},
		{agent.EventActionStarted, "[TOOL]"},
		{agent.EventObservation, "[OBS ]"},
		{agent.EventSessionEnded, "[SYS ]"},
	}
	for _, tc := range cases {
		got := renderLogLine(logLine{kind: tc.kind, message: "msg"}, 80)
		if !strings.Contains(got, tc.label) {
			t.Errorf("kind %s: line %q missing label %q", tc.kind, got, tc.label)
		}
	}
}

func TestRenderLogLine_ObservationPrefixedWithTool(t *testing.T) {
	got := renderLogLine(logLine{kind: agent.EventObservation, tool: "nmap", message: "80/tcp open"}, 80)
	if !strings.Contains(got, "nmap: 80/tcp open") {
		t.Errorf("observation line should name the tool: %q", got)
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := truncateWidth("hello", 10); got != "hello" {
		t.Errorf("short string changed: %q", got)
	}
	got := truncateWidth(strings.Repeat("a", 50), 10)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) > 10 {
		t.Errorf("truncated = %q", got)
	}
	// 全角文字は幅2として数える
	got = truncateWidth("ポートスキャン実行中", 8)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("wide-rune truncation = %q", got)
	}
}

func TestHandleEvent_AppendsToTrackedSession(t *testing.T) {
	m := New(agent.NewBridge(agent.BridgeConfig{MaxSessions: 1}))
	sv := &sessionView{}
	m.byID["s1"] = sv
	m.sessions = append(m.sessions, sv)

	m.handleEvent(agent.Event{SessionID: "s1", Type: agent.EventThought, Message: "thinking"})
	if len(sv.lines) != 1 || sv.lines[0].message != "thinking" {
		t.Fatalf("lines = %+v", sv.lines)
	}

	m.handleEvent(agent.Event{SessionID: "s1", Type: agent.EventApprovalRequired, Tool: "gobuster", Message: "approve?"})
	if sv.pending == nil || sv.pending.Tool != "gobuster" {
		t.Fatalf("pending = %+v, want approval event", sv.pending)
	}
	// 承認待ちはログ行にしない
	if len(sv.lines) != 1 {
		t.Errorf("approval event should not append a log line, lines = %d", len(sv.lines))
	}
}

func TestHandleEvent_UnknownSessionIgnored(t *testing.T) {
	m := New(agent.NewBridge(agent.BridgeConfig{MaxSessions: 1}))
	// bridge にも存在しないセッション ID → 何も起きない
	m.handleEvent(agent.Event{SessionID: "ghost", Type: agent.EventThought})
	if len(m.sessions) != 0 {
		t.Errorf("unknown session should not be tracked")
	}
}
