package agent_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/redagent/internal/agent"
	"github.com/0x6d61/redagent/internal/tools"
	"github.com/0x6d61/redagent/internal/transcript"
)

func newTestBridge(t *testing.T, be *scriptedBackend, autoApprove bool, maxSessions int, adapters ...*stubTool) *agent.Bridge {
	t.Helper()
	reg := newTestRegistry(t)
	for _, a := range adapters {
		reg.Register(a)
	}
	reg.ProbeAll(context.Background())
	return agent.NewBridge(agent.BridgeConfig{
		Backend:     be,
		Registry:    reg,
		MaxSessions: maxSessions,
		AutoApprove: autoApprove,
	})
}

func waitDone(t *testing.T, h *agent.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func TestBridge_MaxSessionsLimit(t *testing.T) {
	// ブロックし続ける backend でセッションを占有させる
	blocking := &stubTool{name: "slow", blockCtx: true}
	be := &scriptedBackend{responses: []string{
		`{"thought":"scan","action":"run_tool","tool":"slow","args":{}}`,
	}}
	b := newTestBridge(t, be, true, 1, blocking)

	h1, err := b.Start("goal one", "10.0.0.1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := b.Start("goal two", "10.0.0.2"); err == nil {
		t.Error("second Start should exceed the session limit")
	}

	b.Cancel(h1.Session().ID)
	waitDone(t, h1)

	// 1つ目が終われば新しいセッションを受け付ける
	if _, err := b.Start("goal three", "10.0.0.3"); err != nil {
		t.Errorf("Start after completion: %v", err)
	}
}

func TestBridge_CancelMidObserving(t *testing.T) {
	blocking := &stubTool{name: "slow", blockCtx: true}
	be := &scriptedBackend{responses: []string{
		`{"thought":"long scan","action":"run_tool","tool":"slow","args":{}}`,
	}}
	b := newTestBridge(t, be, true, 2, blocking)

	h, err := b.Start("assess", "10.0.0.5")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// ツール実行（Observing）に入るまで待つ
	deadline := time.After(5 * time.Second)
	for {
		if h.Transcript().Len() >= 2 { // thought + action
			break
		}
		select {
		case <-deadline:
			t.Fatal("session never reached Observing")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancelledAt := time.Now()
	if err := b.Cancel(h.Session().ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitDone(t, h)

	if got := h.Session().Status(); got != agent.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	// 猶予時間を超えて追記されたエントリがないこと
	grace := 5 * time.Second
	for _, e := range h.Transcript().Snapshot() {
		if e.Time.After(cancelledAt.Add(grace)) {
			t.Errorf("entry seq %d appended after cancellation grace", e.Seq)
		}
	}
	// 途中までの部分観察は破棄されない
	if h.Transcript().Len() < 2 {
		t.Error("transcript before cancellation must be preserved")
	}
}

func TestBridge_ConcurrentSessionsDoNotInterleave(t *testing.T) {
	be := &scriptedBackend{responses: []string{
		`{"thought":"scan","action":"run_tool","tool":"fake","args":{}}`,
	}}
	// 予算で止まるまで回す
	fake := &stubTool{name: "fake", output: "data"}
	reg := newTestRegistry(t, fake)
	b := agent.NewBridge(agent.BridgeConfig{
		Backend: be, Registry: reg, MaxSessions: 2, StepBudget: 4, AutoApprove: true,
	})

	h1, err := b.Start("assess", "10.0.0.5")
	if err != nil {
		t.Fatalf("Start h1: %v", err)
	}
	h2, err := b.Start("assess", "10.0.0.5")
	if err != nil {
		t.Fatalf("Start h2: %v", err)
	}
	waitDone(t, h1)
	waitDone(t, h2)

	// 各セッションのトランスクリプトは独立して 0 から連続
	for _, h := range []*agent.Handle{h1, h2} {
		entries := h.Transcript().Snapshot()
		if len(entries) == 0 {
			t.Fatal("empty transcript")
		}
		for i, e := range entries {
			if e.Seq != i {
				t.Errorf("session %s entry %d has seq %d", h.Session().ID, i, e.Seq)
			}
		}
	}
	if h1.Session().ID == h2.Session().ID {
		t.Error("sessions must have distinct ids")
	}
}

func TestBridge_EventsOrderedPerSession(t *testing.T) {
	be := &scriptedBackend{responses: []string{
		`{"thought":"scan","action":"run_tool","tool":"fake","args":{}}`,
		`{"thought":"done","action":"final","final":"ok"}`,
	}}
	b := newTestBridge(t, be, true, 2, &stubTool{name: "fake", output: "data"})

	h, err := b.Start("assess", "10.0.0.5")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	var types []agent.EventType
	lastSeq := -1
	for done := false; !done; {
		select {
		case e := <-b.Events():
			types = append(types, e.Type)
			if e.Type == agent.EventSessionEnded {
				done = true
				break
			}
			// Seq はトランスクリプト順に単調増加
			if e.Seq <= lastSeq {
				t.Errorf("event %s seq %d out of order (last %d)", e.Type, e.Seq, lastSeq)
			}
			lastSeq = e.Seq
		case <-time.After(2 * time.Second):
			t.Fatalf("event stream dried up, got %v", types)
		}
	}

	want := []agent.EventType{
		agent.EventThought, agent.EventActionStarted, agent.EventObservation,
		agent.EventThought, agent.EventObservation, agent.EventSessionEnded,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestBridge_DangerousToolDenied(t *testing.T) {
	be := &scriptedBackend{responses: []string{
		`{"thought":"brute force dirs","action":"run_tool","tool":"bruter","args":{}}`,
		`{"thought":"denied, wrapping up","action":"final","final":"done without brute force"}`,
	}}
	b := newTestBridge(t, be, false, 2, &stubTool{name: "bruter", dangerous: true})

	h, err := b.Start("assess", "10.0.0.5")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// approval_required イベントを待って拒否する
	deadline := time.After(5 * time.Second)
	for approved := false; !approved; {
		select {
		case e := <-b.Events():
			if e.Type == agent.EventApprovalRequired {
				if e.Tool != "bruter" {
					t.Errorf("approval event tool = %q", e.Tool)
				}
				if err := b.Approve(h.Session().ID, false); err != nil {
					t.Fatalf("Approve: %v", err)
				}
				approved = true
			}
		case <-deadline:
			t.Fatal("approval_required event never arrived")
		}
	}
	waitDone(t, h)

	if h.Session().Status() != agent.StatusCompleted {
		t.Fatalf("status = %s, want completed (denial is recoverable)", h.Session().Status())
	}
	denied := false
	for _, e := range h.Transcript().Snapshot() {
		if e.Synthetic && strings.Contains(e.Payload, "denied") {
			denied = true
		}
	}
	if !denied {
		t.Error("denial should surface as a synthetic observation")
	}
}

func TestBridge_ApproveUnknownSession(t *testing.T) {
	b := newTestBridge(t, &scriptedBackend{responses: []string{"x"}}, true, 1)
	if err := b.Approve("nope", true); err == nil {
		t.Error("Approve on unknown session should fail")
	}
	if err := b.Cancel("nope"); err == nil {
		t.Error("Cancel on unknown session should fail")
	}
}

// gatedTool は release が閉じるまで実行をブロックする非危険ツール。
type gatedTool struct {
	stubTool
	release chan struct{}
}

func (g *gatedTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	select {
	case <-g.release:
		return &tools.Result{Tool: g.stubTool.name, Status: tools.StatusSuccess, Stdout: "scan done"}, nil
	case <-ctx.Done():
		return &tools.Result{Tool: g.stubTool.name, Status: tools.StatusToolError, ExitCode: -1, Err: ctx.Err()}, nil
	}
}

// 承認待ちでないタイミングの Approve は拒否され、後続の危険ツールを
// 先回りで承認してしまわないこと。
func TestBridge_OutOfPhaseApprovalRejected(t *testing.T) {
	gate := &gatedTool{stubTool: stubTool{name: "scanner"}, release: make(chan struct{})}
	be := &scriptedBackend{responses: []string{
		`{"thought":"recon first","action":"run_tool","tool":"scanner","args":{}}`,
		`{"thought":"now brute force","action":"run_tool","tool":"bruter","args":{}}`,
		`{"thought":"denied, wrapping up","action":"final","final":"done"}`,
	}}
	reg := newTestRegistry(t, gate, &stubTool{name: "bruter", dangerous: true})
	b := agent.NewBridge(agent.BridgeConfig{Backend: be, Registry: reg, MaxSessions: 2})

	h, err := b.Start("assess", "10.0.0.5")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// scanner の実行中（承認待ちではない）まで進める
	deadline := time.After(5 * time.Second)
	for h.Transcript().Len() < 2 { // thought + action
		select {
		case <-deadline:
			t.Fatal("session never reached tool execution")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := b.Approve(h.Session().ID, true); err == nil {
		t.Error("Approve outside an approval wait should fail")
	}
	close(gate.release)

	// 先回り承認が効いていなければ bruter は approval_required で止まる
	for denied := false; !denied; {
		select {
		case e := <-b.Events():
			if e.Type == agent.EventApprovalRequired {
				if e.Tool != "bruter" {
					t.Errorf("approval event tool = %q", e.Tool)
				}
				if err := b.Approve(h.Session().ID, false); err != nil {
					t.Fatalf("Approve: %v", err)
				}
				denied = true
			}
		case <-time.After(5 * time.Second):
			t.Fatal("bruter ran without approval_required")
		}
	}
	waitDone(t, h)

	for _, e := range h.Transcript().Snapshot() {
		if e.Kind == transcript.KindAction && e.Tool == "bruter" {
			t.Error("denied dangerous tool must not produce an action entry")
		}
	}
}
