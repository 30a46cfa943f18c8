package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/0x6d61/redagent/internal/backend"
	"github.com/0x6d61/redagent/internal/store"
	"github.com/0x6d61/redagent/internal/tools"
	"github.com/0x6d61/redagent/internal/transcript"
	"github.com/0x6d61/redagent/pkg/schema"
)

// Controller は1セッションの ReAct ループを駆動する状態機械。
//
// ループの流れ:
//
//	Reasoning:    backend.Complete → schema.ParseStep
//	Dispatching:  registry.Resolve → 承認ゲート → tools.Dispatch
//	Observing:    ParseOutput + Truncate → transcript に Observation 追記
//	→ Reasoning（予算内なら繰り返し）→ Completed | Failed | Cancelled
//
// Session と Transcript の書き込みはこの Controller だけが行う。
// 他のコンポーネントはスナップショットを読むのみ。
type Controller struct {
	session    *Session
	backend    backend.Backend
	registry   *tools.Registry
	transcript *transcript.Store
	targets    store.TargetStore

	events  chan<- Event
	approve <-chan bool

	// autoApprove が true なら危険ツールも承認なしで実行する。
	autoApprove bool
	truncate    tools.TruncateConfig

	history []backend.Message
}

// NewController は Controller を構築する。
//
// events : ループがイベントを送るチャネル（bridge が受信・配送）
// approve: 危険ツールの承認/拒否（true=承認）
func NewController(
	sess *Session,
	be backend.Backend,
	reg *tools.Registry,
	ts *transcript.Store,
	targets store.TargetStore,
	events chan<- Event,
	approve <-chan bool,
	autoApprove bool,
) *Controller {
	return &Controller{
		session:     sess,
		backend:     be,
		registry:    reg,
		transcript:  ts,
		targets:     targets,
		events:      events,
		approve:     approve,
		autoApprove: autoApprove,
		truncate:    tools.DefaultTruncate,
	}
}

// Transcript はセッションのトランスクリプトストアを返す（読み取り用）。
func (c *Controller) Transcript() *transcript.Store { return c.transcript }

// Session はセッションレコードを返す（読み取り用）。
func (c *Controller) Session() *Session { return c.session }

// Run はループを終端状態まで実行する。別 goroutine で呼び出すこと。
// ctx のキャンセルでセッションは cancelled になる。
func (c *Controller) Run(ctx context.Context) {
	targetCtx := ""
	if c.targets != nil {
		if tc, err := c.targets.GetContext(c.session.Target); err == nil {
			targetCtx = tc
		}
	}
	system := buildSystemPrompt(c.registry, targetCtx)

	goal := c.session.Goal
	if c.session.Target != "" {
		goal = fmt.Sprintf("Target: %s\nGoal: %s", c.session.Target, c.session.Goal)
	}
	c.history = []backend.Message{{Role: "user", Content: goal}}

	deadline := c.session.CreatedAt.Add(c.session.TimeBudget)

	for {
		// Cancelled は全ての非終端状態から到達可能。ラウンド間で確認する。
		if ctx.Err() != nil {
			c.finishCancelled(ctx)
			return
		}
		if c.session.StepsRun() >= c.session.StepBudget || time.Now().After(deadline) {
			c.finishFailed(ctx, ReasonBudgetExceeded)
			return
		}

		// Reasoning
		raw, err := c.backend.Complete(ctx, backend.Request{
			System:   system,
			Messages: pruneHistory(c.history),
		})
		if err != nil {
			if ctx.Err() != nil {
				c.finishCancelled(ctx)
				return
			}
			// リトライ後も失敗した backend エラーはセッションに対して致命的
			c.appendObservation(ctx, "", fmt.Sprintf("backend error: %v", err), true)
			c.finishFailed(ctx, ReasonBackendError)
			return
		}
		c.session.consumeStep()

		step, perr := schema.ParseStep(raw)
		if perr != nil {
			// パース失敗はセッションを殺さない。観察として返し予算を1消費する。
			obs := fmt.Sprintf("your previous response could not be parsed: %v", perr)
			c.appendObservation(ctx, "", obs, true)
			c.history = append(c.history,
				backend.Message{Role: "assistant", Content: raw},
				backend.Message{Role: "user", Content: "Observation: " + obs + "\nRespond with exactly one valid JSON object."},
			)
			continue
		}
		c.history = append(c.history, backend.Message{Role: "assistant", Content: step.Raw})

		if step.Thought != "" {
			entry := c.transcript.Append(transcript.KindThought, step.Thought, "")
			c.emit(ctx, Event{SessionID: c.session.ID, Type: EventThought, Seq: entry.Seq, Message: step.Thought})
		}

		// ツール呼び出しと最終回答が同時に来たらツール呼び出しを優先する
		// （証拠集めを途中終了より優先）。
		switch {
		case step.IsToolCall():
			obs, done := c.runTool(ctx, step)
			if done {
				return
			}
			c.history = append(c.history, backend.Message{Role: "user", Content: "Observation: " + obs})

		case step.IsFinal():
			entry := c.transcript.Append(transcript.KindFinalAnswer, step.Final, "")
			c.session.setStatus(StatusCompleted)
			c.emit(ctx, Event{SessionID: c.session.ID, Type: EventObservation, Seq: entry.Seq, Message: step.Final})
			c.finish(ctx)
			return

		case step.Action == schema.ActionRecordFinding:
			obs := c.recordFinding(ctx, step.Finding)
			c.history = append(c.history, backend.Message{Role: "user", Content: "Observation: " + obs})

		default: // think
			c.history = append(c.history, backend.Message{Role: "user", Content: "Observation: noted. Continue with the next step."})
		}
	}
}

// runTool は Dispatching → Observing を1回実行し、履歴に渡す観察テキストを返す。
// done=true はセッションが終端した（キャンセル）ことを示す。
func (c *Controller) runTool(ctx context.Context, step *schema.Step) (obs string, done bool) {
	name := step.Tool

	adapter, ok := c.registry.Resolve(name)
	if !ok {
		obs = fmt.Sprintf("tool %q not found. Available tools: %s",
			name, strings.Join(c.registry.ListAvailable(), ", "))
		c.appendObservation(ctx, name, obs, true)
		return obs, false
	}
	if !c.registry.IsAvailable(name) {
		obs = fmt.Sprintf("tool %q is not available: %s", name, c.registry.Hint(name))
		c.appendObservation(ctx, name, obs, true)
		return obs, false
	}

	// 危険ツールはユーザー承認を待つ。待機中以外の承認は Bridge 側で拒否される。
	if adapter.Dangerous() && !c.autoApprove {
		c.session.setAwaiting(true)
		c.emit(ctx, Event{SessionID: c.session.ID, Type: EventApprovalRequired, Tool: name, Step: step,
			Message: fmt.Sprintf("%s requires approval: %s", name, step.Thought)})
		select {
		case approved := <-c.approve:
			c.session.setAwaiting(false)
			if !approved {
				obs = fmt.Sprintf("user denied execution of %q. Choose a different approach.", name)
				c.appendObservation(ctx, name, obs, true)
				return obs, false
			}
		case <-ctx.Done():
			c.session.setAwaiting(false)
			c.finishCancelled(ctx)
			return "", true
		}
	}

	argsJSON, _ := json.Marshal(step.Args)
	entry := c.transcript.Append(transcript.KindAction, fmt.Sprintf("%s %s", name, argsJSON), name)
	c.emit(ctx, Event{SessionID: c.session.ID, Type: EventActionStarted, Seq: entry.Seq, Tool: name, Message: entry.Payload})

	res, err := tools.Dispatch(ctx, adapter, step.Args)
	if err != nil {
		// InvalidArguments 等。Action に対するエラーマーカー観察を対にして残す。
		obs = fmt.Sprintf("tool %q rejected the arguments: %v", name, err)
		c.appendObservation(ctx, name, obs, true)
		return obs, false
	}

	obs = c.observationText(adapter, res)
	e := c.transcript.Append(transcript.KindObservation, obs, name)
	c.emit(ctx, Event{SessionID: c.session.ID, Type: EventObservation, Seq: e.Seq, Tool: name, Message: obs})

	// Observing 中のキャンセル: 部分観察は上で記録済み。即座に終端する。
	if ctx.Err() != nil {
		c.finishCancelled(ctx)
		return "", true
	}
	return obs, false
}

// observationText は Tool Result を backend が読む観察テキストに変換する。
func (c *Controller) observationText(adapter tools.Adapter, res *tools.Result) string {
	var text string
	switch res.Status {
	case tools.StatusSuccess:
		text = adapter.ParseOutput(res.Output())
		if strings.TrimSpace(text) == "" {
			text = "(tool produced no output)"
		}
	case tools.StatusTimeout:
		text = fmt.Sprintf("tool timed out after %s.", res.Duration.Round(time.Second))
		if out := res.Output(); out != "" {
			text += "\nPartial output:\n" + out
		}
	case tools.StatusNotAvailable:
		text = fmt.Sprintf("tool could not be executed: %v", res.Err)
	default: // tool_error
		text = fmt.Sprintf("tool exited with code %d.", res.ExitCode)
		if out := res.Output(); out != "" {
			text += "\nOutput:\n" + out
		}
	}
	return tools.Truncate(text, c.truncate)
}

// recordFinding は発見事項を Target Store に登録し観察テキストを返す。
func (c *Controller) recordFinding(ctx context.Context, f *schema.Finding) string {
	if f == nil || f.Title == "" {
		obs := "record_finding requires a finding object with a title."
		c.appendObservation(ctx, "", obs, true)
		return obs
	}
	if c.targets != nil {
		if err := c.targets.UpsertFindings(c.session.Target, []schema.Finding{*f}); err != nil {
			obs := fmt.Sprintf("finding could not be recorded: %v", err)
			c.appendObservation(ctx, "", obs, true)
			return obs
		}
	}
	obs := fmt.Sprintf("finding recorded: [%s] %s", f.Severity, f.Title)
	c.appendObservation(ctx, "", obs, false)
	return obs
}

// appendObservation は観察（synthetic 含む）を追記しイベントを送る。
func (c *Controller) appendObservation(ctx context.Context, tool, text string, synthetic bool) {
	var entry transcript.Entry
	if synthetic {
		entry = c.transcript.AppendSynthetic(text, tool)
	} else {
		entry = c.transcript.Append(transcript.KindObservation, text, tool)
	}
	c.emit(ctx, Event{SessionID: c.session.ID, Type: EventObservation, Seq: entry.Seq, Tool: tool, Message: text})
}

func (c *Controller) finishCancelled(ctx context.Context) {
	c.session.setStatus(StatusCancelled)
	c.finish(ctx)
}

func (c *Controller) finishFailed(ctx context.Context, reason FailReason) {
	c.session.fail(reason)
	c.finish(ctx)
}

func (c *Controller) finish(ctx context.Context) {
	c.emit(ctx, Event{
		SessionID: c.session.ID,
		Type:      EventSessionEnded,
		Status:    c.session.Status(),
		Reason:    c.session.Reason(),
	})
}

// emit はイベントを順序通りに送る。購読者が追いつかない場合はブロックするが、
// キャンセル済みセッションの終端イベントまでは必ず送ろうと試みる。
func (c *Controller) emit(ctx context.Context, e Event) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- e:
	case <-ctx.Done():
		// キャンセル後はバッファに空きがある場合のみ送る。
		// 終端イベントも例外ではない: 購読者が既にいない可能性があるため
		// ここでブロックすると Shutdown が完了しない。
		select {
		case c.events <- e:
		default:
		}
	}
}
