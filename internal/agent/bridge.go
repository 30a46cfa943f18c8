package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0x6d61/redagent/internal/backend"
	"github.com/0x6d61/redagent/internal/store"
	"github.com/0x6d61/redagent/internal/tools"
	"github.com/0x6d61/redagent/internal/transcript"
)

// DefaultMaxSessions は同時実行セッション数のデフォルト上限。
const DefaultMaxSessions = 2

// eventBufferSize は bridge のイベントチャネル容量。
// ループはこのバッファ越しにイベントを順序通りに送る。
const eventBufferSize = 1024

// Bridge runs loop controllers on worker goroutines, multiplexes at most
// MaxSessions concurrent sessions and is the only surface the presentation
// layer talks to: Start / Cancel / Approve / Events.
type Bridge struct {
	backend     backend.Backend
	registry    *tools.Registry
	targets     store.TargetStore
	maxSessions int
	autoApprove bool

	stepBudget int
	timeBudget time.Duration

	events chan Event

	mu      sync.Mutex
	running map[string]*Handle
}

// Handle は実行中（または終了済み）セッションへの参照。
// Transcript と Session は読み取り専用で公開される。
type Handle struct {
	ctrl    *Controller
	cancel  context.CancelFunc
	approve chan bool
	done    chan struct{}
}

// Session はセッションレコードを返す。
func (h *Handle) Session() *Session { return h.ctrl.Session() }

// Transcript はトランスクリプトを返す。Snapshot で安全に読める。
func (h *Handle) Transcript() *transcript.Store { return h.ctrl.Transcript() }

// Done はループ終了で閉じるチャネルを返す。
func (h *Handle) Done() <-chan struct{} { return h.done }

// BridgeConfig は Bridge の構築パラメータ。
type BridgeConfig struct {
	Backend     backend.Backend
	Registry    *tools.Registry
	Targets     store.TargetStore
	MaxSessions int           // 0 なら DefaultMaxSessions
	StepBudget  int           // 0 なら DefaultStepBudget
	TimeBudget  time.Duration // 0 なら DefaultTimeBudget
	AutoApprove bool
}

// NewBridge は Bridge を構築する。
func NewBridge(cfg BridgeConfig) *Bridge {
	max := cfg.MaxSessions
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Bridge{
		backend:     cfg.Backend,
		registry:    cfg.Registry,
		targets:     cfg.Targets,
		maxSessions: max,
		autoApprove: cfg.AutoApprove,
		stepBudget:  cfg.StepBudget,
		timeBudget:  cfg.TimeBudget,
		events:      make(chan Event, eventBufferSize),
		running:     make(map[string]*Handle),
	}
}

// Events は全セッションのイベントを配送するチャネルを返す。
// 1セッション内の順序はトランスクリプト順と一致する。
func (b *Bridge) Events() <-chan Event { return b.events }

// Start はセッションを開始しワーカー goroutine でループを実行する。
// 実行中セッションが上限に達している場合はエラー。
func (b *Bridge) Start(goal, target string) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := 0
	for _, h := range b.running {
		if h.Session().Status() == StatusRunning {
			active++
		}
	}
	if active >= b.maxSessions {
		return nil, fmt.Errorf("agent: session limit reached (%d running, max %d)", active, b.maxSessions)
	}

	sess := NewSession(goal, target, b.backend.Name(), b.stepBudget, b.timeBudget)
	ctx, cancel := context.WithCancel(context.Background())
	approve := make(chan bool, 1)

	h := &Handle{
		ctrl: NewController(
			sess, b.backend, b.registry, transcript.NewStore(),
			b.targets, b.events, approve, b.autoApprove,
		),
		cancel:  cancel,
		approve: approve,
		done:    make(chan struct{}),
	}
	b.running[sess.ID] = h

	go func() {
		defer close(h.done)
		h.ctrl.Run(ctx)
	}()
	return h, nil
}

// Cancel はセッションに停止を要求する。ループは協調的に、外部プロセスは
// 猶予付きで終了する（猶予超過時は切り離し、セッションは即座に cancelled）。
func (b *Bridge) Cancel(sessionID string) error {
	b.mu.Lock()
	h, ok := b.running[sessionID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent: unknown session %s", sessionID)
	}
	h.cancel()
	return nil
}

// Approve は承認待ちの危険ツール実行に対する回答を送る。
func (b *Bridge) Approve(sessionID string, approved bool) error {
	b.mu.Lock()
	h, ok := b.running[sessionID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent: unknown session %s", sessionID)
	}
	// 承認待ちでないセッションへの回答はバッファに積まない。
	// 積むと次の危険ツールが無断で承認されてしまう。
	if !h.Session().AwaitingApproval() {
		return fmt.Errorf("agent: session %s is not waiting for approval", sessionID)
	}
	select {
	case h.approve <- approved:
		return nil
	default:
		return fmt.Errorf("agent: session %s is not waiting for approval", sessionID)
	}
}

// Sessions は既知の全セッションハンドルを作成時刻順で返す。
func (b *Bridge) Sessions() []*Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Handle, 0, len(b.running))
	for _, h := range b.running {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Session().CreatedAt.Before(out[j].Session().CreatedAt)
	})
	return out
}

// Get はセッション ID からハンドルを引く。
func (b *Bridge) Get(sessionID string) (*Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.running[sessionID]
	return h, ok
}

// Shutdown は全セッションをキャンセルし、終了を待つ。
func (b *Bridge) Shutdown(ctx context.Context) {
	b.mu.Lock()
	handles := make([]*Handle, 0, len(b.running))
	for _, h := range b.running {
		h.cancel()
		handles = append(handles, h)
	}
	b.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return
		}
	}
}
