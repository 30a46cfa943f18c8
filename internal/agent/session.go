// Package agent implements the ReAct loop controller and the execution
// bridge that runs sessions off the interactive surface.
package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status はセッションの状態。
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FailReason はセッションが Failed になった理由。
type FailReason string

const (
	ReasonBudgetExceeded FailReason = "budget_exceeded"
	ReasonBackendError   FailReason = "backend_error"
)

// セッション予算のデフォルト。
const (
	DefaultStepBudget = 10
	DefaultTimeBudget = 30 * time.Minute
)

// Session is one ReAct run. Owned exclusively by the loop controller
// that created it; the bridge and presentation layer only read.
type Session struct {
	ID        string
	Goal      string
	Target    string
	Backend   string // backend 識別子（表示用）
	CreatedAt time.Time

	StepBudget int
	TimeBudget time.Duration

	mu       sync.RWMutex
	status   Status
	reason   FailReason
	stepsRun int
	awaiting bool // 危険ツールの承認待ち中か
}

// NewSession は running 状態のセッションを生成する。
// stepBudget/timeBudget が 0 以下ならデフォルトを使う。
func NewSession(goal, target, backendName string, stepBudget int, timeBudget time.Duration) *Session {
	if stepBudget <= 0 {
		stepBudget = DefaultStepBudget
	}
	if timeBudget <= 0 {
		timeBudget = DefaultTimeBudget
	}
	return &Session{
		ID:         uuid.NewString(),
		Goal:       goal,
		Target:     target,
		Backend:    backendName,
		CreatedAt:  time.Now(),
		StepBudget: stepBudget,
		TimeBudget: timeBudget,
		status:     StatusRunning,
	}
}

// Status は現在の状態を返す。
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Reason は Failed の理由を返す。Failed 以外では空。
func (s *Session) Reason() FailReason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// StepsRun は消費済みの予算ステップ数を返す。
func (s *Session) StepsRun() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stepsRun
}

// AwaitingApproval は危険ツールの承認待ち中なら true を返す。
func (s *Session) AwaitingApproval() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.awaiting
}

// 以下の setter はセッションを所有するループコントローラーのみ呼ぶ。

func (s *Session) setAwaiting(v bool) {
	s.mu.Lock()
	s.awaiting = v
	s.mu.Unlock()
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) fail(reason FailReason) {
	s.mu.Lock()
	s.status = StatusFailed
	s.reason = reason
	s.mu.Unlock()
}

func (s *Session) consumeStep() int {
	s.mu.Lock()
	s.stepsRun++
	n := s.stepsRun
	s.mu.Unlock()
	return n
}
