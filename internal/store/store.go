// Package store defines the target-knowledge boundary the agent loop talks to.
// The loop only ever calls GetContext before a session and UpsertFindings when
// the backend records a finding; storage mechanics stay behind the interface.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/0x6d61/redagent/pkg/schema"
)

// TargetStore はターゲットに関する既知情報の読み書き境界。
type TargetStore interface {
	// GetContext はターゲットの既知情報をプロンプトに埋め込める
	// テキストとして返す。未知のターゲットなら空文字列。
	GetContext(target string) (string, error)
	// UpsertFindings は発見事項を登録する。同一タイトルは上書き。
	UpsertFindings(target string, findings []schema.Finding) error
}

// MemoryStore は TargetStore のインメモリ実装。
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[string]*targetRecord
}

type targetRecord struct {
	findings map[string]schema.Finding // title → finding
}

// NewMemoryStore は空の MemoryStore を返す。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[string]*targetRecord)}
}

func (s *MemoryStore) GetContext(target string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.targets[normalizeTarget(target)]
	if !ok || len(rec.findings) == 0 {
		return "", nil
	}

	titles := make([]string, 0, len(rec.findings))
	for t := range rec.findings {
		titles = append(titles, t)
	}
	sort.Strings(titles)

	var b strings.Builder
	fmt.Fprintf(&b, "Known findings for %s:\n", target)
	for _, t := range titles {
		f := rec.findings[t]
		fmt.Fprintf(&b, "- [%s] %s", f.Severity, f.Title)
		if f.CVE != "" {
			fmt.Fprintf(&b, " (%s)", f.CVE)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *MemoryStore) UpsertFindings(target string, findings []schema.Finding) error {
	key := normalizeTarget(target)
	if key == "" {
		return fmt.Errorf("store: target must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.targets[key]
	if !ok {
		rec = &targetRecord{findings: make(map[string]schema.Finding)}
		s.targets[key] = rec
	}
	for _, f := range findings {
		if f.Title == "" {
			return fmt.Errorf("store: finding without title for target %s", target)
		}
		rec.findings[f.Title] = f
	}
	return nil
}

// Findings は登録済みの発見事項をタイトル順で返す（レポート用）。
func (s *MemoryStore) Findings(target string) []schema.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.targets[normalizeTarget(target)]
	if !ok {
		return nil
	}
	out := make([]schema.Finding, 0, len(rec.findings))
	for _, f := range rec.findings {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func normalizeTarget(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}
