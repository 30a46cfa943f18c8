package tools

import (
	"context"
	"sort"
	"sync"
)

// Registry はロード済みアダプターと利用可否キャッシュを管理する。
//
// 起動時に一度構築され、以降は read-mostly: 全セッションから並行に
// Resolve / ListAvailable される。セッション固有の状態は持たない。
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	avail    map[string]probeStatus // ProbeAll の結果キャッシュ
}

type probeStatus struct {
	available bool
	hint      string
}

// NewRegistry は空の Registry を返す。
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		avail:    make(map[string]probeStatus),
	}
}

// Register はアダプターを登録する。同名は上書き。
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Resolve はツール名に対応するアダプターを返す。未登録なら ok=false。
func (r *Registry) Resolve(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// ProbeAll は全アダプターの利用可否を確認しキャッシュする。
// 各 Probe は短時間で返る契約（バイナリ存在確認・軽い疎通のみ）。
func (r *Registry) ProbeAll(ctx context.Context) {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	results := make(map[string]probeStatus, len(adapters))
	for _, a := range adapters {
		ok, hint := a.Probe(ctx)
		results[a.Name()] = probeStatus{available: ok, hint: hint}
	}

	r.mu.Lock()
	for name, st := range results {
		r.avail[name] = st
	}
	r.mu.Unlock()
}

// IsAvailable はキャッシュ済みの利用可否を返す。未プローブのツールは false。
func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.avail[name].available
}

// Hint は利用可否の状態ヒント（バージョン行 or インストール方法）を返す。
func (r *Registry) Hint(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.avail[name]; ok {
		return st.hint
	}
	return "tool not registered"
}

// ListAvailable は現在利用可能なアダプター名を名前順で返す。
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		if r.avail[name].available {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// All は全アダプターを名前順で返す（マニフェスト構築・一覧表示用）。
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// BinaryPaths はツール名→バイナリ名の上書きマップ。
// 空エントリまたは未設定はデフォルトのバイナリ名を使う。
type BinaryPaths map[string]string

func (p BinaryPaths) get(name, def string) string {
	if p == nil {
		return def
	}
	if v, ok := p[name]; ok && v != "" {
		return v
	}
	return def
}

// DefaultRegistry は組み込みアダプターを全て登録した Registry を返す。
// Probe は行わない（起動を遅らせないため）。呼び出し側が ProbeAll する。
func DefaultRegistry(paths BinaryPaths) *Registry {
	r := NewRegistry()
	r.Register(NewNmap(paths.get("nmap", "nmap")))
	r.Register(NewNikto(paths.get("nikto", "nikto")))
	r.Register(NewGobuster(paths.get("gobuster", "gobuster")))
	r.Register(NewWhois(paths.get("whois", "whois")))
	r.Register(NewDig(paths.get("dig", "dig")))
	r.Register(NewSubfinder(paths.get("subfinder", "subfinder")))
	r.Register(NewWhatweb(paths.get("whatweb", "whatweb")))
	r.Register(NewSearchsploit(paths.get("searchsploit", "searchsploit")))
	r.Register(NewCVELookup(""))
	return r
}
