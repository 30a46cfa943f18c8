package tools

import "context"

// baseAdapter は CLI ツールアダプターの共通部分。
// 各アダプターはこれを埋め込み BuildInvocation / ParseOutput だけを実装する。
type baseAdapter struct {
	name        string
	description string
	binary      string
	dangerous   bool
}

func (b *baseAdapter) Name() string        { return b.name }
func (b *baseAdapter) Description() string { return b.description }
func (b *baseAdapter) Dangerous() bool     { return b.dangerous }

func (b *baseAdapter) Probe(ctx context.Context) (bool, string) {
	return probeBinary(ctx, b.binary)
}
