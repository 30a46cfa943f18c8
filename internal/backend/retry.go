package backend

import "context"

// retryBackend は Complete の一時的なネットワーク障害をちょうど1回だけ
// 再試行するラッパー。再試行後も失敗した場合はそのエラーを表面化する。
type retryBackend struct {
	inner Backend
}

func withRetry(b Backend) Backend {
	return &retryBackend{inner: b}
}

func (r *retryBackend) Name() string  { return r.inner.Name() }
func (r *retryBackend) Model() string { return r.inner.Model() }

func (r *retryBackend) Complete(ctx context.Context, req Request) (string, error) {
	text, err := r.inner.Complete(ctx, req)
	if err == nil || !transient(err) || ctx.Err() != nil {
		return text, err
	}
	// 2回目で成功すればそのまま返す。失敗したら ErrUnavailable が表面化する。
	return r.inner.Complete(ctx, req)
}

func (r *retryBackend) HealthCheck(ctx context.Context) (bool, string) {
	return r.inner.HealthCheck(ctx)
}
