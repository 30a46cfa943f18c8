package backend

import (
	"context"
	"errors"
	"net"
)

// backend エラーの分類。呼び出し側は errors.Is で判別する。
var (
	// ErrUnavailable はエンドポイントに到達できない（接続拒否・5xx 等）。
	// 一時障害として1回だけ再試行された後に表面化する。セッションには致命的。
	ErrUnavailable = errors.New("backend unavailable")

	// ErrTimeout は設定されたリクエストタイムアウト内に応答が得られなかった。
	// セッションには致命的。
	ErrTimeout = errors.New("backend timeout")

	// ErrProtocol はレスポンスの形が不正（デコード不能・choices 空など）。
	ErrProtocol = errors.New("backend protocol error")
)

// classifyTransport は HTTP トランスポートのエラーを分類する。
// context の期限超過は ErrTimeout、それ以外のネットワーク障害は ErrUnavailable。
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnavailable
}

// classifyStatus は非 200 の HTTP ステータスを分類する。
// 429/5xx は一時障害（ErrUnavailable、再試行対象）、それ以外は ErrProtocol。
func classifyStatus(code int) error {
	if code == 429 || code >= 500 {
		return ErrUnavailable
	}
	return ErrProtocol
}

// transient は1回だけの再試行対象かを返す。
// ErrUnavailable のみ再試行する。timeout はリクエスト上限を既に使い切っている。
func transient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
