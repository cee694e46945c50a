package tokenrefresh

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// FailureKind はリフレッシュ失敗の分類。
type FailureKind int

const (
	// FailurePermanent は再試行しても成功しない失敗（invalid_grant、設定不備など）。
	FailurePermanent FailureKind = iota
	// FailureTransient は再試行で回復し得る失敗（429、5xx、タイムアウト）。
	FailureTransient
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = time.Second
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 30 * time.Second
	// maxRefreshAttempts は1サイクル内で1アカウントに対して行う最大試行回数。
	maxRefreshAttempts = 3
)

// ClassifyHTTPStatus はトークンエンドポイントのHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) FailureKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return FailureTransient
	case statusCode >= 500:
		return FailureTransient
	default:
		return FailurePermanent
	}
}

// ClassifyRefreshError はRefreshが返したエラーを分類する。
// ネットワークエラーはタイムアウトのみ一時的とみなす。
func ClassifyRefreshError(err error) FailureKind {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return ClassifyHTTPStatus(statusCode(retrieveErr))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	return FailurePermanent
}

// CalculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大30秒。
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// sleepContext はdだけ待機する。ctxがキャンセルされた場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
