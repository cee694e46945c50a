// Package tokenrefresh は有効期限が近いOAuthトークンのリフレッシュ処理を提供する。
package tokenrefresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/socialdash/internal/config"
	"github.com/hitoshi/socialdash/internal/metrics"
	"github.com/hitoshi/socialdash/internal/model"
	"github.com/hitoshi/socialdash/internal/security"
)

// ErrPlatformNotConfigured はOAuthクライアント設定がないプラットフォームを示す。
var ErrPlatformNotConfigured = errors.New("プラットフォームのOAuthクライアントが設定されていません")

// ErrNoRefreshToken はリフレッシュトークンを保持していないアカウントを示す。
var ErrNoRefreshToken = errors.New("リフレッシュトークンがありません")

// OAuth2Refresher はgolang.org/x/oauth2でリフレッシュトークンを交換する。
// トークンエンドポイントへの通信はSSRF防止機能付きのHTTPクライアントで行う。
type OAuth2Refresher struct {
	clients     map[string]config.OAuthClientConfig
	httpClient  *http.Client
	validateURL func(rawURL string) error
	metrics     metrics.MetricsCollector
}

// NewOAuth2Refresher はOAuth2Refresherを生成する。
func NewOAuth2Refresher(
	clients map[string]config.OAuthClientConfig,
	guard security.SSRFGuardService,
	timeout time.Duration,
	collector metrics.MetricsCollector,
) *OAuth2Refresher {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &OAuth2Refresher{
		clients:     clients,
		httpClient:  guard.NewSafeClient(timeout),
		validateURL: guard.ValidateTokenURL,
		metrics:     collector,
	}
}

// Supports はプラットフォームのOAuthクライアントが設定済みかを返す。
func (r *OAuth2Refresher) Supports(platform string) bool {
	_, ok := r.clients[platform]
	return ok
}

// Refresh はアカウントのリフレッシュトークンで新しいトークンを取得する。
// プロバイダーが新しいリフレッシュトークンを返さなかった場合、
// 戻り値のRefreshTokenはnilとなり既存値が維持される。
func (r *OAuth2Refresher) Refresh(ctx context.Context, account *model.SocialAccount) (model.TokenUpdate, error) {
	client, ok := r.clients[account.Platform]
	if !ok {
		return model.TokenUpdate{}, fmt.Errorf("%w: %s", ErrPlatformNotConfigured, account.Platform)
	}
	if account.RefreshToken == nil || *account.RefreshToken == "" {
		return model.TokenUpdate{}, ErrNoRefreshToken
	}
	if err := r.validateURL(client.TokenURL); err != nil {
		r.metrics.RecordTokenRefreshFailure(account.Platform)
		return model.TokenUpdate{}, fmt.Errorf("トークンURLの検証に失敗しました: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: client.TokenURL},
	}

	// アクセストークンを空にして期限切れ扱いにし、必ずリフレッシュさせる
	expired := &oauth2.Token{
		RefreshToken: *account.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	start := time.Now()
	token, err := conf.TokenSource(ctx, expired).Token()
	r.metrics.RecordTokenRefreshLatency(time.Since(start))
	if err != nil {
		r.metrics.RecordTokenRefreshFailure(account.Platform)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return model.TokenUpdate{}, fmt.Errorf("トークンエンドポイントがエラーを返しました (status=%d, error=%s): %w",
				statusCode(retrieveErr), retrieveErr.ErrorCode, err)
		}
		return model.TokenUpdate{}, fmt.Errorf("トークンのリフレッシュに失敗しました: %w", err)
	}
	if token.AccessToken == "" {
		r.metrics.RecordTokenRefreshFailure(account.Platform)
		return model.TokenUpdate{}, fmt.Errorf("トークンエンドポイントがアクセストークンを返しませんでした")
	}

	update := model.TokenUpdate{AccessToken: &token.AccessToken}
	if token.RefreshToken != "" && token.RefreshToken != *account.RefreshToken {
		update.RefreshToken = &token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		update.ExpiresAt = &expiry
	}
	return update, nil
}

func statusCode(err *oauth2.RetrieveError) int {
	if err.Response == nil {
		return 0
	}
	return err.Response.StatusCode
}
