package handler

import (
	"context"

	"github.com/hitoshi/socialdash/internal/analytics"
	"github.com/hitoshi/socialdash/internal/model"
	"github.com/hitoshi/socialdash/internal/socialaccount"
)

// SocialAccountServiceAdapter は socialaccount.Service を SocialAccountServiceInterface に適合させるアダプタ。
type SocialAccountServiceAdapter struct {
	svc *socialaccount.Service
}

// NewSocialAccountServiceAdapter はSocialAccountServiceAdapterを生成する。
func NewSocialAccountServiceAdapter(svc *socialaccount.Service) *SocialAccountServiceAdapter {
	return &SocialAccountServiceAdapter{svc: svc}
}

// ListActiveAccounts はアクティブなアカウント一覧をhandlerレスポンス型で返す。
func (a *SocialAccountServiceAdapter) ListActiveAccounts(ctx context.Context, userID string) ([]socialAccountResponse, error) {
	accounts, err := a.svc.ListActiveAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]socialAccountResponse, len(accounts))
	for i, account := range accounts {
		results[i] = toSocialAccountResponse(account)
	}
	return results, nil
}

// ConnectAccount はアカウントを接続しhandlerレスポンス型で返す。
func (a *SocialAccountServiceAdapter) ConnectAccount(ctx context.Context, input model.SocialAccountInput) (*socialAccountResponse, error) {
	account, err := a.svc.ConnectAccount(ctx, input)
	if err != nil {
		return nil, err
	}
	resp := toSocialAccountResponse(account)
	return &resp, nil
}

// DisconnectAccount はアカウントを切断する。
func (a *SocialAccountServiceAdapter) DisconnectAccount(ctx context.Context, accountID string) error {
	return a.svc.DisconnectAccount(ctx, accountID)
}

// RotateTokens はトークンを更新しhandlerレスポンス型で返す。
func (a *SocialAccountServiceAdapter) RotateTokens(ctx context.Context, accountID string, update model.TokenUpdate) (*socialAccountResponse, error) {
	account, err := a.svc.RotateTokens(ctx, accountID, update)
	if err != nil {
		return nil, err
	}
	resp := toSocialAccountResponse(account)
	return &resp, nil
}

// toSocialAccountResponse はドメインのSocialAccountをレスポンス型に変換する。
// トークンの値は含めない。
func toSocialAccountResponse(account *model.SocialAccount) socialAccountResponse {
	return socialAccountResponse{
		ID:              account.ID,
		UserID:          account.UserID,
		Platform:        account.Platform,
		PlatformUserID:  account.PlatformUserID,
		Username:        account.Username,
		HasAccessToken:  account.AccessToken != nil && *account.AccessToken != "",
		HasRefreshToken: account.RefreshToken != nil && *account.RefreshToken != "",
		TokenExpiresAt:  account.TokenExpiresAt,
		IsActive:        account.IsActive,
		CreatedAt:       account.CreatedAt,
		UpdatedAt:       account.UpdatedAt,
	}
}

// AnalyticsServiceAdapter は analytics.Service を AnalyticsServiceInterface に適合させるアダプタ。
type AnalyticsServiceAdapter struct {
	svc *analytics.Service
}

// NewAnalyticsServiceAdapter はAnalyticsServiceAdapterを生成する。
func NewAnalyticsServiceAdapter(svc *analytics.Service) *AnalyticsServiceAdapter {
	return &AnalyticsServiceAdapter{svc: svc}
}

// GetAnalytics は分析データをhandlerレスポンス型で返す。
func (a *AnalyticsServiceAdapter) GetAnalytics(ctx context.Context, userID string, dateRange *model.DateRange) ([]analyticsResponse, error) {
	rows, err := a.svc.GetAnalytics(ctx, userID, dateRange)
	if err != nil {
		return nil, err
	}

	results := make([]analyticsResponse, len(rows))
	for i, row := range rows {
		results[i] = toAnalyticsResponse(row)
	}
	return results, nil
}

// RecordAnalytics は分析データを記録しhandlerレスポンス型で返す。
func (a *AnalyticsServiceAdapter) RecordAnalytics(ctx context.Context, input model.AnalyticsInput) (*analyticsResponse, error) {
	row, err := a.svc.RecordAnalytics(ctx, input)
	if err != nil {
		return nil, err
	}
	resp := toAnalyticsResponse(row)
	return &resp, nil
}

// GetOverviewMetrics は概要メトリクスをhandlerレスポンス型で返す。
func (a *AnalyticsServiceAdapter) GetOverviewMetrics(ctx context.Context, userID string) (*overviewResponse, error) {
	overview, err := a.svc.GetOverviewMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}

	platforms := make([]platformEngagementResponse, len(overview.Platforms))
	for i, p := range overview.Platforms {
		platforms[i] = platformEngagementResponse{
			Platform:   p.Platform,
			Posts:      p.Posts,
			Engagement: p.Engagement,
		}
	}

	return &overviewResponse{
		TotalPosts:        overview.TotalPosts,
		TotalEngagement:   overview.TotalEngagement,
		AvgEngagementRate: overview.AvgEngagementRate,
		TopPlatform:       overview.TopPlatform,
		Platforms:         platforms,
	}, nil
}

func toAnalyticsResponse(row *model.Analytics) analyticsResponse {
	return analyticsResponse{
		ID:        row.ID,
		UserID:    row.UserID,
		ContentID: row.ContentID,
		Platform:  row.Platform,
		Metrics:   row.Metrics,
		Date:      row.Date.UTC().Format(dateLayout),
		CreatedAt: row.CreatedAt,
	}
}

// --- compile-time interface checks ---

var _ SocialAccountServiceInterface = (*SocialAccountServiceAdapter)(nil)
var _ AnalyticsServiceInterface = (*AnalyticsServiceAdapter)(nil)
