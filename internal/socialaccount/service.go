// Package socialaccount はソーシャルアカウント連携のドメインロジックを提供する。
package socialaccount

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/socialdash/internal/identity"
	"github.com/hitoshi/socialdash/internal/metrics"
	"github.com/hitoshi/socialdash/internal/model"
	"github.com/hitoshi/socialdash/internal/repository"
	"github.com/hitoshi/socialdash/internal/security"
)

// Service はソーシャルアカウントのサービス層。
// 一覧取得、接続、切断、トークン更新のビジネスロジックを提供する。
// 変更系の操作はコンテキストから解決した呼び出し元ユーザーが所有する行のみを対象とする。
type Service struct {
	repo      repository.SocialAccountRepository
	resolver  identity.Resolver
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	repo repository.SocialAccountRepository,
	resolver identity.Resolver,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		repo:      repo,
		resolver:  resolver,
		sanitizer: sanitizer,
		metrics:   collector,
	}
}

// ListActiveAccounts はユーザーの is_active = true のアカウントを返す。
func (s *Service) ListActiveAccounts(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	if userID == "" {
		return nil, model.NewNotAuthenticatedError()
	}

	accounts, err := s.repo.ListActiveByUserID(ctx, userID)
	if err != nil {
		s.logStoreError(ctx, "list_active_accounts", err, slog.String("user_id", userID))
		return nil, fmt.Errorf("ソーシャルアカウント一覧の取得に失敗しました: %w", err)
	}

	active := make([]*model.SocialAccount, 0, len(accounts))
	for _, a := range accounts {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return active, nil
}

// ConnectAccount は呼び出し元ユーザーのアカウントを接続する。
// (user_id, platform, platform_user_id) が一致する行があれば、username、トークン項目、
// is_activeを指定値で置き換える。
func (s *Service) ConnectAccount(ctx context.Context, input model.SocialAccountInput) (*model.SocialAccount, error) {
	userID, err := s.resolver.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	account, err := s.buildAccount(userID, input)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.Upsert(ctx, account)
	if err != nil {
		if repository.IsForeignKeyViolation(err) {
			// セッションのユーザーが既に存在しない
			return nil, model.NewNotAuthenticatedError()
		}
		s.logStoreError(ctx, "connect_account", err,
			slog.String("user_id", userID),
			slog.String("platform", account.Platform),
		)
		return nil, fmt.Errorf("ソーシャルアカウントの接続に失敗しました: %w", err)
	}

	s.metrics.RecordAccountConnected(saved.Platform)
	slog.InfoContext(ctx, "ソーシャルアカウントを接続しました",
		slog.String("user_id", userID),
		slog.String("account_id", saved.ID),
		slog.String("platform", saved.Platform),
	)

	return saved, nil
}

// buildAccount は入力値を検証し、保存用のSocialAccountを組み立てる。
func (s *Service) buildAccount(userID string, input model.SocialAccountInput) (*model.SocialAccount, error) {
	platform, err := model.NormalizePlatform(input.Platform)
	if err != nil {
		return nil, err
	}

	platformUserID := strings.TrimSpace(input.PlatformUserID)
	if platformUserID == "" {
		return nil, model.NewValidationError("platform_user_id", "必須項目です")
	}
	if len(platformUserID) > 255 {
		return nil, model.NewValidationError("platform_user_id", "255文字以内で指定してください")
	}

	if err := validateTokenValue("access_token", input.AccessToken); err != nil {
		return nil, err
	}
	if err := validateTokenValue("refresh_token", input.RefreshToken); err != nil {
		return nil, err
	}

	var username *string
	if input.Username != nil {
		if cleaned := s.sanitizer.SanitizeText(*input.Username); cleaned != "" {
			username = &cleaned
		}
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	return &model.SocialAccount{
		ID:             uuid.New().String(),
		UserID:         userID,
		Platform:       platform,
		PlatformUserID: platformUserID,
		Username:       username,
		AccessToken:    input.AccessToken,
		RefreshToken:   input.RefreshToken,
		TokenExpiresAt: input.TokenExpiresAt,
		IsActive:       isActive,
	}, nil
}

// DisconnectAccount は呼び出し元ユーザーのアカウントを論理削除する。
// 既に切断済みのアカウントに対しても成功する。
func (s *Service) DisconnectAccount(ctx context.Context, accountID string) error {
	userID, err := s.resolver.CurrentUserID(ctx)
	if err != nil {
		return err
	}

	ok, err := s.repo.Deactivate(ctx, accountID, userID)
	if err != nil {
		s.logStoreError(ctx, "disconnect_account", err,
			slog.String("user_id", userID),
			slog.String("account_id", accountID),
		)
		return fmt.Errorf("ソーシャルアカウントの切断に失敗しました: %w", err)
	}
	if !ok {
		return model.NewSocialAccountNotFoundError(accountID)
	}

	s.metrics.RecordAccountDisconnected()
	slog.InfoContext(ctx, "ソーシャルアカウントを切断しました",
		slog.String("user_id", userID),
		slog.String("account_id", accountID),
	)
	return nil
}

// RotateTokens は呼び出し元ユーザーのアカウントのトークン項目を部分更新する。
// 指定されなかった項目は変更しない。
func (s *Service) RotateTokens(ctx context.Context, accountID string, update model.TokenUpdate) (*model.SocialAccount, error) {
	return s.rotate(ctx, accountID, update, metrics.RotationSourceAPI)
}

// ApplyRefreshedTokens はトークンリフレッシュで得た値をRotateTokensと同じ経路で保存する。
// ctxにはアカウント所有者のユーザーIDが含まれている必要がある。
func (s *Service) ApplyRefreshedTokens(ctx context.Context, accountID string, update model.TokenUpdate) (*model.SocialAccount, error) {
	return s.rotate(ctx, accountID, update, metrics.RotationSourceRefresh)
}

func (s *Service) rotate(ctx context.Context, accountID string, update model.TokenUpdate, source string) (*model.SocialAccount, error) {
	userID, err := s.resolver.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	if update.IsEmpty() {
		return nil, model.NewInvalidTokenUpdateError()
	}
	if err := validateTokenValue("access_token", update.AccessToken); err != nil {
		return nil, err
	}
	if err := validateTokenValue("refresh_token", update.RefreshToken); err != nil {
		return nil, err
	}

	account, err := s.repo.UpdateTokens(ctx, accountID, userID, update)
	if err != nil {
		s.logStoreError(ctx, "rotate_tokens", err,
			slog.String("user_id", userID),
			slog.String("account_id", accountID),
		)
		return nil, fmt.Errorf("トークンの更新に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewSocialAccountNotFoundError(accountID)
	}

	s.metrics.RecordTokenRotation(source)
	slog.InfoContext(ctx, "トークンを更新しました",
		slog.String("user_id", userID),
		slog.String("account_id", accountID),
		slog.String("source", source),
		slog.Bool("access_token_updated", update.AccessToken != nil),
		slog.Bool("refresh_token_updated", update.RefreshToken != nil),
		slog.Bool("expires_at_updated", update.ExpiresAt != nil),
	)
	return account, nil
}

// validateTokenValue は指定されたトークン値が空文字列でないことを検証する。
func validateTokenValue(field string, value *string) error {
	if value != nil && strings.TrimSpace(*value) == "" {
		return model.NewValidationError(field, "空文字列は指定できません")
	}
	return nil
}

func (s *Service) logStoreError(ctx context.Context, operation string, err error, attrs ...any) {
	s.metrics.RecordStoreError(operation)
	args := append([]any{
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	}, attrs...)
	slog.ErrorContext(ctx, "ストアへのクエリに失敗しました", args...)
}
