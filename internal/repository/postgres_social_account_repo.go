package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/socialdash/internal/model"
)

const socialAccountColumns = `id, user_id, platform, platform_user_id, username,
	access_token, refresh_token, token_expires_at, is_active, created_at, updated_at`

// PostgresSocialAccountRepo はPostgreSQLを使用したソーシャルアカウントリポジトリ。
type PostgresSocialAccountRepo struct {
	db *sql.DB
}

// NewPostgresSocialAccountRepo はPostgresSocialAccountRepoを生成する。
func NewPostgresSocialAccountRepo(db *sql.DB) *PostgresSocialAccountRepo {
	return &PostgresSocialAccountRepo{db: db}
}

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSocialAccount は1行をSocialAccountに読み込む。
func scanSocialAccount(s rowScanner) (*model.SocialAccount, error) {
	account := &model.SocialAccount{}
	var (
		username, accessToken, refreshToken sql.NullString
		expiresAt                           sql.NullTime
	)
	err := s.Scan(
		&account.ID, &account.UserID, &account.Platform, &account.PlatformUserID,
		&username, &accessToken, &refreshToken, &expiresAt,
		&account.IsActive, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Username = nullStringPtr(username)
	account.AccessToken = nullStringPtr(accessToken)
	account.RefreshToken = nullStringPtr(refreshToken)
	if expiresAt.Valid {
		t := expiresAt.Time
		account.TokenExpiresAt = &t
	}
	return account, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// ListActiveByUserID はユーザーのアクティブなアカウントを作成日時の昇順で返す。
func (r *PostgresSocialAccountRepo) ListActiveByUserID(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+socialAccountColumns+`
		 FROM social_accounts
		 WHERE user_id = $1 AND is_active = true
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, model.NewStoreQueryError("select", tableSocialAccounts, err)
	}
	defer rows.Close()

	return collectSocialAccounts(rows)
}

// Upsert は自然キー (user_id, platform, platform_user_id) でアカウントを作成または置き換える。
// 既存行がある場合、account.IDは使用されず既存のid、created_atが維持される。
func (r *PostgresSocialAccountRepo) Upsert(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
	saved, err := scanSocialAccount(r.db.QueryRowContext(ctx,
		`INSERT INTO social_accounts
			(id, user_id, platform, platform_user_id, username,
			 access_token, refresh_token, token_expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, platform, platform_user_id) DO UPDATE SET
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		 RETURNING `+socialAccountColumns,
		account.ID, account.UserID, account.Platform, account.PlatformUserID, account.Username,
		account.AccessToken, account.RefreshToken, account.TokenExpiresAt, account.IsActive,
	))
	if err != nil {
		return nil, model.NewStoreQueryError("upsert", tableSocialAccounts, err)
	}
	return saved, nil
}

// Deactivate は所有者が一致するアカウントを論理削除する。
// 既に非アクティブな行も対象とし、再実行しても成功する。
func (r *PostgresSocialAccountRepo) Deactivate(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE social_accounts
		 SET is_active = false, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if isInvalidTextRepresentation(err) {
		return false, nil
	}
	if err != nil {
		return false, model.NewStoreQueryError("update", tableSocialAccounts, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, model.NewStoreQueryError("update", tableSocialAccounts, err)
	}
	return n > 0, nil
}

// UpdateTokens は所有者が一致するアカウントのトークン項目を部分更新する。
// 対象行が存在しない場合はnilを返す。
func (r *PostgresSocialAccountRepo) UpdateTokens(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error) {
	account, err := scanSocialAccount(r.db.QueryRowContext(ctx,
		`UPDATE social_accounts SET
			access_token = COALESCE($3::text, access_token),
			refresh_token = COALESCE($4::text, refresh_token),
			token_expires_at = COALESCE($5::timestamptz, token_expires_at),
			updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+socialAccountColumns,
		id, userID, update.AccessToken, update.RefreshToken, update.ExpiresAt,
	))
	if errors.Is(err, sql.ErrNoRows) || isInvalidTextRepresentation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStoreQueryError("update", tableSocialAccounts, err)
	}
	return account, nil
}

// ListExpiringTokens は期限が before 以前のリフレッシュ可能なアカウントを期限の昇順で返す。
func (r *PostgresSocialAccountRepo) ListExpiringTokens(ctx context.Context, before time.Time) ([]*model.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+socialAccountColumns+`
		 FROM social_accounts
		 WHERE is_active = true
		   AND refresh_token IS NOT NULL AND refresh_token <> ''
		   AND token_expires_at IS NOT NULL
		   AND token_expires_at <= $1
		 ORDER BY token_expires_at ASC`,
		before,
	)
	if err != nil {
		return nil, model.NewStoreQueryError("select", tableSocialAccounts, err)
	}
	defer rows.Close()

	return collectSocialAccounts(rows)
}

func collectSocialAccounts(rows *sql.Rows) ([]*model.SocialAccount, error) {
	var accounts []*model.SocialAccount
	for rows.Next() {
		account, err := scanSocialAccount(rows)
		if err != nil {
			return nil, model.NewStoreQueryError("select", tableSocialAccounts, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreQueryError("select", tableSocialAccounts, err)
	}
	return accounts, nil
}

// compile-time interface check
var _ SocialAccountRepository = (*PostgresSocialAccountRepo)(nil)
