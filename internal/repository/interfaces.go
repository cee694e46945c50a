// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/socialdash/internal/model"
)

// テーブル名。StoreQueryErrorの診断情報にも使用する。
const (
	tableSessions       = "sessions"
	tableSocialAccounts = "social_accounts"
	tableAnalytics      = "analytics"
)

// SessionRepository はセッションデータの参照インターフェース。
// セッションの発行は外部の認証プロバイダーが行う。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SocialAccountRepository はソーシャルアカウントの永続化インターフェース。
type SocialAccountRepository interface {
	// ListActiveByUserID はユーザーの is_active = true のアカウントを作成日時の昇順で返す。
	ListActiveByUserID(ctx context.Context, userID string) ([]*model.SocialAccount, error)

	// Upsert は (user_id, platform, platform_user_id) を自然キーとして
	// アカウントを作成または置き換え、保存後の行を返す。
	// 既存行のusername、トークン項目、is_activeは指定値で上書きされる。
	Upsert(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error)

	// Deactivate は所有者が一致するアカウントの is_active を false にする。
	// 対象行が存在しない場合はfalseを返す。
	Deactivate(ctx context.Context, id, userID string) (bool, error)

	// UpdateTokens は所有者が一致するアカウントのトークン項目を部分更新する。
	// nilの項目は既存の値を維持する。対象行が存在しない場合はnilを返す。
	UpdateTokens(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error)

	// ListExpiringTokens は token_expires_at が before 以前で、
	// リフレッシュトークンを持つアクティブなアカウントを返す。
	ListExpiringTokens(ctx context.Context, before time.Time) ([]*model.SocialAccount, error)
}

// AnalyticsRepository は分析データの永続化インターフェース。
// 更新操作は持たない（追記専用）。
type AnalyticsRepository interface {
	// ListByUserID はユーザーの分析データを date の降順で返す。
	// dateRangeがnilでない場合は start <= date <= end の行のみ返す。
	ListByUserID(ctx context.Context, userID string, dateRange *model.DateRange) ([]*model.Analytics, error)

	// Create は分析データを1行追加し、サーバー側で採番されたidとcreated_atを含む行を返す。
	Create(ctx context.Context, analytics *model.Analytics) (*model.Analytics, error)
}
