package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/socialdash/internal/model"
)

const analyticsColumns = `id, user_id, content_id, platform, metrics, date, created_at`

// dateLayout はDATE列とのやり取りに使う形式。
const dateLayout = "2006-01-02"

// PostgresAnalyticsRepo はPostgreSQLを使用した分析データリポジトリ。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// scanAnalytics は1行をAnalyticsに読み込む。
// metricsの欠落値はデシリアライズ時に0となる。
func scanAnalytics(s rowScanner) (*model.Analytics, error) {
	a := &model.Analytics{}
	var (
		contentID sql.NullString
		metrics   []byte
	)
	if err := s.Scan(&a.ID, &a.UserID, &contentID, &a.Platform, &metrics, &a.Date, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ContentID = nullStringPtr(contentID)
	if err := json.Unmarshal(nonNullJSON(metrics), &a.Metrics); err != nil {
		return nil, fmt.Errorf("分析データ %s のメトリクスの読み込みに失敗しました: %w", a.ID, err)
	}
	return a, nil
}

func nonNullJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

// ListByUserID はユーザーの分析データを date の降順で返す。
// 同じ日付の行は記録の新しい順に並ぶ。
func (r *PostgresAnalyticsRepo) ListByUserID(ctx context.Context, userID string, dateRange *model.DateRange) ([]*model.Analytics, error) {
	query := `SELECT ` + analyticsColumns + ` FROM analytics WHERE user_id = $1`
	args := []any{userID}
	if dateRange != nil {
		query += ` AND date >= $2::date AND date <= $3::date`
		args = append(args, dateRange.Start.Format(dateLayout), dateRange.End.Format(dateLayout))
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewStoreQueryError("select", tableAnalytics, err)
	}
	defer rows.Close()

	var list []*model.Analytics
	for rows.Next() {
		a, err := scanAnalytics(rows)
		if err != nil {
			return nil, model.NewStoreQueryError("select", tableAnalytics, err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreQueryError("select", tableAnalytics, err)
	}
	return list, nil
}

// Create は分析データを1行追加する。created_atはストア側で付与される。
func (r *PostgresAnalyticsRepo) Create(ctx context.Context, analytics *model.Analytics) (*model.Analytics, error) {
	metrics, err := json.Marshal(analytics.Metrics)
	if err != nil {
		return nil, fmt.Errorf("メトリクスのシリアライズに失敗しました: %w", err)
	}

	saved, err := scanAnalytics(r.db.QueryRowContext(ctx,
		`INSERT INTO analytics (id, user_id, content_id, platform, metrics, date)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6::date)
		 RETURNING `+analyticsColumns,
		analytics.ID, analytics.UserID, analytics.ContentID, analytics.Platform,
		string(metrics), analytics.Date.Format(dateLayout),
	))
	if err != nil {
		return nil, model.NewStoreQueryError("insert", tableAnalytics, err)
	}
	return saved, nil
}

// compile-time interface check
var _ AnalyticsRepository = (*PostgresAnalyticsRepo)(nil)
