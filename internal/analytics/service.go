// Package analytics は分析データの取得・記録と概要メトリクスの算出を提供する。
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/socialdash/internal/identity"
	"github.com/hitoshi/socialdash/internal/metrics"
	"github.com/hitoshi/socialdash/internal/model"
	"github.com/hitoshi/socialdash/internal/repository"
)

// maxContentIDLength はcontent_idの最大長。
const maxContentIDLength = 255

// Service は分析データのサービス層。
type Service struct {
	repo     repository.AnalyticsRepository
	resolver identity.Resolver
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.AnalyticsRepository,
	resolver identity.Resolver,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		metrics:  collector,
		now:      time.Now,
	}
}

// GetAnalytics はユーザーの分析データを日付の新しい順に返す。
// dateRangeが指定された場合は両端を含む期間で絞り込む。
func (s *Service) GetAnalytics(ctx context.Context, userID string, dateRange *model.DateRange) ([]*model.Analytics, error) {
	if userID == "" {
		return nil, model.NewNotAuthenticatedError()
	}

	var normalized *model.DateRange
	if dateRange != nil {
		start := truncateToDate(dateRange.Start)
		end := truncateToDate(dateRange.End)
		if start.After(end) {
			return nil, model.NewInvalidDateRangeError("start が end より後の日付です")
		}
		normalized = &model.DateRange{Start: start, End: end}
	}

	rows, err := s.repo.ListByUserID(ctx, userID, normalized)
	if err != nil {
		s.metrics.RecordStoreError("get_analytics")
		slog.ErrorContext(ctx, "分析データの取得に失敗しました",
			slog.String("operation", "get_analytics"),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("分析データの取得に失敗しました: %w", err)
	}
	if rows == nil {
		rows = []*model.Analytics{}
	}
	return rows, nil
}

// RecordAnalytics は呼び出し元ユーザーの分析データを1行追記する。
// dateが未指定の場合は当日（UTC）を使用する。
func (s *Service) RecordAnalytics(ctx context.Context, input model.AnalyticsInput) (*model.Analytics, error) {
	userID, err := s.resolver.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	platform, err := model.NormalizePlatform(input.Platform)
	if err != nil {
		return nil, err
	}
	if err := input.Metrics.Validate(); err != nil {
		return nil, err
	}

	var contentID *string
	if input.ContentID != nil {
		if c := strings.TrimSpace(*input.ContentID); c != "" {
			if len(c) > maxContentIDLength {
				return nil, model.NewValidationError("content_id", "255文字以内で指定してください")
			}
			contentID = &c
		}
	}

	date := input.Date
	if date.IsZero() {
		date = s.now()
	}

	row := &model.Analytics{
		ID:        uuid.New().String(),
		UserID:    userID,
		ContentID: contentID,
		Platform:  platform,
		Metrics:   input.Metrics,
		Date:      truncateToDate(date),
	}

	saved, err := s.repo.Create(ctx, row)
	if err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, model.NewNotAuthenticatedError()
		}
		s.metrics.RecordStoreError("record_analytics")
		slog.ErrorContext(ctx, "分析データの記録に失敗しました",
			slog.String("operation", "record_analytics"),
			slog.String("user_id", userID),
			slog.String("platform", platform),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("分析データの記録に失敗しました: %w", err)
	}

	s.metrics.RecordAnalyticsRecorded(saved.Platform)
	return saved, nil
}

// GetOverviewMetrics はユーザーの全分析データから概要メトリクスを算出する。
func (s *Service) GetOverviewMetrics(ctx context.Context, userID string) (model.OverviewMetrics, error) {
	rows, err := s.GetAnalytics(ctx, userID, nil)
	if err != nil {
		return model.OverviewMetrics{}, err
	}
	s.metrics.ObserveOverviewRows(len(rows))
	return ComputeOverview(rows), nil
}

// truncateToDate は時刻をUTCの日付（0時）に切り詰める。
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
