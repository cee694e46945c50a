package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/socialdash/internal/model"
)

// dateLayout はAPIで受け渡す日付の書式。
const dateLayout = "2006-01-02"

// AnalyticsServiceInterface は分析ハンドラーが必要とするサービスインターフェース。
type AnalyticsServiceInterface interface {
	GetAnalytics(ctx context.Context, userID string, dateRange *model.DateRange) ([]analyticsResponse, error)
	RecordAnalytics(ctx context.Context, input model.AnalyticsInput) (*analyticsResponse, error)
	GetOverviewMetrics(ctx context.Context, userID string) (*overviewResponse, error)
}

// AnalyticsHandler は分析データのHTTPハンドラー。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// analyticsResponse は分析データ1行のAPIレスポンス。
type analyticsResponse struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	ContentID *string       `json:"content_id"`
	Platform  string        `json:"platform"`
	Metrics   model.Metrics `json:"metrics"`
	Date      string        `json:"date"`
	CreatedAt time.Time     `json:"created_at"`
}

// platformEngagementResponse はプラットフォーム別集計のAPIレスポンス。
type platformEngagementResponse struct {
	Platform   string `json:"platform"`
	Posts      int    `json:"posts"`
	Engagement int64  `json:"engagement"`
}

// overviewResponse は概要メトリクスのAPIレスポンス。
type overviewResponse struct {
	TotalPosts        int                          `json:"total_posts"`
	TotalEngagement   int64                        `json:"total_engagement"`
	AvgEngagementRate float64                      `json:"avg_engagement_rate"`
	TopPlatform       string                       `json:"top_platform"`
	Platforms         []platformEngagementResponse `json:"platforms"`
}

// recordAnalyticsRequest は分析データ記録リクエストのボディ。
type recordAnalyticsRequest struct {
	ContentID *string       `json:"content_id"`
	Platform  string        `json:"platform"`
	Metrics   model.Metrics `json:"metrics"`
	Date      string        `json:"date"`
}

// ListAnalytics はユーザーの分析データを取得する。
// GET /api/analytics?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *AnalyticsHandler) ListAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	dateRange, err := parseDateRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	rows, err := h.service.GetAnalytics(r.Context(), userID, dateRange)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

// RecordAnalytics は分析データを1行記録する。
// POST /api/analytics
func (h *AnalyticsHandler) RecordAnalytics(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req recordAnalyticsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	input := model.AnalyticsInput{
		ContentID: req.ContentID,
		Platform:  req.Platform,
		Metrics:   req.Metrics,
	}
	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			handleServiceError(w, r, model.NewValidationError("date", "YYYY-MM-DD 形式で指定してください"))
			return
		}
		input.Date = date
	}

	row, err := h.service.RecordAnalytics(r.Context(), input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, row)
}

// GetOverview はユーザーの概要メトリクスを取得する。
// GET /api/analytics/overview
func (h *AnalyticsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	overview, err := h.service.GetOverviewMetrics(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// parseDateRange はクエリパラメータから期間を組み立てる。
// start と end は両方指定するか、両方省略する。両方省略した場合はnilを返す。
func parseDateRange(start, end string) (*model.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, model.NewInvalidDateRangeError("start と end は両方指定してください")
	}

	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, model.NewInvalidDateRangeError("start は YYYY-MM-DD 形式で指定してください")
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, model.NewInvalidDateRangeError("end は YYYY-MM-DD 形式で指定してください")
	}

	return &model.DateRange{Start: startDate, End: endDate}, nil
}
