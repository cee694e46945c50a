// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultTopPlatform は分析データが1件もない場合のトッププラットフォーム。
const DefaultTopPlatform = PlatformTwitter

// Analytics はユーザー・プラットフォームごとに記録されたメトリクスの1行を表す。
// 一度記録した行は更新しない（追記専用）。
type Analytics struct {
	ID        string
	UserID    string
	ContentID *string
	Platform  string
	Metrics   Metrics
	Date      time.Time // 日付のみ有効（UTCの0時）
	CreatedAt time.Time
}

// AnalyticsInput は分析データ記録時に呼び出し元が指定する項目。
type AnalyticsInput struct {
	ContentID *string
	Platform  string
	Metrics   Metrics
	Date      time.Time
}

// DateRange は start <= date <= end の両端を含む期間を表す。
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Metrics はプラットフォームから取得した数値メトリクス。
// ストア上はJSONBの自由形式マップとして保存される。
// 欠落したキー、null、空文字列はデシリアライズ時に0として扱い、
// 既知以外のキーはExtraに保持して書き戻す。
type Metrics struct {
	Likes       int64
	Comments    int64
	Shares      int64
	Views       int64
	Impressions int64
	Reach       int64
	Clicks      int64
	Saves       int64

	Extra map[string]json.RawMessage
}

// Engagement は likes + comments + shares を返す。
// 合計がint64を超える場合は math.MaxInt64 に飽和させる。
func (m Metrics) Engagement() int64 {
	return SaturatingAdd(SaturatingAdd(m.Likes, m.Comments), m.Shares)
}

// SaturatingAdd は非負の値同士を加算し、結果を math.MaxInt64 で頭打ちにする。
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// fields は既知キーとフィールドの対応を返す。
func (m *Metrics) fields() []struct {
	key string
	ptr *int64
} {
	return []struct {
		key string
		ptr *int64
	}{
		{"likes", &m.Likes},
		{"comments", &m.Comments},
		{"shares", &m.Shares},
		{"views", &m.Views},
		{"impressions", &m.Impressions},
		{"reach", &m.Reach},
		{"clicks", &m.Clicks},
		{"saves", &m.Saves},
	}
}

// Validate は負の値が含まれていないこと、
// および likes + comments + shares がint64の範囲に収まることを検証する。
func (m Metrics) Validate() error {
	for _, f := range m.fields() {
		if *f.ptr < 0 {
			return NewInvalidMetricsError(fmt.Sprintf("%s に負の値 %d が指定されています", f.key, *f.ptr))
		}
	}
	if m.Likes > math.MaxInt64-m.Comments || m.Likes+m.Comments > math.MaxInt64-m.Shares {
		return NewInvalidMetricsError("likes、comments、shares の合計が上限を超えています")
	}
	return nil
}

// UnmarshalJSON は自由形式のJSONオブジェクトをMetricsに変換する。
// 数値は整数部を採用し、数値文字列も受け付ける。
func (m *Metrics) UnmarshalJSON(data []byte) error {
	*m = Metrics{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("メトリクスのJSONオブジェクトの解析に失敗しました: %w", err)
	}

	known := make(map[string]*int64)
	for _, f := range m.fields() {
		known[f.key] = f.ptr
	}

	for key, value := range raw {
		ptr, ok := known[strings.ToLower(key)]
		if !ok {
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[key] = value
			continue
		}
		n, err := parseMetricValue(value)
		if err != nil {
			return fmt.Errorf("メトリクス %q の解析に失敗しました: %w", key, err)
		}
		*ptr = n
	}

	return nil
}

// MarshalJSON は0でない既知キーとExtraをJSONオブジェクトとして出力する。
func (m Metrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+8)
	for key, value := range m.Extra {
		out[key] = value
	}
	for _, f := range m.fields() {
		if *f.ptr != 0 {
			out[f.key] = *f.ptr
		}
	}
	return json.Marshal(out)
}

// parseMetricValue は1つのメトリクス値を整数に変換する。
func parseMetricValue(value json.RawMessage) (int64, error) {
	v := bytes.TrimSpace(value)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return 0, nil
	}

	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("数値ではありません: %q", s)
		}
		return truncateMetric(f)
	}

	var num json.Number
	if err := json.Unmarshal(v, &num); err != nil {
		return 0, fmt.Errorf("数値ではありません: %s", string(v))
	}
	if i, err := num.Int64(); err == nil {
		return i, nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, err
	}
	return truncateMetric(f)
}

func truncateMetric(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, fmt.Errorf("範囲外の値です: %v", f)
	}
	return int64(f), nil
}

// PlatformEngagement はプラットフォームごとの集計値。
type PlatformEngagement struct {
	Platform   string
	Posts      int
	Engagement int64
}

// OverviewMetrics は分析データから読み取り時に算出する集計値。永続化しない。
type OverviewMetrics struct {
	TotalPosts        int
	TotalEngagement   int64
	AvgEngagementRate float64
	TopPlatform       string
	// Platforms は行の出現順に並んだプラットフォーム別集計。
	Platforms []PlatformEngagement
}
