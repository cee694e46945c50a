// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// トークン更新の経路を表すラベル値。
const (
	RotationSourceAPI     = "api"
	RotationSourceRefresh = "refresh"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	RecordAccountConnected(platform string)
	RecordAccountDisconnected()
	RecordTokenRotation(source string)
	RecordTokenRefreshFailure(platform string)
	RecordTokenRefreshLatency(duration time.Duration)
	RecordAnalyticsRecorded(platform string)
	RecordStoreError(operation string)
	ObserveOverviewRows(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	accountsConnected    *prometheus.CounterVec
	accountsDisconnected prometheus.Counter
	tokenRotations       *prometheus.CounterVec
	refreshFailures      *prometheus.CounterVec
	refreshLatency       prometheus.Histogram
	analyticsRecorded    *prometheus.CounterVec
	storeErrors          *prometheus.CounterVec
	overviewRows         prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accountsConnected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialdash_accounts_connected_total",
			Help: "プラットフォーム別のアカウント接続数",
		}, []string{"platform"}),
		accountsDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialdash_accounts_disconnected_total",
			Help: "アカウント切断の合計数",
		}),
		tokenRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialdash_token_rotations_total",
			Help: "経路別のトークン更新数",
		}, []string{"source"}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialdash_token_refresh_failures_total",
			Help: "プラットフォーム別のトークンリフレッシュ失敗数",
		}, []string{"platform"}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialdash_token_refresh_latency_seconds",
			Help:    "トークンエンドポイント呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		analyticsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialdash_analytics_recorded_total",
			Help: "プラットフォーム別の分析データ記録数",
		}, []string{"platform"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialdash_store_errors_total",
			Help: "操作別のストアクエリ失敗数",
		}, []string{"operation"}),
		overviewRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialdash_overview_rows",
			Help:    "概要メトリクス算出時に読み込んだ行数",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	reg.MustRegister(
		c.accountsConnected,
		c.accountsDisconnected,
		c.tokenRotations,
		c.refreshFailures,
		c.refreshLatency,
		c.analyticsRecorded,
		c.storeErrors,
		c.overviewRows,
	)

	return c
}

// RecordAccountConnected はアカウント接続を記録する。
func (c *Collector) RecordAccountConnected(platform string) {
	c.accountsConnected.WithLabelValues(platform).Inc()
}

// RecordAccountDisconnected はアカウント切断を記録する。
func (c *Collector) RecordAccountDisconnected() {
	c.accountsDisconnected.Inc()
}

// RecordTokenRotation はトークン更新を記録する。
func (c *Collector) RecordTokenRotation(source string) {
	c.tokenRotations.WithLabelValues(source).Inc()
}

// RecordTokenRefreshFailure はトークンリフレッシュ失敗を記録する。
func (c *Collector) RecordTokenRefreshFailure(platform string) {
	c.refreshFailures.WithLabelValues(platform).Inc()
}

// RecordTokenRefreshLatency はトークンエンドポイント呼び出しのレイテンシを記録する。
func (c *Collector) RecordTokenRefreshLatency(duration time.Duration) {
	c.refreshLatency.Observe(duration.Seconds())
}

// RecordAnalyticsRecorded は分析データの記録を記録する。
func (c *Collector) RecordAnalyticsRecorded(platform string) {
	c.analyticsRecorded.WithLabelValues(platform).Inc()
}

// RecordStoreError はストアクエリの失敗を記録する。
func (c *Collector) RecordStoreError(operation string) {
	c.storeErrors.WithLabelValues(operation).Inc()
}

// ObserveOverviewRows は概要算出時の行数を記録する。
func (c *Collector) ObserveOverviewRows(count int) {
	c.overviewRows.Observe(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordAccountConnected(string)           {}
func (NopCollector) RecordAccountDisconnected()              {}
func (NopCollector) RecordTokenRotation(string)              {}
func (NopCollector) RecordTokenRefreshFailure(string)        {}
func (NopCollector) RecordTokenRefreshLatency(time.Duration) {}
func (NopCollector) RecordAnalyticsRecorded(string)          {}
func (NopCollector) RecordStoreError(string)                 {}
func (NopCollector) ObserveOverviewRows(int)                 {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
