package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAccountConnected("twitter")
	c.RecordAccountDisconnected()
	c.RecordTokenRotation(RotationSourceAPI)
	c.RecordAnalyticsRecorded("twitter")
	c.RecordStoreError("get_analytics")
	c.ObserveOverviewRows(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"socialdash_accounts_connected_total",
		"socialdash_accounts_disconnected_total",
		"socialdash_token_rotations_total",
		"socialdash_analytics_recorded_total",
		"socialdash_store_errors_total",
		"socialdash_overview_rows",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}
