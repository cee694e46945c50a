package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMetrics_Validate(t *testing.T) {
	tests := []struct {
		name    string
		metrics Metrics
		wantErr bool
	}{
		{"zero", Metrics{}, false},
		{"ordinary", Metrics{Likes: 10, Comments: 3, Shares: 2, Views: 500}, false},
		{"engagement at limit", Metrics{Likes: math.MaxInt64 - 2, Comments: 1, Shares: 1}, false},
		{"negative", Metrics{Shares: -1}, true},
		{"likes plus comments overflow", Metrics{Likes: math.MaxInt64, Comments: 1}, true},
		{"shares push over limit", Metrics{Likes: math.MaxInt64 / 2, Comments: math.MaxInt64 / 2, Shares: 2}, true},
		{"large views do not count", Metrics{Likes: 1, Views: math.MaxInt64}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.metrics.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				apiErr, ok := err.(*APIError)
				if !ok || apiErr.Code != ErrCodeInvalidMetrics {
					t.Errorf("err = %#v, want INVALID_METRICS", err)
				}
			}
		})
	}
}

func TestMetrics_Engagement_Saturates(t *testing.T) {
	var m Metrics
	if err := json.Unmarshal([]byte(`{"likes": 9223372036854775807, "comments": 1, "shares": 1}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := m.Engagement(); got != math.MaxInt64 {
		t.Errorf("Engagement() = %d, want %d", got, int64(math.MaxInt64))
	}

	if got := (Metrics{Likes: 2, Comments: 3, Shares: 4}).Engagement(); got != 9 {
		t.Errorf("Engagement() = %d, want 9", got)
	}
}

func TestSaturatingAdd(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{0, 0, 0},
		{1, 2, 3},
		{math.MaxInt64, 0, math.MaxInt64},
		{math.MaxInt64, 1, math.MaxInt64},
		{math.MaxInt64 - 1, 1, math.MaxInt64},
		{math.MaxInt64 / 2, math.MaxInt64, math.MaxInt64},
	}
	for _, tt := range tests {
		if got := SaturatingAdd(tt.a, tt.b); got != tt.want {
			t.Errorf("SaturatingAdd(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
