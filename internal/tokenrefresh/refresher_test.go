package tokenrefresh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/socialdash/internal/config"
	"github.com/hitoshi/socialdash/internal/metrics"
	"github.com/hitoshi/socialdash/internal/model"
	"github.com/hitoshi/socialdash/internal/security"
)

type recordingMetrics struct {
	metrics.NopCollector
	mu        sync.Mutex
	failures  []string
	latencies int
}

func (r *recordingMetrics) RecordTokenRefreshFailure(platform string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, platform)
}

func (r *recordingMetrics) RecordTokenRefreshLatency(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies++
}

func strPtr(s string) *string { return &s }

// newTestRefresher はhttptestサーバーに接続できるOAuth2Refresherを生成する。
func newTestRefresher(t *testing.T, srv *httptest.Server, m metrics.MetricsCollector) *OAuth2Refresher {
	t.Helper()
	r := NewOAuth2Refresher(map[string]config.OAuthClientConfig{
		"linkedin": {ClientID: "client-id", ClientSecret: "client-secret", TokenURL: srv.URL + "/token"},
	}, security.NewSSRFGuard(), 5*time.Second, m)
	r.httpClient = srv.Client()
	r.validateURL = func(string) error { return nil }
	return r
}

func tokenServer(t *testing.T, status int, body map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "rt-old" {
			t.Errorf("refresh_token = %q, want rt-old", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuth2Refresher_Supports(t *testing.T) {
	r := NewOAuth2Refresher(map[string]config.OAuthClientConfig{
		"twitter": {ClientID: "a", ClientSecret: "b", TokenURL: "https://api.twitter.com/2/oauth2/token"},
	}, security.NewSSRFGuard(), time.Second, nil)

	if !r.Supports("twitter") {
		t.Error("twitter should be supported")
	}
	if r.Supports("facebook") {
		t.Error("facebook should not be supported")
	}
}

func TestOAuth2Refresher_Refresh_Success(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, map[string]any{
		"access_token":  "at-new",
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "rt-new",
	})
	rec := &recordingMetrics{}
	r := newTestRefresher(t, srv, rec)

	before := time.Now()
	update, err := r.Refresh(context.Background(), &model.SocialAccount{
		ID:           "acc-1",
		Platform:     "linkedin",
		RefreshToken: strPtr("rt-old"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if update.AccessToken == nil || *update.AccessToken != "at-new" {
		t.Errorf("AccessToken = %v, want at-new", update.AccessToken)
	}
	if update.RefreshToken == nil || *update.RefreshToken != "rt-new" {
		t.Errorf("RefreshToken = %v, want rt-new", update.RefreshToken)
	}
	if update.ExpiresAt == nil {
		t.Fatal("ExpiresAt should be set")
	}
	if update.ExpiresAt.Before(before.Add(59*time.Minute)) || update.ExpiresAt.After(time.Now().Add(61*time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about one hour from now", update.ExpiresAt)
	}
	if rec.latencies != 1 {
		t.Errorf("latencies = %d, want 1", rec.latencies)
	}
	if len(rec.failures) != 0 {
		t.Errorf("failures = %v, want none", rec.failures)
	}
}

func TestOAuth2Refresher_Refresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, map[string]any{
		"access_token": "at-new",
		"token_type":   "bearer",
	})
	r := newTestRefresher(t, srv, nil)

	update, err := r.Refresh(context.Background(), &model.SocialAccount{
		Platform:     "linkedin",
		RefreshToken: strPtr("rt-old"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.RefreshToken != nil {
		t.Errorf("RefreshToken = %q, want nil", *update.RefreshToken)
	}
	if update.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", update.ExpiresAt)
	}
}

func TestOAuth2Refresher_Refresh_ProviderError(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, map[string]any{
		"error":             "invalid_grant",
		"error_description": "refresh token revoked",
	})
	rec := &recordingMetrics{}
	r := newTestRefresher(t, srv, rec)

	_, err := r.Refresh(context.Background(), &model.SocialAccount{
		Platform:     "linkedin",
		RefreshToken: strPtr("rt-old"),
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("error = %v, want to mention invalid_grant", err)
	}
	if len(rec.failures) != 1 || rec.failures[0] != "linkedin" {
		t.Errorf("failures = %v", rec.failures)
	}
}

func TestOAuth2Refresher_Refresh_NotConfigured(t *testing.T) {
	r := NewOAuth2Refresher(nil, security.NewSSRFGuard(), time.Second, nil)

	_, err := r.Refresh(context.Background(), &model.SocialAccount{
		Platform:     "tiktok",
		RefreshToken: strPtr("rt"),
	})
	if !errors.Is(err, ErrPlatformNotConfigured) {
		t.Errorf("err = %v, want ErrPlatformNotConfigured", err)
	}
}

func TestOAuth2Refresher_Refresh_NoRefreshToken(t *testing.T) {
	r := NewOAuth2Refresher(map[string]config.OAuthClientConfig{
		"linkedin": {ClientID: "a", ClientSecret: "b", TokenURL: "https://www.linkedin.com/oauth/v2/accessToken"},
	}, security.NewSSRFGuard(), time.Second, nil)

	for _, rt := range []*string{nil, strPtr("")} {
		_, err := r.Refresh(context.Background(), &model.SocialAccount{Platform: "linkedin", RefreshToken: rt})
		if !errors.Is(err, ErrNoRefreshToken) {
			t.Errorf("err = %v, want ErrNoRefreshToken", err)
		}
	}
}

func TestOAuth2Refresher_Refresh_RejectsUnsafeTokenURL(t *testing.T) {
	rec := &recordingMetrics{}
	r := NewOAuth2Refresher(map[string]config.OAuthClientConfig{
		"linkedin": {ClientID: "a", ClientSecret: "b", TokenURL: "http://169.254.169.254/latest/meta-data"},
	}, security.NewSSRFGuard(), time.Second, rec)

	_, err := r.Refresh(context.Background(), &model.SocialAccount{
		Platform:     "linkedin",
		RefreshToken: strPtr("rt"),
	})
	if err == nil {
		t.Fatal("expected error for unsafe token URL, got nil")
	}
	if len(rec.failures) != 1 {
		t.Errorf("failures = %v, want 1", rec.failures)
	}
}
