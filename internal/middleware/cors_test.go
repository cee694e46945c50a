package middleware

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

const testOrigin = "https://dash.example.com"

func corsHandler(called *bool) http.Handler {
	return NewCORSMiddleware(testOrigin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func preflight(path, method, headers string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, path, nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", method)
	if headers != "" {
		req.Header.Set("Access-Control-Request-Headers", headers)
	}
	return req
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	called := false
	w := httptest.NewRecorder()
	corsHandler(&called).ServeHTTP(w, preflight("/api/social-accounts/acc-1/tokens", http.MethodPatch, "authorization, x-csrf-token"))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if called {
		t.Error("preflight must not reach the handler")
	}

	methods := strings.Split(w.Header().Get("Access-Control-Allow-Methods"), ", ")
	for _, m := range []string{http.MethodPatch, http.MethodDelete} {
		if !slices.Contains(methods, m) {
			t.Errorf("Allow-Methods %v should contain %s", methods, m)
		}
	}
	allowed := strings.ToLower(w.Header().Get("Access-Control-Allow-Headers"))
	for _, hdr := range []string{"authorization", "x-csrf-token", "content-type"} {
		if !strings.Contains(allowed, hdr) {
			t.Errorf("Allow-Headers %q should contain %s", allowed, hdr)
		}
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Max-Age = %q, want 86400", got)
	}

	vary := w.Header().Values("Vary")
	for _, v := range []string{"Origin", "Access-Control-Request-Method", "Access-Control-Request-Headers"} {
		if !slices.Contains(vary, v) {
			t.Errorf("Vary %v should contain %s", vary, v)
		}
	}
}

func TestCORSMiddleware_SimpleRequests_PassThrough(t *testing.T) {
	tests := []struct {
		name   string
		method string
		auth   string
	}{
		{"cookie GET", http.MethodGet, ""},
		{"bearer POST", http.MethodPost, "Bearer sess-1"},
		{"bearer DELETE", http.MethodDelete, "Bearer sess-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/analytics", nil)
			req.Header.Set("Origin", testOrigin)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}

			called := false
			w := httptest.NewRecorder()
			corsHandler(&called).ServeHTTP(w, req)

			if !called || w.Code != http.StatusOK {
				t.Fatalf("called=%v status=%d, want handler reached", called, w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, testOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Errorf("Allow-Credentials = %q, want true", got)
			}
			if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Retry-After" {
				t.Errorf("Expose-Headers = %q, want Retry-After", got)
			}
			if got := w.Header().Values("Vary"); !slices.Equal(got, []string{"Origin"}) {
				t.Errorf("Vary = %v, want [Origin]", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != "" {
				t.Errorf("Allow-Methods should only be sent on preflight, got %q", got)
			}
		})
	}
}

func TestCORSMiddleware_OptionsWithoutRequestMethod_IsNotPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/social-accounts", nil)

	called := false
	w := httptest.NewRecorder()
	corsHandler(&called).ServeHTTP(w, req)

	if !called {
		t.Error("plain OPTIONS should reach the handler")
	}
}

func TestCORSMiddleware_NeverUsesWildcard(t *testing.T) {
	called := false
	w := httptest.NewRecorder()
	corsHandler(&called).ServeHTTP(w, preflight("/api/analytics", http.MethodPost, ""))

	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "*" {
		t.Error("wildcard origin is incompatible with credentials")
	}
}
