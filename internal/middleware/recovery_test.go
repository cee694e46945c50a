package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/socialdash/internal/model"
)

func TestRecoveryMiddleware_LogsPanicWithRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	sessions := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-panic"}, nil
		},
	}
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})

	// 本番と同じく、recoveryはセッションミドルウェアより外側に置く
	h := chimw.RequestID(
		NewLoggingMiddleware(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))(
			NewRecoveryMiddleware(logger)(
				NewSessionMiddleware(sessions)(panicking))))

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/overview", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-panic")
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "s-1"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to decode log entry %q: %v", buf.String(), err)
	}
	want := map[string]string{
		"level":      "ERROR",
		"panic":      "nil map write",
		"method":     http.MethodGet,
		"path":       "/api/analytics/overview",
		"request_id": "req-panic",
		"user_id":    "user-panic",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("%s = %v, want %q", key, entry[key], value)
		}
	}
	if stack, _ := entry["stack"].(string); !strings.Contains(stack, "goroutine") {
		t.Errorf("stack should be logged, got %q", stack)
	}
}

func TestRecoveryMiddleware_RepanicsAbortHandler(t *testing.T) {
	h := NewRecoveryMiddleware(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("ServeHTTP should not return normally")
}
