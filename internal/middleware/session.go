// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/socialdash/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// sessionSourceContextKey はセッションIDの取得元を格納するキー。
var sessionSourceContextKey = contextKey("session_source")

// sessionSource はセッションIDをどの資格情報から取得したかを表す。
type sessionSource int

const (
	sessionSourceNone sessionSource = iota
	sessionSourceCookie
	sessionSourceBearer
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はセッションIDを読み取り、有効性を検証するミドルウェアを返す。
// セッションIDは Cookie の session_id、または Authorization: Bearer ヘッダーから取得する。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401、セッションストアの障害には500を返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, source := sessionIDFromRequest(r)
			if sessionID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), sessionID)
			if err != nil {
				slog.Error("セッションの取得に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
				return
			}

			recordUserIDForLog(r, session.UserID)
			ctx := ContextWithUserID(r.Context(), session.UserID)
			ctx = context.WithValue(ctx, sessionSourceContextKey, source)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionIDFromRequest はCookieを優先してセッションIDとその取得元を取り出す。
func sessionIDFromRequest(r *http.Request) (string, sessionSource) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, sessionSourceCookie
	}
	if token := bearerToken(r); token != "" {
		return token, sessionSourceBearer
	}
	return "", sessionSourceNone
}

// isBearerSession はセッションがAuthorizationヘッダーのBearerトークンで解決されたかを返す。
func isBearerSession(ctx context.Context) bool {
	source, _ := ctx.Value(sessionSourceContextKey).(sessionSource)
	return source == sessionSourceBearer
}

// bearerToken は Authorization: Bearer <token> のトークン部分を返す。
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ユーザーIDがない場合は NOT_AUTHENTICATED の *model.APIError を返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", model.NewNotAuthenticatedError()
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// バックグラウンドジョブがユーザーに代わって操作する場合にも使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
