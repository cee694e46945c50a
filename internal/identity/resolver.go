// Package identity はリクエストの呼び出し元ユーザーを解決する。
package identity

import (
	"context"

	"github.com/hitoshi/socialdash/internal/middleware"
	"github.com/hitoshi/socialdash/internal/model"
)

// Resolver はコンテキストから認証済みユーザーIDを解決するインターフェース。
// 解決できない場合は NOT_AUTHENTICATED の *model.APIError を返す。
type Resolver interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// ContextResolver はセッションミドルウェアが注入したユーザーIDを返すResolver。
type ContextResolver struct{}

// NewContextResolver はContextResolverを生成する。
func NewContextResolver() *ContextResolver {
	return &ContextResolver{}
}

// CurrentUserID はコンテキストに格納されたユーザーIDを返す。
func (r *ContextResolver) CurrentUserID(ctx context.Context) (string, error) {
	userID, err := middleware.UserIDFromContext(ctx)
	if err != nil {
		return "", model.NewNotAuthenticatedError()
	}
	return userID, nil
}

// Static は固定のユーザーIDを返すResolver。
// 空文字列の場合は未認証として扱う。
type Static string

// CurrentUserID は固定のユーザーIDを返す。
func (s Static) CurrentUserID(_ context.Context) (string, error) {
	if s == "" {
		return "", model.NewNotAuthenticatedError()
	}
	return string(s), nil
}

var (
	_ Resolver = (*ContextResolver)(nil)
	_ Resolver = Static("")
)
