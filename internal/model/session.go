// Package model はドメインモデルを定義する。
package model

import "time"

// Session は外部認証プロバイダーが発行したログインセッションを表す。
// このサービスはセッションの発行を行わず、ユーザーIDの解決にのみ使用する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
