// Package model はドメインモデルを定義する。
package model

import (
	"regexp"
	"strings"
	"time"
)

// 主要プラットフォームの識別子。
const (
	PlatformTwitter   = "twitter"
	PlatformLinkedIn  = "linkedin"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
)

// KnownPlatforms はOAuth設定を環境変数から読み込む対象のプラットフォーム。
// これ以外の識別子も形式が正しければ接続できる。
var KnownPlatforms = []string{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
	PlatformTikTok,
	PlatformYouTube,
}

var platformPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

// NormalizePlatform はプラットフォーム識別子を小文字に正規化して検証する。
func NormalizePlatform(platform string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(platform))
	if !platformPattern.MatchString(p) {
		return "", NewInvalidPlatformError(platform)
	}
	return p, nil
}

// SocialAccount はユーザーが連携したソーシャルプラットフォームのアカウントを表す。
// 切断は is_active = false による論理削除で行い、物理削除はしない。
type SocialAccount struct {
	ID             string
	UserID         string
	Platform       string
	PlatformUserID string
	Username       *string
	AccessToken    *string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SocialAccountInput はアカウント接続時に呼び出し元が指定する項目。
// user_id は含まず、サービス層が認証済みユーザーから補完する。
type SocialAccountInput struct {
	Platform       string
	PlatformUserID string
	Username       *string
	AccessToken    *string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	// IsActive がnilの場合はtrueとして扱う。
	IsActive *bool
}

// TokenUpdate はトークン項目の部分更新を表す。
// nilのフィールドは変更しない。
type TokenUpdate struct {
	AccessToken  *string
	RefreshToken *string
	ExpiresAt    *time.Time
}

// IsEmpty は更新対象の項目が1つもない場合にtrueを返す。
func (u TokenUpdate) IsEmpty() bool {
	return u.AccessToken == nil && u.RefreshToken == nil && u.ExpiresAt == nil
}
