// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxUsernameLength はusername列に保存できる最大文字数。
const MaxUsernameLength = 255

// TextSanitizer はユーザー入力の表示用テキストからマークアップを除去する。
// プラットフォームから取得したusernameなど、UIにそのまま表示される値に使用する。
type TextSanitizer interface {
	// SanitizeText はすべてのHTMLタグを除去し、制御文字と前後の空白を取り除いた文字列を返す。
	// 結果は MaxUsernameLength 文字以内に切り詰められる。
	SanitizeText(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyを使ったTextSanitizerの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	// StrictPolicyは残したテキストをHTMLエスケープするため、保存前に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))

	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > MaxUsernameLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:MaxUsernameLength]))
	}
	return text
}

var _ TextSanitizer = (*textSanitizer)(nil)
