// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, account, analytics, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotAuthenticated      = "NOT_AUTHENTICATED"
	ErrCodeSocialAccountNotFound = "SOCIAL_ACCOUNT_NOT_FOUND"
	ErrCodeInvalidPlatform       = "INVALID_PLATFORM"
	ErrCodeInvalidDateRange      = "INVALID_DATE_RANGE"
	ErrCodeInvalidTokenUpdate    = "INVALID_TOKEN_UPDATE"
	ErrCodeInvalidMetrics        = "INVALID_METRICS"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal              = "INTERNAL_ERROR"
	ErrCodeCSRFTokenInvalid      = "CSRF_TOKEN_INVALID"
)

// NewNotAuthenticatedError は認証済みユーザーを解決できない場合のエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSocialAccountNotFoundError はソーシャルアカウントが見つからない場合のエラーを生成する。
// 他ユーザーが所有するアカウントも同じエラーとして扱う。
func NewSocialAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeSocialAccountNotFound,
		Message:  fmt.Sprintf("指定されたソーシャルアカウントが見つかりません: %s", accountID),
		Category: "account",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewInvalidPlatformError は無効なプラットフォーム識別子のエラーを生成する。
func NewInvalidPlatformError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlatform,
		Message:  fmt.Sprintf("無効なプラットフォームです: %q", platform),
		Category: "validation",
		Action:   "twitter、linkedin、facebook、instagram などの英小文字の識別子を指定してください。",
	}
}

// NewInvalidDateRangeError は無効な期間指定のエラーを生成する。
func NewInvalidDateRangeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateRange,
		Message:  fmt.Sprintf("無効な期間指定です: %s", reason),
		Category: "validation",
		Action:   "start と end を YYYY-MM-DD 形式で両方指定し、start は end 以前の日付にしてください。",
	}
}

// NewInvalidTokenUpdateError は更新対象のトークン項目が1つも指定されていない場合のエラーを生成する。
func NewInvalidTokenUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTokenUpdate,
		Message:  "更新するトークン項目が指定されていません。",
		Category: "validation",
		Action:   "access_token、refresh_token、token_expires_at のいずれかを指定してください。",
	}
}

// NewInvalidMetricsError は不正なメトリクス値のエラーを生成する。
func NewInvalidMetricsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMetrics,
		Message:  fmt.Sprintf("無効なメトリクスです: %s", reason),
		Category: "validation",
		Action:   "likes、comments、shares などの値には0以上の数値を指定してください。",
	}
}

// NewValidationError は必須項目の欠落など汎用的な入力エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewRateLimitExceededError はレート制限超過のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-After ヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// StoreQueryError はリモートストアへのクエリが失敗したことを表す。
// 呼び出し元は errors.As で判別し、元のドライバエラーは Unwrap で取得できる。
type StoreQueryError struct {
	Op    string // select, insert, upsert, update, delete
	Table string
	Err   error
}

// NewStoreQueryError はStoreQueryErrorを生成する。
func NewStoreQueryError(op, table string, err error) *StoreQueryError {
	return &StoreQueryError{Op: op, Table: table, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *StoreQueryError) Error() string {
	return fmt.Sprintf("ストアへのクエリに失敗しました (op=%s, table=%s): %v", e.Op, e.Table, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *StoreQueryError) Unwrap() error {
	return e.Err
}

// IsStoreQueryError はerrのチェーンにStoreQueryErrorが含まれるかを返す。
func IsStoreQueryError(err error) bool {
	var sqErr *StoreQueryError
	return errors.As(err, &sqErr)
}

// IsNotAuthenticated はerrのチェーンに未認証エラーが含まれるかを返す。
func IsNotAuthenticated(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeNotAuthenticated
}
