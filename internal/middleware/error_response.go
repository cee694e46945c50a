package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/socialdash/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// request_id はアクセスログと突き合わせるためのもので、RequestIDミドルウェアの内側でのみ付与される。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeErrorBody(w, statusCode, apiErr, "")
}

// WriteAPIError はエラーコードから決まるステータスでエラーレスポンスを書き込む。
// リクエストIDがあればボディに含める。
func WriteAPIError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	writeErrorBody(w, StatusForAPIError(apiErr), apiErr, chimw.GetReqID(r.Context()))
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// StoreQueryErrorなどの詳細はログのみに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

func writeErrorBody(w http.ResponseWriter, statusCode int, apiErr *model.APIError, requestID string) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: requestID,
	})
	if err != nil {
		slog.Warn("エラーレスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// StatusForAPIError はAPIErrorのコードをHTTPステータスコードに対応付ける。
// 未知のコードはcategoryが "validation" なら400、それ以外は500とする。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFTokenInvalid:
		return http.StatusForbidden
	case model.ErrCodeSocialAccountNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrCodeInvalidPlatform,
		model.ErrCodeInvalidDateRange,
		model.ErrCodeInvalidTokenUpdate,
		model.ErrCodeInvalidMetrics,
		model.ErrCodeValidation:
		return http.StatusBadRequest
	}
	if apiErr.Category == "validation" {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
