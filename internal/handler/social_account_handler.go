package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialdash/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// SocialAccountServiceInterface はソーシャルアカウントハンドラーが必要とするサービスインターフェース。
type SocialAccountServiceInterface interface {
	// ListActiveAccounts はユーザーのアクティブなアカウント一覧を返す。
	ListActiveAccounts(ctx context.Context, userID string) ([]socialAccountResponse, error)
	// ConnectAccount は呼び出し元ユーザーのアカウントを接続する。
	ConnectAccount(ctx context.Context, input model.SocialAccountInput) (*socialAccountResponse, error)
	// DisconnectAccount は呼び出し元ユーザーのアカウントを切断する。
	DisconnectAccount(ctx context.Context, accountID string) error
	// RotateTokens はアカウントのトークン項目を部分更新する。
	RotateTokens(ctx context.Context, accountID string, update model.TokenUpdate) (*socialAccountResponse, error)
}

// SocialAccountHandler はソーシャルアカウント管理のHTTPハンドラー。
type SocialAccountHandler struct {
	service SocialAccountServiceInterface
}

// NewSocialAccountHandler はSocialAccountHandlerを生成する。
func NewSocialAccountHandler(service SocialAccountServiceInterface) *SocialAccountHandler {
	return &SocialAccountHandler{service: service}
}

// socialAccountResponse はソーシャルアカウントのAPIレスポンス。
// トークンの値は返さず、保持しているかどうかのみを示す。
type socialAccountResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Platform        string     `json:"platform"`
	PlatformUserID  string     `json:"platform_user_id"`
	Username        *string    `json:"username"`
	HasAccessToken  bool       `json:"has_access_token"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	TokenExpiresAt  *time.Time `json:"token_expires_at"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// connectAccountRequest はアカウント接続リクエストのボディ。
type connectAccountRequest struct {
	Platform       string     `json:"platform"`
	PlatformUserID string     `json:"platform_user_id"`
	Username       *string    `json:"username"`
	AccessToken    *string    `json:"access_token"`
	RefreshToken   *string    `json:"refresh_token"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	IsActive       *bool      `json:"is_active"`
}

// rotateTokensRequest はトークン更新リクエストのボディ。省略した項目は変更しない。
type rotateTokensRequest struct {
	AccessToken    *string    `json:"access_token"`
	RefreshToken   *string    `json:"refresh_token"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
}

// ListAccounts はユーザーのアクティブなアカウント一覧を取得する。
// GET /api/social-accounts
func (h *SocialAccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	accounts, err := h.service.ListActiveAccounts(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

// ConnectAccount はアカウントを接続する。同じ自然キーの既存行は置き換える。
// POST /api/social-accounts
func (h *SocialAccountHandler) ConnectAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req connectAccountRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	account, err := h.service.ConnectAccount(r.Context(), model.SocialAccountInput{
		Platform:       req.Platform,
		PlatformUserID: req.PlatformUserID,
		Username:       req.Username,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		TokenExpiresAt: req.TokenExpiresAt,
		IsActive:       req.IsActive,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// DisconnectAccount はアカウントを切断する（論理削除）。
// DELETE /api/social-accounts/{id}
func (h *SocialAccountHandler) DisconnectAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	if err := h.service.DisconnectAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RotateTokens はアカウントのトークンを更新する。
// PATCH /api/social-accounts/{id}/tokens
func (h *SocialAccountHandler) RotateTokens(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req rotateTokensRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	account, err := h.service.RotateTokens(r.Context(), chi.URLParam(r, "id"), model.TokenUpdate{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.TokenExpiresAt,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}
