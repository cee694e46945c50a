package socialaccount

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/socialdash/internal/identity"
	"github.com/hitoshi/socialdash/internal/metrics"
	"github.com/hitoshi/socialdash/internal/model"
	"github.com/hitoshi/socialdash/internal/security"
)

// --- モック ---

type mockAccountRepo struct {
	listActiveByUserIDFn func(ctx context.Context, userID string) ([]*model.SocialAccount, error)
	upsertFn             func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error)
	deactivateFn         func(ctx context.Context, id, userID string) (bool, error)
	updateTokensFn       func(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error)
}

func (m *mockAccountRepo) ListActiveByUserID(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	return m.listActiveByUserIDFn(ctx, userID)
}
func (m *mockAccountRepo) Upsert(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
	return m.upsertFn(ctx, account)
}
func (m *mockAccountRepo) Deactivate(ctx context.Context, id, userID string) (bool, error) {
	return m.deactivateFn(ctx, id, userID)
}
func (m *mockAccountRepo) UpdateTokens(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error) {
	return m.updateTokensFn(ctx, id, userID, update)
}
func (m *mockAccountRepo) ListExpiringTokens(ctx context.Context, before time.Time) ([]*model.SocialAccount, error) {
	return nil, nil
}

type recordingMetrics struct {
	metrics.NopCollector
	connected    []string
	disconnected int
	rotations    []string
	storeErrors  []string
}

func (r *recordingMetrics) RecordAccountConnected(platform string) {
	r.connected = append(r.connected, platform)
}
func (r *recordingMetrics) RecordAccountDisconnected() { r.disconnected++ }
func (r *recordingMetrics) RecordTokenRotation(source string) {
	r.rotations = append(r.rotations, source)
}
func (r *recordingMetrics) RecordStoreError(operation string) {
	r.storeErrors = append(r.storeErrors, operation)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newTestService(repo *mockAccountRepo, userID string, m metrics.MetricsCollector) *Service {
	return NewService(repo, identity.Static(userID), security.NewTextSanitizer(), m)
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %s, want %s", apiErr.Code, code)
	}
}

// --- ListActiveAccounts ---

func TestService_ListActiveAccounts_FiltersInactiveRows(t *testing.T) {
	repo := &mockAccountRepo{
		listActiveByUserIDFn: func(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return []*model.SocialAccount{
				{ID: "a1", UserID: userID, Platform: "twitter", IsActive: true},
				{ID: "a2", UserID: userID, Platform: "linkedin", IsActive: false},
				{ID: "a3", UserID: userID, Platform: "facebook", IsActive: true},
			}, nil
		},
	}
	svc := newTestService(repo, "user-1", nil)

	accounts, err := svc.ListActiveAccounts(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("len = %d, want 2", len(accounts))
	}
	for _, a := range accounts {
		if !a.IsActive {
			t.Errorf("account %s is inactive", a.ID)
		}
	}
	if accounts[0].ID != "a1" || accounts[1].ID != "a3" {
		t.Errorf("order = [%s %s], want [a1 a3]", accounts[0].ID, accounts[1].ID)
	}
}

func TestService_ListActiveAccounts_EmptyResult(t *testing.T) {
	repo := &mockAccountRepo{
		listActiveByUserIDFn: func(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo, "user-1", nil)

	accounts, err := svc.ListActiveAccounts(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accounts == nil || len(accounts) != 0 {
		t.Errorf("accounts = %v, want empty non-nil slice", accounts)
	}
}

func TestService_ListActiveAccounts_EmptyUserID(t *testing.T) {
	svc := newTestService(&mockAccountRepo{}, "user-1", nil)

	_, err := svc.ListActiveAccounts(context.Background(), "")
	assertAPIErrorCode(t, err, model.ErrCodeNotAuthenticated)
}

func TestService_ListActiveAccounts_StoreError(t *testing.T) {
	storeErr := model.NewStoreQueryError("select", "social_accounts", errors.New("connection refused"))
	repo := &mockAccountRepo{
		listActiveByUserIDFn: func(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
			return nil, storeErr
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-1", rec)

	_, err := svc.ListActiveAccounts(context.Background(), "user-1")
	if !model.IsStoreQueryError(err) {
		t.Fatalf("expected StoreQueryError in chain, got %v", err)
	}
	if len(rec.storeErrors) != 1 || rec.storeErrors[0] != "list_active_accounts" {
		t.Errorf("storeErrors = %v", rec.storeErrors)
	}
}

// --- ConnectAccount ---

func TestService_ConnectAccount_FillsCallerAndDefaults(t *testing.T) {
	var saved *model.SocialAccount
	repo := &mockAccountRepo{
		upsertFn: func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
			saved = account
			out := *account
			out.CreatedAt = time.Now()
			out.UpdatedAt = out.CreatedAt
			return &out, nil
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-1", rec)

	account, err := svc.ConnectAccount(context.Background(), model.SocialAccountInput{
		Platform:       " Twitter ",
		PlatformUserID: " tw-123 ",
		Username:       strPtr("<b>alice</b>"),
		AccessToken:    strPtr("at-1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if saved.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", saved.UserID)
	}
	if saved.ID == "" {
		t.Error("ID should be generated")
	}
	if saved.Platform != "twitter" {
		t.Errorf("Platform = %q, want twitter", saved.Platform)
	}
	if saved.PlatformUserID != "tw-123" {
		t.Errorf("PlatformUserID = %q, want tw-123", saved.PlatformUserID)
	}
	if saved.Username == nil || *saved.Username != "alice" {
		t.Errorf("Username = %v, want alice", saved.Username)
	}
	if !saved.IsActive {
		t.Error("IsActive should default to true")
	}
	if account.Platform != "twitter" {
		t.Errorf("returned Platform = %q", account.Platform)
	}
	if len(rec.connected) != 1 || rec.connected[0] != "twitter" {
		t.Errorf("connected = %v", rec.connected)
	}
}

func TestService_ConnectAccount_ExplicitInactive(t *testing.T) {
	repo := &mockAccountRepo{
		upsertFn: func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
			return account, nil
		},
	}
	svc := newTestService(repo, "user-1", nil)

	account, err := svc.ConnectAccount(context.Background(), model.SocialAccountInput{
		Platform:       "linkedin",
		PlatformUserID: "li-1",
		IsActive:       boolPtr(false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.IsActive {
		t.Error("IsActive = true, want false")
	}
}

func TestService_ConnectAccount_BlankUsernameBecomesNil(t *testing.T) {
	repo := &mockAccountRepo{
		upsertFn: func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
			return account, nil
		},
	}
	svc := newTestService(repo, "user-1", nil)

	account, err := svc.ConnectAccount(context.Background(), model.SocialAccountInput{
		Platform:       "twitter",
		PlatformUserID: "tw-1",
		Username:       strPtr("<script></script>  "),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Username != nil {
		t.Errorf("Username = %q, want nil", *account.Username)
	}
}

func TestService_ConnectAccount_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input model.SocialAccountInput
		code  string
	}{
		{
			name:  "invalid platform",
			input: model.SocialAccountInput{Platform: "not a platform", PlatformUserID: "x"},
			code:  model.ErrCodeInvalidPlatform,
		},
		{
			name:  "missing platform user id",
			input: model.SocialAccountInput{Platform: "twitter", PlatformUserID: "   "},
			code:  model.ErrCodeValidation,
		},
		{
			name:  "too long platform user id",
			input: model.SocialAccountInput{Platform: "twitter", PlatformUserID: strings.Repeat("a", 256)},
			code:  model.ErrCodeValidation,
		},
		{
			name:  "empty access token",
			input: model.SocialAccountInput{Platform: "twitter", PlatformUserID: "x", AccessToken: strPtr("")},
			code:  model.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockAccountRepo{
				upsertFn: func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
					t.Fatal("Upsert should not be called")
					return nil, nil
				},
			}
			svc := newTestService(repo, "user-1", nil)

			_, err := svc.ConnectAccount(context.Background(), tt.input)
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

func TestService_ConnectAccount_NotAuthenticated(t *testing.T) {
	repo := &mockAccountRepo{
		upsertFn: func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
			t.Fatal("Upsert should not be called")
			return nil, nil
		},
	}
	svc := newTestService(repo, "", nil)

	_, err := svc.ConnectAccount(context.Background(), model.SocialAccountInput{
		Platform:       "twitter",
		PlatformUserID: "tw-1",
	})
	assertAPIErrorCode(t, err, model.ErrCodeNotAuthenticated)
}

func TestService_ConnectAccount_UnknownUserIsNotAuthenticated(t *testing.T) {
	repo := &mockAccountRepo{
		upsertFn: func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
			return nil, model.NewStoreQueryError("upsert", "social_accounts", &pq.Error{Code: "23503"})
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "deleted-user", rec)

	_, err := svc.ConnectAccount(context.Background(), model.SocialAccountInput{
		Platform:       "twitter",
		PlatformUserID: "tw-1",
	})
	assertAPIErrorCode(t, err, model.ErrCodeNotAuthenticated)
	if len(rec.storeErrors) != 0 {
		t.Errorf("storeErrors = %v, want none", rec.storeErrors)
	}
}

func TestService_ConnectAccount_StoreError(t *testing.T) {
	repo := &mockAccountRepo{
		upsertFn: func(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
			return nil, model.NewStoreQueryError("upsert", "social_accounts", errors.New("timeout"))
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-1", rec)

	_, err := svc.ConnectAccount(context.Background(), model.SocialAccountInput{
		Platform:       "twitter",
		PlatformUserID: "tw-1",
	})
	if !model.IsStoreQueryError(err) {
		t.Fatalf("expected StoreQueryError, got %v", err)
	}
	if len(rec.connected) != 0 {
		t.Errorf("connected = %v, want none", rec.connected)
	}
}

// --- DisconnectAccount ---

func TestService_DisconnectAccount_ScopesToCaller(t *testing.T) {
	var gotID, gotUser string
	repo := &mockAccountRepo{
		deactivateFn: func(ctx context.Context, id, userID string) (bool, error) {
			gotID, gotUser = id, userID
			return true, nil
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-1", rec)

	if err := svc.DisconnectAccount(context.Background(), "acc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "acc-1" || gotUser != "user-1" {
		t.Errorf("Deactivate(%q, %q), want (acc-1, user-1)", gotID, gotUser)
	}
	if rec.disconnected != 1 {
		t.Errorf("disconnected = %d, want 1", rec.disconnected)
	}
}

func TestService_DisconnectAccount_NotOwnedIsNotFound(t *testing.T) {
	repo := &mockAccountRepo{
		deactivateFn: func(ctx context.Context, id, userID string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(repo, "user-2", nil)

	err := svc.DisconnectAccount(context.Background(), "acc-1")
	assertAPIErrorCode(t, err, model.ErrCodeSocialAccountNotFound)
}

func TestService_DisconnectAccount_NotAuthenticated(t *testing.T) {
	svc := newTestService(&mockAccountRepo{}, "", nil)

	err := svc.DisconnectAccount(context.Background(), "acc-1")
	assertAPIErrorCode(t, err, model.ErrCodeNotAuthenticated)
}

func TestService_DisconnectAccount_StoreError(t *testing.T) {
	repo := &mockAccountRepo{
		deactivateFn: func(ctx context.Context, id, userID string) (bool, error) {
			return false, model.NewStoreQueryError("update", "social_accounts", errors.New("boom"))
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-1", rec)

	err := svc.DisconnectAccount(context.Background(), "acc-1")
	if !model.IsStoreQueryError(err) {
		t.Fatalf("expected StoreQueryError, got %v", err)
	}
	if len(rec.storeErrors) != 1 || rec.storeErrors[0] != "disconnect_account" {
		t.Errorf("storeErrors = %v", rec.storeErrors)
	}
}

// --- RotateTokens ---

func TestService_RotateTokens_PartialUpdate(t *testing.T) {
	var got model.TokenUpdate
	repo := &mockAccountRepo{
		updateTokensFn: func(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			got = update
			return &model.SocialAccount{
				ID:           id,
				UserID:       userID,
				AccessToken:  update.AccessToken,
				RefreshToken: strPtr("unchanged-refresh"),
				IsActive:     true,
			}, nil
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-1", rec)

	account, err := svc.RotateTokens(context.Background(), "acc-1", model.TokenUpdate{AccessToken: strPtr("new-at")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RefreshToken != nil || got.ExpiresAt != nil {
		t.Error("unspecified fields must be passed as nil")
	}
	if *account.AccessToken != "new-at" || *account.RefreshToken != "unchanged-refresh" {
		t.Errorf("tokens = %q/%q", *account.AccessToken, *account.RefreshToken)
	}
	if len(rec.rotations) != 1 || rec.rotations[0] != metrics.RotationSourceAPI {
		t.Errorf("rotations = %v", rec.rotations)
	}
}

func TestService_RotateTokens_EmptyUpdate(t *testing.T) {
	repo := &mockAccountRepo{
		updateTokensFn: func(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error) {
			t.Fatal("UpdateTokens should not be called")
			return nil, nil
		},
	}
	svc := newTestService(repo, "user-1", nil)

	_, err := svc.RotateTokens(context.Background(), "acc-1", model.TokenUpdate{})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidTokenUpdate)
}

func TestService_RotateTokens_BlankToken(t *testing.T) {
	svc := newTestService(&mockAccountRepo{}, "user-1", nil)

	_, err := svc.RotateTokens(context.Background(), "acc-1", model.TokenUpdate{RefreshToken: strPtr(" ")})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestService_RotateTokens_NotOwnedIsNotFound(t *testing.T) {
	repo := &mockAccountRepo{
		updateTokensFn: func(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error) {
			return nil, nil
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-2", rec)

	expires := time.Now().Add(time.Hour)
	_, err := svc.RotateTokens(context.Background(), "acc-1", model.TokenUpdate{ExpiresAt: &expires})
	assertAPIErrorCode(t, err, model.ErrCodeSocialAccountNotFound)
	if len(rec.rotations) != 0 {
		t.Errorf("rotations = %v, want none", rec.rotations)
	}
}

func TestService_RotateTokens_NotAuthenticated(t *testing.T) {
	svc := newTestService(&mockAccountRepo{}, "", nil)

	_, err := svc.RotateTokens(context.Background(), "acc-1", model.TokenUpdate{AccessToken: strPtr("x")})
	assertAPIErrorCode(t, err, model.ErrCodeNotAuthenticated)
}

func TestService_ApplyRefreshedTokens_RecordsRefreshSource(t *testing.T) {
	repo := &mockAccountRepo{
		updateTokensFn: func(ctx context.Context, id, userID string, update model.TokenUpdate) (*model.SocialAccount, error) {
			return &model.SocialAccount{ID: id, UserID: userID, AccessToken: update.AccessToken}, nil
		},
	}
	rec := &recordingMetrics{}
	svc := newTestService(repo, "user-1", rec)

	if _, err := svc.ApplyRefreshedTokens(context.Background(), "acc-1", model.TokenUpdate{AccessToken: strPtr("r")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.rotations) != 1 || rec.rotations[0] != metrics.RotationSourceRefresh {
		t.Errorf("rotations = %v", rec.rotations)
	}
}
