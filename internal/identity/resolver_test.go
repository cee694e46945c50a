package identity

import (
	"context"
	"testing"

	"github.com/hitoshi/socialdash/internal/middleware"
	"github.com/hitoshi/socialdash/internal/model"
)

func TestContextResolver_WithUserID(t *testing.T) {
	r := NewContextResolver()
	ctx := middleware.ContextWithUserID(context.Background(), "user-1")

	userID, err := r.CurrentUserID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}
}

func TestContextResolver_WithoutUserID_NotAuthenticated(t *testing.T) {
	r := NewContextResolver()

	_, err := r.CurrentUserID(context.Background())
	if !model.IsNotAuthenticated(err) {
		t.Errorf("err = %v, want NOT_AUTHENTICATED", err)
	}
}

func TestStatic(t *testing.T) {
	userID, err := Static("user-2").CurrentUserID(context.Background())
	if err != nil || userID != "user-2" {
		t.Errorf("Static(user-2) = (%q, %v)", userID, err)
	}

	_, err = Static("").CurrentUserID(context.Background())
	if !model.IsNotAuthenticated(err) {
		t.Errorf("Static(\"\") err = %v, want NOT_AUTHENTICATED", err)
	}
}
