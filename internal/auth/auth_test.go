package auth

import (
	"errors"
	"testing"
	"time"

	"bar-pos/internal/apperr"
	"bar-pos/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	u := models.User{ID: "u1", Name: "Akinyi", Role: models.RoleAdmin, BusinessID: "b1"}

	tok, err := tokens.GenerateToken(u)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := tokens.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != models.RoleAdmin || claims.Tenant() != "b1" {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, err := NewTokens("other-secret", time.Hour).ValidateToken(tok); err == nil {
		t.Errorf("token signed with another secret was accepted")
	}
}

func TestExpiredToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }

	tok, err := tokens.GenerateToken(models.User{ID: "u1", Role: models.RoleBartender, BusinessID: "b1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := tokens.ValidateToken(tok); err == nil {
		t.Errorf("expired token was accepted")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in plaintext")
	}
	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Errorf("wrong password accepted")
	}
}

func TestResolvePlatformLogin(t *testing.T) {
	acct := func(id, business string, role models.Role) Account {
		return Account{User: models.User{ID: id, Name: "sam", BusinessID: business, Role: role}}
	}

	tests := []struct {
		name       string
		candidates []Account
		wantID     string
		wantErr    error
	}{
		{"no match", nil, "", apperr.ErrCredentialMismatch},
		{"single tenant user", []Account{acct("a", "b1", models.RoleBartender)}, "a", nil},
		{"ambiguous across tenants", []Account{acct("a", "b1", models.RoleBartender), acct("b", "b2", models.RoleOwner)}, "", apperr.ErrConflict},
		{"platform admin wins", []Account{acct("a", "b1", models.RoleBartender), acct("root", "", models.RoleSuperAdmin)}, "root", nil},
		{"two platform admins", []Account{acct("r1", "", models.RoleSuperAdmin), acct("r2", "", models.RoleSuperAdmin)}, "", apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePlatformLogin(tt.candidates)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if got.ID != "" {
					t.Errorf("an account was returned with the error: %+v", got)
				}
				return
			}
			if err != nil || got.ID != tt.wantID {
				t.Errorf("got %q, %v; want %q", got.ID, err, tt.wantID)
			}
		})
	}
}

func TestIsPlatformLogin(t *testing.T) {
	for in, want := range map[string]bool{"": true, "  ": true, "Platform": true, "platform": true, "Tipsy Goat": false} {
		if got := IsPlatformLogin(in); got != want {
			t.Errorf("IsPlatformLogin(%q) = %v, want %v", in, got, want)
		}
	}
}
