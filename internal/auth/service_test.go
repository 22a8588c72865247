package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/benchlab/benchcore/internal/config"
)

func newTestService(t *testing.T, password string) *Service {
	t.Helper()
	hash, err := NewPasswordHasher().HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	return NewService(config.AuthConfig{
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		OperatorName:    "operator",
		OperatorHash:    hash,
	})
}

func TestLoginAndValidate(t *testing.T) {
	svc := newTestService(t, "bench-secret")

	access, refresh, err := svc.Login("operator", "bench-secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("empty token pair")
	}

	claims, err := svc.Validate(access)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Username != "operator" {
		t.Errorf("username = %q, want operator", claims.Username)
	}

	if _, err := svc.Validate(access + "x"); err == nil {
		t.Error("expected error for tampered token")
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc := newTestService(t, "bench-secret")

	_, _, errUser := svc.Login("admin", "bench-secret")
	_, _, errPass := svc.Login("operator", "wrong")
	if errUser == nil || errPass == nil {
		t.Fatal("expected both logins to fail")
	}
	if errUser.Error() != errPass.Error() {
		t.Errorf("failure messages differ: %q vs %q", errUser, errPass)
	}
}

func TestLoginWithoutConfiguredOperator(t *testing.T) {
	svc := NewService(config.AuthConfig{
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		OperatorName:    "operator",
	})
	if _, _, err := svc.Login("operator", "anything"); err == nil {
		t.Fatal("expected error with no operator hash configured")
	}
}

func TestRefreshAndLogout(t *testing.T) {
	svc := newTestService(t, "bench-secret")

	_, refresh, err := svc.Login("operator", "bench-secret")
	if err != nil {
		t.Fatal(err)
	}

	access, err := svc.Refresh(refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if claims, err := svc.Validate(access); err != nil || claims.Username != "operator" {
		t.Fatalf("refreshed token claims = %v, %v", claims, err)
	}

	if _, err := svc.Refresh("not-a-token"); err == nil {
		t.Error("expected error for unknown refresh token")
	}

	svc.Logout(refresh)
	if _, err := svc.Refresh(refresh); err == nil {
		t.Error("expected error after logout revoked the token")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	ph := NewPasswordHasher()
	hash, err := ph.HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := ph.VerifyPassword("correct horse", hash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword = %v, %v", ok, err)
	}
	ok, err = ph.VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Fatalf("wrong password verified: %v, %v", ok, err)
	}

	if _, err := ph.VerifyPassword("x", "not-a-hash"); err == nil {
		t.Error("expected error for malformed hash")
	}
}
