package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestTokenExpiry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)

	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	_ = s.Login(ctx, LoginPayload{Token: signedToken(t, jwt.MapClaims{"exp": exp.Unix()})})

	got, ok := s.TokenExpiry()
	if !ok {
		t.Fatal("TokenExpiry reported no expiry for token with exp claim")
	}
	if !got.Equal(exp) {
		t.Fatalf("TokenExpiry = %v, want %v", got, exp)
	}
}

func TestTokenExpiryOpaqueToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)
	_ = s.Login(ctx, LoginPayload{Token: "not-a-jwt"})

	if _, ok := s.TokenExpiry(); ok {
		t.Fatal("TokenExpiry reported an expiry for an opaque token")
	}
}

func TestTokenExpiryNoClaim(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := testContext(t)
	_ = s.Restore(ctx)
	_ = s.Login(ctx, LoginPayload{Token: signedToken(t, jwt.MapClaims{"sub": "u1"})})

	if _, ok := s.TokenExpiry(); ok {
		t.Fatal("TokenExpiry reported an expiry for a token without exp")
	}
}

func TestTokenExpiryLoggedOut(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Restore(testContext(t))

	if _, ok := s.TokenExpiry(); ok {
		t.Fatal("TokenExpiry reported an expiry with no session")
	}
}
