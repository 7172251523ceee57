package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestBearerTokenFromStringSuccess(t *testing.T) {
	token, err := bearerTokenFromString("Bearer header.payload.signature")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", token)
	}
}

func TestBearerTokenFromStringMissing(t *testing.T) {
	if _, err := bearerTokenFromString(""); err == nil || err.Error() != "missing authorization header" {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestBearerTokenFromStringWrongScheme(t *testing.T) {
	if _, err := bearerTokenFromString("Basic abc.def.ghi"); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestBearerTokenFromStringManyPeriods(t *testing.T) {
	header := "Bearer " + strings.Repeat(".", 1000)
	if _, err := bearerTokenFromString(header); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func signedTestToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func testAuth(secret []byte) *Auth {
	return &Auth{
		Audience:   "api://aud",
		Issuer:     "https://issuer/",
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

func TestActorFromAuthHeaderHS256(t *testing.T) {
	secret := []byte("test-secret")
	signed := signedTestToken(t, secret, jwt.MapClaims{
		"sub":  "user-123",
		"name": "Ada Lovelace",
		"aud":  "api://aud",
		"iss":  "https://issuer/",
		"exp":  time.Now().Add(5 * time.Minute).Unix(),
		"nbf":  time.Now().Add(-time.Minute).Unix(),
		"iat":  time.Now().Add(-time.Minute).Unix(),
	})

	actor, err := testAuth(secret).ActorFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if actor.ID != "user-123" {
		t.Fatalf("unexpected actor id: %s", actor.ID)
	}
	if actor.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected actor name: %s", actor.FullName)
	}
}

func TestActorFromAuthHeaderMissingSub(t *testing.T) {
	secret := []byte("test-secret")
	signed := signedTestToken(t, secret, jwt.MapClaims{
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})

	if _, err := testAuth(secret).ActorFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatalf("expected error for token without sub")
	}
}

func TestActorFromAuthHeaderExpired(t *testing.T) {
	secret := []byte("test-secret")
	signed := signedTestToken(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-5 * time.Minute).Unix(),
	})

	if _, err := testAuth(secret).ActorFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatalf("expected error for expired token")
	}
}

func TestActorFromAuthHeaderWrongAudience(t *testing.T) {
	secret := []byte("test-secret")
	signed := signedTestToken(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://other",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})

	if _, err := testAuth(secret).ActorFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatalf("expected error for wrong audience")
	}
}
