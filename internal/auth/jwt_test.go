package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"outcall-server/internal/observability"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestValidateJWTToken(t *testing.T) {
	v := NewVerifier(testSecret, observability.NewLogger())
	ctx := context.Background()

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "9f4c6f8e-0000-4000-8000-000000000001",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})

	claims, err := v.ValidateJWTToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWTToken() error = %v", err)
	}
	if claims.Subject != "9f4c6f8e-0000-4000-8000-000000000001" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestValidateJWTToken_Expired(t *testing.T) {
	v := NewVerifier(testSecret, observability.NewLogger())

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := v.ValidateJWTToken(context.Background(), token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("error = %v, want ErrExpiredToken", err)
	}
}

func TestValidateJWTToken_WrongSecret(t *testing.T) {
	v := NewVerifier(testSecret, observability.NewLogger())

	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "user",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.ValidateJWTToken(context.Background(), token); !errors.Is(err, ErrParseJWTToken) {
		t.Errorf("error = %v, want ErrParseJWTToken", err)
	}
}
