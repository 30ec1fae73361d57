package auth

import (
	"context"
	"errors"
	"fmt"

	"outcall-server/internal/observability"

	"github.com/golang-jwt/jwt/v5"
)

var ErrExpiredToken = errors.New("expired jwt token")
var ErrInvalidJWTToken = errors.New("invalid jwt token")
var ErrParseJWTToken = errors.New("failed to parse jwt token")

type BaseClaims struct {
	ExpirationTime *jwt.NumericDate `json:"exp"`
	IssuedAt       *jwt.NumericDate `json:"iat"`
	NotBefore      *jwt.NumericDate `json:"nbf"`
	Issuer         string           `json:"iss"`
	Subject        string           `json:"sub"`
	Audience       jwt.ClaimStrings `json:"aud"`
}

func (b *BaseClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return b.ExpirationTime, nil
}

func (b *BaseClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return b.IssuedAt, nil
}

func (b *BaseClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return b.NotBefore, nil
}

func (b *BaseClaims) GetIssuer() (string, error) {
	return b.Issuer, nil
}

func (b *BaseClaims) GetSubject() (string, error) {
	return b.Subject, nil
}

func (b *BaseClaims) GetAudience() (jwt.ClaimStrings, error) {
	return b.Audience, nil
}

// Verifier validates bearer tokens issued by the identity service that fronts
// this API.
type Verifier struct {
	jwtSecret string
	logger    *observability.Logger
}

func NewVerifier(jwtSecret string, logger *observability.Logger) *Verifier {
	return &Verifier{jwtSecret: jwtSecret, logger: logger}
}

func (v *Verifier) ValidateJWTToken(ctx context.Context, token string) (BaseClaims, error) {
	var baseClaims BaseClaims
	t, err := jwt.ParseWithClaims(token, &baseClaims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			v.logger.Error(ctx, "token expired", err)
			return BaseClaims{}, ErrExpiredToken
		}
		v.logger.Error(ctx, "failed to parse token", err)
		return BaseClaims{}, ErrParseJWTToken
	}
	if !t.Valid {
		return BaseClaims{}, ErrInvalidJWTToken
	}
	return baseClaims, nil
}
