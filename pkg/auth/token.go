// Package auth mints and verifies the API tokens that protect an NLPipe
// server. Tokens are HMAC-SHA256 JWTs signed with a shared secret, so the
// server can hand a token to an operator once and verify it statelessly on
// every request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for token operations.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnsupportedVersion = errors.New("unsupported token version")
	ErrTokenSigningFailed = errors.New("failed to sign token")
	ErrMissingSecret      = errors.New("token secret is required")
)

// TokenService mints and verifies API tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a token service using the given signing secret.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Mint creates a signed token for the current claims layout.
func (s *TokenService) Mint() (string, error) {
	claims := &Claims{
		Version: TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Verify checks a token's signature and claims layout version.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Version > TokenVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, claims.Version)
	}

	return claims, nil
}
