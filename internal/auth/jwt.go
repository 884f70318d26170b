// Package auth issues and validates admin session tokens and performs
// the credential checks behind the API-key gate and the login endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenExpiry applies when the configuration does not set one.
const DefaultTokenExpiry = 30 * time.Minute

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims carries the admin session identity.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Admin    bool   `json:"is_admin"`
}

// IssueToken returns a signed HS256 session token for the admin user.
// Non-positive expiry falls back to DefaultTokenExpiry.
func IssueToken(secret, username string, expiry time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("auth: signing secret is required")
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Username: username,
		Admin:    true,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}

// ValidateToken parses and checks a session token, returning its claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: signing secret is required")
	}
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
