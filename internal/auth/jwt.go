// Package auth maps bearer credentials to principals. Tokens are HS256 JWTs
// carried in the "token" cookie or an Authorization: Bearer header.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tasklist/pkg/domain"
)

// MinSecretLen is the shortest signing secret accepted.
const MinSecretLen = 32

// ErrWeakSecret rejects secrets shorter than MinSecretLen.
var ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLen)

// Claims identifies the principal a token was minted for.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// ValidateSecret checks the secret length.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrWeakSecret
	}
	return nil
}

// GenerateToken signs claims, stamping IssuedAt and ExpiresAt from expiry.
func GenerateToken(secret []byte, claims *Claims, expiry time.Duration) (string, error) {
	if err := ValidateSecret(secret); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	if claims.UserID == "" {
		return "", errors.New("auth: user id required")
	}
	now := time.Now()
	claims.Subject = claims.UserID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken parses tokenStr, pinning the signing method to HS256.
func ValidateToken(secret []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// PrincipalFromToken reads the principal out of tokenStr without checking its
// signature. Clients use it to key their cache; the server still verifies the
// token on every request.
func PrincipalFromToken(tokenStr string) (domain.Principal, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.UserID == "" {
		return domain.Principal{}, fmt.Errorf("%w: token has no user id", domain.ErrUnauthorized)
	}
	return domain.Principal{ID: claims.UserID, Username: claims.Username, Token: tokenStr}, nil
}
