package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/backoffice-kit/auth-service/internal/domain"
)

type Scope string

const (
	ScopeAccess  Scope = "access_token"
	ScopeRefresh Scope = "refresh_token"
)

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates the self-describing bearer tokens the
// session layer hands out. Tokens carry subject, scope, issued-at and expiry
// and are verifiable without a database round trip.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

func (m *TokenManager) Encode(subject string, scope Scope, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: string(scope),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", domain.ErrEncodeToken
	}
	return signed, nil
}

// Decode verifies signature and expiry, then the scope. The three failure
// kinds stay distinct: ExpiredSignature, InvalidToken (malformed or bad
// signature), InvalidScope.
func (m *TokenManager) Decode(raw string, scope Scope) (string, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrExpiredSignature
		}
		return "", domain.ErrInvalidToken
	}
	if !tok.Valid {
		return "", domain.ErrInvalidToken
	}
	if claims.Scope != string(scope) {
		return "", domain.ErrInvalidScope
	}
	return claims.Subject, nil
}
