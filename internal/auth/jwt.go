// Package auth implements the operator control surface's single-operator
// bearer token: an expiring token issued on each successful login and
// signed with one configured secret, validated on every request. Simplified from the teacher's
// internal/auth multi-tenant JWTManager (per-user claims, refresh tokens,
// session limits), none of which apply to a single-operator control
// surface.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when a presented token has expired.
var ErrTokenExpired = errors.New("auth: token expired")

// ErrInvalidToken is returned when a presented token fails validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims identifies the operator session.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Manager issues and validates the operator's bearer token.
type Manager struct {
	secret   []byte
	duration time.Duration
}

// NewManager builds a Manager from the configured JWT secret.
func NewManager(secret string, duration time.Duration) *Manager {
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), duration: duration}
}

// IssueToken mints a fresh operator token.
func (m *Manager) IssueToken(operator string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			Issuer:    "derivatives-engine",
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing operator token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a presented token.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
