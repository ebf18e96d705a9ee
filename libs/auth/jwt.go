package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Roles understood by the lifecycle service.
const (
	RoleClient = "client"
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Identity is the verified caller extracted from a token.
type Identity struct {
	UserID string
	Role   string
}

func SignHS256(claims Claims, secret string) (string, error) {
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(time.Now())
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAndVerifyHS256 checks signature and expiry and returns the caller.
// Tokens without a subject or role are rejected.
func ParseAndVerifyHS256(tokenStr, secret string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}
