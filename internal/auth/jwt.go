package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MonitorClaims represents the claims in a monitor access token
type MonitorClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates monitor access tokens with a shared
// secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer with the given signing secret
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// GenerateToken generates an access token for a monitor client
func (i *TokenIssuer) GenerateToken(clientID string) (string, error) {
	claims := &MonitorClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ValidateToken validates an access token and returns its claims
func (i *TokenIssuer) ValidateToken(tokenString string) (*MonitorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MonitorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*MonitorClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
