package ws

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers expired, malformed, or mis-signed socket tokens.
var ErrInvalidToken = errors.New("invalid socket token")

// IssueSocketToken mints a short-lived token binding one websocket connection
// to an agent. The token is handed out over the authenticated HTTP surface
// and presented as a query parameter on upgrade, where headers are awkward
// for browser clients.
func IssueSocketToken(secret, agentID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   agentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSocketToken validates the token and returns the agent id it was
// minted for.
func ParseSocketToken(secret, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
