// Package security generates the identifiers and tokens the widget hands
// across trust boundaries.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateSessionID creates a v4 UUID session identifier. The measurement
// flow correlates both devices of a dual-device session on this value.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateClientID creates a sortable ULID identifying this widget instance
// on the session socket.
func GenerateClientID() string {
	return ulid.Make().String()
}

// GenerateSecureToken returns a hex token of n random bytes.
func GenerateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// EmbedClaims are the claims carried by the signed embed token that can
// accompany the flow URL.
type EmbedClaims struct {
	StoreID   string `json:"storeId"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// MintEmbedToken signs a short-lived HS256 token binding a session to a
// store.
func MintEmbedToken(secret []byte, storeID, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := EmbedClaims{
		StoreID:   storeID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseEmbedToken validates an embed token and returns its claims.
func ParseEmbedToken(secret []byte, tokenString string) (*EmbedClaims, error) {
	claims := &EmbedClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid embed token")
	}
	return claims, nil
}
