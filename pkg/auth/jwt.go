// Package auth provides the token and signing primitives used at the edge:
// short-lived JWTs for WebSocket sessions and HMAC-signed URLs for audio
// files.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenScope limits what a token is good for.
type TokenScope string

const (
	// ScopeConversation authorizes the conversation stream WebSocket.
	ScopeConversation TokenScope = "conversation"
	// ScopeVoice authorizes the voice pipeline WebSocket.
	ScopeVoice TokenScope = "voice"
)

// VoiceTokenTTL bounds the life of a minted voice token.
const VoiceTokenTTL = 15 * time.Minute

// Claims is the JWT claim set for session-scoped tokens.
type Claims struct {
	SessionID string     `json:"session_id"`
	UserID    string     `json:"user_id,omitempty"`
	Scope     TokenScope `json:"scope"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates session tokens.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer. The secret must be non-empty.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// Mint issues a token bound to a session and scope.
func (i *TokenIssuer) Mint(sessionID, userID string, scope TokenScope, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		SessionID: sessionID,
		UserID:    userID,
		Scope:     scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   sessionID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses a token and checks that it matches the expected session
// and scope.
func (i *TokenIssuer) Validate(tokenString, sessionID string, scope TokenScope) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.SessionID != sessionID {
		return nil, errors.New("token session mismatch")
	}
	if claims.Scope != scope {
		return nil, fmt.Errorf("token scope %q does not authorize %q", claims.Scope, scope)
	}
	return claims, nil
}
