// Package session issues and validates the signed tokens that bind a browser
// to its server-side view-state.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenExpiry is the default token lifetime.
const TokenExpiry = 30 * 24 * time.Hour

// Issuer is written into every token.
const Issuer = "voguevault"

// Claims identify one session.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer creates and checks session tokens with an HMAC secret.
type Signer struct {
	secret []byte
	expiry time.Duration
}

// NewSigner uses secret, or a random one when empty (tokens then die with the process).
func NewSigner(secret string) (*Signer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		key = []byte(hex.EncodeToString(buf))
	}
	return &Signer{secret: key, expiry: TokenExpiry}, nil
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// Issue signs a token for sessionID.
func (s *Signer) Issue(sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenStr and returns its claims.
func (s *Signer) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if _, err := uuid.Parse(claims.SessionID); err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}
	return claims, nil
}
