package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims are the JWT claims carried by an active session token.
// Role travels in the token so authorization checks happen server-side
// on every request, not in the client.
type SessionClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// TokenIssuer mints and validates HMAC-signed session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. An empty secret generates a random
// per-process one: sessions then survive only until restart, which is
// the documented degraded mode for unconfigured deployments.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			panic("identity: cannot generate session secret: " + err.Error())
		}
		key = []byte(hex.EncodeToString(buf))
	}
	return &TokenIssuer{secret: key, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue returns a signed session token for the user plus its token ID,
// which the revocation list keys on.
func (t *TokenIssuer) Issue(u *User) (token string, tokenID string, err error) {
	now := time.Now()
	tokenID = uuid.New().String()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Name: u.Name,
		Role: u.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", err
	}
	return signed, tokenID, nil
}

// Parse validates a session token and returns its claims.
func (t *TokenIssuer) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("identity: invalid session token")
	}
	return claims, nil
}
