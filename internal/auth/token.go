package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/portal-session/internal/clock"
	"github.com/spec-kit/portal-session/internal/domain"
)

// TokenManager handles issuing and validating session JWTs.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration, c clock.Clock) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, clock: c}
}

// Claims describes the JWT payload. SessionID ties the token to one established session.
type Claims struct {
	SessionID string               `json:"sid"`
	Role      domain.RolePartition `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for an established session.
func (tm *TokenManager) Issue(identity domain.ResolvedIdentity) (string, domain.Token, error) {
	now := tm.clock.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		SessionID: identity.SessionID,
		Role:      identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.SessionID,
			Subject:   string(identity.Subject),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", domain.Token{}, err
	}
	return signed, domain.Token{
		SessionID: identity.SessionID,
		SubjectID: string(identity.Subject),
		Role:      identity.Role,
		ExpiresAt: expiresAt,
		IssuedAt:  now,
	}, nil
}

// Parse validates and returns claims.
func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.clock.Now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" || !claims.Role.Valid() {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
