// Package auth issues and validates the bearer tokens that scope every
// session API call to one attempt. A token is minted when the session is
// created and dies with it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/neetly/session-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// Common auth errors.
var (
	ErrInvalidToken = errors.New("invalid token claims")
)

// Claims extends JWT standard claims with the session binding. Subject is
// the session id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	TestID string `json:"test_id"`
}

// SessionID returns the session id the token is bound to.
func (c *Claims) SessionID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Service handles session token issuance and validation. The Redis side
// tracks which session is currently active per user, for support tooling.
type Service struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewService creates a token Service.
func NewService(cfg *config.Config, rdb *redis.Client) *Service {
	return &Service{cfg: cfg, rdb: rdb}
}

// IssueSessionToken creates a JWT bound to one session and records it as
// the user's active session. Starting a new attempt displaces the old
// marker; the old token keeps working until its session is torn down.
func (s *Service) IssueSessionToken(ctx context.Context, sessionID uuid.UUID, userID, testID string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   sessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID: userID,
		TestID: testID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	// Best effort: the marker feeds support tooling, a write failure must
	// not block the attempt from starting.
	key := config.CacheKey.UserActiveSessionKey(userID)
	_ = s.rdb.Set(ctx, key, sessionID.String(), s.cfg.JWTExpiry).Err()

	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ClearActiveSession drops the user's active-session marker. Called on
// session teardown; a missing key is fine.
func (s *Service) ClearActiveSession(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, config.CacheKey.UserActiveSessionKey(userID)).Err()
}
