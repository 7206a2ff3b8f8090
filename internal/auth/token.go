package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRevokedToken = errors.New("session has ended")
)

// Claims is the signed form of a Session.
type Claims struct {
	Authenticated bool   `json:"auth"`
	Role          Role   `json:"role"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Session returns the session the claims describe.
func (c *Claims) Session() Session {
	return Session{Authenticated: c.Authenticated, Role: c.Role, UserEmail: c.Email, UserName: c.Name}
}

// Token is an issued session token.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Session   Session   `json:"session"`
}

// TokenConfig holds the signing settings.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// TokenManager signs and verifies HS256 session tokens and consults a
// revocation list keyed by token id.
type TokenManager struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	revoked RevocationStore
	now     func() time.Time
}

func NewTokenManager(cfg TokenConfig, revoked RevocationStore) *TokenManager {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "requestdesk"
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	return &TokenManager{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: cfg.TTL, revoked: revoked, now: time.Now}
}

// Issue signs a new token for s.
func (m *TokenManager) Issue(s Session) (*Token, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		Authenticated: s.Authenticated,
		Role:          s.Role,
		Email:         s.UserEmail,
		Name:          s.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserEmail,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	return &Token{Value: signed, ExpiresAt: exp, Session: s}, nil
}

// Parse verifies raw and rejects revoked tokens.
func (m *TokenManager) Parse(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken
	}

	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke blocks the token until it would have expired anyway.
func (m *TokenManager) Revoke(ctx context.Context, c *Claims) error {
	ttl := time.Minute
	if c.ExpiresAt != nil {
		if left := c.ExpiresAt.Time.Sub(m.now()); left > 0 {
			ttl = left
		}
	}
	return m.revoked.Revoke(ctx, c.ID, ttl)
}
