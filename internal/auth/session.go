// Package auth carries the per-client session: which role the client acts
// in and, for coordinators, who logged in. Sessions travel as signed tokens;
// logout and role switches revoke the old token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role is the part a client plays.
type Role string

const (
	RoleRequester   Role = "Requester"
	RoleCoordinator Role = "Coordinator"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch {
	case strings.EqualFold(s, string(RoleRequester)):
		return RoleRequester, nil
	case strings.EqualFold(s, string(RoleCoordinator)):
		return RoleCoordinator, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Session is the state of one client. Requesters are never authenticated;
// a coordinator session is authenticated only after Login.
type Session struct {
	Authenticated bool   `json:"authenticated"`
	Role          Role   `json:"role"`
	UserEmail     string `json:"user_email,omitempty"`
	UserName      string `json:"user_name,omitempty"`
}

// IsCoordinator reports whether the session may use the dashboard.
func (s Session) IsCoordinator() bool {
	return s.Authenticated && s.Role == RoleCoordinator
}

// ErrInvalidCredentials is returned for any failed coordinator login.
var ErrInvalidCredentials = errors.New("invalid credentials or role mismatch")

// Service issues, switches and ends sessions.
type Service struct {
	tokens    *TokenManager
	directory *Directory
}

func NewService(tokens *TokenManager, directory *Directory) *Service {
	return &Service{tokens: tokens, directory: directory}
}

// Directory returns the coordinator directory.
func (s *Service) Directory() *Directory { return s.directory }

// Tokens returns the token manager.
func (s *Service) Tokens() *TokenManager { return s.tokens }

// SelectRole starts a fresh unauthenticated session in role, discarding
// the previous one if any.
func (s *Service) SelectRole(ctx context.Context, previous *Claims, role Role) (*Token, error) {
	if err := s.discard(ctx, previous); err != nil {
		return nil, err
	}
	return s.tokens.Issue(Session{Role: role})
}

// Login checks a coordinator's credentials and starts an authenticated
// coordinator session, discarding the previous one if any.
func (s *Service) Login(ctx context.Context, previous *Claims, email, password string) (*Token, error) {
	c, err := s.directory.Authenticate(email, password)
	if err != nil {
		return nil, err
	}
	if err := s.discard(ctx, previous); err != nil {
		return nil, err
	}
	return s.tokens.Issue(Session{
		Authenticated: true,
		Role:          RoleCoordinator,
		UserEmail:     c.Email,
		UserName:      c.Name,
	})
}

// Logout ends the session.
func (s *Service) Logout(ctx context.Context, current *Claims) error {
	return s.discard(ctx, current)
}

func (s *Service) discard(ctx context.Context, c *Claims) error {
	if c == nil {
		return nil
	}
	if err := s.tokens.Revoke(ctx, c); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
