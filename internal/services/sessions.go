package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medical-office-server/internal/models"
	"medical-office-server/internal/repository"
)

// UserStore is the identity lookup the session issuer depends on.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// AccessTokenSigner turns a user into a short-lived signed access token.
type AccessTokenSigner interface {
	Sign(user *models.User) (string, error)
}

// TokenPair is what a client receives after logging in or refreshing.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *models.User
}

// SessionIssuer pairs access tokens with refresh-token chains.
type SessionIssuer struct {
	users  UserStore
	engine *RotationEngine
	signer AccessTokenSigner
}

func NewSessionIssuer(users UserStore, engine *RotationEngine, signer AccessTokenSigner) *SessionIssuer {
	return &SessionIssuer{users: users, engine: engine, signer: signer}
}

// Authenticate checks credentials and starts a new chain. Unknown emails and
// wrong passwords both fail with ErrInvalidCredentials.
func (s *SessionIssuer) Authenticate(ctx context.Context, email, password, ipAddress string) (*TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return s.StartSession(ctx, user, ipAddress)
}

// StartSession issues a fresh pair for an already identified user.
func (s *SessionIssuer) StartSession(ctx context.Context, user *models.User, ipAddress string) (*TokenPair, error) {
	accessToken, err := s.signer.Sign(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.engine.IssueNewChain(ctx, user.ID, ipAddress)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refresh.TokenValue,
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user,
	}, nil
}

// Refresh rotates the presented refresh token and signs a new access token for
// its owner. The access token carries the owner's current role.
func (s *SessionIssuer) Refresh(ctx context.Context, refreshValue, ipAddress string) (*TokenPair, error) {
	refresh, err := s.engine.Rotate(ctx, refreshValue, ipAddress)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, refresh.OwnerID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up token owner: %w", err)
	}

	accessToken, err := s.signer.Sign(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refresh.TokenValue,
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user,
	}, nil
}

// Revoke revokes a single refresh token on behalf of actor.
func (s *SessionIssuer) Revoke(ctx context.Context, refreshValue, ipAddress string, actor models.Actor) error {
	return s.engine.RevokeExplicit(ctx, refreshValue, ipAddress, actor)
}
