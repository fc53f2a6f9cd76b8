package services

import (
	"context"
	"fmt"

	"github.com/daybook-app/daybook/internal/client/remote"
	"github.com/daybook-app/daybook/internal/client/repositories/settings"
)

const (
	keyOwnerID      = "owner_id"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// AuthService handles account registration and session lifecycle. A session
// survives restarts: tokens and the owner id are persisted in the local
// settings store and restored on startup.
type AuthService interface {
	Register(ctx context.Context, username, password string) error

	// Login authenticates, persists the session and returns the owner id.
	Login(ctx context.Context, username, password string) (string, error)

	// Session restores a persisted session into the remote client and
	// returns the owner id, or ok=false when no session is stored.
	Session(ctx context.Context) (owner string, ok bool, err error)

	// Logout drops the persisted session.
	Logout(ctx context.Context) error
}

type authService struct {
	client   remote.Client
	settings settings.Repository
}

func NewAuthService(client remote.Client, settings settings.Repository) AuthService {
	return &authService{client: client, settings: settings}
}

func (s *authService) Register(ctx context.Context, username, password string) error {
	return s.client.Register(ctx, username, password)
}

func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	owner, err := s.client.Login(ctx, username, password)
	if err != nil {
		return "", err
	}
	access, refresh := s.client.Tokens()
	if err := s.settings.Set(ctx, keyOwnerID, []byte(owner)); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}
	if err := s.settings.Set(ctx, keyAccessToken, []byte(access)); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}
	if err := s.settings.Set(ctx, keyRefreshToken, []byte(refresh)); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}
	return owner, nil
}

func (s *authService) Session(ctx context.Context) (string, bool, error) {
	owner, err := s.settings.Get(ctx, keyOwnerID)
	if err != nil {
		return "", false, fmt.Errorf("failed to read session: %w", err)
	}
	if owner == nil {
		return "", false, nil
	}
	access, err := s.settings.Get(ctx, keyAccessToken)
	if err != nil {
		return "", false, fmt.Errorf("failed to read session: %w", err)
	}
	refresh, err := s.settings.Get(ctx, keyRefreshToken)
	if err != nil {
		return "", false, fmt.Errorf("failed to read session: %w", err)
	}
	s.client.SetTokens(string(access), string(refresh))
	return string(owner), true, nil
}

func (s *authService) Logout(ctx context.Context) error {
	for _, key := range []string{keyOwnerID, keyAccessToken, keyRefreshToken} {
		if err := s.settings.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
	}
	return nil
}
