package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmorita/denkiwatch/pkg/models"
)

// TokenTTL is how long a freshly captured token is trusted. The portal
// does not advertise a token lifetime, so this is a conservative local
// policy rather than a value read from the provider.
const TokenTTL = 24 * time.Hour

// TokenStore persists the single active credential
type TokenStore interface {
	StoreToken(token string, expiresAt time.Time) error
	GetValidToken() (*models.Credential, error)
}

// Manager hands out a valid bearer token, logging in through the
// Authenticator when the stored one is missing or expired. Concurrent
// refreshes collapse into a single login flow: the browser session is an
// exclusive resource and two simultaneous logins would race.
type Manager struct {
	store    TokenStore
	auth     Authenticator
	username string
	password string
	group    singleflight.Group
	logger   *slog.Logger
}

// NewManager creates a token manager
func NewManager(store TokenStore, authenticator Authenticator, username, password string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		auth:     authenticator,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Token returns the stored valid token, or authenticates to obtain a new
// one
func (m *Manager) Token(ctx context.Context) (string, error) {
	cred, err := m.store.GetValidToken()
	if err != nil {
		return "", fmt.Errorf("reading stored token: %w", err)
	}
	if cred != nil {
		return cred.Token, nil
	}

	m.logger.Info("No valid token found, authenticating")
	return m.Refresh(ctx)
}

// Refresh performs a login and stores the captured token with a fixed
// 24-hour expiry. Callers arriving while a login is in flight share its
// result.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	if m.username == "" || m.password == "" {
		return "", ErrCredentialsNotConfigured
	}

	v, err, _ := m.group.Do("authenticate", func() (interface{}, error) {
		token, err := m.auth.Login(ctx, m.username, m.password)
		if err != nil {
			return "", fmt.Errorf("authentication failed: %w", err)
		}

		expiresAt := time.Now().Add(TokenTTL)
		if err := m.store.StoreToken(token, expiresAt); err != nil {
			return "", fmt.Errorf("storing token: %w", err)
		}

		m.logger.Info("Token refreshed", "expires_at", expiresAt.Format(time.RFC3339))
		return token, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}
