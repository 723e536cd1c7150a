// Package oauth2 acquires, refreshes and stores OAuth2 tokens for mail
// accounts.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenManager handles OAuth2 token refresh and persistence for one account
type TokenManager struct {
	config    *oauth2.Config
	store     TokenStore
	accountID string
	logger    *slog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenManager creates a token manager and loads the stored token, if any
func NewTokenManager(config *oauth2.Config, store TokenStore, accountID string, logger *slog.Logger) (*TokenManager, error) {
	tm := &TokenManager{
		config:    config,
		store:     store,
		accountID: accountID,
		logger:    logger,
	}

	token, err := store.Load(accountID)
	switch {
	case errors.Is(err, ErrNoToken):
		logger.Debug("no stored OAuth2 token", "account", accountID)
	case err != nil:
		return nil, fmt.Errorf("failed to load OAuth2 token: %w", err)
	default:
		tm.token = token
		logger.Debug("loaded existing OAuth2 token",
			"account", accountID,
			"expires_at", token.Expiry.Format(time.RFC3339))
	}

	return tm, nil
}

// GetToken returns a valid token, refreshing and persisting it when it has
// expired. Concurrent callers share one refresh.
func (tm *TokenManager) GetToken(ctx context.Context) (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token == nil {
		return nil, fmt.Errorf("%w for account %s, run the oauth2 generate command", ErrNoToken, tm.accountID)
	}
	if tm.token.Valid() {
		return tm.token, nil
	}
	return tm.refreshLocked(ctx)
}

// Refresh refreshes the token even if it is still valid.
func (tm *TokenManager) Refresh(ctx context.Context) (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token == nil {
		return nil, fmt.Errorf("%w for account %s", ErrNoToken, tm.accountID)
	}
	return tm.refreshLocked(ctx)
}

func (tm *TokenManager) refreshLocked(ctx context.Context) (*oauth2.Token, error) {
	if tm.token.RefreshToken == "" {
		return nil, fmt.Errorf("token for account %s expired and has no refresh token", tm.accountID)
	}

	tm.logger.Debug("refreshing OAuth2 token", "account", tm.accountID)
	// An expired copy forces the token source to hit the token endpoint.
	stale := *tm.token
	stale.Expiry = time.Unix(1, 0)
	newToken, err := tm.config.TokenSource(ctx, &stale).Token()
	if err != nil {
		tm.logger.Error("failed to refresh OAuth2 token", "account", tm.accountID, "error", err)
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	// Some providers omit the refresh token on refresh.
	if newToken.RefreshToken == "" {
		newToken.RefreshToken = tm.token.RefreshToken
	}
	tm.token = newToken
	tm.logger.Debug("OAuth2 token refreshed",
		"account", tm.accountID,
		"expires_at", newToken.Expiry.Format(time.RFC3339))

	if err := tm.store.Save(tm.accountID, newToken); err != nil {
		tm.logger.Warn("failed to save refreshed OAuth2 token", "error", err)
	}
	return newToken, nil
}

// SetToken replaces the token and persists it
func (tm *TokenManager) SetToken(token *oauth2.Token) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.token = token
	return tm.store.Save(tm.accountID, token)
}

// Exchange trades an authorization code for a token and stores it.
func (tm *TokenManager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := tm.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := tm.SetToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return token, nil
}

// TokenSource adapts the manager to oauth2.TokenSource. ctx is used for
// refresh requests.
func (tm *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managedSource{ctx: ctx, tm: tm}
}

type managedSource struct {
	ctx context.Context
	tm  *TokenManager
}

func (s *managedSource) Token() (*oauth2.Token, error) {
	return s.tm.GetToken(s.ctx)
}

// StartRefreshWorker refreshes the token shortly before it expires until ctx
// is done.
func (tm *TokenManager) StartRefreshWorker(ctx context.Context) {
	go func() {
		for {
			tm.mu.Lock()
			token := tm.token
			tm.mu.Unlock()

			wait := 30 * time.Second
			if token != nil && !token.Expiry.IsZero() {
				wait = max(time.Until(token.Expiry)-5*time.Minute, time.Second)
			}

			select {
			case <-time.After(wait):
				if token == nil {
					continue
				}
				if _, err := tm.Refresh(ctx); err != nil {
					tm.logger.Error("background token refresh failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
