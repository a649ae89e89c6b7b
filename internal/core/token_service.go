package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dealer-inventory/internal/fortnox"
	"dealer-inventory/internal/vault"
)

// refreshBuffer: tokens inside this window before expiry are refreshed before use.
const refreshBuffer = 5 * time.Minute

// TokenRefresher is the refresh-grant side of the Fortnox OAuth client.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*fortnox.TokenResponse, error)
}

// TokenService hands out a valid access token for a credential, transparently
// rotating it via the refresh grant when the expiry buffer is reached. Refresh
// is always lazy — performed immediately before use, never by a background
// poller — so a stale token is never trusted.
//
// Two concurrent syncs may race to refresh the same credential. That is
// tolerated: both rotations persist and the latest row wins, at worst costing a
// redundant refresh call. No lock is held.
type TokenService interface {
	ValidAccessToken(ctx context.Context, cred *Credential) (string, error)
}

type tokenService struct {
	oauth  TokenRefresher
	vault  *vault.Vault
	creds  CredentialService
	logger zerolog.Logger
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(oauth TokenRefresher, v *vault.Vault, creds CredentialService, logger zerolog.Logger) TokenService {
	return &tokenService{
		oauth:  oauth,
		vault:  v,
		creds:  creds,
		logger: logger.With().Str("component", "token-refresh").Logger(),
		now:    time.Now,
	}
}

func (s *tokenService) ValidAccessToken(ctx context.Context, cred *Credential) (string, error) {
	if cred.ExpiresAt.Sub(s.now()) > refreshBuffer {
		return s.vault.ReadToken(cred.AccessToken)
	}

	refreshToken, err := s.vault.ReadToken(cred.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	token, err := s.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		var oauthErr *fortnox.OAuthError
		if errors.As(err, &oauthErr) {
			// The provider rejected our refresh token (revoked or superseded).
			// Only the user reconnecting can fix this.
			s.logger.Warn().
				Int64("credential_id", cred.ID).
				Str("provider_error", oauthErr.Code).
				Msg("refresh token rejected")
			return "", fmt.Errorf("%s: %w", oauthErr.Code, ErrReauthRequired)
		}
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	// Fortnox may omit the refresh token when it has not rotated.
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	encAccess, err := s.vault.Encrypt(token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt rotated access token: %w", err)
	}
	encRefresh, err := s.vault.Encrypt(token.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("encrypt rotated refresh token: %w", err)
	}
	expiresAt := s.now().Add(time.Duration(token.ExpiresIn) * time.Second)

	if err := s.creds.UpdateTokens(ctx, cred.ID, encAccess, encRefresh, expiresAt); err != nil {
		return "", err
	}
	cred.AccessToken = encAccess
	cred.RefreshToken = encRefresh
	cred.ExpiresAt = expiresAt

	s.logger.Info().Int64("credential_id", cred.ID).Time("expires_at", expiresAt).Msg("access token rotated")
	return token.AccessToken, nil
}
