package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"dealer-inventory/internal/fortnox"
	"dealer-inventory/internal/vault"
)

// stateTTL is how long an issued authorization state may be redeemed.
const stateTTL = 10 * time.Minute

// CodeExchanger is the OAuth side of the Fortnox client used by the handshake.
type CodeExchanger interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (*fortnox.TokenResponse, error)
}

// CompanyFetcher fetches the connected company's identity from the provider.
type CompanyFetcher interface {
	CompanyInformation(ctx context.Context, accessToken string) (*fortnox.CompanyInformation, error)
}

// HandshakeService drives one Fortnox connection attempt from authorization URL
// to stored credential. Any failure surfaces to the caller; the user restarts
// the flow from the beginning — there are no retries inside the flow.
type HandshakeService interface {
	// BeginAuthorization issues a fresh single-use state and returns the provider
	// authorization URL embedding it.
	BeginAuthorization(ctx context.Context, userID int) (string, error)

	// CompleteAuthorization validates the callback, exchanges the code, verifies
	// the connected company belongs to the user's organization, and stores the
	// new active credential.
	CompleteAuthorization(ctx context.Context, code, state string) (*Credential, error)

	// Disconnect deactivates the user's stored credentials.
	Disconnect(ctx context.Context, userID int) error
}

type handshakeService struct {
	pool   *pgxpool.Pool
	oauth  CodeExchanger
	api    CompanyFetcher
	vault  *vault.Vault
	creds  CredentialService
	logger zerolog.Logger
}

// NewHandshakeService constructs a HandshakeService.
func NewHandshakeService(pool *pgxpool.Pool, oauth CodeExchanger, api CompanyFetcher, v *vault.Vault, creds CredentialService, logger zerolog.Logger) HandshakeService {
	return &handshakeService{
		pool:   pool,
		oauth:  oauth,
		api:    api,
		vault:  v,
		creds:  creds,
		logger: logger.With().Str("component", "handshake").Logger(),
	}
}

func (s *handshakeService) BeginAuthorization(ctx context.Context, userID int) (string, error) {
	// Expired states are garbage before they are a security concern; sweep them
	// on every new attempt instead of running a scheduler.
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM oauth_states WHERE created_at < now() - $1::interval`,
		stateTTL.String(),
	); err != nil {
		return "", fmt.Errorf("garbage-collect authorization states: %w", err)
	}

	token := uuid.NewString()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO oauth_states (token, user_id, created_at) VALUES ($1, $2, now())`,
		token, userID,
	); err != nil {
		return "", fmt.Errorf("persist authorization state: %w", err)
	}

	s.logger.Info().Int("user_id", userID).Msg("authorization started")
	return s.oauth.AuthorizationURL(token), nil
}

func (s *handshakeService) CompleteAuthorization(ctx context.Context, code, state string) (*Credential, error) {
	// Replay guard first: a code that already produced a credential must never be
	// exchangeable again, regardless of which state accompanies it.
	fingerprint := codeFingerprint(code)
	used, err := s.creds.CodeFingerprintUsed(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if used {
		s.logger.Warn().Msg("authorization code replay rejected")
		return nil, ErrCodeReused
	}

	// Consume the state before any network call so two concurrent callbacks for
	// the same state cannot both proceed.
	var userID int
	var createdAt time.Time
	err = s.pool.QueryRow(ctx, `
		UPDATE oauth_states
		SET consumed_at = now()
		WHERE token = $1 AND consumed_at IS NULL
		RETURNING user_id, created_at`,
		state,
	).Scan(&userID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateInvalid
		}
		return nil, fmt.Errorf("consume authorization state: %w", err)
	}
	if time.Since(createdAt) > stateTTL {
		return nil, ErrStateExpired
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	info, err := s.api.CompanyInformation(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch connected company: %w", err)
	}

	var orgID int
	var orgNumber string
	err = s.pool.QueryRow(ctx, `
		SELECT o.id, o.registration_number
		FROM organizations o
		JOIN users u ON u.organization_id = o.id
		WHERE u.id = $1`,
		userID,
	).Scan(&orgID, &orgNumber)
	if err != nil {
		return nil, fmt.Errorf("resolve organization for user %d: %w", userID, err)
	}

	companyNumber := NormalizeOrgNumber(info.OrganizationNumber)
	ownNumber := NormalizeOrgNumber(orgNumber)
	if companyNumber != ownNumber {
		s.logger.Warn().
			Int("user_id", userID).
			Str("company_number", companyNumber).
			Str("organization_number", ownNumber).
			Msg("company identity mismatch, credential not stored")
		return nil, &CompanyMismatchError{CompanyNumber: companyNumber, OrganizationNumber: ownNumber}
	}

	encAccess, err := s.vault.Encrypt(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := s.vault.Encrypt(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Activating the new credential deactivates every prior one for the user.
	if _, err := tx.Exec(ctx, `
		UPDATE fortnox_credentials
		SET active = false, updated_at = now()
		WHERE user_id = $1 AND active = true`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("deactivate prior credentials: %w", err)
	}

	cred := &Credential{
		UserID:          userID,
		OrganizationID:  orgID,
		AccessToken:     encAccess,
		RefreshToken:    encRefresh,
		ExpiresAt:       time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
		CompanyNumber:   companyNumber,
		CompanyName:     info.CompanyName,
		Active:          true,
		CodeFingerprint: fingerprint,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO fortnox_credentials
			(user_id, organization_id, access_token, refresh_token, expires_at,
			 company_number, company_name, active, code_fingerprint, code_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, now(), now(), now())
		RETURNING id, code_used_at, created_at, updated_at`,
		cred.UserID, cred.OrganizationID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt,
		cred.CompanyNumber, cred.CompanyName, cred.CodeFingerprint,
	).Scan(&cred.ID, &cred.CodeUsedAt, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM oauth_states WHERE token = $1`, state); err != nil {
		return nil, fmt.Errorf("delete consumed state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credential: %w", err)
	}

	s.logger.Info().
		Int("user_id", userID).
		Str("company_name", cred.CompanyName).
		Msg("fortnox connection established")
	return cred, nil
}

func (s *handshakeService) Disconnect(ctx context.Context, userID int) error {
	if err := s.creds.DeactivateForUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Int("user_id", userID).Msg("fortnox connection disconnected")
	return nil
}

// codeFingerprint returns a stable fingerprint of an authorization code that is
// safe to store and compare without keeping the code itself.
func codeFingerprint(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
