package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialService reads and mutates stored Fortnox credentials. The active
// credential is never cached: token refresh mutates the row, so every caller
// re-fetches the latest active row.
type CredentialService interface {
	// ActiveForUser returns the user's active credential, or ErrNoActiveIntegration.
	ActiveForUser(ctx context.Context, userID int) (*Credential, error)

	// ActiveForOrganization returns the most recent active credential belonging to
	// any user in the organization. The Fortnox connection is organization-scoped:
	// one connected user serves the whole dealership.
	ActiveForOrganization(ctx context.Context, organizationID int) (*Credential, error)

	// DeactivateForUser flips every active credential of the user to inactive.
	// Credentials are deactivated on disconnect or reconnect, never deleted.
	DeactivateForUser(ctx context.Context, userID int) error

	// UpdateTokens persists a token rotation (already-encrypted values).
	UpdateTokens(ctx context.Context, id int64, encryptedAccess, encryptedRefresh string, expiresAt time.Time) error

	// CodeFingerprintUsed reports whether an authorization code fingerprint was
	// already consumed by any credential, active or not.
	CodeFingerprintUsed(ctx context.Context, fingerprint string) (bool, error)
}

type credentialService struct {
	pool *pgxpool.Pool
}

// NewCredentialService constructs a CredentialService backed by PostgreSQL.
func NewCredentialService(pool *pgxpool.Pool) CredentialService {
	return &credentialService{pool: pool}
}

const credentialColumns = `id, user_id, organization_id, access_token, refresh_token, expires_at,
       company_number, company_name, active, code_fingerprint, code_used_at, created_at, updated_at`

func scanCredential(row pgx.Row) (*Credential, error) {
	c := &Credential{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.OrganizationID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt,
		&c.CompanyNumber, &c.CompanyName, &c.Active, &c.CodeFingerprint, &c.CodeUsedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *credentialService) ActiveForUser(ctx context.Context, userID int) (*Credential, error) {
	c, err := scanCredential(s.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM fortnox_credentials
		WHERE user_id = $1 AND active = true
		ORDER BY id DESC
		LIMIT 1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveIntegration
		}
		return nil, fmt.Errorf("load credential for user %d: %w", userID, err)
	}
	return c, nil
}

func (s *credentialService) ActiveForOrganization(ctx context.Context, organizationID int) (*Credential, error) {
	c, err := scanCredential(s.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM fortnox_credentials
		WHERE organization_id = $1 AND active = true
		ORDER BY id DESC
		LIMIT 1`,
		organizationID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveIntegration
		}
		return nil, fmt.Errorf("load credential for org %d: %w", organizationID, err)
	}
	return c, nil
}

func (s *credentialService) DeactivateForUser(ctx context.Context, userID int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE fortnox_credentials
		SET active = false, updated_at = now()
		WHERE user_id = $1 AND active = true`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("deactivate credentials for user %d: %w", userID, err)
	}
	return nil
}

func (s *credentialService) UpdateTokens(ctx context.Context, id int64, encryptedAccess, encryptedRefresh string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fortnox_credentials
		SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = now()
		WHERE id = $4`,
		encryptedAccess, encryptedRefresh, expiresAt, id,
	)
	if err != nil {
		return fmt.Errorf("persist rotated tokens for credential %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %d not found", id)
	}
	return nil
}

func (s *credentialService) CodeFingerprintUsed(ctx context.Context, fingerprint string) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM fortnox_credentials WHERE code_fingerprint = $1)`,
		fingerprint,
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check code fingerprint: %w", err)
	}
	return used, nil
}
