package core

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dealer-inventory/internal/fortnox"
	"dealer-inventory/internal/vault"
)

type fakeRefresher struct {
	calls       int
	gotRefresh  string
	resp        *fortnox.TokenResponse
	err         error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*fortnox.TokenResponse, error) {
	f.calls++
	f.gotRefresh = refreshToken
	return f.resp, f.err
}

type fakeCredStore struct {
	updatedID      int64
	updatedAccess  string
	updatedRefresh string
	updatedExpiry  time.Time
	updateErr      error
}

func (f *fakeCredStore) ActiveForUser(ctx context.Context, userID int) (*Credential, error) {
	return nil, ErrNoActiveIntegration
}
func (f *fakeCredStore) ActiveForOrganization(ctx context.Context, organizationID int) (*Credential, error) {
	return nil, ErrNoActiveIntegration
}
func (f *fakeCredStore) DeactivateForUser(ctx context.Context, userID int) error { return nil }
func (f *fakeCredStore) CodeFingerprintUsed(ctx context.Context, fingerprint string) (bool, error) {
	return false, nil
}
func (f *fakeCredStore) UpdateTokens(ctx context.Context, id int64, access, refresh string, expiresAt time.Time) error {
	f.updatedID = id
	f.updatedAccess = access
	f.updatedRefresh = refresh
	f.updatedExpiry = expiresAt
	return f.updateErr
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

func encryptedCredential(t *testing.T, v *vault.Vault, expiresAt time.Time) *Credential {
	t.Helper()
	access, err := v.Encrypt("access-current")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	refresh, err := v.Encrypt("refresh-current")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return &Credential{ID: 9, AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}
}

func newTestTokenService(refresher *fakeRefresher, store *fakeCredStore, v *vault.Vault, now time.Time) *tokenService {
	return &tokenService{
		oauth:  refresher,
		vault:  v,
		creds:  store,
		logger: zerolog.Nop(),
		now:    func() time.Time { return now },
	}
}

func TestValidAccessToken_NoRefreshOutsideBuffer(t *testing.T) {
	v := testVault(t)
	now := time.Now()
	refresher := &fakeRefresher{}
	svc := newTestTokenService(refresher, &fakeCredStore{}, v, now)

	cred := encryptedCredential(t, v, now.Add(time.Hour))
	got, err := svc.ValidAccessToken(context.Background(), cred)
	if err != nil {
		t.Fatalf("ValidAccessToken: %v", err)
	}
	if got != "access-current" {
		t.Errorf("token = %q, want stored token", got)
	}
	if refresher.calls != 0 {
		t.Errorf("refresh calls = %d, want 0 for token expiring in 1h", refresher.calls)
	}
}

func TestValidAccessToken_RefreshInsideBuffer(t *testing.T) {
	v := testVault(t)
	now := time.Now()
	refresher := &fakeRefresher{resp: &fortnox.TokenResponse{
		AccessToken:  "access-rotated",
		RefreshToken: "refresh-rotated",
		ExpiresIn:    3600,
	}}
	store := &fakeCredStore{}
	svc := newTestTokenService(refresher, store, v, now)

	cred := encryptedCredential(t, v, now.Add(2*time.Minute))
	got, err := svc.ValidAccessToken(context.Background(), cred)
	if err != nil {
		t.Fatalf("ValidAccessToken: %v", err)
	}
	if got != "access-rotated" {
		t.Errorf("token = %q, want rotated token", got)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresh calls = %d, want 1 for token expiring in 2m", refresher.calls)
	}
	if refresher.gotRefresh != "refresh-current" {
		t.Errorf("refresh grant used %q, want decrypted stored refresh token", refresher.gotRefresh)
	}

	// Rotation is persisted encrypted, never as plaintext.
	if store.updatedID != 9 {
		t.Errorf("persisted credential id = %d", store.updatedID)
	}
	if plain, _ := v.Decrypt(store.updatedAccess); plain != "access-rotated" {
		t.Errorf("persisted access token decrypts to %q", plain)
	}
	if plain, _ := v.Decrypt(store.updatedRefresh); plain != "refresh-rotated" {
		t.Errorf("persisted refresh token decrypts to %q", plain)
	}
	if want := now.Add(time.Hour); !store.updatedExpiry.Equal(want) {
		t.Errorf("persisted expiry = %v, want %v", store.updatedExpiry, want)
	}
	if cred.ExpiresAt != store.updatedExpiry {
		t.Errorf("in-memory credential expiry not updated")
	}
}

func TestValidAccessToken_AlreadyExpired(t *testing.T) {
	v := testVault(t)
	now := time.Now()
	refresher := &fakeRefresher{resp: &fortnox.TokenResponse{AccessToken: "fresh", RefreshToken: "r2", ExpiresIn: 3600}}
	svc := newTestTokenService(refresher, &fakeCredStore{}, v, now)

	cred := encryptedCredential(t, v, now.Add(-time.Minute))
	if _, err := svc.ValidAccessToken(context.Background(), cred); err != nil {
		t.Fatalf("ValidAccessToken: %v", err)
	}
	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.calls)
	}
}

func TestValidAccessToken_RefreshRejectedMeansReauth(t *testing.T) {
	v := testVault(t)
	now := time.Now()
	refresher := &fakeRefresher{err: &fortnox.OAuthError{Code: "invalid_grant", Description: "token revoked"}}
	svc := newTestTokenService(refresher, &fakeCredStore{}, v, now)

	cred := encryptedCredential(t, v, now.Add(time.Minute))
	_, err := svc.ValidAccessToken(context.Background(), cred)
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
}

func TestValidAccessToken_TransientRefreshErrorStaysTransient(t *testing.T) {
	v := testVault(t)
	now := time.Now()
	refresher := &fakeRefresher{err: errors.New("connection reset")}
	svc := newTestTokenService(refresher, &fakeCredStore{}, v, now)

	cred := encryptedCredential(t, v, now.Add(time.Minute))
	_, err := svc.ValidAccessToken(context.Background(), cred)
	if err == nil || errors.Is(err, ErrReauthRequired) {
		t.Fatalf("network failure must not demand reauthentication, got %v", err)
	}
}

func TestValidAccessToken_MissingRotatedRefreshTokenReusesOld(t *testing.T) {
	v := testVault(t)
	now := time.Now()
	refresher := &fakeRefresher{resp: &fortnox.TokenResponse{AccessToken: "access-rotated", ExpiresIn: 3600}}
	store := &fakeCredStore{}
	svc := newTestTokenService(refresher, store, v, now)

	cred := encryptedCredential(t, v, now.Add(time.Minute))
	if _, err := svc.ValidAccessToken(context.Background(), cred); err != nil {
		t.Fatalf("ValidAccessToken: %v", err)
	}
	if plain, _ := v.Decrypt(store.updatedRefresh); plain != "refresh-current" {
		t.Errorf("persisted refresh token decrypts to %q, want the prior one", plain)
	}
}

func TestValidAccessToken_LegacyPlaintextCredential(t *testing.T) {
	v := testVault(t)
	now := time.Now()
	refresher := &fakeRefresher{}
	svc := newTestTokenService(refresher, &fakeCredStore{}, v, now)

	// Pre-migration row: tokens stored as plaintext.
	cred := &Credential{ID: 4, AccessToken: "legacy-access-token", RefreshToken: "legacy-refresh-token", ExpiresAt: now.Add(time.Hour)}
	got, err := svc.ValidAccessToken(context.Background(), cred)
	if err != nil {
		t.Fatalf("ValidAccessToken: %v", err)
	}
	if got != "legacy-access-token" {
		t.Errorf("token = %q, want legacy plaintext passthrough", got)
	}
}
