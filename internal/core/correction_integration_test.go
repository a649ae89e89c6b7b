package core_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"dealer-inventory/internal/core"
	"dealer-inventory/internal/fortnox"
	"dealer-inventory/internal/vault"
)

func setupCorrectionTestDB(t *testing.T) (*pgxpool.Pool, *vault.Vault) {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	v, err := vault.New(bytes.Repeat([]byte{42}, 32))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	encAccess, _ := v.Encrypt("access-plain")
	encRefresh, _ := v.Encrypt("refresh-plain")

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE error_logs, sync_logs, voucher_corrections, vehicle_costs, vehicles,
			account_mappings, fortnox_credentials, oauth_states, users, organizations CASCADE;

		INSERT INTO organizations (id, name, registration_number) VALUES
		(1, 'Bilhandlarn i Solna AB', '556000-1111'),
		(2, 'Andra Bilar AB', '556222-3333');

		INSERT INTO users (id, organization_id, username, email, password_hash) VALUES
		(1, 1, 'anna', 'anna@example.com', 'x'),
		(2, 2, 'bertil', 'bertil@example.com', 'x');

		INSERT INTO vehicles
			(id, organization_id, registration_number, brand, model, purchase_price, vat_treatment,
			 sync_status, fortnox_voucher_series, fortnox_voucher_number)
		VALUES (10, 1, 'ABC123', 'Volvo', 'V70', 150000, 'VMB', 'synced', 'A', 417);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO fortnox_credentials
			(user_id, organization_id, access_token, refresh_token, expires_at,
			 company_number, company_name, active, code_fingerprint)
		VALUES (1, 1, $1, $2, now() + interval '1 hour', '5560001111', 'Bilhandlarn i Solna AB', true, 'fp-seed')`,
		encAccess, encRefresh)
	if err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}

	return pool, v
}

type fakeVoucherAPI struct {
	original        fortnox.Voucher
	postedVouchers  []fortnox.Voucher
	uploadedFiles   []string
	connectedFileID string
}

func (f *fakeVoucherAPI) GetVoucher(ctx context.Context, accessToken, series string, number int) (*fortnox.Voucher, error) {
	v := f.original
	return &v, nil
}

func (f *fakeVoucherAPI) CreateVoucher(ctx context.Context, accessToken string, v fortnox.Voucher) (*fortnox.Voucher, error) {
	f.postedVouchers = append(f.postedVouchers, v)
	created := v
	created.VoucherNumber = 900 + len(f.postedVouchers)
	return &created, nil
}

func (f *fakeVoucherAPI) UploadInboxFile(ctx context.Context, accessToken, filename string, content []byte) (*fortnox.InboxFile, error) {
	f.uploadedFiles = append(f.uploadedFiles, filename)
	return &fortnox.InboxFile{ID: "file-1", Name: filename}, nil
}

func (f *fakeVoucherAPI) ConnectFileToVoucher(ctx context.Context, accessToken, fileID, series string, number int) error {
	f.connectedFileID = fileID
	return nil
}

func newCorrectionFixture(pool *pgxpool.Pool, v *vault.Vault, api *fakeVoucherAPI) core.CorrectionService {
	creds := core.NewCredentialService(pool)
	tokens := core.NewTokenService(failingRefresher{}, v, creds, zerolog.Nop())
	return core.NewCorrectionService(pool, api, creds, tokens, zerolog.Nop())
}

func TestReverseVoucher(t *testing.T) {
	pool, v := setupCorrectionTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	api := &fakeVoucherAPI{original: fortnox.Voucher{
		VoucherSeries:   "A",
		TransactionDate: "2026-02-10",
		Description:     "Purchase ABC123 Volvo V70",
		VoucherRows: []fortnox.VoucherRow{
			{Account: 1410, Debit: 150000},
			{Account: 2440, Credit: 150000},
		},
	}}
	svc := newCorrectionFixture(pool, v, api)

	correction, err := svc.ReverseVoucher(ctx, 1, 10, "A", 417)
	if err != nil {
		t.Fatalf("ReverseVoucher: %v", err)
	}
	if correction.OriginalSeries != "A" || correction.OriginalNumber != 417 {
		t.Errorf("correction original = %+v", correction)
	}
	if correction.CorrectionSeries != "A" || correction.CorrectionNumber != 901 {
		t.Errorf("correction posting = %+v", correction)
	}

	if len(api.postedVouchers) != 1 {
		t.Fatalf("vouchers posted = %d, want 1", len(api.postedVouchers))
	}
	mirror := api.postedVouchers[0]
	if len(mirror.VoucherRows) != 2 {
		t.Fatalf("mirror rows = %d, want 2", len(mirror.VoucherRows))
	}
	if mirror.VoucherRows[0].Account != 1410 || mirror.VoucherRows[0].Credit != 150000 {
		t.Errorf("mirror row 0 = %+v, want debit turned into credit", mirror.VoucherRows[0])
	}
	if mirror.VoucherRows[1].Account != 2440 || mirror.VoucherRows[1].Debit != 150000 {
		t.Errorf("mirror row 1 = %+v, want credit turned into debit", mirror.VoucherRows[1])
	}

	var count int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM voucher_corrections
		WHERE organization_id = 1 AND original_series = 'A' AND original_number = 417`,
	).Scan(&count); err != nil {
		t.Fatalf("Failed to count corrections: %v", err)
	}
	if count != 1 {
		t.Errorf("voucher_corrections rows = %d, want 1", count)
	}
}

func TestReverseVoucher_DoubleReversalRejected(t *testing.T) {
	pool, v := setupCorrectionTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	api := &fakeVoucherAPI{original: fortnox.Voucher{
		VoucherSeries: "A",
		VoucherRows:   []fortnox.VoucherRow{{Account: 1410, Debit: 1000}, {Account: 2440, Credit: 1000}},
	}}
	svc := newCorrectionFixture(pool, v, api)

	if _, err := svc.ReverseVoucher(ctx, 1, 10, "A", 417); err != nil {
		t.Fatalf("First reversal failed: %v", err)
	}
	_, err := svc.ReverseVoucher(ctx, 1, 10, "A", 417)
	if !errors.Is(err, core.ErrAlreadyReversed) {
		t.Fatalf("expected ErrAlreadyReversed, got %v", err)
	}
	if len(api.postedVouchers) != 1 {
		t.Errorf("vouchers posted = %d, want 1 (no double posting)", len(api.postedVouchers))
	}
}

func TestReverseVoucher_CrossOrganizationRejected(t *testing.T) {
	pool, v := setupCorrectionTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		"UPDATE vehicles SET receipt_url = 'https://files.example.com/receipts/abc123.pdf' WHERE id = 10")
	if err != nil {
		t.Fatalf("Failed to set receipt url: %v", err)
	}

	api := &fakeVoucherAPI{original: fortnox.Voucher{
		VoucherSeries: "A",
		VoucherRows:   []fortnox.VoucherRow{{Account: 1410, Debit: 1000}, {Account: 2440, Credit: 1000}},
	}}
	svc := newCorrectionFixture(pool, v, api)

	// User 2 belongs to another dealership; vehicle 10 is org 1's.
	_, err = svc.ReverseVoucher(ctx, 2, 10, "A", 417)
	if !errors.Is(err, core.ErrCrossOrganization) {
		t.Fatalf("expected ErrCrossOrganization, got %v", err)
	}
	if len(api.postedVouchers) != 0 {
		t.Error("voucher posted for cross-organization request")
	}
	if len(api.uploadedFiles) != 0 {
		t.Error("foreign vehicle's receipt uploaded")
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM voucher_corrections").Scan(&count); err != nil {
		t.Fatalf("Failed to count corrections: %v", err)
	}
	if count != 0 {
		t.Error("correction row recorded for cross-organization request")
	}
}

func TestReverseVoucher_AttachesReceipt(t *testing.T) {
	pool, v := setupCorrectionTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		"UPDATE vehicles SET receipt_url = 'https://files.example.com/receipts/abc123.pdf' WHERE id = 10")
	if err != nil {
		t.Fatalf("Failed to set receipt url: %v", err)
	}

	api := &fakeVoucherAPI{original: fortnox.Voucher{
		VoucherSeries: "A",
		VoucherRows:   []fortnox.VoucherRow{{Account: 1410, Debit: 1000}, {Account: 2440, Credit: 1000}},
	}}
	svc := newCorrectionFixture(pool, v, api)

	// Serve the receipt from memory instead of the network.
	core.SetDocumentFetcher(svc, func(ctx context.Context, url string) ([]byte, error) {
		return []byte("%PDF-1.4 receipt"), nil
	})

	if _, err := svc.ReverseVoucher(ctx, 1, 10, "A", 417); err != nil {
		t.Fatalf("ReverseVoucher: %v", err)
	}
	if len(api.uploadedFiles) != 1 || api.uploadedFiles[0] != "abc123.pdf" {
		t.Errorf("uploaded files = %v, want the receipt", api.uploadedFiles)
	}
	if api.connectedFileID != "file-1" {
		t.Errorf("connected file id = %q", api.connectedFileID)
	}
}
