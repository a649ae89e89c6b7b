package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"dealer-inventory/internal/fortnox"
)

// VoucherAPI is the slice of the Fortnox client the correction generator uses.
type VoucherAPI interface {
	GetVoucher(ctx context.Context, accessToken, series string, number int) (*fortnox.Voucher, error)
	CreateVoucher(ctx context.Context, accessToken string, v fortnox.Voucher) (*fortnox.Voucher, error)
	UploadInboxFile(ctx context.Context, accessToken, filename string, content []byte) (*fortnox.InboxFile, error)
	ConnectFileToVoucher(ctx context.Context, accessToken, fileID, series string, number int) error
}

// CorrectionService reverses a previously posted voucher by mirroring its rows.
// It runs before a synced inventory record is deleted locally, so deleting local
// state never leaves an unreversed posting in the external ledger.
type CorrectionService interface {
	ReverseVoucher(ctx context.Context, actorUserID, vehicleID int, series string, number int) (*VoucherCorrection, error)
}

type correctionService struct {
	pool   *pgxpool.Pool
	api    VoucherAPI
	creds  CredentialService
	tokens TokenService
	logger zerolog.Logger
	fetch  func(ctx context.Context, url string) ([]byte, error)
}

// NewCorrectionService constructs a CorrectionService.
func NewCorrectionService(pool *pgxpool.Pool, api VoucherAPI, creds CredentialService, tokens TokenService, logger zerolog.Logger) CorrectionService {
	return &correctionService{
		pool:   pool,
		api:    api,
		creds:  creds,
		tokens: tokens,
		logger: logger.With().Str("component", "correction").Logger(),
		fetch:  fetchDocument,
	}
}

// mirrorVoucher builds the reversal: same accounts, debit and credit swapped,
// dated the given day and annotated as a cancellation of the original.
func mirrorVoucher(original *fortnox.Voucher, date time.Time) fortnox.Voucher {
	mirror := fortnox.Voucher{
		VoucherSeries:   original.VoucherSeries,
		TransactionDate: date.Format("2006-01-02"),
		Description:     fmt.Sprintf("Reversal of voucher %s %d", original.VoucherSeries, original.VoucherNumber),
	}
	for _, row := range original.VoucherRows {
		mirror.VoucherRows = append(mirror.VoucherRows, fortnox.VoucherRow{
			Account: row.Account,
			Debit:   row.Credit,
			Credit:  row.Debit,
		})
	}
	return mirror
}

func (s *correctionService) ReverseVoucher(ctx context.Context, actorUserID, vehicleID int, series string, number int) (*VoucherCorrection, error) {
	orgID, err := userOrganizationID(ctx, s.pool, actorUserID)
	if err != nil {
		return nil, err
	}

	// The referenced vehicle must belong to the actor's organization; otherwise a
	// foreign vehicle id would leak another tenant's receipt into our inbox.
	if vehicleID > 0 {
		var vehicleOrg int
		err := s.pool.QueryRow(ctx,
			`SELECT organization_id FROM vehicles WHERE id = $1`,
			vehicleID,
		).Scan(&vehicleOrg)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("vehicle %d not found", vehicleID)
			}
			return nil, fmt.Errorf("load vehicle %d: %w", vehicleID, err)
		}
		if vehicleOrg != orgID {
			s.logger.Warn().
				Int("user_id", actorUserID).
				Int("vehicle_id", vehicleID).
				Msg("cross-organization reversal rejected")
			return nil, ErrCrossOrganization
		}
	}

	var reversed bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM voucher_corrections
			WHERE organization_id = $1 AND original_series = $2 AND original_number = $3
		)`,
		orgID, series, number,
	).Scan(&reversed)
	if err != nil {
		return nil, fmt.Errorf("check reversal status for %s %d: %w", series, number, err)
	}
	if reversed {
		return nil, ErrAlreadyReversed
	}

	cred, err := s.creds.ActiveForOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.tokens.ValidAccessToken(ctx, cred)
	if err != nil {
		return nil, err
	}

	original, err := s.api.GetVoucher(ctx, accessToken, series, number)
	if err != nil {
		return nil, fmt.Errorf("fetch voucher %s %d: %w", series, number, err)
	}
	original.VoucherSeries = series
	original.VoucherNumber = number

	posted, err := s.api.CreateVoucher(ctx, accessToken, mirrorVoucher(original, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("post correction voucher for %s %d: %w", series, number, err)
	}

	correction := &VoucherCorrection{
		OriginalSeries:   series,
		OriginalNumber:   number,
		CorrectionSeries: posted.VoucherSeries,
		CorrectionNumber: posted.VoucherNumber,
	}
	if vehicleID > 0 {
		correction.VehicleID = &vehicleID
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO voucher_corrections
			(organization_id, vehicle_id, original_series, original_number, correction_series, correction_number, corrected_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, corrected_at`,
		orgID, correction.VehicleID, series, number, correction.CorrectionSeries, correction.CorrectionNumber,
	).Scan(&correction.ID, &correction.CorrectedAt)
	if err != nil {
		return nil, fmt.Errorf("record voucher correction: %w", err)
	}

	// Re-attaching the purchase documentation is best effort: the reversal stands
	// whether or not the attachment succeeds.
	s.attachReceipt(ctx, accessToken, vehicleID, correction)

	s.logger.Info().
		Str("original", fmt.Sprintf("%s %d", series, number)).
		Str("correction", fmt.Sprintf("%s %d", correction.CorrectionSeries, correction.CorrectionNumber)).
		Msg("voucher reversed")
	return correction, nil
}

func (s *correctionService) attachReceipt(ctx context.Context, accessToken string, vehicleID int, correction *VoucherCorrection) {
	if vehicleID <= 0 {
		return
	}
	var receiptURL *string
	err := s.pool.QueryRow(ctx,
		`SELECT receipt_url FROM vehicles WHERE id = $1`,
		vehicleID,
	).Scan(&receiptURL)
	if err != nil || receiptURL == nil || *receiptURL == "" {
		return
	}

	content, err := s.fetch(ctx, *receiptURL)
	if err != nil {
		s.logger.Warn().Err(err).Int("vehicle_id", vehicleID).Msg("download receipt for reattachment failed")
		return
	}
	file, err := s.api.UploadInboxFile(ctx, accessToken, receiptFilename(*receiptURL), content)
	if err != nil {
		s.logger.Warn().Err(err).Int("vehicle_id", vehicleID).Msg("upload receipt failed")
		return
	}
	if err := s.api.ConnectFileToVoucher(ctx, accessToken, file.ID, correction.CorrectionSeries, correction.CorrectionNumber); err != nil {
		s.logger.Warn().Err(err).Int("vehicle_id", vehicleID).Msg("connect receipt to correction voucher failed")
	}
}

func receiptFilename(url string) string {
	if name := path.Base(url); name != "." && name != "/" {
		return name
	}
	return "receipt.pdf"
}

func fetchDocument(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download document: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
