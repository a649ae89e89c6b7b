package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealer-inventory/internal/fortnox"
)

// BookkeepingAPI is the slice of the Fortnox client the synchronizer uses.
type BookkeepingAPI interface {
	CreateProject(ctx context.Context, accessToken string, p fortnox.Project) (*fortnox.Project, error)
	GetProject(ctx context.Context, accessToken, projectNumber string) (*fortnox.Project, error)
	CreateSupplierInvoice(ctx context.Context, accessToken string, inv fortnox.SupplierInvoice) (*fortnox.SupplierInvoice, error)
}

// SyncService turns one inventory-side fact into the matching Fortnox artifacts,
// exactly once in steady state. Every invocation is a single attempt: retry is an
// explicit user action, because accounting postings must never be duplicated
// silently.
type SyncService interface {
	// SyncPurchase books a vehicle purchase: project (where the VAT treatment
	// requires one) plus a balanced supplier invoice.
	SyncPurchase(ctx context.Context, vehicleID, actorUserID int) (*SyncResult, error)

	// SyncCost books an additional cost line against the vehicle's project.
	SyncCost(ctx context.Context, costID, actorUserID int) (*SyncResult, error)

	// SyncSale is an intentionally unimplemented extension point; sales are
	// booked manually and this always returns ErrSaleSyncNotSupported.
	SyncSale(ctx context.Context, vehicleID, actorUserID int) (*SyncResult, error)
}

// treatmentPlan is one row of the per-VAT-treatment dispatch table.
type treatmentPlan struct {
	needsProject     bool
	splitVAT         bool
	inventoryAccount func(AccountMapping) int
}

var treatmentPlans = map[VATTreatment]treatmentPlan{
	MarginDomestic: {
		needsProject:     true,
		splitVAT:         false,
		inventoryAccount: func(m AccountMapping) int { return m.MarginInventory },
	},
	StandardDomestic: {
		needsProject:     false,
		splitVAT:         true,
		inventoryAccount: func(m AccountMapping) int { return m.StandardInventory },
	},
	MarginImport: {
		needsProject:     true,
		splitVAT:         true,
		inventoryAccount: func(m AccountMapping) int { return m.ImportMarginInventory },
	},
	StandardImport: {
		needsProject:     true,
		splitVAT:         true,
		inventoryAccount: func(m AccountMapping) int { return m.ImportStandardInventory },
	},
}

// purchaseInvoiceRows builds the balanced debit/credit rows for one purchase.
// A down payment is posted as its own credit row against the prepayment account
// and reduces the supplier-debt credit accordingly.
func purchaseInvoiceRows(treatment VATTreatment, m AccountMapping, gross, downPayment decimal.Decimal, projectNumber string) ([]fortnox.SupplierInvoiceRow, error) {
	plan, ok := treatmentPlans[treatment]
	if !ok {
		return nil, &UnknownTreatmentError{Treatment: treatment}
	}

	var rows []fortnox.SupplierInvoiceRow
	if plan.splitVAT {
		net, vat := SplitGross(gross)
		rows = append(rows,
			fortnox.SupplierInvoiceRow{Account: plan.inventoryAccount(m), Debit: toAmount(net), Project: projectNumber},
			fortnox.SupplierInvoiceRow{Account: m.InputVAT, Debit: toAmount(vat)},
		)
	} else {
		rows = append(rows,
			fortnox.SupplierInvoiceRow{Account: plan.inventoryAccount(m), Debit: toAmount(gross), Project: projectNumber},
		)
	}

	debt := gross
	if downPayment.IsPositive() {
		rows = append(rows, fortnox.SupplierInvoiceRow{Account: m.DownPayment, Credit: toAmount(downPayment)})
		debt = gross.Sub(downPayment)
	}
	rows = append(rows, fortnox.SupplierInvoiceRow{Account: m.SupplierDebt, Credit: toAmount(debt)})
	return rows, nil
}

func toAmount(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

type syncService struct {
	pool     *pgxpool.Pool
	api      BookkeepingAPI
	creds    CredentialService
	tokens   TokenService
	accounts AccountService
	logger   zerolog.Logger
}

// NewSyncService constructs a SyncService.
func NewSyncService(pool *pgxpool.Pool, api BookkeepingAPI, creds CredentialService, tokens TokenService, accounts AccountService, logger zerolog.Logger) SyncService {
	return &syncService{
		pool:     pool,
		api:      api,
		creds:    creds,
		tokens:   tokens,
		accounts: accounts,
		logger:   logger.With().Str("component", "sync").Logger(),
	}
}

func (s *syncService) SyncPurchase(ctx context.Context, vehicleID, actorUserID int) (*SyncResult, error) {
	vehicle, err := s.loadVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	actorOrg, err := userOrganizationID(ctx, s.pool, actorUserID)
	if err != nil {
		return nil, err
	}
	if actorOrg != vehicle.OrganizationID {
		s.recordError(ctx, vehicle.OrganizationID, "authorization", ErrCrossOrganization, map[string]any{
			"vehicle_id": vehicleID, "user_id": actorUserID,
		})
		return nil, ErrCrossOrganization
	}

	// A successful sync is never overwritten. Report the stored numbers instead.
	if vehicle.SyncStatus == SyncSynced {
		return alreadySyncedResult(vehicle), nil
	}

	cred, err := s.creds.ActiveForOrganization(ctx, vehicle.OrganizationID)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.tokens.ValidAccessToken(ctx, cred)
	if err != nil {
		return nil, err
	}
	mapping, err := s.accounts.ForOrganization(ctx, vehicle.OrganizationID)
	if err != nil {
		return nil, err
	}

	plan, ok := treatmentPlans[vehicle.VATTreatment]
	if !ok {
		return nil, &UnknownTreatmentError{Treatment: vehicle.VATTreatment}
	}

	projectNumber := ""
	if plan.needsProject {
		projectNumber, err = s.resolveProject(ctx, accessToken, vehicle)
		if err != nil {
			s.failSync(ctx, vehicle, "project", err)
			return nil, err
		}
	}

	rows, err := purchaseInvoiceRows(vehicle.VATTreatment, mapping, vehicle.PurchasePrice, vehicle.DownPayment, projectNumber)
	if err != nil {
		return nil, err
	}

	invoice := fortnox.SupplierInvoice{
		SupplierNumber:      supplierNumber(vehicle.SupplierNumber, mapping),
		InvoiceDate:         time.Now().Format("2006-01-02"),
		Total:               toAmount(vehicle.PurchasePrice),
		Project:             projectNumber,
		Comments:            fmt.Sprintf("Purchase %s %s %s", vehicle.RegistrationNumber, vehicle.Brand, vehicle.Model),
		SupplierInvoiceRows: rows,
	}
	created, err := s.api.CreateSupplierInvoice(ctx, accessToken, invoice)
	if err != nil {
		s.failSync(ctx, vehicle, "supplier_invoice", err)
		return nil, fmt.Errorf("create supplier invoice for %s: %w", vehicle.RegistrationNumber, err)
	}

	result := &SyncResult{
		Status:        SyncSynced,
		ProjectNumber: projectNumber,
		InvoiceNumber: created.GivenNumber.String(),
		VoucherSeries: created.VoucherSeries,
		VoucherNumber: created.VoucherNumber,
	}
	if err := s.markVehicleSynced(ctx, vehicle, actorUserID, result); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("vehicle_id", vehicle.ID).
		Str("registration_number", vehicle.RegistrationNumber).
		Str("invoice_number", result.InvoiceNumber).
		Msg("purchase synced")
	return result, nil
}

func (s *syncService) SyncCost(ctx context.Context, costID, actorUserID int) (*SyncResult, error) {
	cost, vehicle, err := s.loadCost(ctx, costID)
	if err != nil {
		return nil, err
	}

	actorOrg, err := userOrganizationID(ctx, s.pool, actorUserID)
	if err != nil {
		return nil, err
	}
	if actorOrg != vehicle.OrganizationID {
		s.recordError(ctx, vehicle.OrganizationID, "authorization", ErrCrossOrganization, map[string]any{
			"cost_id": costID, "user_id": actorUserID,
		})
		return nil, ErrCrossOrganization
	}

	if cost.SyncStatus == SyncSynced {
		result := &SyncResult{Status: SyncSynced, AlreadySynced: true}
		if cost.InvoiceNumber != nil {
			result.InvoiceNumber = *cost.InvoiceNumber
		}
		return result, nil
	}

	cred, err := s.creds.ActiveForOrganization(ctx, vehicle.OrganizationID)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.tokens.ValidAccessToken(ctx, cred)
	if err != nil {
		return nil, err
	}
	mapping, err := s.accounts.ForOrganization(ctx, vehicle.OrganizationID)
	if err != nil {
		return nil, err
	}

	plan, ok := treatmentPlans[cost.VATTreatment]
	if !ok {
		return nil, &UnknownTreatmentError{Treatment: cost.VATTreatment}
	}

	// Costs reuse the vehicle's project so all spend on a car lands in one place.
	projectNumber := ""
	if plan.needsProject {
		projectNumber, err = s.resolveProject(ctx, accessToken, vehicle)
		if err != nil {
			s.failCostSync(ctx, cost, vehicle, "project", err)
			return nil, err
		}
	}

	rows, err := purchaseInvoiceRows(cost.VATTreatment, mapping, cost.Amount, decimal.Zero, projectNumber)
	if err != nil {
		return nil, err
	}

	invoice := fortnox.SupplierInvoice{
		SupplierNumber:      mapping.SupplierNumber,
		InvoiceDate:         time.Now().Format("2006-01-02"),
		Total:               toAmount(cost.Amount),
		Project:             projectNumber,
		Comments:            fmt.Sprintf("Cost %s: %s", vehicle.RegistrationNumber, cost.Description),
		SupplierInvoiceRows: rows,
	}
	created, err := s.api.CreateSupplierInvoice(ctx, accessToken, invoice)
	if err != nil {
		s.failCostSync(ctx, cost, vehicle, "supplier_invoice", err)
		return nil, fmt.Errorf("create supplier invoice for cost %d: %w", cost.ID, err)
	}

	invoiceNumber := created.GivenNumber.String()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE vehicle_costs
		SET sync_status = $1, fortnox_invoice_number = $2, synced_at = now(), synced_by = $3
		WHERE id = $4`,
		SyncSynced, invoiceNumber, actorUserID, cost.ID,
	); err != nil {
		return nil, fmt.Errorf("persist cost sync result: %w", err)
	}
	if err := s.writeSyncLog(ctx, tx, vehicle.OrganizationID, &vehicle.ID, &cost.ID, "cost", map[string]any{
		"invoice_number": invoiceNumber,
		"project_number": projectNumber,
		"amount":         cost.Amount.StringFixed(2),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cost sync result: %w", err)
	}

	s.logger.Info().Int("cost_id", cost.ID).Str("invoice_number", invoiceNumber).Msg("cost synced")
	return &SyncResult{Status: SyncSynced, ProjectNumber: projectNumber, InvoiceNumber: invoiceNumber}, nil
}

func (s *syncService) SyncSale(ctx context.Context, vehicleID, actorUserID int) (*SyncResult, error) {
	return nil, ErrSaleSyncNotSupported
}

// resolveProject returns the vehicle's Fortnox project number, creating the
// project if needed. A previously persisted number is reused as-is; a duplicate
// rejection from the provider resolves to the existing project — this is the
// idempotency path, not an error. The number is persisted immediately so a
// failed invoice step on retry reuses it.
func (s *syncService) resolveProject(ctx context.Context, accessToken string, vehicle *Vehicle) (string, error) {
	if vehicle.ProjectNumber != nil && *vehicle.ProjectNumber != "" {
		return *vehicle.ProjectNumber, nil
	}

	created, err := s.api.CreateProject(ctx, accessToken, fortnox.Project{
		ProjectNumber: vehicle.RegistrationNumber,
		Description:   fmt.Sprintf("%s %s %s", vehicle.RegistrationNumber, vehicle.Brand, vehicle.Model),
	})
	if err != nil {
		if !fortnox.IsDuplicate(err) {
			return "", fmt.Errorf("create project %s: %w", vehicle.RegistrationNumber, err)
		}
		existing, getErr := s.api.GetProject(ctx, accessToken, vehicle.RegistrationNumber)
		if getErr != nil {
			return "", fmt.Errorf("fetch existing project %s: %w", vehicle.RegistrationNumber, getErr)
		}
		created = existing
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE vehicles SET fortnox_project_number = $1 WHERE id = $2`,
		created.ProjectNumber, vehicle.ID,
	); err != nil {
		return "", fmt.Errorf("persist project number: %w", err)
	}
	vehicle.ProjectNumber = &created.ProjectNumber
	return created.ProjectNumber, nil
}

func (s *syncService) markVehicleSynced(ctx context.Context, vehicle *Vehicle, actorUserID int, result *SyncResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE vehicles
		SET sync_status = $1, fortnox_invoice_number = $2, fortnox_voucher_series = $3,
		    fortnox_voucher_number = $4, synced_at = now(), synced_by = $5
		WHERE id = $6`,
		SyncSynced, result.InvoiceNumber, nullIfEmpty(result.VoucherSeries), nullIfZero(result.VoucherNumber),
		actorUserID, vehicle.ID,
	); err != nil {
		return fmt.Errorf("persist sync result: %w", err)
	}
	if err := s.writeSyncLog(ctx, tx, vehicle.OrganizationID, &vehicle.ID, nil, "purchase", map[string]any{
		"invoice_number": result.InvoiceNumber,
		"project_number": result.ProjectNumber,
		"voucher_series": result.VoucherSeries,
		"voucher_number": result.VoucherNumber,
		"amount":         vehicle.PurchasePrice.StringFixed(2),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit sync result: %w", err)
	}
	return nil
}

// failSync records the structured error and marks the vehicle failed. A record
// that already reached synced keeps its status and numbers.
func (s *syncService) failSync(ctx context.Context, vehicle *Vehicle, step string, cause error) {
	s.recordError(ctx, vehicle.OrganizationID, step, cause, map[string]any{
		"vehicle_id":          vehicle.ID,
		"registration_number": vehicle.RegistrationNumber,
		"vat_treatment":       vehicle.VATTreatment,
		"amount":              vehicle.PurchasePrice.StringFixed(2),
	})
	if _, err := s.pool.Exec(ctx,
		`UPDATE vehicles SET sync_status = $1 WHERE id = $2 AND sync_status <> $3`,
		SyncFailed, vehicle.ID, SyncSynced,
	); err != nil {
		s.logger.Error().Err(err).Int("vehicle_id", vehicle.ID).Msg("mark vehicle failed")
	}
}

func (s *syncService) failCostSync(ctx context.Context, cost *VehicleCost, vehicle *Vehicle, step string, cause error) {
	s.recordError(ctx, vehicle.OrganizationID, step, cause, map[string]any{
		"cost_id":     cost.ID,
		"vehicle_id":  vehicle.ID,
		"description": cost.Description,
		"amount":      cost.Amount.StringFixed(2),
	})
	if _, err := s.pool.Exec(ctx,
		`UPDATE vehicle_costs SET sync_status = $1 WHERE id = $2 AND sync_status <> $3`,
		SyncFailed, cost.ID, SyncSynced,
	); err != nil {
		s.logger.Error().Err(err).Int("cost_id", cost.ID).Msg("mark cost failed")
	}
}

// recordError writes a structured error-log row for operator diagnosis. The
// logging itself must never break the caller's error path.
func (s *syncService) recordError(ctx context.Context, organizationID int, errType string, cause error, context map[string]any) {
	payload, err := json.Marshal(context)
	if err != nil {
		payload = []byte("{}")
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO error_logs (organization_id, type, message, context, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		organizationID, errType, cause.Error(), payload,
	); err != nil {
		s.logger.Error().Err(err).Msg("write error log")
	}
	s.logger.Error().Err(cause).Str("type", errType).RawJSON("context", payload).Msg("sync failed")
}

func (s *syncService) writeSyncLog(ctx context.Context, tx pgx.Tx, organizationID int, vehicleID, costID *int, syncType string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO sync_logs (organization_id, vehicle_id, cost_id, status, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		organizationID, vehicleID, costID, SyncSynced, syncType, raw,
	); err != nil {
		return fmt.Errorf("write sync log: %w", err)
	}
	return nil
}

func (s *syncService) loadVehicle(ctx context.Context, vehicleID int) (*Vehicle, error) {
	v := &Vehicle{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, registration_number, brand, model, purchase_price, down_payment,
		       vat_treatment, supplier_number, receipt_url, sync_status, fortnox_project_number,
		       fortnox_invoice_number, fortnox_voucher_series, fortnox_voucher_number, synced_at, synced_by
		FROM vehicles
		WHERE id = $1`,
		vehicleID,
	).Scan(
		&v.ID, &v.OrganizationID, &v.RegistrationNumber, &v.Brand, &v.Model, &v.PurchasePrice, &v.DownPayment,
		&v.VATTreatment, &v.SupplierNumber, &v.ReceiptURL, &v.SyncStatus, &v.ProjectNumber,
		&v.InvoiceNumber, &v.VoucherSeries, &v.VoucherNumber, &v.SyncedAt, &v.SyncedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vehicle %d not found", vehicleID)
		}
		return nil, fmt.Errorf("load vehicle %d: %w", vehicleID, err)
	}
	return v, nil
}

func (s *syncService) loadCost(ctx context.Context, costID int) (*VehicleCost, *Vehicle, error) {
	c := &VehicleCost{}
	var vehicleID int
	err := s.pool.QueryRow(ctx, `
		SELECT id, vehicle_id, description, amount, vat_treatment, sync_status,
		       fortnox_invoice_number, synced_at, synced_by
		FROM vehicle_costs
		WHERE id = $1`,
		costID,
	).Scan(
		&c.ID, &vehicleID, &c.Description, &c.Amount, &c.VATTreatment, &c.SyncStatus,
		&c.InvoiceNumber, &c.SyncedAt, &c.SyncedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("cost %d not found", costID)
		}
		return nil, nil, fmt.Errorf("load cost %d: %w", costID, err)
	}
	c.VehicleID = vehicleID

	vehicle, err := s.loadVehicle(ctx, vehicleID)
	if err != nil {
		return nil, nil, err
	}
	return c, vehicle, nil
}

// userOrganizationID resolves which organization a user belongs to.
func userOrganizationID(ctx context.Context, pool *pgxpool.Pool, userID int) (int, error) {
	var orgID int
	err := pool.QueryRow(ctx,
		`SELECT organization_id FROM users WHERE id = $1`,
		userID,
	).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user %d not found", userID)
		}
		return 0, fmt.Errorf("resolve organization for user %d: %w", userID, err)
	}
	return orgID, nil
}

func alreadySyncedResult(vehicle *Vehicle) *SyncResult {
	result := &SyncResult{Status: SyncSynced, AlreadySynced: true}
	if vehicle.ProjectNumber != nil {
		result.ProjectNumber = *vehicle.ProjectNumber
	}
	if vehicle.InvoiceNumber != nil {
		result.InvoiceNumber = *vehicle.InvoiceNumber
	}
	if vehicle.VoucherSeries != nil {
		result.VoucherSeries = *vehicle.VoucherSeries
	}
	if vehicle.VoucherNumber != nil {
		result.VoucherNumber = *vehicle.VoucherNumber
	}
	return result
}

func supplierNumber(vehicleSupplier *string, m AccountMapping) string {
	if vehicleSupplier != nil && *vehicleSupplier != "" {
		return *vehicleSupplier
	}
	return m.SupplierNumber
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
