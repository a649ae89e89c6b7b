package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountMapping is an organization's chart-of-accounts mapping for vehicle
// bookkeeping. Organizations without a stored mapping fall back to
// DefaultAccounts.
type AccountMapping struct {
	MarginInventory         int    `json:"margin_inventory"`
	StandardInventory       int    `json:"standard_inventory"`
	ImportMarginInventory   int    `json:"import_margin_inventory"`
	ImportStandardInventory int    `json:"import_standard_inventory"`
	SupplierDebt            int    `json:"supplier_debt"`
	DownPayment             int    `json:"down_payment"`
	InputVAT                int    `json:"input_vat"`
	SupplierNumber          string `json:"supplier_number"` // fallback Fortnox supplier for private sellers
}

// DefaultAccounts is the documented BAS-chart fallback used when an organization
// has not configured its own mapping.
var DefaultAccounts = AccountMapping{
	MarginInventory:         1410,
	StandardInventory:       1420,
	ImportMarginInventory:   1411,
	ImportStandardInventory: 1421,
	SupplierDebt:            2440,
	DownPayment:             1680,
	InputVAT:                2641,
	SupplierNumber:          "1",
}

// AccountService resolves the account mapping for an organization.
type AccountService interface {
	ForOrganization(ctx context.Context, organizationID int) (AccountMapping, error)
}

type accountService struct {
	pool *pgxpool.Pool
}

// NewAccountService constructs an AccountService backed by PostgreSQL.
func NewAccountService(pool *pgxpool.Pool) AccountService {
	return &accountService{pool: pool}
}

func (s *accountService) ForOrganization(ctx context.Context, organizationID int) (AccountMapping, error) {
	m := AccountMapping{}
	err := s.pool.QueryRow(ctx, `
		SELECT margin_inventory, standard_inventory, import_margin_inventory, import_standard_inventory,
		       supplier_debt, down_payment, input_vat, supplier_number
		FROM account_mappings
		WHERE organization_id = $1`,
		organizationID,
	).Scan(
		&m.MarginInventory, &m.StandardInventory, &m.ImportMarginInventory, &m.ImportStandardInventory,
		&m.SupplierDebt, &m.DownPayment, &m.InputVAT, &m.SupplierNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultAccounts, nil
		}
		return AccountMapping{}, fmt.Errorf("load account mapping for org %d: %w", organizationID, err)
	}
	return m, nil
}
