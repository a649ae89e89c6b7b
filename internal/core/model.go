package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Organization is a dealership tenant. RegistrationNumber is the Swedish
// organisation number the connected Fortnox company must match.
type Organization struct {
	ID                 int       `json:"id"`
	Name               string    `json:"name"`
	RegistrationNumber string    `json:"registration_number"`
	CreatedAt          time.Time `json:"created_at"`
}

// SyncStatus tracks whether an inventory record has been booked externally.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// VATTreatment selects how a purchase is booked. The four variants map to
// distinct inventory accounts and VAT row handling; choosing the wrong one is a
// caller error and is reported, never corrected silently.
type VATTreatment string

const (
	MarginDomestic   VATTreatment = "VMB"   // margin scheme, domestic purchase
	StandardDomestic VATTreatment = "MOMS"  // standard VAT, domestic purchase
	MarginImport     VATTreatment = "VMBI"  // margin scheme, EU/import purchase
	StandardImport   VATTreatment = "MOMSI" // standard VAT, EU/import purchase
)

// Credential is a stored Fortnox connection for one user. Tokens are encrypted
// at rest; at most one credential per user is active at any time.
type Credential struct {
	ID              int64
	UserID          int
	OrganizationID  int
	AccessToken     string // encrypted
	RefreshToken    string // encrypted
	ExpiresAt       time.Time
	CompanyNumber   string // organisation number of the connected Fortnox company
	CompanyName     string
	Active          bool
	CodeFingerprint string // SHA-256 of the authorization code that created this credential
	CodeUsedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuthorizationState is the ephemeral CSRF nonce for one connection attempt.
// Single-use; rejected after stateTTL even if unconsumed.
type AuthorizationState struct {
	Token      string
	UserID     int
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// Vehicle is the inventory record the engine books externally. Only the fields
// the sync engine reads or writes are modeled; the CRUD screens own the rest.
type Vehicle struct {
	ID                 int
	OrganizationID     int
	RegistrationNumber string
	Brand              string
	Model              string
	PurchasePrice      decimal.Decimal
	DownPayment        decimal.Decimal
	VATTreatment       VATTreatment
	SupplierNumber     *string // Fortnox supplier code of the seller, if registered
	ReceiptURL         *string // stored purchase documentation, if uploaded

	SyncStatus    SyncStatus
	ProjectNumber *string
	InvoiceNumber *string
	VoucherSeries *string
	VoucherNumber *int
	SyncedAt      *time.Time
	SyncedBy      *int
}

// VehicleCost is an additional cost line (reconditioning, transport, …) booked
// as its own supplier invoice against the vehicle's project.
type VehicleCost struct {
	ID            int
	VehicleID     int
	Description   string
	Amount        decimal.Decimal
	VATTreatment  VATTreatment
	SyncStatus    SyncStatus
	InvoiceNumber *string
	SyncedAt      *time.Time
	SyncedBy      *int
}

// VoucherCorrection links an original voucher to its posted reversal. Rows are
// written once by the correction generator and never mutated.
type VoucherCorrection struct {
	ID               int64
	VehicleID        *int
	OriginalSeries   string
	OriginalNumber   int
	CorrectionSeries string
	CorrectionNumber int
	CorrectedAt      time.Time
}

// SyncResult is what a sync attempt reports back to the caller.
type SyncResult struct {
	Status        SyncStatus `json:"status"`
	AlreadySynced bool       `json:"already_synced,omitempty"`
	ProjectNumber string     `json:"project_number,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	VoucherSeries string     `json:"voucher_series,omitempty"`
	VoucherNumber int        `json:"voucher_number,omitempty"`
}
