package app

import (
	"context"

	"dealer-inventory/internal/core"
)

// UserSession is the authenticated identity handed to the web adapter.
type UserSession struct {
	UserID         int    `json:"user_id"`
	OrganizationID int    `json:"organization_id"`
	Username       string `json:"username"`
	Role           string `json:"role"`
}

// IntegrationStatus describes the organization's Fortnox connection as shown in
// the settings screen.
type IntegrationStatus struct {
	Connected     bool   `json:"connected"`
	CompanyName   string `json:"company_name,omitempty"`
	CompanyNumber string `json:"company_number,omitempty"`
	ConnectedAt   string `json:"connected_at,omitempty"`
}

// ApplicationService is the single interface the web adapter calls. It decouples
// presentation from business logic; implementations contain no HTTP concerns.
type ApplicationService interface {
	// AuthenticateUser verifies credentials and returns a session on success.
	AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error)

	// GetUser returns a user profile by ID.
	GetUser(ctx context.Context, userID int) (*core.User, error)

	// BeginFortnoxConnect starts the OAuth handshake and returns the provider
	// authorization URL the browser should be sent to.
	BeginFortnoxConnect(ctx context.Context, userID int) (string, error)

	// CompleteFortnoxConnect finishes the handshake from the provider callback.
	CompleteFortnoxConnect(ctx context.Context, code, state string) (*IntegrationStatus, error)

	// FortnoxStatus reports whether the user's organization has an active connection.
	FortnoxStatus(ctx context.Context, userID int) (*IntegrationStatus, error)

	// DisconnectFortnox deactivates the user's stored Fortnox credentials.
	DisconnectFortnox(ctx context.Context, userID int) error

	// SyncVehiclePurchase books a vehicle purchase in Fortnox.
	SyncVehiclePurchase(ctx context.Context, vehicleID, userID int) (*core.SyncResult, error)

	// SyncVehicleCost books an additional vehicle cost in Fortnox.
	SyncVehicleCost(ctx context.Context, costID, userID int) (*core.SyncResult, error)

	// SyncVehicleSale books a vehicle sale. Currently always returns
	// core.ErrSaleSyncNotSupported; sales are booked manually.
	SyncVehicleSale(ctx context.Context, vehicleID, userID int) (*core.SyncResult, error)

	// ReverseVehicleVoucher posts a mirrored correction voucher for a previously
	// synced posting.
	ReverseVehicleVoucher(ctx context.Context, userID, vehicleID int, series string, number int) (*core.VoucherCorrection, error)
}
