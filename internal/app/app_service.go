package app

import (
	"context"
	"errors"
	"time"

	"dealer-inventory/internal/core"
)

type appService struct {
	users       core.UserService
	creds       core.CredentialService
	handshake   core.HandshakeService
	sync        core.SyncService
	corrections core.CorrectionService
}

// NewApplicationService wires the core services into the facade the adapters use.
func NewApplicationService(
	users core.UserService,
	creds core.CredentialService,
	handshake core.HandshakeService,
	sync core.SyncService,
	corrections core.CorrectionService,
) ApplicationService {
	return &appService{
		users:       users,
		creds:       creds,
		handshake:   handshake,
		sync:        sync,
		corrections: corrections,
	}
}

func (s *appService) AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return &UserSession{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Username:       user.Username,
		Role:           user.Role,
	}, nil
}

func (s *appService) GetUser(ctx context.Context, userID int) (*core.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *appService) BeginFortnoxConnect(ctx context.Context, userID int) (string, error) {
	return s.handshake.BeginAuthorization(ctx, userID)
}

func (s *appService) CompleteFortnoxConnect(ctx context.Context, code, state string) (*IntegrationStatus, error) {
	cred, err := s.handshake.CompleteAuthorization(ctx, code, state)
	if err != nil {
		return nil, err
	}
	return credentialStatus(cred), nil
}

func (s *appService) FortnoxStatus(ctx context.Context, userID int) (*IntegrationStatus, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	cred, err := s.creds.ActiveForOrganization(ctx, user.OrganizationID)
	if err != nil {
		if errors.Is(err, core.ErrNoActiveIntegration) {
			return &IntegrationStatus{Connected: false}, nil
		}
		return nil, err
	}
	return credentialStatus(cred), nil
}

func (s *appService) DisconnectFortnox(ctx context.Context, userID int) error {
	return s.handshake.Disconnect(ctx, userID)
}

func (s *appService) SyncVehiclePurchase(ctx context.Context, vehicleID, userID int) (*core.SyncResult, error) {
	return s.sync.SyncPurchase(ctx, vehicleID, userID)
}

func (s *appService) SyncVehicleCost(ctx context.Context, costID, userID int) (*core.SyncResult, error) {
	return s.sync.SyncCost(ctx, costID, userID)
}

func (s *appService) SyncVehicleSale(ctx context.Context, vehicleID, userID int) (*core.SyncResult, error) {
	return s.sync.SyncSale(ctx, vehicleID, userID)
}

func (s *appService) ReverseVehicleVoucher(ctx context.Context, userID, vehicleID int, series string, number int) (*core.VoucherCorrection, error) {
	return s.corrections.ReverseVoucher(ctx, userID, vehicleID, series, number)
}

func credentialStatus(cred *core.Credential) *IntegrationStatus {
	return &IntegrationStatus{
		Connected:     true,
		CompanyName:   cred.CompanyName,
		CompanyNumber: cred.CompanyNumber,
		ConnectedAt:   cred.CreatedAt.Format(time.RFC3339),
	}
}
