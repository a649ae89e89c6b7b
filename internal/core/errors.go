package core

import (
	"errors"
	"fmt"
)

// The error taxonomy of the sync engine. Authentication errors are fatal to the
// current attempt and require the user to restart the flow; ErrReauthRequired is
// recoverable only by the user reconnecting the integration. None of these may
// be downgraded to a silent retry.
var (
	// ErrStateInvalid covers an unknown or already-consumed authorization state.
	ErrStateInvalid = errors.New("authorization state is invalid or already used")

	// ErrStateExpired means the state outlived its TTL before the callback arrived.
	ErrStateExpired = errors.New("authorization state has expired, please restart the connection")

	// ErrCodeReused means the authorization code was already exchanged for a
	// credential. Deliberately distinct from the state errors.
	ErrCodeReused = errors.New("authorization code has already been used")

	// ErrReauthRequired means the provider rejected our refresh token; the stored
	// connection is dead and the user must reconnect.
	ErrReauthRequired = errors.New("fortnox connection is no longer valid, please reconnect")

	// ErrNoActiveIntegration means no user in the organization has an active
	// Fortnox connection.
	ErrNoActiveIntegration = errors.New("no active fortnox connection for this organization")

	// ErrCrossOrganization means the caller tried to sync a record owned by a
	// different organization.
	ErrCrossOrganization = errors.New("record belongs to a different organization")

	// ErrSaleSyncNotSupported marks the sale flow as an unimplemented extension
	// point: sales are booked manually for now.
	ErrSaleSyncNotSupported = errors.New("sale synchronization is not automated, book the sale manually")

	// ErrAlreadyReversed rejects a second reversal of the same voucher.
	ErrAlreadyReversed = errors.New("voucher has already been reversed")
)

// CompanyMismatchError is raised when the connected Fortnox company's
// organisation number does not match the caller's own organization. The
// connection attempt is aborted and nothing is persisted.
type CompanyMismatchError struct {
	CompanyNumber      string // normalized number reported by Fortnox
	OrganizationNumber string // normalized number of the caller's organization
}

func (e *CompanyMismatchError) Error() string {
	return fmt.Sprintf("connected fortnox company (%s) does not belong to your organization (%s)",
		e.CompanyNumber, e.OrganizationNumber)
}

// UnknownTreatmentError reports a VAT treatment tag outside the dispatch table.
type UnknownTreatmentError struct {
	Treatment VATTreatment
}

func (e *UnknownTreatmentError) Error() string {
	return fmt.Sprintf("unknown VAT treatment %q", e.Treatment)
}
