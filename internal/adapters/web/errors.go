package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"dealer-inventory/internal/core"
	"dealer-inventory/internal/fortnox"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps core and provider errors onto the HTTP taxonomy.
// Provider failures are the upstream's fault and surface as 502 so the frontend
// can distinguish them from our own validation errors.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var mismatch *core.CompanyMismatchError
	var treatment *core.UnknownTreatmentError
	var oauthErr *fortnox.OAuthError
	var apiErr *fortnox.APIError

	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		writeError(w, r, "invalid username or password", "UNAUTHORIZED", http.StatusUnauthorized)
	case errors.Is(err, core.ErrStateInvalid):
		writeError(w, r, "authorization state is invalid or already used", "STATE_INVALID", http.StatusBadRequest)
	case errors.Is(err, core.ErrStateExpired):
		writeError(w, r, "authorization state has expired, restart the connection", "STATE_EXPIRED", http.StatusBadRequest)
	case errors.Is(err, core.ErrCodeReused):
		writeError(w, r, "authorization code was already used", "CODE_REUSED", http.StatusBadRequest)
	case errors.As(err, &mismatch):
		writeError(w, r, mismatch.Error(), "COMPANY_MISMATCH", http.StatusConflict)
	case errors.Is(err, core.ErrNoActiveIntegration):
		writeError(w, r, "no active Fortnox connection", "NO_INTEGRATION", http.StatusPreconditionFailed)
	case errors.Is(err, core.ErrReauthRequired):
		writeError(w, r, "Fortnox connection expired, reconnect required", "REAUTH_REQUIRED", http.StatusUnauthorized)
	case errors.Is(err, core.ErrCrossOrganization):
		writeError(w, r, "record belongs to another organization", "FORBIDDEN", http.StatusForbidden)
	case errors.Is(err, core.ErrSaleSyncNotSupported):
		writeError(w, r, "sale sync is not supported", "NOT_IMPLEMENTED", http.StatusNotImplemented)
	case errors.Is(err, core.ErrAlreadyReversed):
		writeError(w, r, "voucher is already reversed", "ALREADY_REVERSED", http.StatusConflict)
	case errors.As(err, &treatment):
		writeError(w, r, treatment.Error(), "UNKNOWN_VAT_TREATMENT", http.StatusUnprocessableEntity)
	case errors.As(err, &oauthErr), errors.As(err, &apiErr):
		writeError(w, r, err.Error(), "PROVIDER_ERROR", http.StatusBadGateway)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
