package web

import (
	"errors"
	"net/http"
	"net/url"

	"dealer-inventory/internal/core"
	"dealer-inventory/internal/fortnox"
)

// fortnoxConnect handles GET /api/integration/fortnox/connect — starts the OAuth
// handshake and returns the Fortnox authorization URL for the frontend to open.
func (h *Handler) fortnoxConnect(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	authURL, err := h.svc.BeginFortnoxConnect(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	type response struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	writeJSON(w, response{AuthorizationURL: authURL})
}

// fortnoxCallback handles GET /api/integration/fortnox/callback. Fortnox sends
// the browser here, so the outcome is delivered as a redirect to the settings
// page rather than a JSON body.
func (h *Handler) fortnoxCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn().Str("provider_error", errCode).Msg("authorization denied at provider")
		redirectSettings(w, r, "fortnox_error", errCode)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		redirectSettings(w, r, "fortnox_error", "missing_parameters")
		return
	}

	status, err := h.svc.CompleteFortnoxConnect(r.Context(), code, state)
	if err != nil {
		h.logger.Warn().Err(err).Msg("fortnox connection failed")
		redirectSettings(w, r, "fortnox_error", callbackErrorCode(err))
		return
	}

	h.logger.Info().Str("company_name", status.CompanyName).Msg("fortnox connected")
	redirectSettings(w, r, "fortnox", "connected")
}

// fortnoxStatus handles GET /api/integration/fortnox/status.
func (h *Handler) fortnoxStatus(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	status, err := h.svc.FortnoxStatus(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status)
}

// fortnoxDisconnect handles POST /api/integration/fortnox/disconnect.
func (h *Handler) fortnoxDisconnect(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	if err := h.svc.DisconnectFortnox(r.Context(), claims.UserID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func redirectSettings(w http.ResponseWriter, r *http.Request, key, value string) {
	http.Redirect(w, r, "/settings/integration?"+url.Values{key: {value}}.Encode(), http.StatusSeeOther)
}

// callbackErrorCode flattens a completion failure to a short code the settings
// page can translate for the user. Token-endpoint rejections keep the provider's
// own code (invalid_grant, invalid_client, …) so the user sees what actually
// went wrong, not a generic failure.
func callbackErrorCode(err error) string {
	var mismatch *core.CompanyMismatchError
	var oauthErr *fortnox.OAuthError
	switch {
	case errors.Is(err, core.ErrStateInvalid):
		return "state_invalid"
	case errors.Is(err, core.ErrStateExpired):
		return "state_expired"
	case errors.Is(err, core.ErrCodeReused):
		return "code_reused"
	case errors.As(err, &mismatch):
		return "company_mismatch"
	case errors.As(err, &oauthErr):
		return oauthErr.Code
	default:
		return "connection_failed"
	}
}
