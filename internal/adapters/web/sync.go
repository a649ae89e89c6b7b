package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// idParam parses the {id} URL parameter. Writes a 400 and returns false on junk.
func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid id", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// syncPurchase handles POST /api/vehicles/{id}/sync.
func (h *Handler) syncPurchase(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := idParam(w, r)
	if !ok {
		return
	}
	claims := authFromContext(r.Context())

	result, err := h.svc.SyncVehiclePurchase(r.Context(), vehicleID, claims.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// syncCost handles POST /api/costs/{id}/sync.
func (h *Handler) syncCost(w http.ResponseWriter, r *http.Request) {
	costID, ok := idParam(w, r)
	if !ok {
		return
	}
	claims := authFromContext(r.Context())

	result, err := h.svc.SyncVehicleCost(r.Context(), costID, claims.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// syncSale handles POST /api/vehicles/{id}/sync-sale.
func (h *Handler) syncSale(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := idParam(w, r)
	if !ok {
		return
	}
	claims := authFromContext(r.Context())

	result, err := h.svc.SyncVehicleSale(r.Context(), vehicleID, claims.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// reverseVoucher handles POST /api/vehicles/{id}/reverse.
func (h *Handler) reverseVoucher(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := idParam(w, r)
	if !ok {
		return
	}
	claims := authFromContext(r.Context())

	var req struct {
		VoucherSeries string `json:"voucher_series"`
		VoucherNumber int    `json:"voucher_number"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VoucherSeries == "" || req.VoucherNumber <= 0 {
		writeError(w, r, "voucher_series and voucher_number are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	correction, err := h.svc.ReverseVehicleVoucher(r.Context(), claims.UserID, vehicleID, req.VoucherSeries, req.VoucherNumber)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, correction)
}
