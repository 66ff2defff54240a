package sales

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler exposes the transaction read model: receipt lookup by number and a
// recent-sales listing scoped to the operator's branch.
type Handler struct {
	Store Store
}

// GetByNumber returns a single transaction with its item snapshot.
func (h *Handler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sales store not configured", nil)
		return
	}
	number := chi.URLParam(r, "number")
	txn, err := h.Store.GetByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "transaction not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load transaction", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": txn})
}

// ListRecent returns the latest transactions for the operator's branch,
// newest first, without item hydration.
func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sales store not configured", nil)
		return
	}
	op, ok := common.OperatorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator required", nil)
		return
	}
	limit := int32(20)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 || parsed > 100 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 100", nil)
			return
		}
		limit = int32(parsed)
	}
	txns, err := h.Store.ListRecent(r.Context(), op.BranchID, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list transactions", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": txns, "meta": map[string]any{"limit": limit}})
}
