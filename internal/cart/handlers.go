package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// Handler wires cart operations to HTTP. Every route requires an
// authenticated operator; carts are visible only to their creator.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

func (h *Handler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	if err := h.Validate.Struct(payload); err != nil {
		return common.NewAppError("BAD_REQUEST", err.Error(), http.StatusBadRequest, err)
	}
	return nil
}

// Create opens an empty cart for the acting cashier.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	op, ok := common.OperatorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator required", nil)
		return
	}
	c, err := h.Svc.Create(r.Context(), op.CashierID, op.BranchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": cartView(c)})
}

// Get returns the cart read model.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedCart(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(c)})
}

// AddItem adds one unit of the product at the requested tier.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedCart(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID string `json:"productId" validate:"required,uuid"`
		Tier      string `json:"tier" validate:"required,oneof=consumer counter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	updated, err := h.Svc.AddItem(r.Context(), c.ID, productID, payload.Tier)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(updated)})
}

// UpdateQuantity applies a signed quantity delta to one line.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedCart(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid line index", nil)
		return
	}
	var payload struct {
		Delta int32 `json:"delta" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.Svc.UpdateQuantity(r.Context(), c.ID, index, payload.Delta)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(updated)})
}

// RemoveItem drops one line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedCart(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid line index", nil)
		return
	}
	updated, err := h.Svc.RemoveItem(r.Context(), c.ID, index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(updated)})
}

// Update patches cart-level fields: discount, service fee, tendered amount,
// payment method and customer details.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedCart(w, r)
	if !ok {
		return
	}
	var payload struct {
		Discount      *int64  `json:"discount"`
		ServiceFee    *int64  `json:"serviceFee"`
		Tendered      *int64  `json:"tendered"`
		PaymentMethod *string `json:"paymentMethod" validate:"omitempty,oneof=cash qris transfer"`
		CustomerName  *string `json:"customerName"`
		CustomerPhone *string `json:"customerPhone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	patch := FieldPatch{
		PaymentMethod: payload.PaymentMethod,
		CustomerName:  payload.CustomerName,
		CustomerPhone: payload.CustomerPhone,
	}
	if payload.Discount != nil {
		v := pricing.Money(*payload.Discount)
		patch.Discount = &v
	}
	if payload.ServiceFee != nil {
		v := pricing.Money(*payload.ServiceFee)
		patch.ServiceFee = &v
	}
	if payload.Tendered != nil {
		v := pricing.Money(*payload.Tendered)
		patch.Tendered = &v
	}
	updated, err := h.Svc.Update(r.Context(), c.ID, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cartView(updated)})
}

// Discard deletes the in-progress cart.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	c, ok := h.ownedCart(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Discard(r.Context(), c.ID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ownedCart(w http.ResponseWriter, r *http.Request) (Cart, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return Cart{}, false
	}
	op, ok := common.OperatorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator required", nil)
		return Cart{}, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return Cart{}, false
	}
	c, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return Cart{}, false
	}
	if err := RequireOwnership(c, op.CashierID); err != nil {
		h.writeError(w, err)
		return Cart{}, false
	}
	return c, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	var insufficient *stock.InsufficientError
	switch {
	case errors.As(err, &insufficient):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), map[string]any{
			"productId": insufficient.ProductID.String(),
			"requested": insufficient.Requested,
		})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidTier):
		common.JSONError(w, http.StatusBadRequest, "INVALID_TIER", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}

func cartView(c Cart) map[string]any {
	lines := make([]map[string]any, 0, len(c.Lines))
	for i, ln := range c.Lines {
		lines = append(lines, map[string]any{
			"index":     i,
			"productId": ln.ProductID.String(),
			"code":      ln.Code,
			"name":      ln.Name,
			"tier":      string(ln.Tier),
			"qty":       ln.Qty,
			"unitPrice": ln.UnitPrice,
			"discount":  ln.Discount,
			"subtotal":  ln.Subtotal,
		})
	}
	return map[string]any{
		"id":            c.ID.String(),
		"branchId":      c.BranchID.String(),
		"lines":         lines,
		"customerName":  c.CustomerName,
		"customerPhone": c.CustomerPhone,
		"discount":      c.Discount,
		"serviceFee":    c.ServiceFee,
		"paymentMethod": c.PaymentMethod,
		"tendered":      c.Tendered,
		"subtotal":      c.Subtotal,
		"total":         c.Total,
		"change":        c.Change,
		"createdAt":     c.CreatedAt,
		"updatedAt":     c.UpdatedAt,
	}
}
