package retur

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
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// Handler wires return drafting and lifecycle decisions to HTTP. Drafts are
// session documents owned by their creator; decisions operate on persisted
// pending requests.
type Handler struct {
	Builder  *Builder
	Approval *Approval
	Store    Store
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

// StartDraft opens a return draft in linked or manual mode.
func (h *Handler) StartDraft(w http.ResponseWriter, r *http.Request) {
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	var payload struct {
		Mode                string `json:"mode" validate:"required,oneof=linked manual"`
		SourceTransactionID string `json:"sourceTransactionId" validate:"omitempty,uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	var (
		draft Request
		err   error
	)
	switch Mode(payload.Mode) {
	case ModeLinked:
		if payload.SourceTransactionID == "" {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "linked mode needs a source transaction id", nil)
			return
		}
		sourceID, parseErr := uuid.Parse(payload.SourceTransactionID)
		if parseErr != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid source transaction id", nil)
			return
		}
		draft, err = h.Builder.StartLinked(r.Context(), op.CashierID, op.BranchID, sourceID)
	case ModeManual:
		draft, err = h.Builder.StartManual(r.Context(), op.CashierID, op.BranchID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": draft})
}

// GetDraft returns the draft read model.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": draft})
}

// AddItem appends a return line: linked drafts draw from the source
// transaction, manual drafts carry free-form entries.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	var payload struct {
		SourceLine *int   `json:"sourceLine"`
		Qty        int32  `json:"qty"`
		Name       string `json:"name"`
		UnitPrice  int64  `json:"unitPrice"`
		Condition  string `json:"condition" validate:"required,oneof=good damaged"`
		Note       string `json:"note"`
		ProductID  string `json:"productId" validate:"omitempty,uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	var (
		updated Request
		err     error
	)
	if draft.Mode == ModeLinked {
		if payload.SourceLine == nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "linked item needs a source line", nil)
			return
		}
		qty := payload.Qty
		if qty == 0 {
			qty = 1
		}
		updated, err = h.Builder.AddLinkedItem(r.Context(), draft.ID, *payload.SourceLine, qty, payload.Condition, payload.Note)
	} else {
		input := ManualItemInput{
			Name:      payload.Name,
			UnitPrice: pricing.Money(payload.UnitPrice),
			Qty:       payload.Qty,
			Condition: payload.Condition,
			Note:      payload.Note,
		}
		if payload.ProductID != "" {
			ref, parseErr := uuid.Parse(payload.ProductID)
			if parseErr != nil {
				common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
				return
			}
			input.ProductID = &ref
		}
		updated, err = h.Builder.AddManualItem(r.Context(), draft.ID, input)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// UpdateItem applies a signed quantity delta to a return line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
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
	updated, err := h.Builder.UpdateItemQty(r.Context(), draft.ID, index, payload.Delta)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// RemoveItem drops a return line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	updated, err := h.Builder.RemoveItem(r.Context(), draft.ID, index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// UpdateDraft patches draft-level fields: return type and reason.
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	var payload struct {
		Type   *string `json:"type" validate:"omitempty,oneof=refund exchange"`
		Reason *string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	updated := draft
	var err error
	if payload.Type != nil {
		if updated, err = h.Builder.SetType(r.Context(), draft.ID, *payload.Type); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if payload.Reason != nil {
		if updated, err = h.Builder.SetReason(r.Context(), draft.ID, *payload.Reason); err != nil {
			h.writeError(w, err)
			return
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// AddReplacement adds one unit of a replacement product.
func (h *Handler) AddReplacement(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
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
	updated, err := h.Builder.AddReplacement(r.Context(), draft.ID, productID, payload.Tier)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// UpdateReplacement applies a signed quantity delta to a replacement line.
func (h *Handler) UpdateReplacement(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
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
	updated, err := h.Builder.UpdateReplacementQty(r.Context(), draft.ID, index, payload.Delta)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// RemoveReplacement drops a replacement line.
func (h *Handler) RemoveReplacement(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	updated, err := h.Builder.RemoveReplacement(r.Context(), draft.ID, index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// SubmitDraft validates and persists the draft as a pending request. When the
// customer owes a positive difference, confirmSettlement must be true.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	var payload struct {
		ConfirmSettlement bool `json:"confirmSettlement"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	submitted, err := h.Builder.Submit(r.Context(), draft.ID, payload.ConfirmSettlement)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": submitted})
}

// DiscardDraft deletes the in-progress draft.
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}
	if err := h.Builder.Discard(r.Context(), draft.ID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns recent requests for the operator's branch.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "return store not configured", nil)
		return
	}
	op, ok := h.operator(w, r)
	if !ok {
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
	requests, err := h.Store.List(r.Context(), op.BranchID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": requests, "meta": map[string]any{"limit": limit}})
}

// Get returns one persisted request with items and replacements.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "return store not configured", nil)
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": req})
}

// Approve decides pending → approved and applies the stock side effects.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// Reject decides pending → rejected.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

// Delete removes a still-pending request.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Approval == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "approval service not configured", nil)
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	if err := h.Approval.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	if h.Approval == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "approval service not configured", nil)
		return
	}
	op, ok := h.operator(w, r)
	if !ok {
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var (
		decided Request
		err     error
	)
	if approve {
		decided, err = h.Approval.Approve(r.Context(), id, op.CashierID)
	} else {
		decided, err = h.Approval.Reject(r.Context(), id, op.CashierID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": decided})
}

func (h *Handler) operator(w http.ResponseWriter, r *http.Request) (common.Operator, bool) {
	op, ok := common.OperatorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator required", nil)
		return common.Operator{}, false
	}
	return op, true
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid return id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid line index", nil)
		return 0, false
	}
	return index, true
}

func (h *Handler) ownedDraft(w http.ResponseWriter, r *http.Request) (Request, bool) {
	if h.Builder == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "return builder not configured", nil)
		return Request{}, false
	}
	op, ok := h.operator(w, r)
	if !ok {
		return Request{}, false
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return Request{}, false
	}
	draft, err := h.Builder.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return Request{}, false
	}
	if err := RequireOwnership(draft, op.CashierID); err != nil {
		h.writeError(w, err)
		return Request{}, false
	}
	return draft, true
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
	var oos *sales.OutOfStockError
	var insufficient *stock.InsufficientError
	switch {
	case errors.As(err, &oos):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), map[string]any{"lines": oos.Lines})
	case errors.As(err, &insufficient):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), map[string]any{
			"productId": insufficient.ProductID.String(),
			"requested": insufficient.Requested,
		})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, sales.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrExceedsPurchased):
		common.JSONError(w, http.StatusUnprocessableEntity, "EXCEEDS_PURCHASED_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrEmptyItemSet):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_ITEM_SET", err.Error(), nil)
	case errors.Is(err, ErrMissingReason):
		common.JSONError(w, http.StatusUnprocessableEntity, "MISSING_REASON", err.Error(), nil)
	case errors.Is(err, ErrMissingName):
		common.JSONError(w, http.StatusUnprocessableEntity, "MISSING_NAME", err.Error(), nil)
	case errors.Is(err, ErrReplacementRequired), errors.Is(err, ErrReplacementNotAllowed):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_REPLACEMENTS", err.Error(), nil)
	case errors.Is(err, ErrSettlementUnconfirmed):
		common.JSONError(w, http.StatusUnprocessableEntity, "SETTLEMENT_UNCONFIRMED", err.Error(), nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrInvalidStateTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidTier):
		common.JSONError(w, http.StatusBadRequest, "INVALID_TIER", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", err.Error(), nil)
	case errors.Is(err, common.ErrPersistenceInconsistency):
		common.JSONError(w, http.StatusInternalServerError, "PERSISTENCE_INCONSISTENCY", "commit outcome unknown, flagged for reconciliation", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}
