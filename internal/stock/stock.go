package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
)

// ErrInsufficient indicates a requested quantity exceeds the live stock count.
var ErrInsufficient = errors.New("stock: insufficient")

// InsufficientError identifies the offending product/branch pair so callers can
// point the operator at the exact line.
type InsufficientError struct {
	ProductID uuid.UUID
	BranchID  uuid.UUID
	Requested int32
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("stock: insufficient for product %s at branch %s (requested %d)", e.ProductID, e.BranchID, e.Requested)
}

// Unwrap lets errors.Is match ErrInsufficient.
func (e *InsufficientError) Unwrap() error { return ErrInsufficient }

// Guard confirms availability against the authoritative stock count before a
// quantity change is accepted into a cart or replacement set. The check is
// advisory: the binding check happens inside the commit transaction.
type Guard struct {
	Lookup catalog.Lookup
}

// Check validates that requested units, on top of what the cart already holds
// for this product, fit within the branch's current stock. It returns the
// observed count so callers can record it as the display bound. Non-positive
// requests fetch the count without enforcing the bound.
func (g Guard) Check(ctx context.Context, productID, branchID uuid.UUID, requested, inCart int32) (int32, error) {
	if g.Lookup == nil {
		return 0, errors.New("stock: lookup not configured")
	}
	available, err := g.Lookup.BranchStock(ctx, productID, branchID)
	if err != nil {
		return 0, err
	}
	if requested > 0 && requested+inCart > available {
		return available, &InsufficientError{ProductID: productID, BranchID: branchID, Requested: requested + inCart}
	}
	return available, nil
}
