package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DecrementBounded applies a conditional decrement inside the caller's
// transaction. The quantity predicate makes the read-check and write one
// indivisible statement: a concurrent checkout racing for the same counter
// cannot drive it negative.
func DecrementBounded(ctx context.Context, tx pgx.Tx, productID, branchID uuid.UUID, qty int32) error {
	if qty <= 0 {
		return nil
	}
	tag, err := tx.Exec(ctx,
		`UPDATE branch_stocks
		 SET qty = qty - $3, updated_at = now()
		 WHERE product_id = $1 AND branch_id = $2 AND qty >= $3`,
		productID, branchID, qty,
	)
	if err != nil {
		return fmt.Errorf("stock: decrement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &InsufficientError{ProductID: productID, BranchID: branchID, Requested: qty}
	}
	return nil
}

// Increment restores units to a branch counter, creating the row when the
// branch has never stocked the product.
func Increment(ctx context.Context, tx pgx.Tx, productID, branchID uuid.UUID, qty int32) error {
	if qty <= 0 {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO branch_stocks (product_id, branch_id, qty, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (product_id, branch_id)
		 DO UPDATE SET qty = branch_stocks.qty + EXCLUDED.qty, updated_at = now()`,
		productID, branchID, qty,
	)
	if err != nil {
		return fmt.Errorf("stock: increment: %w", err)
	}
	return nil
}
