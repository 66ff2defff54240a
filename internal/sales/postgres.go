package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// PgStore persists transactions in postgres. The checkout commit locks every
// touched stock row, validates all lines, then applies decrements and the
// snapshot insert inside one transaction.
type PgStore struct {
	Pool *pgxpool.Pool
}

// CommitCheckout implements Store.
func (s *PgStore) CommitCheckout(ctx context.Context, txn Transaction) (Transaction, error) {
	if s == nil || s.Pool == nil {
		return Transaction{}, errors.New("sales: store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Aggregate requested units per product: two tiers of the same product
	// compete for the same counter.
	requested := make(map[uuid.UUID]int32, len(txn.Items))
	names := make(map[uuid.UUID]Item, len(txn.Items))
	ids := make([]uuid.UUID, 0, len(txn.Items))
	for _, it := range txn.Items {
		if _, seen := requested[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
			names[it.ProductID] = it
		}
		requested[it.ProductID] += it.Qty
	}

	rows, err := tx.Query(ctx,
		`SELECT product_id, qty FROM branch_stocks
		 WHERE branch_id = $1 AND product_id = ANY($2)
		 FOR UPDATE`,
		txn.BranchID, ids,
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("sales: lock stock rows: %w", err)
	}
	available := make(map[uuid.UUID]int32, len(ids))
	for rows.Next() {
		var productID uuid.UUID
		var qty int32
		if err := rows.Scan(&productID, &qty); err != nil {
			rows.Close()
			return Transaction{}, err
		}
		available[productID] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Transaction{}, err
	}

	var oos OutOfStockError
	for _, id := range ids {
		if available[id] < requested[id] {
			ref := names[id]
			oos.Lines = append(oos.Lines, OutOfStockLine{
				ProductID: id,
				Code:      ref.Code,
				Name:      ref.Name,
				Requested: requested[id],
				Available: available[id],
			})
		}
	}
	if len(oos.Lines) > 0 {
		return Transaction{}, &oos
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`UPDATE branch_stocks SET qty = qty - $3, updated_at = now()
			 WHERE branch_id = $1 AND product_id = $2`,
			txn.BranchID, id, requested[id],
		); err != nil {
			return Transaction{}, fmt.Errorf("sales: decrement stock: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions
		  (id, number, branch_id, cashier_id, customer_name, customer_phone,
		   subtotal, discount, service_fee, total, tendered, change, payment_method, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		txn.ID, txn.Number, txn.BranchID, txn.CashierID, txn.CustomerName, txn.CustomerPhone,
		txn.Subtotal, txn.Discount, txn.ServiceFee, txn.Total, txn.Tendered, txn.Change,
		txn.PaymentMethod, txn.CreatedAt,
	); err != nil {
		return Transaction{}, fmt.Errorf("sales: insert transaction: %w", err)
	}
	for i, it := range txn.Items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO transaction_items
			  (transaction_id, position, product_id, code, name, tier, qty, unit_price, discount, subtotal)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			txn.ID, i, it.ProductID, it.Code, it.Name, it.Tier, it.Qty, it.UnitPrice, it.Discount, it.Subtotal,
		); err != nil {
			return Transaction{}, fmt.Errorf("sales: insert item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		// The commit outcome is unknown at this point; stock may have moved
		// without a visible record. Surface the fatal class for manual
		// reconciliation rather than guessing.
		return Transaction{}, fmt.Errorf("%w: commit checkout %s: %v", common.ErrPersistenceInconsistency, txn.Number, err)
	}
	return txn, nil
}

// GetByID implements Store.
func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

// GetByNumber implements Store.
func (s *PgStore) GetByNumber(ctx context.Context, number string) (Transaction, error) {
	return s.get(ctx, `WHERE number = $1`, number)
}

func (s *PgStore) get(ctx context.Context, where string, arg any) (Transaction, error) {
	if s == nil || s.Pool == nil {
		return Transaction{}, errors.New("sales: store not configured")
	}
	var txn Transaction
	err := s.Pool.QueryRow(ctx,
		`SELECT id, number, branch_id, cashier_id, customer_name, customer_phone,
		        subtotal, discount, service_fee, total, tendered, change, payment_method, created_at
		 FROM transactions `+where,
		arg,
	).Scan(
		&txn.ID, &txn.Number, &txn.BranchID, &txn.CashierID, &txn.CustomerName, &txn.CustomerPhone,
		&txn.Subtotal, &txn.Discount, &txn.ServiceFee, &txn.Total, &txn.Tendered, &txn.Change,
		&txn.PaymentMethod, &txn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	items, err := s.items(ctx, txn.ID)
	if err != nil {
		return Transaction{}, err
	}
	txn.Items = items
	return txn, nil
}

func (s *PgStore) items(ctx context.Context, transactionID uuid.UUID) ([]Item, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT product_id, code, name, tier, qty, unit_price, discount, subtotal
		 FROM transaction_items WHERE transaction_id = $1 ORDER BY position`,
		transactionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Code, &it.Name, &it.Tier, &it.Qty, &it.UnitPrice, &it.Discount, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListRecent implements Store. Items are not hydrated for list views.
func (s *PgStore) ListRecent(ctx context.Context, branchID uuid.UUID, limit int32) ([]Transaction, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("sales: store not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, number, branch_id, cashier_id, customer_name, customer_phone,
		        subtotal, discount, service_fee, total, tendered, change, payment_method, created_at
		 FROM transactions WHERE branch_id = $1 ORDER BY created_at DESC LIMIT $2`,
		branchID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var txn Transaction
		if err := rows.Scan(
			&txn.ID, &txn.Number, &txn.BranchID, &txn.CashierID, &txn.CustomerName, &txn.CustomerPhone,
			&txn.Subtotal, &txn.Discount, &txn.ServiceFee, &txn.Total, &txn.Tendered, &txn.Change,
			&txn.PaymentMethod, &txn.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
