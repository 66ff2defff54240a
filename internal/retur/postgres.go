package retur

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// PgStore persists return requests in postgres. Approval locks the request
// row and every touched stock row inside one transaction, so a request can be
// decided exactly once and stock moves all-or-nothing.
type PgStore struct {
	Pool *pgxpool.Pool
}

// Create inserts a pending request with its items and replacements.
func (s *PgStore) Create(ctx context.Context, r Request) error {
	if s == nil || s.Pool == nil {
		return errors.New("retur: store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO return_requests
		 (id, branch_id, cashier_id, mode, source_transaction_id, return_type, reason,
		  returned_value, replacement_value, net_settlement, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.BranchID, r.CashierID, string(r.Mode), r.SourceTransactionID, string(r.Type), r.Reason,
		int64(r.ReturnedValue), int64(r.ReplacementValue), int64(r.NetSettlement), string(r.Status), r.CreatedAt, r.UpdatedAt,
	); err != nil {
		return fmt.Errorf("retur: insert request: %w", err)
	}
	for i, it := range r.Items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO return_items
			 (request_id, position, product_id, source_line, code, name, qty, unit_price, purchased_qty, condition, note)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.ID, i, it.ProductID, it.SourceLine, it.Code, it.Name, it.Qty, int64(it.UnitPrice), it.PurchasedQty, string(it.Condition), it.Note,
		); err != nil {
			return fmt.Errorf("retur: insert item: %w", err)
		}
	}
	for i, it := range r.Replacements {
		if _, err := tx.Exec(ctx,
			`INSERT INTO replacement_items
			 (request_id, position, product_id, code, name, tier, qty, unit_price, stock_seen)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, i, it.ProductID, it.Code, it.Name, string(it.Tier), it.Qty, int64(it.UnitPrice), it.StockSeen,
		); err != nil {
			return fmt.Errorf("retur: insert replacement: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("retur: commit create: %w", err)
	}
	return nil
}

// Get loads one request with its items and replacements.
func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	if s == nil || s.Pool == nil {
		return Request{}, errors.New("retur: store not configured")
	}
	r, err := scanRequest(s.Pool.QueryRow(ctx, selectRequest+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	if r.Items, err = s.items(ctx, id); err != nil {
		return Request{}, err
	}
	if r.Replacements, err = s.replacements(ctx, id); err != nil {
		return Request{}, err
	}
	return r, nil
}

// List returns recent requests for a branch, newest first, without item
// hydration.
func (s *PgStore) List(ctx context.Context, branchID uuid.UUID, limit int32) ([]Request, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("retur: store not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, selectRequest+` WHERE branch_id = $1 ORDER BY created_at DESC LIMIT $2`, branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("retur: list requests: %w", err)
	}
	defer rows.Close()
	out := []Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Approve transitions pending → approved and applies the stock effects:
// good-condition returned items go back to sellable stock, replacement items
// are decremented against live stock. Insufficient replacement stock aborts
// the whole approval and the request stays pending.
func (s *PgStore) Approve(ctx context.Context, id, decidedBy uuid.UUID, decidedAt time.Time) (Request, error) {
	if s == nil || s.Pool == nil {
		return Request{}, errors.New("retur: store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	r, err := s.lockPending(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	if r.Items, err = s.items(ctx, id); err != nil {
		return Request{}, err
	}
	if r.Replacements, err = s.replacements(ctx, id); err != nil {
		return Request{}, err
	}

	// Restock first: a same-product exchange may consume units the return
	// itself just brought back.
	for _, it := range r.Items {
		if it.Condition != ConditionGood || it.ProductID == nil {
			continue
		}
		if err := stock.Increment(ctx, tx, *it.ProductID, r.BranchID, it.Qty); err != nil {
			return Request{}, err
		}
	}

	if len(r.Replacements) > 0 {
		if err := s.consumeReplacements(ctx, tx, r); err != nil {
			return Request{}, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE return_requests
		 SET status = 'approved', decided_by = $2, decided_at = $3, updated_at = $3
		 WHERE id = $1`,
		id, decidedBy, decidedAt,
	); err != nil {
		return Request{}, fmt.Errorf("retur: approve: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		// Outcome unknown: stock may or may not have moved with the status.
		return Request{}, fmt.Errorf("retur: commit approval of %s: %w: %w", id, common.ErrPersistenceInconsistency, err)
	}
	r.Status = StatusApproved
	r.DecidedBy = &decidedBy
	r.DecidedAt = &decidedAt
	r.UpdatedAt = decidedAt
	return r, nil
}

// Reject transitions pending → rejected. No stock effects.
func (s *PgStore) Reject(ctx context.Context, id, decidedBy uuid.UUID, decidedAt time.Time) (Request, error) {
	if s == nil || s.Pool == nil {
		return Request{}, errors.New("retur: store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	r, err := s.lockPending(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE return_requests
		 SET status = 'rejected', decided_by = $2, decided_at = $3, updated_at = $3
		 WHERE id = $1`,
		id, decidedBy, decidedAt,
	); err != nil {
		return Request{}, fmt.Errorf("retur: reject: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("retur: commit rejection of %s: %w: %w", id, common.ErrPersistenceInconsistency, err)
	}
	r.Status = StatusRejected
	r.DecidedBy = &decidedBy
	r.DecidedAt = &decidedAt
	r.UpdatedAt = decidedAt
	return r, nil
}

// Delete removes a request while it is still pending. Items and replacements
// go with it via cascade.
func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return errors.New("retur: store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := s.lockPending(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM return_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("retur: delete: %w", err)
	}
	return tx.Commit(ctx)
}

// lockPending locks the request row and verifies it is still undecided.
func (s *PgStore) lockPending(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Request, error) {
	row := tx.QueryRow(ctx, selectRequest+` WHERE id = $1 FOR UPDATE`, id)
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	if r.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: already %s", ErrInvalidStateTransition, r.Status)
	}
	return r, nil
}

// consumeReplacements locks the replacement stock rows, validates every line
// against them and applies the decrements. All failing lines are reported
// together.
func (s *PgStore) consumeReplacements(ctx context.Context, tx pgx.Tx, r Request) error {
	requested := make(map[uuid.UUID]int32, len(r.Replacements))
	names := make(map[uuid.UUID]ReplacementItem, len(r.Replacements))
	ids := make([]uuid.UUID, 0, len(r.Replacements))
	for _, it := range r.Replacements {
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
		r.BranchID, ids,
	)
	if err != nil {
		return fmt.Errorf("retur: lock stock rows: %w", err)
	}
	available := make(map[uuid.UUID]int32, len(ids))
	for rows.Next() {
		var productID uuid.UUID
		var qty int32
		if err := rows.Scan(&productID, &qty); err != nil {
			rows.Close()
			return err
		}
		available[productID] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var oos sales.OutOfStockError
	for _, id := range ids {
		if available[id] < requested[id] {
			ref := names[id]
			oos.Lines = append(oos.Lines, sales.OutOfStockLine{
				ProductID: id,
				Code:      ref.Code,
				Name:      ref.Name,
				Requested: requested[id],
				Available: available[id],
			})
		}
	}
	if len(oos.Lines) > 0 {
		return &oos
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`UPDATE branch_stocks SET qty = qty - $3, updated_at = now()
			 WHERE branch_id = $1 AND product_id = $2`,
			r.BranchID, id, requested[id],
		); err != nil {
			return fmt.Errorf("retur: decrement stock: %w", err)
		}
	}
	return nil
}

const selectRequest = `SELECT id, branch_id, cashier_id, mode, source_transaction_id, return_type, reason,
 returned_value, replacement_value, net_settlement, status, created_at, updated_at, decided_by, decided_at
 FROM return_requests`

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	var mode, typ, status string
	var returned, replacement, net int64
	if err := row.Scan(
		&r.ID, &r.BranchID, &r.CashierID, &mode, &r.SourceTransactionID, &typ, &r.Reason,
		&returned, &replacement, &net, &status, &r.CreatedAt, &r.UpdatedAt, &r.DecidedBy, &r.DecidedAt,
	); err != nil {
		return Request{}, err
	}
	r.Mode = Mode(mode)
	r.Type = Type(typ)
	r.Status = Status(status)
	r.ReturnedValue = pricing.Money(returned)
	r.ReplacementValue = pricing.Money(replacement)
	r.NetSettlement = pricing.Money(net)
	return r, nil
}

func (s *PgStore) items(ctx context.Context, id uuid.UUID) ([]ReturnItem, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT product_id, source_line, code, name, qty, unit_price, purchased_qty, condition, note
		 FROM return_items WHERE request_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("retur: load items: %w", err)
	}
	defer rows.Close()
	out := []ReturnItem{}
	for rows.Next() {
		var it ReturnItem
		var price int64
		var condition string
		if err := rows.Scan(&it.ProductID, &it.SourceLine, &it.Code, &it.Name, &it.Qty, &price, &it.PurchasedQty, &condition, &it.Note); err != nil {
			return nil, err
		}
		it.UnitPrice = pricing.Money(price)
		it.Condition = Condition(condition)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PgStore) replacements(ctx context.Context, id uuid.UUID) ([]ReplacementItem, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT product_id, code, name, tier, qty, unit_price, stock_seen
		 FROM replacement_items WHERE request_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("retur: load replacements: %w", err)
	}
	defer rows.Close()
	out := []ReplacementItem{}
	for rows.Next() {
		var it ReplacementItem
		var price int64
		var tier string
		if err := rows.Scan(&it.ProductID, &it.Code, &it.Name, &tier, &it.Qty, &price, &it.StockSeen); err != nil {
			return nil, err
		}
		it.UnitPrice = pricing.Money(price)
		it.Tier = pricing.Tier(tier)
		out = append(out, it)
	}
	return out, rows.Err()
}
