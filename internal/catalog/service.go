package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service reads catalog data from postgres, with product records cached in
// Redis. Stock counts are deliberately never cached: the engines must see live
// values.
type Service struct {
	Pool  *pgxpool.Pool
	Cache *Cache
}

// Product returns the catalog record for the given product id.
func (s *Service) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	if s == nil || s.Pool == nil {
		return Product{}, errors.New("catalog: service not configured")
	}
	key := "catalog:product:" + id.String()
	var cached Product
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	var p Product
	err := s.Pool.QueryRow(ctx,
		`SELECT id, code, name, consumer_price, counter_price FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Code, &p.Name, &p.ConsumerPrice, &p.CounterPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: load product: %w", err)
	}
	_ = s.Cache.SetJSON(ctx, key, p)
	return p, nil
}

// BranchStock returns the current stock count for a product at a branch. A
// missing row means the branch stocks none of the product.
func (s *Service) BranchStock(ctx context.Context, productID, branchID uuid.UUID) (int32, error) {
	if s == nil || s.Pool == nil {
		return 0, errors.New("catalog: service not configured")
	}
	var qty int32
	err := s.Pool.QueryRow(ctx,
		`SELECT qty FROM branch_stocks WHERE product_id = $1 AND branch_id = $2`,
		productID, branchID,
	).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("catalog: load stock: %w", err)
	}
	return qty, nil
}

// Static is an in-memory Lookup used by tests and the seeder.
type Static struct {
	Products map[uuid.UUID]Product
	Stocks   map[StockKey]int32
}

// StockKey identifies a per-branch stock counter.
type StockKey struct {
	ProductID uuid.UUID
	BranchID  uuid.UUID
}

// Product implements Lookup.
func (s *Static) Product(_ context.Context, id uuid.UUID) (Product, error) {
	if p, ok := s.Products[id]; ok {
		return p, nil
	}
	return Product{}, ErrNotFound
}

// BranchStock implements Lookup.
func (s *Static) BranchStock(_ context.Context, productID, branchID uuid.UUID) (int32, error) {
	return s.Stocks[StockKey{ProductID: productID, BranchID: branchID}], nil
}
