package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// ErrNotFound indicates the requested product does not exist.
var ErrNotFound = errors.New("catalog: product not found")

// Product is the read model the engines consume. The core never maintains the
// catalog; it only reads current prices and stock counts.
type Product struct {
	ID            uuid.UUID     `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	ConsumerPrice pricing.Money `json:"consumerPrice"`
	CounterPrice  pricing.Money `json:"counterPrice"`
}

// PriceCard exposes the tier-dependent prices for the pricing resolver.
func (p Product) PriceCard() pricing.PriceCard {
	return pricing.PriceCard{Consumer: p.ConsumerPrice, Counter: p.CounterPrice}
}

// Lookup provides current catalog data keyed by product and branch.
type Lookup interface {
	Product(ctx context.Context, id uuid.UUID) (Product, error)
	BranchStock(ctx context.Context, productID, branchID uuid.UUID) (int32, error)
}
