package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// Service encapsulates cart session operations. Every mutating operation
// either applies fully and is saved, or fails leaving the stored cart exactly
// as it was before the attempt.
type Service struct {
	Store   *Store
	Catalog catalog.Lookup
	Stock   stock.Guard
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create opens an empty cart for the acting cashier at their branch.
func (s *Service) Create(ctx context.Context, cashierID, branchID uuid.UUID) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart: service not configured")
	}
	c := New(cashierID, branchID, s.now())
	if err := s.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Get returns the cart read model for display.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart: service not configured")
	}
	return s.Store.Get(ctx, id)
}

// AddItem prices the product for the requested tier and adds one unit,
// merging into an existing line on a product+tier match.
func (s *Service) AddItem(ctx context.Context, cartID, productID uuid.UUID, tierTag string) (Cart, error) {
	if s == nil || s.Store == nil || s.Catalog == nil {
		return Cart{}, errors.New("cart: service not configured")
	}
	tier, err := pricing.ParseTier(tierTag)
	if err != nil {
		return Cart{}, err
	}
	c, err := s.Store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	product, err := s.Catalog.Product(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	available, err := s.Stock.Check(ctx, productID, c.BranchID, 1, c.QuantityOf(productID))
	if err != nil {
		return Cart{}, err
	}
	if err := c.AddItem(product, tier, available); err != nil {
		return Cart{}, err
	}
	c.UpdatedAt = s.now()
	if err := s.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// UpdateQuantity applies a delta to the line at index. A result of zero or
// below removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, cartID uuid.UUID, index int, delta int32) (Cart, error) {
	if s == nil || s.Store == nil || s.Catalog == nil {
		return Cart{}, errors.New("cart: service not configured")
	}
	c, err := s.Store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if index < 0 || index >= len(c.Lines) {
		return Cart{}, ErrLineNotFound
	}
	productID := c.Lines[index].ProductID
	available, err := s.Stock.Check(ctx, productID, c.BranchID, delta, c.QuantityOf(productID))
	if err != nil {
		return Cart{}, err
	}
	if err := c.UpdateQuantity(index, delta, available); err != nil {
		return Cart{}, err
	}
	c.UpdatedAt = s.now()
	if err := s.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// RemoveItem drops the line at index unconditionally.
func (s *Service) RemoveItem(ctx context.Context, cartID uuid.UUID, index int) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart: service not configured")
	}
	c, err := s.Store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if err := c.RemoveItem(index); err != nil {
		return Cart{}, err
	}
	c.UpdatedAt = s.now()
	if err := s.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// FieldPatch carries optional field edits; nil members are left untouched.
type FieldPatch struct {
	Discount      *pricing.Money
	ServiceFee    *pricing.Money
	Tendered      *pricing.Money
	PaymentMethod *string
	CustomerName  *string
	CustomerPhone *string
}

// Update applies field setters. Validation failures leave the stored cart
// unchanged.
func (s *Service) Update(ctx context.Context, cartID uuid.UUID, patch FieldPatch) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart: service not configured")
	}
	c, err := s.Store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if patch.Discount != nil {
		if err := c.SetDiscount(*patch.Discount); err != nil {
			return Cart{}, err
		}
	}
	if patch.ServiceFee != nil {
		if err := c.SetServiceFee(*patch.ServiceFee); err != nil {
			return Cart{}, err
		}
	}
	if patch.Tendered != nil {
		if err := c.SetTendered(*patch.Tendered); err != nil {
			return Cart{}, err
		}
	}
	if patch.PaymentMethod != nil {
		c.SetPaymentMethod(*patch.PaymentMethod)
	}
	if patch.CustomerName != nil || patch.CustomerPhone != nil {
		name := c.CustomerName
		phone := c.CustomerPhone
		if patch.CustomerName != nil {
			name = *patch.CustomerName
		}
		if patch.CustomerPhone != nil {
			phone = *patch.CustomerPhone
		}
		c.SetCustomer(name, phone)
	}
	c.UpdatedAt = s.now()
	if err := s.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Discard drops the in-progress cart session.
func (s *Service) Discard(ctx context.Context, cartID uuid.UUID) error {
	if s == nil || s.Store == nil {
		return errors.New("cart: service not configured")
	}
	if _, err := s.Store.Get(ctx, cartID); err != nil {
		return err
	}
	return s.Store.Delete(ctx, cartID)
}

// RequireOwnership rejects access to a cart created by another operator.
func RequireOwnership(c Cart, cashierID uuid.UUID) error {
	if c.CashierID != cashierID {
		return fmt.Errorf("cart: %w", ErrNotFound)
	}
	return nil
}
