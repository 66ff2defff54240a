package retur

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// Builder drives the in-progress return session: opening one in linked or
// manual mode, editing items and replacements, and finally submitting the
// pending request for approval. Every mutation either applies fully and is
// saved, or fails leaving the stored session untouched.
type Builder struct {
	Sessions *SessionStore
	Sales    sales.Store
	Catalog  catalog.Lookup
	Stock    stock.Guard
	Store    Store
	Events   *events.Bus
	Now      func() time.Time
}

func (b *Builder) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// StartLinked opens a return against a recorded sale. The transaction's lines
// become the candidate pool; return quantities are bounded by them.
func (b *Builder) StartLinked(ctx context.Context, cashierID, branchID, transactionID uuid.UUID) (Request, error) {
	if b == nil || b.Sessions == nil || b.Sales == nil {
		return Request{}, errors.New("retur: builder not configured")
	}
	source, err := b.Sales.GetByID(ctx, transactionID)
	if err != nil {
		return Request{}, err
	}
	r := NewLinked(cashierID, branchID, source, b.now())
	if err := b.Sessions.Save(ctx, r); err != nil {
		return Request{}, err
	}
	return r, nil
}

// StartManual opens a free-form return for a sale with no system record.
func (b *Builder) StartManual(ctx context.Context, cashierID, branchID uuid.UUID) (Request, error) {
	if b == nil || b.Sessions == nil {
		return Request{}, errors.New("retur: builder not configured")
	}
	r := NewManual(cashierID, branchID, b.now())
	if err := b.Sessions.Save(ctx, r); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Get returns the in-progress request read model.
func (b *Builder) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	if b == nil || b.Sessions == nil {
		return Request{}, errors.New("retur: builder not configured")
	}
	return b.Sessions.Get(ctx, id)
}

// AddLinkedItem draws qty units from a source transaction line.
func (b *Builder) AddLinkedItem(ctx context.Context, id uuid.UUID, sourceLine int, qty int32, conditionTag, note string) (Request, error) {
	condition, err := ParseCondition(conditionTag)
	if err != nil {
		return Request{}, err
	}
	return b.mutate(ctx, id, func(r *Request) error {
		return r.AddLinkedItem(sourceLine, qty, condition, note)
	})
}

// ManualItemInput describes one free-form return entry. ProductID optionally
// prefills name, code and price from the catalog without bounding quantity.
type ManualItemInput struct {
	Name      string
	UnitPrice pricing.Money
	Qty       int32
	Condition string
	Note      string
	ProductID *uuid.UUID
}

// AddManualItem appends a free-form entry, prefilling from the catalog when a
// product reference is supplied and the caller left name or price empty.
func (b *Builder) AddManualItem(ctx context.Context, id uuid.UUID, input ManualItemInput) (Request, error) {
	condition, err := ParseCondition(input.Condition)
	if err != nil {
		return Request{}, err
	}
	name := strings.TrimSpace(input.Name)
	price := input.UnitPrice
	if input.ProductID != nil && b.Catalog != nil {
		product, err := b.Catalog.Product(ctx, *input.ProductID)
		if err != nil {
			return Request{}, err
		}
		if name == "" {
			name = product.Name
		}
		if price == 0 {
			price = product.ConsumerPrice
		}
	}
	return b.mutate(ctx, id, func(r *Request) error {
		return r.AddManualItem(name, price, input.Qty, condition, input.Note, input.ProductID)
	})
}

// UpdateItemQty applies a delta to a return line; zero or below removes it.
func (b *Builder) UpdateItemQty(ctx context.Context, id uuid.UUID, index int, delta int32) (Request, error) {
	return b.mutate(ctx, id, func(r *Request) error {
		return r.UpdateItemQty(index, delta)
	})
}

// RemoveItem drops a return line.
func (b *Builder) RemoveItem(ctx context.Context, id uuid.UUID, index int) (Request, error) {
	return b.mutate(ctx, id, func(r *Request) error {
		return r.RemoveItem(index)
	})
}

// SetType switches between refund and exchange.
func (b *Builder) SetType(ctx context.Context, id uuid.UUID, typeTag string) (Request, error) {
	var t Type
	switch Type(strings.ToLower(strings.TrimSpace(typeTag))) {
	case TypeRefund:
		t = TypeRefund
	case TypeExchange:
		t = TypeExchange
	default:
		return Request{}, fmt.Errorf("retur: unknown return type %q", typeTag)
	}
	return b.mutate(ctx, id, func(r *Request) error {
		r.Type = t
		return nil
	})
}

// SetReason records the operator-entered reason.
func (b *Builder) SetReason(ctx context.Context, id uuid.UUID, reason string) (Request, error) {
	return b.mutate(ctx, id, func(r *Request) error {
		r.Reason = strings.TrimSpace(reason)
		return nil
	})
}

// AddReplacement adds one unit of a replacement product at the given tier,
// bounded by live branch stock.
func (b *Builder) AddReplacement(ctx context.Context, id, productID uuid.UUID, tierTag string) (Request, error) {
	if b == nil || b.Catalog == nil {
		return Request{}, errors.New("retur: builder not configured")
	}
	tier, err := pricing.ParseTier(tierTag)
	if err != nil {
		return Request{}, err
	}
	return b.mutate(ctx, id, func(r *Request) error {
		product, err := b.Catalog.Product(ctx, productID)
		if err != nil {
			return err
		}
		available, err := b.Stock.Check(ctx, productID, r.BranchID, 1, r.ReplacementQuantityOf(productID))
		if err != nil {
			return err
		}
		return r.AddReplacement(product, tier, available)
	})
}

// UpdateReplacementQty applies a delta to a replacement line against live stock.
func (b *Builder) UpdateReplacementQty(ctx context.Context, id uuid.UUID, index int, delta int32) (Request, error) {
	if b == nil || b.Catalog == nil {
		return Request{}, errors.New("retur: builder not configured")
	}
	return b.mutate(ctx, id, func(r *Request) error {
		if index < 0 || index >= len(r.Replacements) {
			return ErrLineNotFound
		}
		productID := r.Replacements[index].ProductID
		available, err := b.Stock.Check(ctx, productID, r.BranchID, delta, r.ReplacementQuantityOf(productID))
		if err != nil {
			return err
		}
		return r.UpdateReplacementQty(index, delta, available)
	})
}

// RemoveReplacement drops a replacement line.
func (b *Builder) RemoveReplacement(ctx context.Context, id uuid.UUID, index int) (Request, error) {
	return b.mutate(ctx, id, func(r *Request) error {
		return r.RemoveReplacement(index)
	})
}

// Submit validates the session and persists it as a pending request, consuming
// the session. confirmSettlement acknowledges a positive amount the customer
// must pay.
func (b *Builder) Submit(ctx context.Context, id uuid.UUID, confirmSettlement bool) (Request, error) {
	if b == nil || b.Sessions == nil || b.Store == nil {
		return Request{}, errors.New("retur: builder not configured")
	}
	r, err := b.Sessions.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := r.ValidateSubmit(confirmSettlement); err != nil {
		return Request{}, err
	}
	r.Status = StatusPending
	r.UpdatedAt = b.now()
	if err := b.Store.Create(ctx, r); err != nil {
		return Request{}, err
	}
	if err := b.Sessions.Delete(ctx, id); err != nil {
		return Request{}, err
	}
	if b.Events != nil {
		_, _ = b.Events.Emit(ctx, events.TopicReturnSubmitted, r.ID, map[string]any{
			"mode":          string(r.Mode),
			"type":          string(r.Type),
			"branchId":      r.BranchID.String(),
			"netSettlement": r.NetSettlement,
		})
	}
	return r, nil
}

// Discard drops the in-progress session.
func (b *Builder) Discard(ctx context.Context, id uuid.UUID) error {
	if b == nil || b.Sessions == nil {
		return errors.New("retur: builder not configured")
	}
	if _, err := b.Sessions.Get(ctx, id); err != nil {
		return err
	}
	return b.Sessions.Delete(ctx, id)
}

// RequireOwnership rejects access to a return built by another operator.
func RequireOwnership(r Request, cashierID uuid.UUID) error {
	if r.CashierID != cashierID {
		return fmt.Errorf("retur: %w", ErrNotFound)
	}
	return nil
}

func (b *Builder) mutate(ctx context.Context, id uuid.UUID, fn func(*Request) error) (Request, error) {
	if b == nil || b.Sessions == nil {
		return Request{}, errors.New("retur: builder not configured")
	}
	r, err := b.Sessions.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := fn(&r); err != nil {
		return Request{}, err
	}
	r.UpdatedAt = b.now()
	if err := b.Sessions.Save(ctx, r); err != nil {
		return Request{}, err
	}
	return r, nil
}
