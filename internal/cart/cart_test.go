package cart

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

var productA = catalog.Product{
	ID:            uuid.New(),
	Code:          "PRD-A",
	Name:          "Product A",
	ConsumerPrice: 10_000,
	CounterPrice:  9_000,
}

func emptyCart() Cart {
	return New(uuid.New(), uuid.New(), time.Now())
}

func TestAddItemMergesSameProductAndTier(t *testing.T) {
	c := emptyCart()
	if err := c.AddItem(productA, pricing.TierConsumer, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.AddItem(productA, pricing.TierConsumer, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(c.Lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(c.Lines))
	}
	if c.Lines[0].Qty != 2 || c.Lines[0].Subtotal != 20_000 {
		t.Fatalf("merged line: qty %d subtotal %d", c.Lines[0].Qty, c.Lines[0].Subtotal)
	}
}

func TestAddItemDifferentTierIsSeparateLine(t *testing.T) {
	c := emptyCart()
	if err := c.AddItem(productA, pricing.TierConsumer, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.AddItem(productA, pricing.TierCounter, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(c.Lines) != 2 {
		t.Fatalf("expected two lines for two tiers, got %d", len(c.Lines))
	}
	if c.Lines[1].UnitPrice != 9_000 {
		t.Fatalf("counter tier price: got %d", c.Lines[1].UnitPrice)
	}
}

func TestAddItemBoundedByBranchStockAcrossTiers(t *testing.T) {
	c := emptyCart()
	if err := c.AddItem(productA, pricing.TierConsumer, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.AddItem(productA, pricing.TierCounter, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Both tiers draw from the same physical counter.
	err := c.AddItem(productA, pricing.TierConsumer, 2)
	if !errors.Is(err, stock.ErrInsufficient) {
		t.Fatalf("expected stock bound violation, got %v", err)
	}
	if c.Lines[0].Qty != 1 || c.Lines[1].Qty != 1 {
		t.Fatalf("failed add must not mutate: %+v", c.Lines)
	}
}

func TestUpdateQuantityRemovesAtZero(t *testing.T) {
	c := emptyCart()
	if err := c.AddItem(productA, pricing.TierConsumer, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.UpdateQuantity(0, -1, 10); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(c.Lines) != 0 {
		t.Fatalf("decrement to zero must remove the line, got %d lines", len(c.Lines))
	}
	if c.Subtotal != 0 || c.Total != 0 {
		t.Fatalf("totals must follow removal: subtotal %d total %d", c.Subtotal, c.Total)
	}
}

func TestUpdateQuantityBounded(t *testing.T) {
	c := emptyCart()
	if err := c.AddItem(productA, pricing.TierConsumer, 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := c.UpdateQuantity(0, 5, 3)
	if !errors.Is(err, stock.ErrInsufficient) {
		t.Fatalf("expected stock bound violation, got %v", err)
	}
	if c.Lines[0].Qty != 1 {
		t.Fatalf("failed update must leave the line unchanged, qty %d", c.Lines[0].Qty)
	}
}

func TestNegativeAmountsRejected(t *testing.T) {
	c := emptyCart()
	if err := c.SetDiscount(-1); !errors.Is(err, pricing.ErrInvalidAmount) {
		t.Fatalf("discount: expected ErrInvalidAmount, got %v", err)
	}
	if err := c.SetServiceFee(-1); !errors.Is(err, pricing.ErrInvalidAmount) {
		t.Fatalf("fee: expected ErrInvalidAmount, got %v", err)
	}
	if err := c.SetTendered(-1); !errors.Is(err, pricing.ErrInvalidAmount) {
		t.Fatalf("tendered: expected ErrInvalidAmount, got %v", err)
	}
	if c.Discount != 0 || c.ServiceFee != 0 || c.Tendered != 0 {
		t.Fatalf("rejected setters must not mutate: %+v", c)
	}
}

func TestTotalsAndChange(t *testing.T) {
	c := emptyCart()
	for i := 0; i < 2; i++ {
		if err := c.AddItem(productA, pricing.TierConsumer, 10); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := c.SetDiscount(2_000); err != nil {
		t.Fatalf("discount: %v", err)
	}
	if err := c.SetTendered(20_000); err != nil {
		t.Fatalf("tendered: %v", err)
	}
	if c.Subtotal != 20_000 {
		t.Fatalf("subtotal: got %d", c.Subtotal)
	}
	if c.Total != 18_000 {
		t.Fatalf("total = subtotal - discount + fee: got %d", c.Total)
	}
	if c.Change != 2_000 {
		t.Fatalf("change = tendered - total: got %d", c.Change)
	}

	// Under-tendered carts carry no change until payment covers the total.
	if err := c.SetTendered(10_000); err != nil {
		t.Fatalf("tendered: %v", err)
	}
	if c.Change != 0 {
		t.Fatalf("change must be zero when tendered < total, got %d", c.Change)
	}
}

func TestDiscountAboveSubtotalKeepsReceiptIdentity(t *testing.T) {
	c := emptyCart()
	if err := c.AddItem(productA, pricing.TierConsumer, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SetDiscount(15_000); err != nil {
		t.Fatalf("discount: %v", err)
	}
	if c.Discount != 15_000 {
		t.Fatalf("discount must be stored as entered, got %d", c.Discount)
	}
	want := c.Subtotal - c.Discount + c.ServiceFee
	if want != -5_000 || c.Total != want {
		t.Fatalf("total = %d, want subtotal - discount + fee = %d", c.Total, want)
	}
	// A zero tender still covers a negative total.
	if err := c.SetTendered(0); err != nil {
		t.Fatalf("tendered: %v", err)
	}
	if c.Change != 5_000 {
		t.Fatalf("change = tendered - total: got %d", c.Change)
	}
}
