package pricing

import (
	"errors"
	"testing"
)

func TestResolveTiers(t *testing.T) {
	card := PriceCard{Consumer: 10_000, Counter: 9_000}
	price, err := Resolve(card, TierConsumer)
	if err != nil || price != 10_000 {
		t.Fatalf("consumer price = %d err = %v", price, err)
	}
	price, err = Resolve(card, TierCounter)
	if err != nil || price != 9_000 {
		t.Fatalf("counter price = %d err = %v", price, err)
	}
}

func TestResolveUnknownTier(t *testing.T) {
	if _, err := Resolve(PriceCard{}, Tier("wholesale")); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Consumer ")
	if err != nil || tier != TierConsumer {
		t.Fatalf("tier = %q err = %v", tier, err)
	}
	if _, err := ParseTier(""); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}

func TestComputeTotals(t *testing.T) {
	items := []Item{
		{Qty: 2, UnitPrice: 10_000},
		{Qty: 1, UnitPrice: 5_000, Discount: 1_000},
	}
	sum := Compute(items, 2_000, 500)
	if sum.Subtotal != 24_000 {
		t.Fatalf("subtotal = %d", sum.Subtotal)
	}
	if sum.Total != 22_500 {
		t.Fatalf("total = %d", sum.Total)
	}
}

func TestComputeDiscountAboveSubtotalKeepsIdentity(t *testing.T) {
	sum := Compute([]Item{{Qty: 1, UnitPrice: 1_000}}, 5_000, 0)
	if sum.Discount != 5_000 {
		t.Fatalf("discount = %d, must never be adjusted", sum.Discount)
	}
	if sum.Total != -4_000 {
		t.Fatalf("total = %d, want subtotal - discount + fee = -4000", sum.Total)
	}
}

func TestChange(t *testing.T) {
	change, ok := Change(18_000, 20_000)
	if !ok || change != 2_000 {
		t.Fatalf("change = %d ok = %v", change, ok)
	}
	if _, ok := Change(18_000, 17_999); ok {
		t.Fatal("short payment must not produce change")
	}
}
