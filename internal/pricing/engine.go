package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// Money represents a monetary value stored in minor units of rupiah.
type Money = int64

// ErrInvalidTier is returned when a price tier tag is not recognised.
var ErrInvalidTier = errors.New("pricing: invalid tier")

// ErrInvalidAmount is returned for negative discounts, fees, or prices.
var ErrInvalidAmount = errors.New("pricing: invalid amount")

// Tier selects which catalog price applies to a line item.
type Tier string

const (
	// TierConsumer is the retail walk-in price.
	TierConsumer Tier = "consumer"
	// TierCounter is the reseller counter price.
	TierCounter Tier = "counter"
)

// ParseTier normalises a tier tag, rejecting unknown values.
func ParseTier(value string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(value))) {
	case TierConsumer:
		return TierConsumer, nil
	case TierCounter:
		return TierCounter, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, value)
	}
}

// PriceCard carries the tier-dependent unit prices of a catalog product.
type PriceCard struct {
	Consumer Money
	Counter  Money
}

// Resolve returns the unit price for the requested tier.
func Resolve(card PriceCard, tier Tier) (Money, error) {
	switch tier {
	case TierConsumer:
		return card.Consumer, nil
	case TierCounter:
		return card.Counter, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
}

// Item describes a line used for totals calculation.
type Item struct {
	Qty       int
	UnitPrice Money
	Discount  Money
}

// Summary aggregates the derived monetary fields of a cart.
type Summary struct {
	Subtotal   Money
	Discount   Money
	ServiceFee Money
	Total      Money
}

// LineSubtotal computes qty × unit price − per-line discount, floored at zero.
func LineSubtotal(it Item) Money {
	if it.Qty <= 0 {
		return 0
	}
	sub := Money(it.Qty)*it.UnitPrice - it.Discount
	if sub < 0 {
		sub = 0
	}
	return sub
}

// Compute derives subtotal and total from the current line items. Discount and
// fee must already be validated as non-negative; callers treat the result as
// derived state, never as input. The identity total = subtotal − discount + fee
// holds exactly: a discount larger than the subtotal yields a negative total,
// which checkout still gates with tendered ≥ total.
func Compute(items []Item, discount, fee Money) Summary {
	var subtotal Money
	for _, it := range items {
		subtotal += LineSubtotal(it)
	}
	total := subtotal - discount + fee
	return Summary{
		Subtotal:   subtotal,
		Discount:   discount,
		ServiceFee: fee,
		Total:      total,
	}
}

// Change returns tendered − total when the payment covers the total.
func Change(total, tendered Money) (Money, bool) {
	if tendered < total {
		return 0, false
	}
	return tendered - total, true
}
