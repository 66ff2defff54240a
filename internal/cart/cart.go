package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart: not found")

// ErrLineNotFound is returned for an out-of-range line index.
var ErrLineNotFound = errors.New("cart: line not found")

// ErrEmpty is returned when an operation requires at least one line item.
var ErrEmpty = errors.New("cart: empty")

// Line is a priced, stock-bounded cart line. It is owned exclusively by the
// cart that created it.
type Line struct {
	ProductID uuid.UUID     `json:"productId"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Tier      pricing.Tier  `json:"tier"`
	Qty       int32         `json:"qty"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Discount  pricing.Money `json:"discount"`
	Subtotal  pricing.Money `json:"subtotal"`
	// StockSeen is the branch stock observed when the line was added. It only
	// informs display bounds; the authoritative check happens at commit.
	StockSeen int32 `json:"stockSeen"`
}

// Cart owns an in-progress sale for a single operator session.
type Cart struct {
	ID            uuid.UUID     `json:"id"`
	BranchID      uuid.UUID     `json:"branchId"`
	CashierID     uuid.UUID     `json:"cashierId"`
	Lines         []Line        `json:"lines"`
	CustomerName  string        `json:"customerName,omitempty"`
	CustomerPhone string        `json:"customerPhone,omitempty"`
	Discount      pricing.Money `json:"discount"`
	ServiceFee    pricing.Money `json:"serviceFee"`
	PaymentMethod string        `json:"paymentMethod,omitempty"`
	Tendered      pricing.Money `json:"tendered"`
	Subtotal      pricing.Money `json:"subtotal"`
	Total         pricing.Money `json:"total"`
	Change        pricing.Money `json:"change"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// New creates an empty cart scoped to the acting cashier and branch.
func New(cashierID, branchID uuid.UUID, now time.Time) Cart {
	return Cart{
		ID:        uuid.New(),
		BranchID:  branchID,
		CashierID: cashierID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// QuantityOf sums the quantity already carted for a product across tiers.
func (c *Cart) QuantityOf(productID uuid.UUID) int32 {
	var total int32
	for _, ln := range c.Lines {
		if ln.ProductID == productID {
			total += ln.Qty
		}
	}
	return total
}

// AddItem merges into an existing line when product and tier both match,
// otherwise appends a new line at quantity 1. branchStock is the live count
// for the cart's branch; exceeding it fails without mutating the cart.
func (c *Cart) AddItem(p catalog.Product, tier pricing.Tier, branchStock int32) error {
	price, err := pricing.Resolve(p.PriceCard(), tier)
	if err != nil {
		return err
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == p.ID && c.Lines[i].Tier == tier {
			if c.QuantityOf(p.ID)+1 > branchStock {
				return &stock.InsufficientError{ProductID: p.ID, BranchID: c.BranchID, Requested: c.QuantityOf(p.ID) + 1}
			}
			c.Lines[i].Qty++
			c.Lines[i].StockSeen = branchStock
			c.recomputeLine(i)
			c.ComputeTotals()
			return nil
		}
	}
	if c.QuantityOf(p.ID)+1 > branchStock {
		return &stock.InsufficientError{ProductID: p.ID, BranchID: c.BranchID, Requested: c.QuantityOf(p.ID) + 1}
	}
	line := Line{
		ProductID: p.ID,
		Code:      p.Code,
		Name:      p.Name,
		Tier:      tier,
		Qty:       1,
		UnitPrice: price,
		StockSeen: branchStock,
	}
	line.Subtotal = pricing.LineSubtotal(pricing.Item{Qty: 1, UnitPrice: price})
	c.Lines = append(c.Lines, line)
	c.ComputeTotals()
	return nil
}

// UpdateQuantity applies delta to a line. A resulting quantity of zero or
// below removes the line; a result above the live branch stock fails and
// leaves the line unchanged.
func (c *Cart) UpdateQuantity(index int, delta int32, branchStock int32) error {
	if index < 0 || index >= len(c.Lines) {
		return ErrLineNotFound
	}
	ln := c.Lines[index]
	next := ln.Qty + delta
	if next <= 0 {
		return c.RemoveItem(index)
	}
	others := c.QuantityOf(ln.ProductID) - ln.Qty
	if next+others > branchStock {
		return &stock.InsufficientError{ProductID: ln.ProductID, BranchID: c.BranchID, Requested: next + others}
	}
	c.Lines[index].Qty = next
	c.Lines[index].StockSeen = branchStock
	c.recomputeLine(index)
	c.ComputeTotals()
	return nil
}

// RemoveItem drops a line unconditionally.
func (c *Cart) RemoveItem(index int) error {
	if index < 0 || index >= len(c.Lines) {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:index], c.Lines[index+1:]...)
	c.ComputeTotals()
	return nil
}

// SetDiscount sets the overall discount; negative input is an error, never
// silently flipped.
func (c *Cart) SetDiscount(v pricing.Money) error {
	if v < 0 {
		return fmt.Errorf("%w: discount %d", pricing.ErrInvalidAmount, v)
	}
	c.Discount = v
	c.ComputeTotals()
	return nil
}

// SetServiceFee sets the service/labor fee; negative input is an error.
func (c *Cart) SetServiceFee(v pricing.Money) error {
	if v < 0 {
		return fmt.Errorf("%w: service fee %d", pricing.ErrInvalidAmount, v)
	}
	c.ServiceFee = v
	c.ComputeTotals()
	return nil
}

// SetTendered records the amount the customer handed over.
func (c *Cart) SetTendered(v pricing.Money) error {
	if v < 0 {
		return fmt.Errorf("%w: tendered %d", pricing.ErrInvalidAmount, v)
	}
	c.Tendered = v
	c.ComputeTotals()
	return nil
}

// SetPaymentMethod tags the payment method used at the register.
func (c *Cart) SetPaymentMethod(method string) {
	c.PaymentMethod = strings.TrimSpace(method)
}

// SetCustomer records the optional customer identity for the receipt.
func (c *Cart) SetCustomer(name, phone string) {
	c.CustomerName = strings.TrimSpace(name)
	c.CustomerPhone = strings.TrimSpace(phone)
}

// ComputeTotals re-derives subtotal, total, and change from current state.
// Totals are derived values; no caller sets them directly.
func (c *Cart) ComputeTotals() {
	items := make([]pricing.Item, 0, len(c.Lines))
	for _, ln := range c.Lines {
		items = append(items, pricing.Item{Qty: int(ln.Qty), UnitPrice: ln.UnitPrice, Discount: ln.Discount})
	}
	sum := pricing.Compute(items, c.Discount, c.ServiceFee)
	c.Subtotal = sum.Subtotal
	c.Total = sum.Total
	if change, ok := pricing.Change(c.Total, c.Tendered); ok {
		c.Change = change
	} else {
		c.Change = 0
	}
}

func (c *Cart) recomputeLine(i int) {
	ln := c.Lines[i]
	c.Lines[i].Subtotal = pricing.LineSubtotal(pricing.Item{Qty: int(ln.Qty), UnitPrice: ln.UnitPrice, Discount: ln.Discount})
}
