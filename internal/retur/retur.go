// Package retur implements the sales-return reconciliation engine: building
// a return request against a prior sale (or free-form for pre-system sales),
// reconciling replacement goods for exchanges, and the pending → approved or
// rejected lifecycle with its stock side effects.
package retur

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

var (
	// ErrNotFound indicates the return request does not exist.
	ErrNotFound = errors.New("retur: request not found")
	// ErrLineNotFound is returned for an out-of-range item index.
	ErrLineNotFound = errors.New("retur: line not found")
	// ErrEmptyItemSet rejects submission without at least one return item.
	ErrEmptyItemSet = errors.New("retur: at least one return item is required")
	// ErrMissingReason rejects submission without a reason.
	ErrMissingReason = errors.New("retur: reason is required")
	// ErrMissingName rejects a manual item without a product name.
	ErrMissingName = errors.New("retur: manual item needs a product name")
	// ErrExceedsPurchased rejects a linked return quantity above what was bought.
	ErrExceedsPurchased = errors.New("retur: quantity exceeds purchased quantity")
	// ErrReplacementRequired rejects an exchange without replacement items.
	ErrReplacementRequired = errors.New("retur: exchange needs at least one replacement item")
	// ErrReplacementNotAllowed rejects replacement items on a plain refund.
	ErrReplacementNotAllowed = errors.New("retur: refund cannot carry replacement items")
	// ErrSettlementUnconfirmed rejects submission when the customer owes a
	// difference that the operator has not explicitly confirmed collecting.
	ErrSettlementUnconfirmed = errors.New("retur: positive settlement requires confirmation")
	// ErrInvalidStateTransition rejects decisions on terminal requests.
	ErrInvalidStateTransition = errors.New("retur: request is not pending")
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("retur: quantity must be at least 1")
)

// Mode distinguishes returns tied to a recorded sale from free-form ones.
type Mode string

const (
	ModeLinked Mode = "linked"
	ModeManual Mode = "manual"
)

// Type distinguishes a plain refund from an exchange for other goods.
type Type string

const (
	TypeRefund   Type = "refund"
	TypeExchange Type = "exchange"
)

// Condition records the state of returned goods. Only good-condition items
// go back to sellable stock on approval.
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
)

// ParseCondition validates a condition tag.
func ParseCondition(tag string) (Condition, error) {
	switch Condition(strings.ToLower(strings.TrimSpace(tag))) {
	case ConditionGood:
		return ConditionGood, nil
	case ConditionDamaged:
		return ConditionDamaged, nil
	}
	return "", fmt.Errorf("retur: unknown condition %q", tag)
}

// Status is the request lifecycle state. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ReturnItem is one returned line. Linked items reference a line of the
// source transaction (SourceLine >= 0) and inherit its price; manual items
// carry a free-text name and an explicit price. A manual item may reference
// a catalog product for display, which imposes no quantity bound.
type ReturnItem struct {
	ProductID    *uuid.UUID    `json:"productId,omitempty"`
	SourceLine   int           `json:"sourceLine"`
	Code         string        `json:"code,omitempty"`
	Name         string        `json:"name"`
	Qty          int32         `json:"qty"`
	UnitPrice    pricing.Money `json:"unitPrice"`
	PurchasedQty int32         `json:"purchasedQty,omitempty"`
	Condition    Condition     `json:"condition"`
	Note         string        `json:"note,omitempty"`
}

// Linked reports whether the item is bounded by an original transaction line.
func (it ReturnItem) Linked() bool { return it.SourceLine >= 0 }

// ReplacementItem is a stock-bounded exchange line, shaped like a cart line.
type ReplacementItem struct {
	ProductID uuid.UUID     `json:"productId"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Tier      pricing.Tier  `json:"tier"`
	Qty       int32         `json:"qty"`
	UnitPrice pricing.Money `json:"unitPrice"`
	StockSeen int32         `json:"stockSeen"`
}

// Request is a sales-return in any lifecycle stage. While pending it lives as
// a session document; approval and rejection operate on the persisted record.
type Request struct {
	ID                  uuid.UUID         `json:"id"`
	BranchID            uuid.UUID         `json:"branchId"`
	CashierID           uuid.UUID         `json:"cashierId"`
	Mode                Mode              `json:"mode"`
	SourceTransactionID *uuid.UUID        `json:"sourceTransactionId,omitempty"`
	Source              []sales.Item      `json:"source,omitempty"`
	Items               []ReturnItem      `json:"items"`
	Type                Type              `json:"type"`
	Reason              string            `json:"reason"`
	Replacements        []ReplacementItem `json:"replacements"`
	ReturnedValue       pricing.Money     `json:"returnedValue"`
	ReplacementValue    pricing.Money     `json:"replacementValue"`
	NetSettlement       pricing.Money     `json:"netSettlement"`
	Status              Status            `json:"status"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	DecidedBy           *uuid.UUID        `json:"decidedBy,omitempty"`
	DecidedAt           *time.Time        `json:"decidedAt,omitempty"`
}

// NewLinked opens a linked return against the given transaction, whose items
// form the candidate pool for return lines.
func NewLinked(cashierID, branchID uuid.UUID, source sales.Transaction, now time.Time) Request {
	srcID := source.ID
	return Request{
		ID:                  uuid.New(),
		BranchID:            branchID,
		CashierID:           cashierID,
		Mode:                ModeLinked,
		SourceTransactionID: &srcID,
		Source:              source.Items,
		Items:               []ReturnItem{},
		Type:                TypeRefund,
		Replacements:        []ReplacementItem{},
		Status:              StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NewManual opens a free-form return for a sale with no system record.
func NewManual(cashierID, branchID uuid.UUID, now time.Time) Request {
	return Request{
		ID:           uuid.New(),
		BranchID:     branchID,
		CashierID:    cashierID,
		Mode:         ModeManual,
		Items:        []ReturnItem{},
		Type:         TypeRefund,
		Replacements: []ReplacementItem{},
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// returnedQtyForLine sums already-added return quantity drawn from one source line.
func (r *Request) returnedQtyForLine(sourceLine int) int32 {
	var total int32
	for _, it := range r.Items {
		if it.SourceLine == sourceLine {
			total += it.Qty
		}
	}
	return total
}

// AddLinkedItem draws qty units from the source line at sourceLine. The
// cumulative returned quantity for that line may never exceed what was
// originally bought; price is inherited from the sale, not re-entered.
func (r *Request) AddLinkedItem(sourceLine int, qty int32, condition Condition, note string) error {
	if r.Mode != ModeLinked {
		return fmt.Errorf("retur: %w", ErrLineNotFound)
	}
	if sourceLine < 0 || sourceLine >= len(r.Source) {
		return ErrLineNotFound
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	src := r.Source[sourceLine]
	if r.returnedQtyForLine(sourceLine)+qty > src.Qty {
		return fmt.Errorf("%w: line %s bought %d", ErrExceedsPurchased, src.Code, src.Qty)
	}
	for i, it := range r.Items {
		if it.SourceLine == sourceLine && it.Condition == condition {
			r.Items[i].Qty += qty
			r.Compute()
			return nil
		}
	}
	productID := src.ProductID
	r.Items = append(r.Items, ReturnItem{
		ProductID:    &productID,
		SourceLine:   sourceLine,
		Code:         src.Code,
		Name:         src.Name,
		Qty:          qty,
		UnitPrice:    src.UnitPrice,
		PurchasedQty: src.Qty,
		Condition:    condition,
		Note:         note,
	})
	r.Compute()
	return nil
}

// AddManualItem appends a free-form return line. The operator is trusted on
// quantity; the price must be explicit and positive. catalogRef is an
// optional display reference and never bounds the quantity.
func (r *Request) AddManualItem(name string, unitPrice pricing.Money, qty int32, condition Condition, note string, catalogRef *uuid.UUID) error {
	if strings.TrimSpace(name) == "" {
		return ErrMissingName
	}
	if unitPrice <= 0 {
		return fmt.Errorf("retur: unit price: %w", pricing.ErrInvalidAmount)
	}
	if qty < 1 {
		qty = 1
	}
	r.Items = append(r.Items, ReturnItem{
		ProductID:  catalogRef,
		SourceLine: -1,
		Name:       strings.TrimSpace(name),
		Qty:        qty,
		UnitPrice:  unitPrice,
		Condition:  condition,
		Note:       note,
	})
	r.Compute()
	return nil
}

// UpdateItemQty applies a delta to the return line at index. A result of zero
// or below removes the line; a linked result above the purchased bound fails
// leaving the line unchanged.
func (r *Request) UpdateItemQty(index int, delta int32) error {
	if index < 0 || index >= len(r.Items) {
		return ErrLineNotFound
	}
	it := r.Items[index]
	next := it.Qty + delta
	if next <= 0 {
		return r.RemoveItem(index)
	}
	if it.Linked() {
		othersQty := r.returnedQtyForLine(it.SourceLine) - it.Qty
		if othersQty+next > it.PurchasedQty {
			return fmt.Errorf("%w: line %s bought %d", ErrExceedsPurchased, it.Code, it.PurchasedQty)
		}
	}
	r.Items[index].Qty = next
	r.Compute()
	return nil
}

// RemoveItem drops the return line at index.
func (r *Request) RemoveItem(index int) error {
	if index < 0 || index >= len(r.Items) {
		return ErrLineNotFound
	}
	r.Items = append(r.Items[:index], r.Items[index+1:]...)
	r.Compute()
	return nil
}

// ReplacementQuantityOf sums replacement quantity for one product across tiers.
func (r *Request) ReplacementQuantityOf(productID uuid.UUID) int32 {
	var total int32
	for _, it := range r.Replacements {
		if it.ProductID == productID {
			total += it.Qty
		}
	}
	return total
}

// AddReplacement adds one unit of a replacement product, merging on a
// product+tier match, bounded by the branch stock known at selection time.
func (r *Request) AddReplacement(p catalog.Product, tier pricing.Tier, branchStock int32) error {
	price, err := pricing.Resolve(p.PriceCard(), tier)
	if err != nil {
		return err
	}
	if r.ReplacementQuantityOf(p.ID)+1 > branchStock {
		return &stock.InsufficientError{ProductID: p.ID, BranchID: r.BranchID, Requested: r.ReplacementQuantityOf(p.ID) + 1}
	}
	for i, it := range r.Replacements {
		if it.ProductID == p.ID && it.Tier == tier {
			r.Replacements[i].Qty++
			r.Replacements[i].StockSeen = branchStock
			r.Compute()
			return nil
		}
	}
	r.Replacements = append(r.Replacements, ReplacementItem{
		ProductID: p.ID,
		Code:      p.Code,
		Name:      p.Name,
		Tier:      tier,
		Qty:       1,
		UnitPrice: price,
		StockSeen: branchStock,
	})
	r.Compute()
	return nil
}

// UpdateReplacementQty applies a delta to the replacement line at index,
// removing it when the result drops to zero or below.
func (r *Request) UpdateReplacementQty(index int, delta int32, branchStock int32) error {
	if index < 0 || index >= len(r.Replacements) {
		return ErrLineNotFound
	}
	it := r.Replacements[index]
	next := it.Qty + delta
	if next <= 0 {
		return r.RemoveReplacement(index)
	}
	otherQty := r.ReplacementQuantityOf(it.ProductID) - it.Qty
	if otherQty+next > branchStock {
		return &stock.InsufficientError{ProductID: it.ProductID, BranchID: r.BranchID, Requested: otherQty + next}
	}
	r.Replacements[index].Qty = next
	r.Replacements[index].StockSeen = branchStock
	r.Compute()
	return nil
}

// RemoveReplacement drops the replacement line at index.
func (r *Request) RemoveReplacement(index int) error {
	if index < 0 || index >= len(r.Replacements) {
		return ErrLineNotFound
	}
	r.Replacements = append(r.Replacements[:index], r.Replacements[index+1:]...)
	r.Compute()
	return nil
}

// Compute rederives returned value, replacement value and the signed net
// settlement. Positive settlement means the customer pays the difference,
// negative means a refund is owed, zero is an even exchange.
func (r *Request) Compute() {
	var returned, replacement pricing.Money
	for _, it := range r.Items {
		returned += pricing.Money(it.Qty) * it.UnitPrice
	}
	for _, it := range r.Replacements {
		replacement += pricing.Money(it.Qty) * it.UnitPrice
	}
	r.ReturnedValue = returned
	r.ReplacementValue = replacement
	r.NetSettlement = replacement - returned
}

// ValidateSubmit checks the request is complete enough to persist as pending.
// confirmSettlement must be true when the customer owes a positive difference.
func (r *Request) ValidateSubmit(confirmSettlement bool) error {
	if len(r.Items) == 0 {
		return ErrEmptyItemSet
	}
	if strings.TrimSpace(r.Reason) == "" {
		return ErrMissingReason
	}
	switch r.Type {
	case TypeExchange:
		if len(r.Replacements) == 0 {
			return ErrReplacementRequired
		}
	case TypeRefund:
		if len(r.Replacements) > 0 {
			return ErrReplacementNotAllowed
		}
	default:
		return fmt.Errorf("retur: unknown return type %q", r.Type)
	}
	r.Compute()
	if r.NetSettlement > 0 && !confirmSettlement {
		return ErrSettlementUnconfirmed
	}
	return nil
}
