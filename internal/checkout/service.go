package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/queue"
	"github.com/noah-isme/backend-kasir/internal/sales"
)

// ErrCartEmpty is returned when checkout is attempted with no line items.
var ErrCartEmpty = errors.New("checkout: cart is empty")

// ErrInsufficientPayment is returned when the amount tendered does not cover
// the total.
var ErrInsufficientPayment = errors.New("checkout: tendered below total")

// Service consumes a completed cart: re-validates every line against live
// stock, atomically persists the transaction and decrements stock, and
// returns the receipt-ready snapshot. A failed checkout leaves both the cart
// and every stock counter exactly as they were.
type Service struct {
	Carts  *cart.Service
	Store  sales.Store
	Events *events.Bus
	Recon  *queue.Client
	Logger zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Process performs the checkout for the cashier's cart.
func (s *Service) Process(ctx context.Context, cashierID, cartID uuid.UUID) (sales.Transaction, error) {
	if s == nil || s.Carts == nil || s.Store == nil {
		return sales.Transaction{}, errors.New("checkout: service not configured")
	}
	c, err := s.Carts.Get(ctx, cartID)
	if err != nil {
		return sales.Transaction{}, err
	}
	if err := cart.RequireOwnership(c, cashierID); err != nil {
		return sales.Transaction{}, err
	}
	if len(c.Lines) == 0 {
		return sales.Transaction{}, ErrCartEmpty
	}
	c.ComputeTotals()
	change, ok := pricing.Change(c.Total, c.Tendered)
	if !ok {
		return sales.Transaction{}, fmt.Errorf("%w: total %d, tendered %d", ErrInsufficientPayment, c.Total, c.Tendered)
	}

	now := s.now()
	txn := sales.Transaction{
		ID:            uuid.New(),
		Number:        sales.NewNumber(now),
		BranchID:      c.BranchID,
		CashierID:     c.CashierID,
		CustomerName:  c.CustomerName,
		CustomerPhone: c.CustomerPhone,
		Subtotal:      c.Subtotal,
		Discount:      c.Discount,
		ServiceFee:    c.ServiceFee,
		Total:         c.Total,
		Tendered:      c.Tendered,
		Change:        change,
		PaymentMethod: c.PaymentMethod,
		CreatedAt:     now,
	}
	txn.Items = make([]sales.Item, 0, len(c.Lines))
	for _, ln := range c.Lines {
		txn.Items = append(txn.Items, sales.Item{
			ProductID: ln.ProductID,
			Code:      ln.Code,
			Name:      ln.Name,
			Tier:      ln.Tier,
			Qty:       ln.Qty,
			UnitPrice: ln.UnitPrice,
			Discount:  ln.Discount,
			Subtotal:  ln.Subtotal,
		})
	}

	committed, err := s.Store.CommitCheckout(ctx, txn)
	if err != nil {
		if errors.Is(err, common.ErrPersistenceInconsistency) {
			s.Logger.Error().Err(err).Str("number", txn.Number).Msg("checkout persistence inconsistency")
			obs.IncCheckout("inconsistent")
			s.flagInconsistency(ctx, txn.Number, err)
			return sales.Transaction{}, err
		}
		var oos *sales.OutOfStockError
		if errors.As(err, &oos) {
			obs.IncCheckout("out_of_stock")
			obs.IncStockConflict()
		}
		return sales.Transaction{}, err
	}

	// The cart is consumed only after the commit; a failure above leaves it
	// intact for correction and retry.
	if err := s.Carts.Store.Delete(ctx, c.ID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", c.ID.String()).Msg("clear cart after checkout")
	}

	obs.IncCheckout("committed")
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicTransactionCreated, committed.ID, map[string]any{
			"number":   committed.Number,
			"branchId": committed.BranchID.String(),
			"total":    committed.Total,
			"change":   committed.Change,
		})
	}
	return committed, nil
}

func (s *Service) flagInconsistency(ctx context.Context, reference string, cause error) {
	if s.Recon == nil {
		return
	}
	flag := queue.ReconciliationFlag{
		Kind:      "checkout",
		Reference: reference,
		Detail:    cause.Error(),
		RaisedAt:  s.now(),
	}
	if err := s.Recon.EnqueueReconciliationFlag(ctx, flag); err != nil {
		s.Logger.Error().Err(err).Str("reference", reference).Msg("enqueue reconciliation flag")
		return
	}
	obs.IncReconciliationFlag()
}
