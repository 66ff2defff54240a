package sales

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// ErrNotFound indicates the requested transaction does not exist.
var ErrNotFound = errors.New("sales: transaction not found")

// Item is an immutable copy of a cart line taken at checkout. Later catalog
// price changes must not alter historical totals, so these are snapshots, not
// references.
type Item struct {
	ProductID uuid.UUID     `json:"productId"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Tier      pricing.Tier  `json:"tier"`
	Qty       int32         `json:"qty"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Discount  pricing.Money `json:"discount"`
	Subtotal  pricing.Money `json:"subtotal"`
}

// Transaction is the persisted result of a checkout. Created once, never
// mutated afterwards.
type Transaction struct {
	ID            uuid.UUID     `json:"id"`
	Number        string        `json:"number"`
	BranchID      uuid.UUID     `json:"branchId"`
	CashierID     uuid.UUID     `json:"cashierId"`
	CustomerName  string        `json:"customerName,omitempty"`
	CustomerPhone string        `json:"customerPhone,omitempty"`
	Items         []Item        `json:"items"`
	Subtotal      pricing.Money `json:"subtotal"`
	Discount      pricing.Money `json:"discount"`
	ServiceFee    pricing.Money `json:"serviceFee"`
	Total         pricing.Money `json:"total"`
	Tendered      pricing.Money `json:"tendered"`
	Change        pricing.Money `json:"change"`
	PaymentMethod string        `json:"paymentMethod"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Number format: TRX-YYYYMMDD-XXXXXX, human-readable and unique enough for a
// register roll.
func NewNumber(now time.Time) string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("TRX-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}

// OutOfStockLine names one cart line that failed the live stock check.
type OutOfStockLine struct {
	ProductID uuid.UUID `json:"productId"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Requested int32     `json:"requested"`
	Available int32     `json:"available"`
}

// OutOfStockError reports every failing line of an aborted commit so the
// operator can correct quantities in one pass. No stock has changed when this
// error is returned.
type OutOfStockError struct {
	Lines []OutOfStockLine
}

func (e *OutOfStockError) Error() string {
	codes := make([]string, 0, len(e.Lines))
	for _, ln := range e.Lines {
		codes = append(codes, ln.Code)
	}
	return fmt.Sprintf("sales: out of stock: %s", strings.Join(codes, ", "))
}

// Unwrap lets errors.Is match the stock sentinel.
func (e *OutOfStockError) Unwrap() error { return stock.ErrInsufficient }

// Store persists transaction snapshots. CommitCheckout is the indivisible
// check-then-commit unit: it decrements every line's branch counter and
// appends the snapshot, or does neither.
type Store interface {
	CommitCheckout(ctx context.Context, txn Transaction) (Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (Transaction, error)
	GetByNumber(ctx context.Context, number string) (Transaction, error)
	ListRecent(ctx context.Context, branchID uuid.UUID, limit int32) ([]Transaction, error)
}
