package stock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
)

// Memory is an in-process stock store mirroring the postgres semantics. It
// backs the memory sales/return stores used in tests.
type Memory struct {
	mu     sync.Mutex
	counts map[catalog.StockKey]int32
}

// NewMemory constructs an empty in-memory stock store.
func NewMemory() *Memory {
	return &Memory{counts: make(map[catalog.StockKey]int32)}
}

// Set overwrites the counter for a product/branch pair.
func (m *Memory) Set(productID, branchID uuid.UUID, qty int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[catalog.StockKey{ProductID: productID, BranchID: branchID}] = qty
}

// Get returns the current counter value.
func (m *Memory) Get(productID, branchID uuid.UUID) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[catalog.StockKey{ProductID: productID, BranchID: branchID}]
}

// DecrementBounded fails without mutating when the counter would go negative.
func (m *Memory) DecrementBounded(productID, branchID uuid.UUID, qty int32) error {
	if qty <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := catalog.StockKey{ProductID: productID, BranchID: branchID}
	if m.counts[key] < qty {
		return &InsufficientError{ProductID: productID, BranchID: branchID, Requested: qty}
	}
	m.counts[key] -= qty
	return nil
}

// Increment adds units back to the counter.
func (m *Memory) Increment(productID, branchID uuid.UUID, qty int32) {
	if qty <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[catalog.StockKey{ProductID: productID, BranchID: branchID}] += qty
}

// BranchStock implements the stock half of catalog.Lookup for tests.
func (m *Memory) BranchStock(_ context.Context, productID, branchID uuid.UUID) (int32, error) {
	return m.Get(productID, branchID), nil
}
