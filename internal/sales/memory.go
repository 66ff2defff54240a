package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// MemoryStore mirrors the postgres semantics in process. Tests drive checkout
// against it; FailCommit simulates the commit anomaly that surfaces the
// persistence-inconsistency class.
type MemoryStore struct {
	mu         sync.Mutex
	Stock      *stock.Memory
	byID       map[uuid.UUID]Transaction
	byNumber   map[string]uuid.UUID
	FailCommit bool
}

// NewMemoryStore constructs an empty store over the given stock counters.
func NewMemoryStore(counters *stock.Memory) *MemoryStore {
	return &MemoryStore{
		Stock:    counters,
		byID:     make(map[uuid.UUID]Transaction),
		byNumber: make(map[string]uuid.UUID),
	}
}

// CommitCheckout implements Store.
func (m *MemoryStore) CommitCheckout(_ context.Context, txn Transaction) (Transaction, error) {
	if m == nil || m.Stock == nil {
		return Transaction{}, errors.New("sales: store not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	requested := make(map[uuid.UUID]int32, len(txn.Items))
	order := make([]uuid.UUID, 0, len(txn.Items))
	ref := make(map[uuid.UUID]Item, len(txn.Items))
	for _, it := range txn.Items {
		if _, seen := requested[it.ProductID]; !seen {
			order = append(order, it.ProductID)
			ref[it.ProductID] = it
		}
		requested[it.ProductID] += it.Qty
	}

	var oos OutOfStockError
	for _, id := range order {
		if avail := m.Stock.Get(id, txn.BranchID); avail < requested[id] {
			it := ref[id]
			oos.Lines = append(oos.Lines, OutOfStockLine{
				ProductID: id, Code: it.Code, Name: it.Name,
				Requested: requested[id], Available: avail,
			})
		}
	}
	if len(oos.Lines) > 0 {
		return Transaction{}, &oos
	}

	for _, id := range order {
		if err := m.Stock.DecrementBounded(id, txn.BranchID, requested[id]); err != nil {
			return Transaction{}, err
		}
	}
	if m.FailCommit {
		return Transaction{}, fmt.Errorf("%w: commit checkout %s: simulated failure", common.ErrPersistenceInconsistency, txn.Number)
	}
	m.byID[txn.ID] = txn
	m.byNumber[txn.Number] = txn.ID
	return txn, nil
}

// GetByID implements Store.
func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return txn, nil
}

// GetByNumber implements Store.
func (m *MemoryStore) GetByNumber(_ context.Context, number string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byNumber[number]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return m.byID[id], nil
}

// ListRecent implements Store.
func (m *MemoryStore) ListRecent(_ context.Context, branchID uuid.UUID, limit int32) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, txn := range m.byID {
		if txn.BranchID == branchID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
