package retur

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

// MemoryStore is an in-process Store mirroring the postgres semantics,
// sharing a stock.Memory with the sales memory store so tests can assert
// end-to-end stock movement. FailCommit simulates a commit whose outcome is
// unknown, after the in-memory effects have been applied.
type MemoryStore struct {
	Stock      *stock.Memory
	FailCommit bool

	mu       sync.Mutex
	requests map[uuid.UUID]Request
}

// NewMemoryStore constructs an empty store over the given stock counters.
func NewMemoryStore(st *stock.Memory) *MemoryStore {
	return &MemoryStore{Stock: st, requests: make(map[uuid.UUID]Request)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, r Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return errors.New("retur: request already exists")
	}
	s.requests[r.ID] = r
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, branchID uuid.UUID, limit int32) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := []Request{}
	for _, r := range s.requests {
		if r.BranchID == branchID {
			out = append(out, r)
		}
		if int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// Approve implements Store with the same ordering as the postgres store:
// good-condition restocks first, then bounded replacement decrements, with
// full rollback of the restocks when a decrement fails.
func (s *MemoryStore) Approve(_ context.Context, id, decidedBy uuid.UUID, decidedAt time.Time) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if r.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: already %s", ErrInvalidStateTransition, r.Status)
	}

	restocked := []ReturnItem{}
	for _, it := range r.Items {
		if it.Condition != ConditionGood || it.ProductID == nil {
			continue
		}
		s.Stock.Increment(*it.ProductID, r.BranchID, it.Qty)
		restocked = append(restocked, it)
	}
	rollback := func() {
		for _, it := range restocked {
			_ = s.Stock.DecrementBounded(*it.ProductID, r.BranchID, it.Qty)
		}
	}

	requested := make(map[uuid.UUID]int32, len(r.Replacements))
	names := make(map[uuid.UUID]ReplacementItem, len(r.Replacements))
	order := []uuid.UUID{}
	for _, it := range r.Replacements {
		if _, seen := requested[it.ProductID]; !seen {
			order = append(order, it.ProductID)
			names[it.ProductID] = it
		}
		requested[it.ProductID] += it.Qty
	}
	var oos sales.OutOfStockError
	for _, pid := range order {
		if avail := s.Stock.Get(pid, r.BranchID); avail < requested[pid] {
			ref := names[pid]
			oos.Lines = append(oos.Lines, sales.OutOfStockLine{
				ProductID: pid,
				Code:      ref.Code,
				Name:      ref.Name,
				Requested: requested[pid],
				Available: avail,
			})
		}
	}
	if len(oos.Lines) > 0 {
		rollback()
		return Request{}, &oos
	}
	for _, pid := range order {
		if err := s.Stock.DecrementBounded(pid, r.BranchID, requested[pid]); err != nil {
			rollback()
			return Request{}, err
		}
	}

	if s.FailCommit {
		return Request{}, fmt.Errorf("retur: commit approval of %s: %w: connection reset", id, common.ErrPersistenceInconsistency)
	}

	r.Status = StatusApproved
	r.DecidedBy = &decidedBy
	r.DecidedAt = &decidedAt
	r.UpdatedAt = decidedAt
	s.requests[id] = r
	return r, nil
}

// Reject implements Store.
func (s *MemoryStore) Reject(_ context.Context, id, decidedBy uuid.UUID, decidedAt time.Time) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if r.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: already %s", ErrInvalidStateTransition, r.Status)
	}
	r.Status = StatusRejected
	r.DecidedBy = &decidedBy
	r.DecidedAt = &decidedAt
	r.UpdatedAt = decidedAt
	s.requests[id] = r
	return r, nil
}

// Delete implements Store. Only pending requests may be deleted.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: already %s", ErrInvalidStateTransition, r.Status)
	}
	delete(s.requests, id)
	return nil
}
