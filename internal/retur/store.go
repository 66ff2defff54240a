package retur

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists submitted return requests and owns the lifecycle decisions.
// Approve applies the stock side effects and the status change as one
// indivisible unit: a failed replacement decrement leaves the request
// pending and every counter untouched.
type Store interface {
	Create(ctx context.Context, r Request) error
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	List(ctx context.Context, branchID uuid.UUID, limit int32) ([]Request, error)
	Approve(ctx context.Context, id, decidedBy uuid.UUID, decidedAt time.Time) (Request, error)
	Reject(ctx context.Context, id, decidedBy uuid.UUID, decidedAt time.Time) (Request, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
