package retur

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/queue"
	"github.com/noah-isme/backend-kasir/internal/sales"
)

// Approval decides pending return requests. Decisions on one request are
// serialized through a distributed lock so two back-office operators cannot
// race each other; the terminal-state check inside the store transaction is
// the authoritative guard.
type Approval struct {
	Store   Store
	Locker  lock.Locker
	LockTTL time.Duration
	Events  *events.Bus
	Recon   *queue.Client
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (a *Approval) now() time.Time {
	if a != nil && a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Approve transitions the request to approved, restocking good-condition
// returned items and consuming replacement stock. Insufficient replacement
// stock fails the approval and leaves the request pending.
func (a *Approval) Approve(ctx context.Context, id, decidedBy uuid.UUID) (Request, error) {
	if a == nil || a.Store == nil {
		return Request{}, errors.New("retur: approval not configured")
	}
	var decided Request
	err := a.withLock(ctx, id, func(ctx context.Context) error {
		var err error
		decided, err = a.Store.Approve(ctx, id, decidedBy, a.now())
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrPersistenceInconsistency):
			a.Logger.Error().Err(err).Str("return_id", id.String()).Msg("return approval persistence inconsistency")
			obs.IncReturnApproval("inconsistent")
			a.flagInconsistency(ctx, id, err)
		case isOutOfStock(err):
			obs.IncReturnApproval("out_of_stock")
			obs.IncStockConflict()
		case errors.Is(err, ErrInvalidStateTransition):
			obs.IncReturnApproval("already_decided")
		}
		return Request{}, err
	}
	obs.IncReturnApproval("approved")
	if a.Events != nil {
		_, _ = a.Events.Emit(ctx, events.TopicReturnApproved, decided.ID, map[string]any{
			"type":          string(decided.Type),
			"branchId":      decided.BranchID.String(),
			"netSettlement": decided.NetSettlement,
		})
	}
	return decided, nil
}

// Reject transitions the request to rejected. No stock effects.
func (a *Approval) Reject(ctx context.Context, id, decidedBy uuid.UUID) (Request, error) {
	if a == nil || a.Store == nil {
		return Request{}, errors.New("retur: approval not configured")
	}
	var decided Request
	err := a.withLock(ctx, id, func(ctx context.Context) error {
		var err error
		decided, err = a.Store.Reject(ctx, id, decidedBy, a.now())
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidStateTransition) {
			obs.IncReturnApproval("already_decided")
		}
		return Request{}, err
	}
	obs.IncReturnApproval("rejected")
	if a.Events != nil {
		_, _ = a.Events.Emit(ctx, events.TopicReturnRejected, decided.ID, map[string]any{
			"branchId": decided.BranchID.String(),
		})
	}
	return decided, nil
}

// Delete removes a request while it is still pending.
func (a *Approval) Delete(ctx context.Context, id uuid.UUID) error {
	if a == nil || a.Store == nil {
		return errors.New("retur: approval not configured")
	}
	return a.withLock(ctx, id, func(ctx context.Context) error {
		return a.Store.Delete(ctx, id)
	})
}

func (a *Approval) withLock(ctx context.Context, id uuid.UUID, fn func(context.Context) error) error {
	if a.Locker.R == nil {
		return fn(ctx)
	}
	ttl := a.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return a.Locker.WithLock(ctx, "return:decide:"+id.String(), ttl, fn)
}

func (a *Approval) flagInconsistency(ctx context.Context, id uuid.UUID, cause error) {
	if a.Recon == nil {
		return
	}
	flag := queue.ReconciliationFlag{
		Kind:      "return_approval",
		Reference: id.String(),
		Detail:    cause.Error(),
		RaisedAt:  a.now(),
	}
	if err := a.Recon.EnqueueReconciliationFlag(ctx, flag); err != nil {
		a.Logger.Error().Err(err).Str("return_id", id.String()).Msg("enqueue reconciliation flag")
		return
	}
	obs.IncReconciliationFlag()
}

func isOutOfStock(err error) bool {
	var oos *sales.OutOfStockError
	return errors.As(err, &oos)
}
