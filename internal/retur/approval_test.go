package retur_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/retur"
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

var (
	branchID  = uuid.New()
	cashierID = uuid.New()
	productA  = uuid.New()
	productB  = uuid.New()
)

func pendingExchange(t *testing.T, store *retur.MemoryStore, returnQtyA int32, condition retur.Condition, replacementQtyB int32) retur.Request {
	t.Helper()
	pidA := productA
	r := retur.Request{
		ID:        uuid.New(),
		BranchID:  branchID,
		CashierID: cashierID,
		Mode:      retur.ModeLinked,
		Type:      retur.TypeRefund,
		Reason:    "damaged in transit",
		Status:    retur.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Items: []retur.ReturnItem{{
			ProductID:    &pidA,
			SourceLine:   0,
			Code:         "PRD-A",
			Name:         "Product A",
			Qty:          returnQtyA,
			UnitPrice:    10_000,
			PurchasedQty: returnQtyA,
			Condition:    condition,
		}},
	}
	if replacementQtyB > 0 {
		r.Type = retur.TypeExchange
		r.Replacements = []retur.ReplacementItem{{
			ProductID: productB,
			Code:      "PRD-B",
			Name:      "Product B",
			Tier:      pricing.TierConsumer,
			Qty:       replacementQtyB,
			UnitPrice: 12_000,
		}}
	}
	r.Compute()
	require.NoError(t, store.Create(context.Background(), r))
	return r
}

func TestApproveRestocksGoodConditionOnly(t *testing.T) {
	counters := stock.NewMemory()
	store := retur.NewMemoryStore(counters)
	counters.Set(productA, branchID, 0)

	good := pendingExchange(t, store, 2, retur.ConditionGood, 0)
	_, err := store.Approve(context.Background(), good.ID, cashierID, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 2, counters.Get(productA, branchID))

	damaged := pendingExchange(t, store, 3, retur.ConditionDamaged, 0)
	_, err = store.Approve(context.Background(), damaged.ID, cashierID, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 2, counters.Get(productA, branchID), "damaged items must not return to sellable stock")
}

func TestApproveExchangeMovesBothCounters(t *testing.T) {
	counters := stock.NewMemory()
	store := retur.NewMemoryStore(counters)
	counters.Set(productA, branchID, 5)
	counters.Set(productB, branchID, 5)

	r := pendingExchange(t, store, 1, retur.ConditionGood, 1)
	require.EqualValues(t, 2_000, r.NetSettlement)

	decided, err := store.Approve(context.Background(), r.ID, cashierID, time.Now())
	require.NoError(t, err)
	require.Equal(t, retur.StatusApproved, decided.Status)
	require.EqualValues(t, 6, counters.Get(productA, branchID))
	require.EqualValues(t, 4, counters.Get(productB, branchID))
}

func TestApproveExchangeWithoutReplacementStockStaysPending(t *testing.T) {
	counters := stock.NewMemory()
	store := retur.NewMemoryStore(counters)
	counters.Set(productA, branchID, 0)
	counters.Set(productB, branchID, 0)

	r := pendingExchange(t, store, 1, retur.ConditionGood, 1)
	_, err := store.Approve(context.Background(), r.ID, cashierID, time.Now())
	require.Error(t, err)
	var oos *sales.OutOfStockError
	require.ErrorAs(t, err, &oos)
	require.Len(t, oos.Lines, 1)
	require.Equal(t, productB, oos.Lines[0].ProductID)

	reloaded, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.Equal(t, retur.StatusPending, reloaded.Status, "failed approval must leave the request pending")
	require.EqualValues(t, 0, counters.Get(productA, branchID), "restock must be rolled back with the failed approval")
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	counters := stock.NewMemory()
	store := retur.NewMemoryStore(counters)

	r := pendingExchange(t, store, 1, retur.ConditionDamaged, 0)
	_, err := store.Approve(context.Background(), r.ID, cashierID, time.Now())
	require.NoError(t, err)

	_, err = store.Approve(context.Background(), r.ID, cashierID, time.Now())
	require.ErrorIs(t, err, retur.ErrInvalidStateTransition)
	_, err = store.Reject(context.Background(), r.ID, cashierID, time.Now())
	require.ErrorIs(t, err, retur.ErrInvalidStateTransition)
	require.ErrorIs(t, store.Delete(context.Background(), r.ID), retur.ErrInvalidStateTransition)

	rejected := pendingExchange(t, store, 1, retur.ConditionDamaged, 0)
	_, err = store.Reject(context.Background(), rejected.ID, cashierID, time.Now())
	require.NoError(t, err)
	_, err = store.Approve(context.Background(), rejected.ID, cashierID, time.Now())
	require.ErrorIs(t, err, retur.ErrInvalidStateTransition)
}

func TestRejectHasNoStockEffects(t *testing.T) {
	counters := stock.NewMemory()
	store := retur.NewMemoryStore(counters)
	counters.Set(productA, branchID, 7)

	r := pendingExchange(t, store, 2, retur.ConditionGood, 0)
	decided, err := store.Reject(context.Background(), r.ID, cashierID, time.Now())
	require.NoError(t, err)
	require.Equal(t, retur.StatusRejected, decided.Status)
	require.EqualValues(t, 7, counters.Get(productA, branchID))
}

func TestDeletePendingOnly(t *testing.T) {
	counters := stock.NewMemory()
	store := retur.NewMemoryStore(counters)

	r := pendingExchange(t, store, 1, retur.ConditionGood, 0)
	require.NoError(t, store.Delete(context.Background(), r.ID))
	_, err := store.Get(context.Background(), r.ID)
	require.ErrorIs(t, err, retur.ErrNotFound)
}

func TestApprovalSurfacesPersistenceInconsistency(t *testing.T) {
	counters := stock.NewMemory()
	store := retur.NewMemoryStore(counters)
	store.FailCommit = true
	counters.Set(productA, branchID, 0)

	r := pendingExchange(t, store, 1, retur.ConditionGood, 0)
	svc := &retur.Approval{Store: store}
	_, err := svc.Approve(context.Background(), r.ID, cashierID)
	require.Error(t, err)
	require.True(t, errors.Is(err, common.ErrPersistenceInconsistency))
}
