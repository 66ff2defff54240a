package cart_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

var (
	cashierID = uuid.New()
	branchID  = uuid.New()
	productID = uuid.New()
)

func newService(t *testing.T, stockQty int32) *cart.Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cat := &catalog.Static{
		Products: map[uuid.UUID]catalog.Product{
			productID: {ID: productID, Code: "PRD-A", Name: "Product A", ConsumerPrice: 10_000, CounterPrice: 9_000},
		},
		Stocks: map[catalog.StockKey]int32{
			{ProductID: productID, BranchID: branchID}: stockQty,
		},
	}
	return &cart.Service{
		Store:   &cart.Store{R: client, TTL: time.Minute},
		Catalog: cat,
		Stock:   stock.Guard{Lookup: cat},
	}
}

func TestServiceAddItemPersists(t *testing.T) {
	svc := newService(t, 5)
	ctx := context.Background()

	created, err := svc.Create(ctx, cashierID, branchID)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, created.ID, productID, "consumer")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, created.ID, productID, "consumer")
	require.NoError(t, err)

	reloaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Lines, 1)
	require.EqualValues(t, 2, reloaded.Lines[0].Qty)
	require.EqualValues(t, 20_000, reloaded.Subtotal)
}

func TestServiceAddItemUnknownTier(t *testing.T) {
	svc := newService(t, 5)
	ctx := context.Background()
	created, err := svc.Create(ctx, cashierID, branchID)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, created.ID, productID, "wholesale")
	require.ErrorIs(t, err, pricing.ErrInvalidTier)
}

func TestServiceAddItemOutOfStockLeavesCartUntouched(t *testing.T) {
	svc := newService(t, 1)
	ctx := context.Background()
	created, err := svc.Create(ctx, cashierID, branchID)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, created.ID, productID, "consumer")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, created.ID, productID, "consumer")
	require.ErrorIs(t, err, stock.ErrInsufficient)

	reloaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, reloaded.Lines[0].Qty)
}

func TestServiceUpdateRejectsNegativeAmounts(t *testing.T) {
	svc := newService(t, 5)
	ctx := context.Background()
	created, err := svc.Create(ctx, cashierID, branchID)
	require.NoError(t, err)

	bad := pricing.Money(-500)
	_, err = svc.Update(ctx, created.ID, cart.FieldPatch{Discount: &bad})
	require.ErrorIs(t, err, pricing.ErrInvalidAmount)

	reloaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, reloaded.Discount, "rejected update must not persist")
}

func TestServiceDiscard(t *testing.T) {
	svc := newService(t, 5)
	ctx := context.Background()
	created, err := svc.Create(ctx, cashierID, branchID)
	require.NoError(t, err)

	require.NoError(t, svc.Discard(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestRequireOwnership(t *testing.T) {
	c := cart.New(cashierID, branchID, time.Now())
	require.NoError(t, cart.RequireOwnership(c, cashierID))
	require.ErrorIs(t, cart.RequireOwnership(c, uuid.New()), cart.ErrNotFound)
}
