package retur_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/retur"
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

type builderFixture struct {
	builder  *retur.Builder
	store    *retur.MemoryStore
	sales    *sales.MemoryStore
	counters *stock.Memory
	catalog  *catalog.Static
}

func newBuilderFixture(t *testing.T) builderFixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counters := stock.NewMemory()
	salesStore := sales.NewMemoryStore(counters)
	returnStore := retur.NewMemoryStore(counters)
	cat := &catalog.Static{
		Products: map[uuid.UUID]catalog.Product{},
		Stocks:   map[catalog.StockKey]int32{},
	}
	return builderFixture{
		builder: &retur.Builder{
			Sessions: &retur.SessionStore{R: client, TTL: time.Minute},
			Sales:    salesStore,
			Catalog:  lookupOver(cat, counters),
			Stock:    stock.Guard{Lookup: lookupOver(cat, counters)},
			Store:    returnStore,
		},
		store:    returnStore,
		sales:    salesStore,
		counters: counters,
		catalog:  cat,
	}
}

// lookupOver serves products from the static catalog and stock from the live
// counters, matching how the real service reads stock past the cache.
type liveLookup struct {
	products *catalog.Static
	counters *stock.Memory
}

func lookupOver(products *catalog.Static, counters *stock.Memory) catalog.Lookup {
	return liveLookup{products: products, counters: counters}
}

func (l liveLookup) Product(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	return l.products.Product(ctx, id)
}

func (l liveLookup) BranchStock(ctx context.Context, productID, branchID uuid.UUID) (int32, error) {
	return l.counters.BranchStock(ctx, productID, branchID)
}

func TestBuilderManualFlowSubmits(t *testing.T) {
	fx := newBuilderFixture(t)
	ctx := context.Background()

	draft, err := fx.builder.StartManual(ctx, cashierID, branchID)
	require.NoError(t, err)

	_, err = fx.builder.AddManualItem(ctx, draft.ID, retur.ManualItemInput{
		Name:      "Old stock lamp",
		UnitPrice: 15_000,
		Qty:       1,
		Condition: "good",
	})
	require.NoError(t, err)
	_, err = fx.builder.SetReason(ctx, draft.ID, "sold before the system existed")
	require.NoError(t, err)

	submitted, err := fx.builder.Submit(ctx, draft.ID, false)
	require.NoError(t, err)
	require.Equal(t, retur.StatusPending, submitted.Status)
	require.EqualValues(t, -15_000, submitted.NetSettlement)

	// Submission consumes the session.
	_, err = fx.builder.Get(ctx, draft.ID)
	require.ErrorIs(t, err, retur.ErrNotFound)

	persisted, err := fx.store.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, retur.ModeManual, persisted.Mode)
}

func TestBuilderLinkedFlowBoundsAndPrefills(t *testing.T) {
	fx := newBuilderFixture(t)
	ctx := context.Background()

	fx.counters.Set(productA, branchID, 10)
	txn, err := fx.sales.CommitCheckout(ctx, sales.Transaction{
		ID:        uuid.New(),
		Number:    sales.NewNumber(time.Now()),
		BranchID:  branchID,
		CashierID: cashierID,
		Items: []sales.Item{
			{ProductID: productA, Code: "PRD-A", Name: "Product A", Tier: pricing.TierConsumer, Qty: 2, UnitPrice: 10_000, Subtotal: 20_000},
		},
		Subtotal: 20_000,
		Total:    20_000,
		Tendered: 20_000,
	})
	require.NoError(t, err)

	draft, err := fx.builder.StartLinked(ctx, cashierID, branchID, txn.ID)
	require.NoError(t, err)
	require.Len(t, draft.Source, 1)

	_, err = fx.builder.AddLinkedItem(ctx, draft.ID, 0, 3, "good", "")
	require.ErrorIs(t, err, retur.ErrExceedsPurchased)

	updated, err := fx.builder.AddLinkedItem(ctx, draft.ID, 0, 1, "good", "")
	require.NoError(t, err)
	require.EqualValues(t, 10_000, updated.ReturnedValue)
}

func TestBuilderStartLinkedUnknownTransaction(t *testing.T) {
	fx := newBuilderFixture(t)
	_, err := fx.builder.StartLinked(context.Background(), cashierID, branchID, uuid.New())
	require.ErrorIs(t, err, sales.ErrNotFound)
}

func TestBuilderExchangeNeedsSettlementConfirmation(t *testing.T) {
	fx := newBuilderFixture(t)
	ctx := context.Background()

	fx.catalog.Products[productB] = catalog.Product{
		ID: productB, Code: "PRD-B", Name: "Product B", ConsumerPrice: 12_000, CounterPrice: 11_000,
	}
	fx.counters.Set(productB, branchID, 5)

	draft, err := fx.builder.StartManual(ctx, cashierID, branchID)
	require.NoError(t, err)
	_, err = fx.builder.AddManualItem(ctx, draft.ID, retur.ManualItemInput{
		Name: "Worn part", UnitPrice: 10_000, Qty: 1, Condition: "damaged",
	})
	require.NoError(t, err)
	_, err = fx.builder.SetReason(ctx, draft.ID, "exchange for a newer model")
	require.NoError(t, err)
	_, err = fx.builder.SetType(ctx, draft.ID, "exchange")
	require.NoError(t, err)
	updated, err := fx.builder.AddReplacement(ctx, draft.ID, productB, "consumer")
	require.NoError(t, err)
	require.EqualValues(t, 2_000, updated.NetSettlement)

	_, err = fx.builder.Submit(ctx, draft.ID, false)
	require.ErrorIs(t, err, retur.ErrSettlementUnconfirmed)

	// The rejected submission left the draft intact for correction.
	draftAgain, err := fx.builder.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, draftAgain.Replacements, 1)

	submitted, err := fx.builder.Submit(ctx, draft.ID, true)
	require.NoError(t, err)
	require.Equal(t, retur.TypeExchange, submitted.Type)
}

func TestBuilderReplacementBoundedByLiveStock(t *testing.T) {
	fx := newBuilderFixture(t)
	ctx := context.Background()

	fx.catalog.Products[productB] = catalog.Product{
		ID: productB, Code: "PRD-B", Name: "Product B", ConsumerPrice: 12_000, CounterPrice: 11_000,
	}
	fx.counters.Set(productB, branchID, 1)

	draft, err := fx.builder.StartManual(ctx, cashierID, branchID)
	require.NoError(t, err)
	_, err = fx.builder.AddReplacement(ctx, draft.ID, productB, "consumer")
	require.NoError(t, err)
	_, err = fx.builder.AddReplacement(ctx, draft.ID, productB, "consumer")
	require.ErrorIs(t, err, stock.ErrInsufficient)
	_, err = fx.builder.UpdateReplacementQty(ctx, draft.ID, 0, 1)
	require.ErrorIs(t, err, stock.ErrInsufficient)

	// The failed additions left the draft with the single accepted unit.
	reloaded, err := fx.builder.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Replacements, 1)
	require.EqualValues(t, 1, reloaded.Replacements[0].Qty)
}

func TestBuilderManualPrefillFromCatalog(t *testing.T) {
	fx := newBuilderFixture(t)
	ctx := context.Background()

	fx.catalog.Products[productB] = catalog.Product{
		ID: productB, Code: "PRD-B", Name: "Product B", ConsumerPrice: 12_000, CounterPrice: 11_000,
	}

	draft, err := fx.builder.StartManual(ctx, cashierID, branchID)
	require.NoError(t, err)
	ref := productB
	updated, err := fx.builder.AddManualItem(ctx, draft.ID, retur.ManualItemInput{
		Condition: "good",
		ProductID: &ref,
	})
	require.NoError(t, err)
	require.Equal(t, "Product B", updated.Items[0].Name)
	require.EqualValues(t, 12_000, updated.Items[0].UnitPrice)
	require.False(t, updated.Items[0].Linked(), "catalog prefill must not create a linked bound")
}
