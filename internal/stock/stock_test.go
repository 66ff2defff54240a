package stock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

func TestGuardCheck(t *testing.T) {
	productID := uuid.New()
	branchID := uuid.New()
	lookup := &catalog.Static{
		Stocks: map[catalog.StockKey]int32{
			{ProductID: productID, BranchID: branchID}: 5,
		},
	}
	guard := stock.Guard{Lookup: lookup}

	available, err := guard.Check(context.Background(), productID, branchID, 5, 0)
	require.NoError(t, err)
	require.Equal(t, int32(5), available)
	_, err = guard.Check(context.Background(), productID, branchID, 2, 3)
	require.NoError(t, err)

	available, err = guard.Check(context.Background(), productID, branchID, 3, 3)
	require.ErrorIs(t, err, stock.ErrInsufficient)
	require.Equal(t, int32(5), available)
	var insufficient *stock.InsufficientError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, productID, insufficient.ProductID)
	require.Equal(t, int32(6), insufficient.Requested)

	// A decrement never enforces the bound but still reports the live count.
	available, err = guard.Check(context.Background(), productID, branchID, -2, 6)
	require.NoError(t, err)
	require.Equal(t, int32(5), available)
}

func TestGuardUnknownProductHasZeroStock(t *testing.T) {
	guard := stock.Guard{Lookup: &catalog.Static{}}
	_, err := guard.Check(context.Background(), uuid.New(), uuid.New(), 1, 0)
	require.ErrorIs(t, err, stock.ErrInsufficient)
}

func TestMemoryDecrementBounded(t *testing.T) {
	productID := uuid.New()
	branchID := uuid.New()
	mem := stock.NewMemory()
	mem.Set(productID, branchID, 2)

	require.NoError(t, mem.DecrementBounded(productID, branchID, 2))
	err := mem.DecrementBounded(productID, branchID, 1)
	require.True(t, errors.Is(err, stock.ErrInsufficient))
	require.Equal(t, int32(0), mem.Get(productID, branchID))

	mem.Increment(productID, branchID, 3)
	require.Equal(t, int32(3), mem.Get(productID, branchID))
}
