package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(store *memStore) *ReservationEngine {
	return NewReservationEngine(store, nil, 100, 15*time.Minute)
}

func TestReserveHoldsStock(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 0)
	engine := newTestEngine(store)

	result, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 3}})
	require.NoError(t, err)
	assert.NotEmpty(t, result.GroupID)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	rec := store.stock("ETH-250")
	assert.Equal(t, 10, rec.StockCount)
	assert.Equal(t, 3, rec.ReservedCount)

	entries := store.ledgerForSKU("ETH-250")
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerReasonReservationCreated, entries[0].Reason)
	assert.Equal(t, 3, entries[0].QuantityChange)
}

func TestReserveInsufficientStock(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 2, 0)
	engine := newTestEngine(store)

	_, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 3}})
	require.Error(t, err)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "ETH-250", stockErr.SKU)

	// Nothing held.
	assert.Equal(t, 0, store.stock("ETH-250").ReservedCount)
}

func TestReserveCountsExistingHolds(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 8)
	engine := newTestEngine(store)

	_, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 3}})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
}

func TestReserveMultiItemAbortsWhole(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 0)
	store.addStock("SUM-250", 1, 0)
	engine := newTestEngine(store)

	_, err := engine.Reserve(context.Background(), []ReserveItem{
		{SKU: "ETH-250", Quantity: 2},
		{SKU: "SUM-250", Quantity: 5},
	})
	require.Error(t, err)

	// The satisfiable item must not keep a partial hold.
	assert.Equal(t, 0, store.stock("ETH-250").ReservedCount)
	assert.Equal(t, 0, store.stock("SUM-250").ReservedCount)
	assert.Empty(t, store.ledgerForSKU("ETH-250"))
}

func TestReserveCreatesStockLazily(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	_, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "NEW-SKU", Quantity: 5}})
	require.NoError(t, err)

	rec := store.stock("NEW-SKU")
	assert.Equal(t, 100, rec.StockCount)
	assert.Equal(t, 5, rec.ReservedCount)
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 0)
	engine := newTestEngine(store)

	const workers = 20
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 1}}); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	assert.Equal(t, 10, len(succeeded))
	rec := store.stock("ETH-250")
	assert.Equal(t, 10, rec.ReservedCount)
	assert.GreaterOrEqual(t, rec.Available(), 0)
}

func TestConfirmCommitsStock(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 0)
	engine := newTestEngine(store)

	result, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 4}})
	require.NoError(t, err)

	require.NoError(t, engine.Confirm(context.Background(), result.GroupID))

	rec := store.stock("ETH-250")
	assert.Equal(t, 6, rec.StockCount)
	assert.Equal(t, 0, rec.ReservedCount)

	entries := store.ledgerForSKU("ETH-250")
	require.Len(t, entries, 2)
	assert.Equal(t, models.LedgerReasonReservationConfirmed, entries[1].Reason)
	assert.Equal(t, -4, entries[1].QuantityChange)
}

func TestConfirmTwiceIsNoOp(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 0)
	engine := newTestEngine(store)

	result, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 4}})
	require.NoError(t, err)

	require.NoError(t, engine.Confirm(context.Background(), result.GroupID))
	require.NoError(t, engine.Confirm(context.Background(), result.GroupID))

	rec := store.stock("ETH-250")
	assert.Equal(t, 6, rec.StockCount)
	assert.Equal(t, 0, rec.ReservedCount)
	assert.Len(t, store.ledgerForSKU("ETH-250"), 2)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 0)
	engine := newTestEngine(store)

	result, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 4}})
	require.NoError(t, err)

	require.NoError(t, engine.Release(context.Background(), result.GroupID, "cancelled"))

	rec := store.stock("ETH-250")
	assert.Equal(t, 10, rec.StockCount)
	assert.Equal(t, 0, rec.ReservedCount)

	entries := store.ledgerForSKU("ETH-250")
	require.Len(t, entries, 2)
	assert.Equal(t, models.LedgerReasonReservationReleased, entries[1].Reason)
	assert.Equal(t, -4, entries[1].QuantityChange)
}

func TestReleaseUnknownGroupIsNoOp(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	assert.NoError(t, engine.Release(context.Background(), "no-such-group", "expired"))
}

func TestConfirmAfterReleaseIsNoOp(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 0)
	engine := newTestEngine(store)

	result, err := engine.Reserve(context.Background(), []ReserveItem{{SKU: "ETH-250", Quantity: 4}})
	require.NoError(t, err)

	require.NoError(t, engine.Release(context.Background(), result.GroupID, "expired"))
	require.NoError(t, engine.Confirm(context.Background(), result.GroupID))

	// The late confirm must not touch stock.
	rec := store.stock("ETH-250")
	assert.Equal(t, 10, rec.StockCount)
	assert.Equal(t, 0, rec.ReservedCount)
}

func TestAdjustStock(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 3)
	engine := newTestEngine(store)

	rec, err := engine.Adjust(context.Background(), "ETH-250", 5, "restock", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 15, rec.StockCount)

	entries := store.ledgerForSKU("ETH-250")
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerReasonAdjustment, entries[0].Reason)
	assert.Equal(t, 5, entries[0].QuantityChange)
}

func TestAdjustRejectsDropBelowReserved(t *testing.T) {
	store := newMemStore()
	store.addStock("ETH-250", 10, 6)
	engine := newTestEngine(store)

	_, err := engine.Adjust(context.Background(), "ETH-250", -5, "shrinkage", "admin-1")
	require.Error(t, err)

	assert.Equal(t, 10, store.stock("ETH-250").StockCount)
}

func TestAdjustUnknownSKU(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	_, err := engine.Adjust(context.Background(), "NOPE", 5, "restock", "admin-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
