package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalog(store *memStore) {
	store.addProduct(models.Product{ID: "prod-1", SKU: "ETH-250", Name: "Ethiopia Yirgacheffe 250g", PriceCents: 2450, IsActive: true})
	store.addProduct(models.Product{ID: "prod-2", SKU: "SUM-250", Name: "Sumatra Mandheling 250g", PriceCents: 2200, IsActive: true})
	store.addStock("ETH-250", 10, 0)
	store.addStock("SUM-250", 10, 0)
}

func reserveCart(t *testing.T, store *memStore, items []ReserveItem) string {
	t.Helper()
	result, err := newTestEngine(store).Reserve(context.Background(), items)
	require.NoError(t, err)
	return result.GroupID
}

func TestCreateDraftOrder(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	groupID := reserveCart(t, store, []ReserveItem{
		{SKU: "ETH-250", Quantity: 2},
		{SKU: "SUM-250", Quantity: 1},
	})

	payments := &fakePayments{}
	svc := NewOrderService(store, NewTaxCalculator(9, 109, 9.00), payments, "sgd")

	result, err := svc.CreateDraftOrder(context.Background(), groupID, "guest@example.com")
	require.NoError(t, err)
	assert.Equal(t, "secret_test", result.ClientSecret)

	order, items, err := svc.GetOrder(context.Background(), result.OrderID)
	require.NoError(t, err)

	// 2 x 2450 + 1 x 2200 = 7100 inclusive
	assert.Equal(t, int64(7100), order.TotalCents)
	assert.Equal(t, order.TotalCents, order.SubtotalCents+order.TaxCents)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "guest@example.com", order.Email)
	require.Len(t, items, 2)

	// Price snapshots and intent metadata tie everything together.
	require.Len(t, payments.requests, 1)
	req := payments.requests[0]
	assert.Equal(t, order.TotalCents, req.AmountCents)
	assert.Equal(t, result.OrderID, req.Metadata[payment.MetadataOrderID])
	assert.Equal(t, groupID, req.Metadata[payment.MetadataReservationGroup])

	pay, err := store.PaymentByOrderID(context.Background(), result.OrderID)
	require.NoError(t, err)
	require.NotNil(t, pay)
	assert.Equal(t, models.PaymentStatusPending, pay.Status)
}

func TestCreateDraftOrderSnapshotsPrices(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	groupID := reserveCart(t, store, []ReserveItem{{SKU: "ETH-250", Quantity: 1}})

	svc := NewOrderService(store, NewTaxCalculator(9, 109, 9.00), &fakePayments{}, "sgd")
	result, err := svc.CreateDraftOrder(context.Background(), groupID, "guest@example.com")
	require.NoError(t, err)

	// A later price change must not affect the stored snapshot.
	store.addProduct(models.Product{ID: "prod-1", SKU: "ETH-250", Name: "Ethiopia Yirgacheffe 250g", PriceCents: 9999, IsActive: true})

	_, items, err := svc.GetOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2450), items[0].PriceAtTimeCents)
}

func TestCreateDraftOrderInvalidReservation(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)

	svc := NewOrderService(store, NewTaxCalculator(9, 109, 9.00), &fakePayments{}, "sgd")

	_, err := svc.CreateDraftOrder(context.Background(), "no-such-group", "guest@example.com")
	assert.ErrorIs(t, err, ErrReservationInvalid)
}

func TestCreateDraftOrderReleasedReservation(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	groupID := reserveCart(t, store, []ReserveItem{{SKU: "ETH-250", Quantity: 1}})
	require.NoError(t, newTestEngine(store).Release(context.Background(), groupID, "expired"))

	svc := NewOrderService(store, NewTaxCalculator(9, 109, 9.00), &fakePayments{}, "sgd")

	_, err := svc.CreateDraftOrder(context.Background(), groupID, "guest@example.com")
	assert.ErrorIs(t, err, ErrReservationInvalid)
}

func TestCreateDraftOrderRollsBackOnIntentFailure(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	groupID := reserveCart(t, store, []ReserveItem{{SKU: "ETH-250", Quantity: 1}})

	payments := &fakePayments{err: errors.New("processor unavailable")}
	svc := NewOrderService(store, NewTaxCalculator(9, 109, 9.00), payments, "sgd")

	_, err := svc.CreateDraftOrder(context.Background(), groupID, "guest@example.com")
	require.Error(t, err)

	// No orphan order or payment rows survive the rollback.
	orders, err := store.Orders(context.Background(), 50, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// The reservation is untouched and can be retried.
	lines, err := store.ActiveLines(context.Background(), groupID)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestGetOrderNotFound(t *testing.T) {
	svc := NewOrderService(newMemStore(), NewTaxCalculator(9, 109, 9.00), &fakePayments{}, "sgd")

	_, _, err := svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReservationStaysActiveUntilWebhook(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	groupID := reserveCart(t, store, []ReserveItem{{SKU: "ETH-250", Quantity: 2}})

	svc := NewOrderService(store, NewTaxCalculator(9, 109, 9.00), &fakePayments{}, "sgd")
	_, err := svc.CreateDraftOrder(context.Background(), groupID, "guest@example.com")
	require.NoError(t, err)

	// Order creation must not consume the hold.
	rec := store.stock("ETH-250")
	assert.Equal(t, 10, rec.StockCount)
	assert.Equal(t, 2, rec.ReservedCount)

	lines, err := store.ActiveLines(context.Background(), groupID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].ExpiresAt.After(time.Now()))
}
