package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/port"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService turns an active reservation group into a priced draft order
// with a payment intent at the external processor.
type OrderService struct {
	store    port.Store
	tax      TaxCalculator
	payments PaymentProvider
	currency string
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store port.Store, tax TaxCalculator, payments PaymentProvider, currency string) *OrderService {
	return &OrderService{
		store:    store,
		tax:      tax,
		payments: payments,
		currency: currency,
		logger:   util.GetLogger(),
	}
}

// DraftOrderResult is returned to the checkout client
type DraftOrderResult struct {
	ClientSecret string `json:"client_secret"`
	OrderID      string `json:"order_id"`
}

// CreateDraftOrder prices the active lines of a reservation group at
// current catalog prices, creates the order, its item snapshots, the
// payment intent and the pending payment row in one transaction. The
// reservation group stays active until the webhook confirms payment.
//
// If intent creation fails the whole transaction rolls back: no orphan
// order rows, and the reservation can be retried or expire naturally.
func (s *OrderService) CreateDraftOrder(ctx context.Context, groupID, email string) (*DraftOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateDraftOrder")
	defer span.End()

	lines, err := s.store.ActiveLines(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation lines: %w", err)
	}
	if len(lines) == 0 {
		util.OrdersFailedTotal.WithLabelValues("reservation_invalid").Inc()
		return nil, ErrReservationInvalid
	}

	// Prices are re-read at order time, not locked at reservation time.
	var totalCents int64
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.store.ProductBySKU(ctx, line.SKU)
		if err != nil {
			return nil, fmt.Errorf("failed to load product %s: %w", line.SKU, err)
		}
		if product == nil {
			return nil, fmt.Errorf("no catalog product for SKU %s: %w", line.SKU, ErrNotFound)
		}

		totalCents += product.PriceCents * int64(line.Quantity)
		items = append(items, models.OrderItem{
			ID:               uuid.New().String(),
			ProductID:        product.ID,
			Quantity:         line.Quantity,
			PriceAtTimeCents: product.PriceCents,
		})
	}

	breakdown := s.tax.FromInclusive(totalCents)
	orderID := uuid.New().String()

	var result *DraftOrderResult
	err = s.store.InTx(ctx, func(tx port.Tx) error {
		order := &models.Order{
			ID:            orderID,
			SubtotalCents: breakdown.SubtotalCents,
			TaxCents:      breakdown.TaxCents,
			TotalCents:    breakdown.TotalCents,
			TaxRate:       breakdown.Rate,
			Status:        models.OrderStatusPending,
			Email:         email,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range items {
			items[i].OrderID = orderID
			if err := tx.InsertOrderItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		intent, err := s.payments.CreateIntent(ctx, payment.IntentRequest{
			AmountCents: breakdown.TotalCents,
			Currency:    s.currency,
			Metadata: map[string]string{
				payment.MetadataOrderID:          orderID,
				payment.MetadataReservationGroup: groupID,
			},
		})
		if err != nil {
			return fmt.Errorf("payment intent creation failed: %w", err)
		}

		if err := tx.InsertPayment(ctx, &models.Payment{
			ID:               uuid.New().String(),
			OrderID:          orderID,
			ProviderIntentID: intent.ID,
			AmountCents:      breakdown.TotalCents,
			Status:           models.PaymentStatusPending,
		}); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		result = &DraftOrderResult{ClientSecret: intent.ClientSecret, OrderID: orderID}
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("create_failed").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Draft order created",
		zap.String("order_id", orderID),
		zap.String("group_id", groupID),
		zap.Int64("total_cents", breakdown.TotalCents))
	return result, nil
}

// GetOrder retrieves an order and its item snapshots
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, ErrNotFound
	}

	items, err := s.store.OrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}
