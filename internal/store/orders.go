package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/models"
)

// InsertOrder creates a new order
func (t *Tx) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, subtotal_cents, tax_cents, total_cents, tax_rate, status, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		order.ID, order.SubtotalCents, order.TaxCents, order.TotalCents,
		order.TaxRate, order.Status, order.Email)
	return err
}

// InsertOrderItem creates a new order item snapshot
func (t *Tx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, price_at_time_cents)
		VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.PriceAtTimeCents)
	return err
}

// InsertPayment creates a new payment record
func (t *Tx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, provider_intent_id, amount_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		payment.ID, payment.OrderID, payment.ProviderIntentID,
		payment.AmountCents, payment.Status)
	return err
}

// PaymentByIntentIDForUpdate locks and loads the payment for an external
// intent id. Returns nil when no payment references the intent.
func (t *Tx) PaymentByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := t.tx.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE provider_intent_id = $1 FOR UPDATE", intentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return &payment, nil
}

// OrderByIDForUpdate locks and loads an order row
func (t *Tx) OrderByIDForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return &order, nil
}

// SetOrderStatus updates order status
func (t *Tx) SetOrderStatus(ctx context.Context, orderID, status string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// SetOrderInvoiceNumber assigns the order's invoice number
func (t *Tx) SetOrderInvoiceNumber(ctx context.Context, orderID, number string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET invoice_number = $1, updated_at = NOW() WHERE id = $2",
		number, orderID)
	return err
}

// SetPaymentStatus updates payment status
func (t *Tx) SetPaymentStatus(ctx context.Context, paymentID, status string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2",
		status, paymentID)
	return err
}

// InsertWebhookEvent records a processed provider event. Inserted in the
// same transaction as the state change it guards.
func (t *Tx) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO webhook_events (id, payload, processed_at)
		VALUES ($1, $2, $3)`,
		event.ID, event.Payload, event.ProcessedAt)
	return err
}

// WebhookEventExists checks whether a provider event has been processed
func (s *Store) WebhookEventExists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM webhook_events WHERE id = $1)", eventID)
	return exists, err
}

// OrderByID retrieves an order by ID
func (s *Store) OrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Orders retrieves orders newest first, paginated
func (s *Store) Orders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	return orders, err
}

// OrderItemsByOrderID retrieves all items for an order
func (s *Store) OrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// PaymentByOrderID retrieves the payment for an order
func (s *Store) PaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
