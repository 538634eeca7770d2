package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/port"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebhookProcessor consumes signed, at-least-once payment notifications and
// idempotently reconciles them against orders, payments and reservations.
type WebhookProcessor struct {
	store        port.Store
	reservations *ReservationEngine
	invoices     *InvoicePipeline
	publisher    EventPublisher
	secret       string
	logger       *zap.Logger
}

// NewWebhookProcessor creates a new webhook processor
func NewWebhookProcessor(store port.Store, reservations *ReservationEngine, invoices *InvoicePipeline, publisher EventPublisher, webhookSecret string) *WebhookProcessor {
	return &WebhookProcessor{
		store:        store,
		reservations: reservations,
		invoices:     invoices,
		publisher:    publisher,
		secret:       webhookSecret,
		logger:       util.GetLogger(),
	}
}

// Handle verifies and processes one webhook delivery. Unknown event types
// and events whose target rows are missing are acknowledged and ignored:
// failing them would only make the processor retry a payload that will
// never resolve. Only a bad signature is an error.
func (p *WebhookProcessor) Handle(ctx context.Context, rawPayload []byte, signatureHeader string) error {
	ctx, span := util.StartSpan(ctx, "WebhookProcessor.Handle")
	defer span.End()

	event, err := payment.ConstructEvent(rawPayload, signatureHeader, p.secret)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("bad_signature").Inc()
		p.logger.Error("Webhook signature verification failed", zap.Error(err))
		return err
	}

	processed, err := p.store.WebhookEventExists(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to check webhook event: %w", err)
	}
	if processed {
		util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		p.logger.Info("Webhook event already processed", zap.String("event_id", event.ID))
		return nil
	}

	// The state change and the webhook-event row commit together, so a
	// crash between them cannot leave a half-applied, un-recorded event.
	var paidOrder *models.Order
	err = p.store.InTx(ctx, func(tx port.Tx) error {
		if event.Type == payment.EventPaymentSucceeded {
			order, err := p.applyPaymentSucceeded(ctx, tx, &event.Data.Object)
			if err != nil {
				return err
			}
			paidOrder = order
		}

		return tx.InsertWebhookEvent(ctx, &models.WebhookEvent{
			ID:          event.ID,
			Payload:     rawPayload,
			ProcessedAt: time.Now(),
		})
	})
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("error").Inc()
		return err
	}

	util.WebhookEventsTotal.WithLabelValues("processed").Inc()

	if paidOrder != nil {
		util.OrdersPaidTotal.Inc()
		p.publishOrderPaid(ctx, paidOrder, &event.Data.Object)

		// Triggered at most once per order: guarded by the same
		// already-paid check that gates the state transition.
		if _, err := p.invoices.CreateForOrder(ctx, paidOrder.ID); err != nil {
			p.logger.Error("Failed to create invoice for paid order",
				zap.String("order_id", paidOrder.ID),
				zap.Error(err))
		}
	}
	return nil
}

// applyPaymentSucceeded transitions the order to paid and commits the
// reservation group, all inside the caller's transaction. Returns nil when
// there is nothing to reconcile.
func (p *WebhookProcessor) applyPaymentSucceeded(ctx context.Context, tx port.Tx, intent *payment.Intent) (*models.Order, error) {
	pay, err := tx.PaymentByIntentIDForUpdate(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	if pay == nil {
		p.logger.Warn("Payment not found for intent", zap.String("intent_id", intent.ID))
		return nil, nil
	}

	order, err := tx.OrderByIDForUpdate(ctx, pay.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		p.logger.Warn("Order missing for payment", zap.String("payment_id", pay.ID))
		return nil, nil
	}
	if order.Status == models.OrderStatusPaid {
		// Same-event logic ran before the webhook row existed.
		return nil, nil
	}

	if err := tx.SetOrderStatus(ctx, order.ID, models.OrderStatusPaid); err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if err := tx.SetPaymentStatus(ctx, pay.ID, models.PaymentStatusSucceeded); err != nil {
		return nil, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}

	if groupID := intent.Metadata[payment.MetadataReservationGroup]; groupID != "" {
		if err := p.reservations.ConfirmTx(ctx, tx, groupID); err != nil {
			return nil, fmt.Errorf("failed to confirm reservation: %w", err)
		}
	}

	order.Status = models.OrderStatusPaid
	p.logger.Info("Order paid",
		zap.String("order_id", order.ID),
		zap.String("intent_id", intent.ID))
	return order, nil
}

func (p *WebhookProcessor) publishOrderPaid(ctx context.Context, order *models.Order, intent *payment.Intent) {
	if p.publisher == nil {
		return
	}
	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: time.Now(),
		},
		OrderID:            order.ID,
		ReservationGroupID: intent.Metadata[payment.MetadataReservationGroup],
		AmountCents:        order.TotalCents,
		IntentID:           intent.ID,
	}
	if err := p.publisher.PublishOrderPaid(ctx, event); err != nil {
		p.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
}
