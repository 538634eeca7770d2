package broker

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

// EventPublisher publishes domain events keyed for per-entity ordering.
// Downstream consumers (fulfilment, email) are outside this service.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPaid publishes an OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReservationReleased publishes a ReservationReleased event
func (ep *EventPublisher) PublishReservationReleased(ctx context.Context, event *models.ReservationReleasedEvent) error {
	key := fmt.Sprintf("reservation-%s", event.GroupID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishInvoiceTransmitted publishes an InvoiceTransmitted event
func (ep *EventPublisher) PublishInvoiceTransmitted(ctx context.Context, event *models.InvoiceTransmittedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}
