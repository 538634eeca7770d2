package service

import (
	"context"
	"time"

	"storefront/internal/invoicing"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/taskqueue"
)

// PaymentProvider creates payment intents with the external processor.
// Implemented by payment.Client.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
}

// InvoiceSender delivers an invoice payload to the e-invoicing gateway and
// returns the gateway's transmission id. Implemented by invoicing.Client.
type InvoiceSender interface {
	Send(ctx context.Context, payload invoicing.Payload) (string, error)
}

// TransmissionQueue schedules asynchronous invoice transmission tasks.
// Implemented by taskqueue.Queue.
type TransmissionQueue interface {
	Enqueue(ctx context.Context, task taskqueue.Task, delay time.Duration) error
}

// EventPublisher publishes domain events for downstream consumers. All
// publishing is best-effort: failures are logged, never propagated.
// Implemented by broker.EventPublisher; may be nil to disable publishing.
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishReservationReleased(ctx context.Context, event *models.ReservationReleasedEvent) error
	PublishInvoiceTransmitted(ctx context.Context, event *models.InvoiceTransmittedEvent) error
}
