package models

import "time"

// Event types published to the order-events topic
const (
	EventTypeOrderPaid           = "ORDER_PAID"
	EventTypeReservationReleased = "RESERVATION_RELEASED"
	EventTypeInvoiceTransmitted  = "INVOICE_TRANSMITTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPaidEvent published when a payment webhook confirms an order
type OrderPaidEvent struct {
	BaseEvent
	OrderID            string `json:"order_id"`
	ReservationGroupID string `json:"reservation_group_id"`
	AmountCents        int64  `json:"amount_cents"`
	IntentID           string `json:"intent_id"`
}

// ReservationReleasedEvent published when a reservation group is released,
// either explicitly or by the expiry sweep
type ReservationReleasedEvent struct {
	BaseEvent
	GroupID string `json:"group_id"`
	Reason  string `json:"reason"`
}

// InvoiceTransmittedEvent published when an invoice reaches the gateway
type InvoiceTransmittedEvent struct {
	BaseEvent
	InvoiceID      string `json:"invoice_id"`
	OrderID        string `json:"order_id"`
	TransmissionID string `json:"transmission_id"`
}
