package models

import (
	"database/sql"
	"time"
)

// Product represents a product in the catalog. Prices are inclusive of tax
// and stored in cents.
type Product struct {
	ID          string    `db:"id" json:"id"`
	SKU         string    `db:"sku" json:"sku"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	PriceCents  int64     `db:"price_cents" json:"price_cents"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// StockRecord tracks physical units on hand and units held by active
// reservations for one SKU. available = stock_count - reserved_count and
// must never go negative. Rows are only mutated inside a locked transaction.
type StockRecord struct {
	SKU           string    `db:"sku" json:"sku"`
	StockCount    int       `db:"stock_count" json:"stock_count"`
	ReservedCount int       `db:"reserved_count" json:"reserved_count"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Available returns the units not held by any active reservation.
func (s *StockRecord) Available() int {
	return s.StockCount - s.ReservedCount
}

// ReservationLine is a single-SKU hold. Lines created by one reserve call
// share a group id and expiry. A line that is not active is immutable.
type ReservationLine struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	SKU       string    `db:"sku" json:"sku"`
	Quantity  int       `db:"quantity" json:"quantity"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Reservation line statuses
const (
	ReservationStatusActive    = "active"
	ReservationStatusCommitted = "committed"
	ReservationStatusExpired   = "expired"
)

// LedgerEntry is an append-only audit row. Entries record reserved-stock
// deltas with symmetric signs: +quantity on reservation_created, -quantity
// on reservation_confirmed and reservation_released. Admin adjustments
// record the physical stock delta.
type LedgerEntry struct {
	ID             string    `db:"id" json:"id"`
	SKU            string    `db:"sku" json:"sku"`
	QuantityChange int       `db:"quantity_change" json:"quantity_change"`
	Reason         string    `db:"reason" json:"reason"`
	ReferenceID    string    `db:"reference_id" json:"reference_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Ledger entry reasons
const (
	LedgerReasonReservationCreated   = "reservation_created"
	LedgerReasonReservationConfirmed = "reservation_confirmed"
	LedgerReasonReservationReleased  = "reservation_released"
	LedgerReasonAdjustment           = "adjustment"
)

// Order represents a checkout attempt. Financial fields are immutable after
// creation; the invoice number is assigned once, after payment confirmation.
type Order struct {
	ID            string         `db:"id" json:"id"`
	SubtotalCents int64          `db:"subtotal_cents" json:"subtotal_cents"`
	TaxCents      int64          `db:"tax_cents" json:"tax_cents"`
	TotalCents    int64          `db:"total_cents" json:"total_cents"`
	TaxRate       float64        `db:"tax_rate" json:"tax_rate"`
	InvoiceNumber sql.NullString `db:"invoice_number" json:"invoice_number,omitempty"`
	Status        string         `db:"status" json:"status"`
	Email         string         `db:"email" json:"email"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

// OrderItem snapshots a product and its price at order-creation time, so
// historical orders are immune to later price changes.
type OrderItem struct {
	ID               string `db:"id" json:"id"`
	OrderID          string `db:"order_id" json:"order_id"`
	ProductID        string `db:"product_id" json:"product_id"`
	Quantity         int    `db:"quantity" json:"quantity"`
	PriceAtTimeCents int64  `db:"price_at_time_cents" json:"price_at_time_cents"`
}

// Payment links an order to the external processor's payment intent.
type Payment struct {
	ID               string    `db:"id" json:"id"`
	OrderID          string    `db:"order_id" json:"order_id"`
	ProviderIntentID string    `db:"provider_intent_id" json:"provider_intent_id"`
	AmountCents      int64     `db:"amount_cents" json:"amount_cents"`
	Status           string    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// WebhookEvent records an already-handled provider event. The primary key is
// the provider's event id; existence of a row is the sole de-duplication
// mechanism for at-least-once webhook delivery.
type WebhookEvent struct {
	ID          string    `db:"id" json:"id"`
	Payload     []byte    `db:"payload" json:"-"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}

// Invoice tracks transmission of a tax invoice to the e-invoicing gateway.
type Invoice struct {
	ID                     string         `db:"id" json:"id"`
	OrderID                string         `db:"order_id" json:"order_id"`
	Status                 string         `db:"status" json:"status"`
	ProviderTransmissionID sql.NullString `db:"provider_transmission_id" json:"provider_transmission_id,omitempty"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// Invoice statuses
const (
	InvoiceStatusDraft       = "draft"
	InvoiceStatusTransmitted = "transmitted"
	InvoiceStatusFailed      = "failed"
)

// TransmissionAttempt is one delivery attempt, success or failure. Rows are
// append-only and form the audit trail independent of the invoice status.
type TransmissionAttempt struct {
	ID              string    `db:"id" json:"id"`
	InvoiceID       string    `db:"invoice_id" json:"invoice_id"`
	AttemptAt       time.Time `db:"attempt_at" json:"attempt_at"`
	Success         bool      `db:"success" json:"success"`
	ResponsePayload []byte    `db:"response_payload" json:"response_payload,omitempty"`
}

// EventSession is a finite-capacity timed session (tasting, workshop).
type EventSession struct {
	ID          string    `db:"id" json:"id"`
	EventID     string    `db:"event_id" json:"event_id"`
	Title       string    `db:"title" json:"title"`
	StartsAt    time.Time `db:"starts_at" json:"starts_at"`
	Capacity    int       `db:"capacity" json:"capacity"`
	BookedCount int       `db:"booked_count" json:"booked_count"`
}

// Booking is a confirmed seat count against a session. There is no
// cancellation or release flow for bookings.
type Booking struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Email     string    `db:"user_email" json:"email"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Booking statuses
const (
	BookingStatusConfirmed = "confirmed"
)
