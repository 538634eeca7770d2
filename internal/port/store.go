// Package port declares the storage contracts consumed by the service layer.
// The sqlx/Postgres implementation lives in internal/store; tests substitute
// an in-memory implementation.
package port

import (
	"context"
	"time"

	"storefront/internal/models"
)

// Tx is the set of operations available inside one database transaction.
// *ForUpdate methods take an exclusive row lock that is held until the
// transaction commits or rolls back.
type Tx interface {
	// Stock and reservations. StockForUpdate returns nil when no record
	// exists for the SKU.
	StockForUpdate(ctx context.Context, sku string) (*models.StockRecord, error)
	CreateStock(ctx context.Context, sku string, stockCount int) (*models.StockRecord, error)
	SetStockCounts(ctx context.Context, sku string, stockCount, reservedCount int) error
	InsertReservationLine(ctx context.Context, line *models.ReservationLine) error
	ActiveLinesForUpdate(ctx context.Context, groupID string) ([]models.ReservationLine, error)
	SetLineStatus(ctx context.Context, lineID, status string) error
	InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error

	// Event sessions and bookings.
	SessionForUpdate(ctx context.Context, sessionID string) (*models.EventSession, error)
	SetSessionBookedCount(ctx context.Context, sessionID string, bookedCount int) error
	InsertBooking(ctx context.Context, booking *models.Booking) error

	// Orders, payments and webhook bookkeeping.
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	InsertPayment(ctx context.Context, payment *models.Payment) error
	PaymentByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Payment, error)
	OrderByIDForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	SetOrderStatus(ctx context.Context, orderID, status string) error
	SetOrderInvoiceNumber(ctx context.Context, orderID, number string) error
	SetPaymentStatus(ctx context.Context, paymentID, status string) error
	InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error

	// Invoices.
	InsertInvoice(ctx context.Context, invoice *models.Invoice) error
	InvoiceNumberExists(ctx context.Context, number string) (bool, error)
}

// Store is the durable store shared by every engine. InTx runs fn inside a
// single transaction: any error rolls the whole transaction back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	ActiveProducts(ctx context.Context) ([]models.Product, error)
	ProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	ProductByID(ctx context.Context, id string) (*models.Product, error)

	ActiveLines(ctx context.Context, groupID string) ([]models.ReservationLine, error)
	ExpiredActiveGroupIDs(ctx context.Context, now time.Time) ([]string, error)

	WebhookEventExists(ctx context.Context, eventID string) (bool, error)

	OrderByID(ctx context.Context, orderID string) (*models.Order, error)
	Orders(ctx context.Context, limit, offset int) ([]models.Order, error)
	OrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	PaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)

	InvoiceByID(ctx context.Context, invoiceID string) (*models.Invoice, error)
	InvoiceByOrderID(ctx context.Context, orderID string) (*models.Invoice, error)
	StuckDraftInvoices(ctx context.Context, olderThan time.Time) ([]models.Invoice, error)
	SetInvoiceTransmitted(ctx context.Context, invoiceID, transmissionID string) error
	SetInvoiceStatus(ctx context.Context, invoiceID, status string) error
	InsertTransmissionAttempt(ctx context.Context, attempt *models.TransmissionAttempt) error
	AttemptsByInvoiceID(ctx context.Context, invoiceID string) ([]models.TransmissionAttempt, error)

	UpcomingSessions(ctx context.Context, after time.Time) ([]models.EventSession, error)
}
