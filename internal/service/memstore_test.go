package service

import (
	"context"
	"sync"
	"time"

	"storefront/internal/invoicing"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/port"
	"storefront/internal/taskqueue"
)

// memStore is an in-memory port.Store shared by the service tests. InTx
// serializes callers with a mutex and restores a snapshot on error, giving
// the same all-or-nothing, one-writer-at-a-time semantics the row-locked
// SQL implementation provides.
type memStore struct {
	mu       sync.Mutex
	products map[string]models.Product
	stocks   map[string]models.StockRecord
	lines    map[string]models.ReservationLine
	ledger   []models.LedgerEntry
	sessions map[string]models.EventSession
	bookings []models.Booking
	orders   map[string]models.Order
	items    []models.OrderItem
	payments map[string]models.Payment
	webhooks map[string]models.WebhookEvent
	invoices map[string]models.Invoice
	attempts []models.TransmissionAttempt
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]models.Product),
		stocks:   make(map[string]models.StockRecord),
		lines:    make(map[string]models.ReservationLine),
		sessions: make(map[string]models.EventSession),
		orders:   make(map[string]models.Order),
		payments: make(map[string]models.Payment),
		webhooks: make(map[string]models.WebhookEvent),
		invoices: make(map[string]models.Invoice),
	}
}

func (m *memStore) addProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.SKU] = p
}

func (m *memStore) addStock(sku string, stock, reserved int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[sku] = models.StockRecord{SKU: sku, StockCount: stock, ReservedCount: reserved}
}

func (m *memStore) addSession(s models.EventSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *memStore) addInvoice(inv models.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
}

func (m *memStore) stock(sku string) models.StockRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stocks[sku]
}

func (m *memStore) ledgerForSKU(sku string) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.ledger {
		if e.SKU == sku {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) snapshot() *memStore {
	s := newMemStore()
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.stocks {
		s.stocks[k] = v
	}
	for k, v := range m.lines {
		s.lines[k] = v
	}
	s.ledger = append([]models.LedgerEntry(nil), m.ledger...)
	for k, v := range m.sessions {
		s.sessions[k] = v
	}
	s.bookings = append([]models.Booking(nil), m.bookings...)
	for k, v := range m.orders {
		s.orders[k] = v
	}
	s.items = append([]models.OrderItem(nil), m.items...)
	for k, v := range m.payments {
		s.payments[k] = v
	}
	for k, v := range m.webhooks {
		s.webhooks[k] = v
	}
	for k, v := range m.invoices {
		s.invoices[k] = v
	}
	s.attempts = append([]models.TransmissionAttempt(nil), m.attempts...)
	return s
}

func (m *memStore) restore(s *memStore) {
	m.products = s.products
	m.stocks = s.stocks
	m.lines = s.lines
	m.ledger = s.ledger
	m.sessions = s.sessions
	m.bookings = s.bookings
	m.orders = s.orders
	m.items = s.items
	m.payments = s.payments
	m.webhooks = s.webhooks
	m.invoices = s.invoices
	m.attempts = s.attempts
}

func (m *memStore) InTx(ctx context.Context, fn func(tx port.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.snapshot()
	if err := fn(&memTx{store: m}); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

func (m *memStore) ActiveProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[sku]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *memStore) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memStore) ActiveLines(ctx context.Context, groupID string) ([]models.ReservationLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLinesLocked(groupID), nil
}

func (m *memStore) activeLinesLocked(groupID string) []models.ReservationLine {
	var out []models.ReservationLine
	for _, l := range m.lines {
		if l.GroupID == groupID && l.Status == models.ReservationStatusActive {
			out = append(out, l)
		}
	}
	return out
}

func (m *memStore) ExpiredActiveGroupIDs(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, l := range m.lines {
		if l.Status == models.ReservationStatusActive && l.ExpiresAt.Before(now) && !seen[l.GroupID] {
			seen[l.GroupID] = true
			out = append(out, l.GroupID)
		}
	}
	return out, nil
}

func (m *memStore) WebhookEventExists(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.webhooks[eventID]
	return ok, nil
}

func (m *memStore) OrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		return &o, nil
	}
	return nil, nil
}

func (m *memStore) Orders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *memStore) OrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderItem
	for _, it := range m.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) PaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memStore) InvoiceByID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.invoices[invoiceID]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (m *memStore) InvoiceByOrderID(ctx context.Context, orderID string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.OrderID == orderID {
			return &inv, nil
		}
	}
	return nil, nil
}

func (m *memStore) StuckDraftInvoices(ctx context.Context, olderThan time.Time) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Invoice
	for _, inv := range m.invoices {
		if inv.Status == models.InvoiceStatusDraft && inv.CreatedAt.Before(olderThan) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memStore) SetInvoiceTransmitted(ctx context.Context, invoiceID, transmissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.invoices[invoiceID]
	inv.Status = models.InvoiceStatusTransmitted
	inv.ProviderTransmissionID.String = transmissionID
	inv.ProviderTransmissionID.Valid = true
	m.invoices[invoiceID] = inv
	return nil
}

func (m *memStore) SetInvoiceStatus(ctx context.Context, invoiceID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.invoices[invoiceID]
	inv.Status = status
	m.invoices[invoiceID] = inv
	return nil
}

func (m *memStore) InsertTransmissionAttempt(ctx context.Context, attempt *models.TransmissionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *memStore) AttemptsByInvoiceID(ctx context.Context, invoiceID string) ([]models.TransmissionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransmissionAttempt
	for _, a := range m.attempts {
		if a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) UpcomingSessions(ctx context.Context, after time.Time) ([]models.EventSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EventSession
	for _, s := range m.sessions {
		if s.StartsAt.After(after) {
			out = append(out, s)
		}
	}
	return out, nil
}

// memTx mutates the store directly; InTx already holds the lock and
// handles rollback.
type memTx struct {
	store *memStore
}

func (t *memTx) StockForUpdate(ctx context.Context, sku string) (*models.StockRecord, error) {
	if rec, ok := t.store.stocks[sku]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (t *memTx) CreateStock(ctx context.Context, sku string, stockCount int) (*models.StockRecord, error) {
	rec := models.StockRecord{SKU: sku, StockCount: stockCount}
	t.store.stocks[sku] = rec
	return &rec, nil
}

func (t *memTx) SetStockCounts(ctx context.Context, sku string, stockCount, reservedCount int) error {
	rec := t.store.stocks[sku]
	rec.StockCount = stockCount
	rec.ReservedCount = reservedCount
	t.store.stocks[sku] = rec
	return nil
}

func (t *memTx) InsertReservationLine(ctx context.Context, line *models.ReservationLine) error {
	t.store.lines[line.ID] = *line
	return nil
}

func (t *memTx) ActiveLinesForUpdate(ctx context.Context, groupID string) ([]models.ReservationLine, error) {
	return t.store.activeLinesLocked(groupID), nil
}

func (t *memTx) SetLineStatus(ctx context.Context, lineID, status string) error {
	line := t.store.lines[lineID]
	line.Status = status
	t.store.lines[lineID] = line
	return nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	t.store.ledger = append(t.store.ledger, *entry)
	return nil
}

func (t *memTx) SessionForUpdate(ctx context.Context, sessionID string) (*models.EventSession, error) {
	if s, ok := t.store.sessions[sessionID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (t *memTx) SetSessionBookedCount(ctx context.Context, sessionID string, bookedCount int) error {
	s := t.store.sessions[sessionID]
	s.BookedCount = bookedCount
	t.store.sessions[sessionID] = s
	return nil
}

func (t *memTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	t.store.bookings = append(t.store.bookings, *booking)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.store.orders[order.ID] = *order
	return nil
}

func (t *memTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	t.store.items = append(t.store.items, *item)
	return nil
}

func (t *memTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	t.store.payments[payment.ID] = *payment
	return nil
}

func (t *memTx) PaymentByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Payment, error) {
	for _, p := range t.store.payments {
		if p.ProviderIntentID == intentID {
			return &p, nil
		}
	}
	return nil, nil
}

func (t *memTx) OrderByIDForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	if o, ok := t.store.orders[orderID]; ok {
		return &o, nil
	}
	return nil, nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, orderID, status string) error {
	o := t.store.orders[orderID]
	o.Status = status
	t.store.orders[orderID] = o
	return nil
}

func (t *memTx) SetOrderInvoiceNumber(ctx context.Context, orderID, number string) error {
	o := t.store.orders[orderID]
	o.InvoiceNumber.String = number
	o.InvoiceNumber.Valid = true
	t.store.orders[orderID] = o
	return nil
}

func (t *memTx) SetPaymentStatus(ctx context.Context, paymentID, status string) error {
	p := t.store.payments[paymentID]
	p.Status = status
	t.store.payments[paymentID] = p
	return nil
}

func (t *memTx) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	t.store.webhooks[event.ID] = *event
	return nil
}

func (t *memTx) InsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	stored := *invoice
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	t.store.invoices[invoice.ID] = stored
	return nil
}

func (t *memTx) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	for _, o := range t.store.orders {
		if o.InvoiceNumber.Valid && o.InvoiceNumber.String == number {
			return true, nil
		}
	}
	return false, nil
}

// fakeQueue records enqueued transmission tasks
type fakeQueue struct {
	mu    sync.Mutex
	tasks []taskqueue.Task
	err   error
}

func (q *fakeQueue) Enqueue(ctx context.Context, task taskqueue.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) enqueued() []taskqueue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]taskqueue.Task(nil), q.tasks...)
}

// fakeSender returns a canned transmission id or error
type fakeSender struct {
	id       string
	err      error
	payloads []invoicing.Payload
}

func (s *fakeSender) Send(ctx context.Context, payload invoicing.Payload) (string, error) {
	s.payloads = append(s.payloads, payload)
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}

// fakePayments returns a canned intent or error
type fakePayments struct {
	err      error
	requests []payment.IntentRequest
}

func (f *fakePayments) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Intent{
		ID:           "pi_" + req.Metadata[payment.MetadataOrderID],
		ClientSecret: "secret_test",
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		Status:       "requires_payment_method",
		Metadata:     req.Metadata,
	}, nil
}
