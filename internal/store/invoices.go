package store

import (
	"context"
	"database/sql"
	"time"

	"storefront/internal/models"
)

// InsertInvoice creates a draft invoice
func (t *Tx) InsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO invoices (id, order_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())`,
		invoice.ID, invoice.OrderID, invoice.Status)
	return err
}

// InvoiceNumberExists checks a candidate number against the existing
// invoice-number space on orders
func (t *Tx) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE invoice_number = $1)", number)
	return exists, err
}

// InvoiceByID retrieves an invoice by ID
func (s *Store) InvoiceByID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.GetContext(ctx, &invoice, "SELECT * FROM invoices WHERE id = $1", invoiceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// InvoiceByOrderID retrieves the invoice for an order
func (s *Store) InvoiceByOrderID(ctx context.Context, orderID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.GetContext(ctx, &invoice, "SELECT * FROM invoices WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// StuckDraftInvoices retrieves invoices still in draft older than the
// given threshold
func (s *Store) StuckDraftInvoices(ctx context.Context, olderThan time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.SelectContext(ctx, &invoices,
		"SELECT * FROM invoices WHERE status = $1 AND created_at < $2",
		models.InvoiceStatusDraft, olderThan)
	return invoices, err
}

// SetInvoiceTransmitted marks an invoice transmitted and stores the
// gateway's transmission id
func (s *Store) SetInvoiceTransmitted(ctx context.Context, invoiceID, transmissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $1, provider_transmission_id = $2, updated_at = NOW()
		WHERE id = $3`,
		models.InvoiceStatusTransmitted, transmissionID, invoiceID)
	return err
}

// SetInvoiceStatus updates an invoice's status
func (s *Store) SetInvoiceStatus(ctx context.Context, invoiceID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2",
		status, invoiceID)
	return err
}

// InsertTransmissionAttempt appends a delivery attempt record
func (s *Store) InsertTransmissionAttempt(ctx context.Context, attempt *models.TransmissionAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_transmissions (id, invoice_id, attempt_at, success, response_payload)
		VALUES ($1, $2, $3, $4, $5)`,
		attempt.ID, attempt.InvoiceID, attempt.AttemptAt, attempt.Success, attempt.ResponsePayload)
	return err
}

// AttemptsByInvoiceID retrieves all delivery attempts for an invoice
func (s *Store) AttemptsByInvoiceID(ctx context.Context, invoiceID string) ([]models.TransmissionAttempt, error) {
	var attempts []models.TransmissionAttempt
	err := s.db.SelectContext(ctx, &attempts,
		"SELECT * FROM invoice_transmissions WHERE invoice_id = $1 ORDER BY attempt_at", invoiceID)
	return attempts, err
}
