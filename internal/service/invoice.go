package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront/config"
	"storefront/internal/invoicing"
	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/taskqueue"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoicePipeline allocates invoice numbers, builds transmission payloads
// and delivers them to the e-invoicing gateway, recording every attempt.
type InvoicePipeline struct {
	store     port.Store
	sender    InvoiceSender
	queue     TransmissionQueue
	publisher EventPublisher
	cfg       config.InvoicingConfig
	currency  string
	logger    *zap.Logger
}

// NewInvoicePipeline creates a new invoice pipeline
func NewInvoicePipeline(store port.Store, sender InvoiceSender, queue TransmissionQueue, publisher EventPublisher, cfg config.InvoicingConfig, currency string) *InvoicePipeline {
	return &InvoicePipeline{
		store:     store,
		sender:    sender,
		queue:     queue,
		publisher: publisher,
		cfg:       cfg,
		currency:  strings.ToUpper(currency),
		logger:    util.GetLogger(),
	}
}

// CreateForOrder allocates a unique invoice number, stores it on the order,
// creates a draft invoice and enqueues asynchronous transmission.
func (p *InvoicePipeline) CreateForOrder(ctx context.Context, orderID string) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoicePipeline.CreateForOrder")
	defer span.End()

	invoice := &models.Invoice{
		ID:      uuid.New().String(),
		OrderID: orderID,
		Status:  models.InvoiceStatusDraft,
	}

	err := p.store.InTx(ctx, func(tx port.Tx) error {
		number, err := p.allocateNumber(ctx, tx)
		if err != nil {
			return err
		}
		if err := tx.SetOrderInvoiceNumber(ctx, orderID, number); err != nil {
			return fmt.Errorf("failed to store invoice number: %w", err)
		}
		return tx.InsertInvoice(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	if err := p.queue.Enqueue(ctx, taskqueue.Task{InvoiceID: invoice.ID}, 0); err != nil {
		// The stuck-invoice sweep re-dispatches drafts, so a failed
		// enqueue degrades to a delay rather than a lost invoice.
		p.logger.Error("Failed to enqueue invoice transmission",
			zap.String("invoice_id", invoice.ID),
			zap.Error(err))
	}

	p.logger.Info("Invoice created", zap.String("invoice_id", invoice.ID), zap.String("order_id", orderID))
	return invoice, nil
}

// allocateNumber generates a PREFIX-YEAR-SEGMENT number, regenerating on
// collision against the existing invoice-number space before commit.
func (p *InvoicePipeline) allocateNumber(ctx context.Context, tx port.Tx) (string, error) {
	for {
		segment := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
		number := fmt.Sprintf("%s-%d-%s", p.cfg.NumberPrefix, time.Now().Year(), segment)

		exists, err := tx.InvoiceNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("failed to check invoice number: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
}

// Transmit delivers one invoice to the gateway. On success the invoice is
// marked transmitted; on failure a failed attempt is recorded and the error
// returned so the worker can retry per the backoff policy. Invoices already
// transmitted are skipped, which makes sweep re-dispatch safe.
func (p *InvoicePipeline) Transmit(ctx context.Context, invoiceID string) error {
	ctx, span := util.StartSpan(ctx, "InvoicePipeline.Transmit")
	defer span.End()

	invoice, err := p.store.InvoiceByID(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to load invoice: %w", err)
	}
	if invoice == nil {
		return fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
	}
	if invoice.Status == models.InvoiceStatusTransmitted {
		return nil
	}

	payload, err := p.BuildPayload(ctx, invoice)
	if err != nil {
		return err
	}

	start := time.Now()
	transmissionID, err := p.sender.Send(ctx, *payload)
	util.InvoiceTransmissionLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.InvoiceTransmissionsTotal.WithLabelValues("failure").Inc()
		p.recordAttempt(ctx, invoiceID, false, map[string]string{"error": err.Error()})
		p.logger.Warn("Invoice transmission failed",
			zap.String("invoice_id", invoiceID),
			zap.Error(err))
		return err
	}

	if err := p.store.SetInvoiceTransmitted(ctx, invoiceID, transmissionID); err != nil {
		return fmt.Errorf("failed to mark invoice transmitted: %w", err)
	}
	p.recordAttempt(ctx, invoiceID, true, map[string]string{"id": transmissionID})
	util.InvoiceTransmissionsTotal.WithLabelValues("success").Inc()

	p.logger.Info("Invoice transmitted",
		zap.String("invoice_id", invoiceID),
		zap.String("transmission_id", transmissionID))
	p.publishTransmitted(ctx, invoice, transmissionID)
	return nil
}

// BuildPayload assembles the gateway payload from the order and its
// snapshotted items.
func (p *InvoicePipeline) BuildPayload(ctx context.Context, invoice *models.Invoice) (*invoicing.Payload, error) {
	order, err := p.store.OrderByID(ctx, invoice.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", invoice.OrderID, ErrNotFound)
	}

	items, err := p.store.OrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	payloadItems := make([]invoicing.Item, 0, len(items))
	for _, item := range items {
		product, err := p.store.ProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load product %s: %w", item.ProductID, err)
		}
		description := item.ProductID
		if product != nil {
			description = product.Name
		}
		payloadItems = append(payloadItems, invoicing.Item{
			Description: description,
			Quantity:    item.Quantity,
			Price:       float64(item.PriceAtTimeCents) / 100,
		})
	}

	return &invoicing.Payload{
		InvoiceNumber: order.InvoiceNumber.String,
		IssueDate:     invoice.CreatedAt.Format("2006-01-02"),
		Supplier: invoicing.Supplier{
			UEN:             p.cfg.SupplierUEN,
			TaxRegistration: p.cfg.SupplierTaxID,
			Name:            p.cfg.SupplierName,
		},
		Customer: invoicing.Customer{Email: order.Email},
		Totals: invoicing.Totals{
			Subtotal: float64(order.SubtotalCents) / 100,
			Tax:      float64(order.TaxCents) / 100,
			Total:    float64(order.TotalCents) / 100,
			Currency: p.currency,
		},
		Items: payloadItems,
	}, nil
}

func (p *InvoicePipeline) recordAttempt(ctx context.Context, invoiceID string, success bool, response map[string]string) {
	payload, _ := json.Marshal(response)
	attempt := &models.TransmissionAttempt{
		ID:              uuid.New().String(),
		InvoiceID:       invoiceID,
		AttemptAt:       time.Now(),
		Success:         success,
		ResponsePayload: payload,
	}
	if err := p.store.InsertTransmissionAttempt(ctx, attempt); err != nil {
		p.logger.Error("Failed to record transmission attempt",
			zap.String("invoice_id", invoiceID),
			zap.Error(err))
	}
}

func (p *InvoicePipeline) publishTransmitted(ctx context.Context, invoice *models.Invoice, transmissionID string) {
	if p.publisher == nil {
		return
	}
	event := &models.InvoiceTransmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInvoiceTransmitted,
			Timestamp: time.Now(),
		},
		InvoiceID:      invoice.ID,
		OrderID:        invoice.OrderID,
		TransmissionID: transmissionID,
	}
	if err := p.publisher.PublishInvoiceTransmitted(ctx, event); err != nil {
		p.logger.Error("Failed to publish InvoiceTransmitted event", zap.Error(err))
	}
}
