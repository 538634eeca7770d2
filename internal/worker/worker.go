// Package worker runs the asynchronous invoice transmission loop: it polls
// the delayed task queue and drives the invoice pipeline, re-enqueueing
// failed tasks per the backoff table.
package worker

import (
	"context"
	"time"

	"storefront/internal/taskqueue"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// DefaultBackoff is the delay applied before retry n+1 after attempt n fails
var DefaultBackoff = []time.Duration{60 * time.Second, 300 * time.Second, 600 * time.Second}

// DefaultMaxAttempts bounds delivery attempts per enqueued task chain.
// Exhausted invoices stay in draft for the stuck-invoice sweep.
const DefaultMaxAttempts = 3

// Transmitter delivers one invoice. Implemented by service.InvoicePipeline.
type Transmitter interface {
	Transmit(ctx context.Context, invoiceID string) error
}

// TaskSource is the queue end the worker consumes. Implemented by
// taskqueue.Queue.
type TaskSource interface {
	PopDue(ctx context.Context, now time.Time, limit int) ([]taskqueue.Task, error)
	Enqueue(ctx context.Context, task taskqueue.Task, delay time.Duration) error
}

// TransmissionWorker polls for due transmission tasks
type TransmissionWorker struct {
	queue       TaskSource
	transmitter Transmitter
	interval    time.Duration
	maxAttempts int
	backoff     []time.Duration
	logger      *zap.Logger
}

// NewTransmissionWorker creates a worker polling at the given interval
func NewTransmissionWorker(queue TaskSource, transmitter Transmitter, interval time.Duration) *TransmissionWorker {
	return &TransmissionWorker{
		queue:       queue,
		transmitter: transmitter,
		interval:    interval,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		logger:      util.GetLogger(),
	}
}

// Start runs the polling loop until the context is cancelled
func (w *TransmissionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting invoice transmission worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Invoice transmission worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes every task currently due
func (w *TransmissionWorker) drain(ctx context.Context) {
	for {
		tasks, err := w.queue.PopDue(ctx, time.Now(), 10)
		if err != nil {
			w.logger.Error("Failed to poll transmission queue", zap.Error(err))
			return
		}
		if len(tasks) == 0 {
			return
		}

		for _, task := range tasks {
			w.process(ctx, task)
		}
	}
}

// process runs one delivery attempt and schedules the retry on failure
func (w *TransmissionWorker) process(ctx context.Context, task taskqueue.Task) {
	err := w.transmitter.Transmit(ctx, task.InvoiceID)
	if err == nil {
		return
	}

	next := task.Attempt + 1
	if next >= w.maxAttempts {
		w.logger.Warn("Invoice transmission abandoned after retries",
			zap.String("invoice_id", task.InvoiceID),
			zap.Int("attempts", next),
			zap.Error(err))
		return
	}

	delay := w.backoff[len(w.backoff)-1]
	if task.Attempt < len(w.backoff) {
		delay = w.backoff[task.Attempt]
	}

	if err := w.queue.Enqueue(ctx, taskqueue.Task{InvoiceID: task.InvoiceID, Attempt: next}, delay); err != nil {
		w.logger.Error("Failed to re-enqueue transmission task",
			zap.String("invoice_id", task.InvoiceID),
			zap.Error(err))
	}
}
