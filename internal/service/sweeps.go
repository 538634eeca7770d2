package service

import (
	"context"
	"time"

	"storefront/internal/port"
	"storefront/internal/taskqueue"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Sweeper runs the periodic maintenance jobs that keep the system
// self-healing: releasing reservation groups past expiry and re-dispatching
// invoices stuck in draft. Both sweeps are idempotent and safe to run
// concurrently with request traffic.
type Sweeper struct {
	store        port.Store
	reservations *ReservationEngine
	queue        TransmissionQueue
	threshold    time.Duration
	logger       *zap.Logger
}

// NewSweeper creates a new sweeper. threshold is how long an invoice may
// sit in draft before the retrier picks it up.
func NewSweeper(store port.Store, reservations *ReservationEngine, queue TransmissionQueue, threshold time.Duration) *Sweeper {
	return &Sweeper{
		store:        store,
		reservations: reservations,
		queue:        queue,
		threshold:    threshold,
		logger:       util.GetLogger(),
	}
}

// ReleaseExpired releases every reservation group that still has active
// lines past their expiry. Groups released or confirmed since the scan are
// no-ops inside Release, so racing the webhook processor is safe.
func (s *Sweeper) ReleaseExpired(ctx context.Context) (int, error) {
	groupIDs, err := s.store.ExpiredActiveGroupIDs(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	released := 0
	for _, groupID := range groupIDs {
		if err := s.reservations.Release(ctx, groupID, "expired"); err != nil {
			s.logger.Error("Failed to release expired reservation group",
				zap.String("group_id", groupID),
				zap.Error(err))
			continue
		}
		released++
		util.SweepReleasedTotal.Inc()
	}

	if released > 0 {
		s.logger.Info("Expired reservations released", zap.Int("groups", released))
	}
	return released, nil
}

// RetryStuckInvoices re-enqueues transmission for every invoice still in
// draft beyond the age threshold. Attempt counts restart from zero; an
// invoice that was transmitted in the meantime is skipped by Transmit.
func (s *Sweeper) RetryStuckInvoices(ctx context.Context) (int, error) {
	invoices, err := s.store.StuckDraftInvoices(ctx, time.Now().Add(-s.threshold))
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, invoice := range invoices {
		if err := s.queue.Enqueue(ctx, taskqueue.Task{InvoiceID: invoice.ID}, 0); err != nil {
			s.logger.Error("Failed to re-enqueue stuck invoice",
				zap.String("invoice_id", invoice.ID),
				zap.Error(err))
			continue
		}
		retried++
		util.SweepInvoicesRetriedTotal.Inc()
	}

	if retried > 0 {
		s.logger.Info("Stuck invoices re-enqueued", zap.Int("invoices", retried))
	}
	return retried, nil
}
