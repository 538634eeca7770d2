package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReservationEngine creates, commits and releases reservation groups
// against the ledger store. It is the only component that mutates stock
// records, always inside a locked transaction.
type ReservationEngine struct {
	store        port.Store
	publisher    EventPublisher
	defaultStock int
	ttl          time.Duration
	logger       *zap.Logger
}

// NewReservationEngine creates a new reservation engine. defaultStock seeds
// stock records created lazily on first reservation; ttl is the hold window
// applied when the caller does not override it.
func NewReservationEngine(store port.Store, publisher EventPublisher, defaultStock int, ttl time.Duration) *ReservationEngine {
	return &ReservationEngine{
		store:        store,
		publisher:    publisher,
		defaultStock: defaultStock,
		ttl:          ttl,
		logger:       util.GetLogger(),
	}
}

// ReserveItem is one requested hold within a reservation call
type ReserveItem struct {
	SKU      string `json:"sku" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// ReservationResult identifies the created group
type ReservationResult struct {
	GroupID   string    `json:"reservation_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Reserve places holds for all items in a single transaction. SKUs are
// locked in sorted order across all call sites so concurrent multi-item
// reservations cannot deadlock. If any item cannot be satisfied the whole
// transaction aborts and no partial holds are left behind.
func (e *ReservationEngine) Reserve(ctx context.Context, items []ReserveItem) (*ReservationResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationEngine.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if len(items) == 0 {
		return nil, fmt.Errorf("no items to reserve")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for SKU %s", item.Quantity, item.SKU)
		}
	}

	sorted := make([]ReserveItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SKU < sorted[j].SKU })

	groupID := uuid.New().String()
	expiresAt := time.Now().Add(e.ttl)

	err := e.store.InTx(ctx, func(tx port.Tx) error {
		for _, item := range sorted {
			rec, err := tx.StockForUpdate(ctx, item.SKU)
			if err != nil {
				return err
			}
			if rec == nil {
				// Lazy bootstrap for unseen SKUs, a seeding
				// convenience rather than inventory management.
				rec, err = tx.CreateStock(ctx, item.SKU, e.defaultStock)
				if err != nil {
					return err
				}
			}

			if rec.Available() < item.Quantity {
				return &InsufficientStockError{SKU: item.SKU}
			}

			if err := tx.SetStockCounts(ctx, item.SKU, rec.StockCount, rec.ReservedCount+item.Quantity); err != nil {
				return fmt.Errorf("failed to update stock counts: %w", err)
			}

			line := &models.ReservationLine{
				ID:        uuid.New().String(),
				GroupID:   groupID,
				SKU:       item.SKU,
				Quantity:  item.Quantity,
				ExpiresAt: expiresAt,
				Status:    models.ReservationStatusActive,
			}
			if err := tx.InsertReservationLine(ctx, line); err != nil {
				return fmt.Errorf("failed to insert reservation line: %w", err)
			}

			if err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
				ID:             uuid.New().String(),
				SKU:            item.SKU,
				QuantityChange: item.Quantity,
				Reason:         models.LedgerReasonReservationCreated,
				ReferenceID:    line.ID,
			}); err != nil {
				return fmt.Errorf("failed to append ledger entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*InsufficientStockError); ok {
			util.ReservationsRejectedTotal.WithLabelValues("insufficient_stock").Inc()
		}
		return nil, err
	}

	util.ReservationsCreatedTotal.Inc()
	e.logger.Info("Reservation group created",
		zap.String("group_id", groupID),
		zap.Int("lines", len(sorted)),
		zap.Time("expires_at", expiresAt))

	return &ReservationResult{GroupID: groupID, ExpiresAt: expiresAt}, nil
}

// Confirm commits a reservation group: stock is deducted and the hold is
// released, for every line still active. Calling it on a group with no
// active lines is a no-op, which makes duplicate webhook delivery and the
// confirm/expiry race safe.
func (e *ReservationEngine) Confirm(ctx context.Context, groupID string) error {
	ctx, span := util.StartSpan(ctx, "ReservationEngine.Confirm")
	defer span.End()

	return e.store.InTx(ctx, func(tx port.Tx) error {
		return e.ConfirmTx(ctx, tx, groupID)
	})
}

// ConfirmTx is Confirm inside a caller-owned transaction. The webhook
// processor uses it so the stock commit and the order's paid transition
// share one transaction.
func (e *ReservationEngine) ConfirmTx(ctx context.Context, tx port.Tx, groupID string) error {
	lines, err := tx.ActiveLinesForUpdate(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to lock reservation lines: %w", err)
	}
	if len(lines) == 0 {
		// Already confirmed or released.
		return nil
	}

	for _, line := range lines {
		rec, err := tx.StockForUpdate(ctx, line.SKU)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("stock record missing for SKU %s", line.SKU)
		}

		// The only path that reduces physical stock.
		if err := tx.SetStockCounts(ctx, line.SKU, rec.StockCount-line.Quantity, rec.ReservedCount-line.Quantity); err != nil {
			return fmt.Errorf("failed to commit stock: %w", err)
		}
		if err := tx.SetLineStatus(ctx, line.ID, models.ReservationStatusCommitted); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
			ID:             uuid.New().String(),
			SKU:            line.SKU,
			QuantityChange: -line.Quantity,
			Reason:         models.LedgerReasonReservationConfirmed,
			ReferenceID:    line.ID,
		}); err != nil {
			return err
		}
	}

	util.ReservationsConfirmedTotal.Inc()
	e.logger.Info("Reservation group confirmed",
		zap.String("group_id", groupID),
		zap.Int("lines", len(lines)))
	return nil
}

// Release expires a reservation group: the hold is released and physical
// stock is untouched. Safe to call on a group with no active lines. Used
// for explicit cancellation and by the expiry sweep.
func (e *ReservationEngine) Release(ctx context.Context, groupID, reason string) error {
	ctx, span := util.StartSpan(ctx, "ReservationEngine.Release")
	defer span.End()

	released := 0
	err := e.store.InTx(ctx, func(tx port.Tx) error {
		lines, err := tx.ActiveLinesForUpdate(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to lock reservation lines: %w", err)
		}

		for _, line := range lines {
			rec, err := tx.StockForUpdate(ctx, line.SKU)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("stock record missing for SKU %s", line.SKU)
			}

			if err := tx.SetStockCounts(ctx, line.SKU, rec.StockCount, rec.ReservedCount-line.Quantity); err != nil {
				return fmt.Errorf("failed to release stock: %w", err)
			}
			if err := tx.SetLineStatus(ctx, line.ID, models.ReservationStatusExpired); err != nil {
				return err
			}
			if err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
				ID:             uuid.New().String(),
				SKU:            line.SKU,
				QuantityChange: -line.Quantity,
				Reason:         models.LedgerReasonReservationReleased,
				ReferenceID:    line.ID,
			}); err != nil {
				return err
			}
		}

		released = len(lines)
		return nil
	})
	if err != nil {
		return err
	}

	if released > 0 {
		util.ReservationsReleasedTotal.WithLabelValues(reason).Inc()
		e.logger.Info("Reservation group released",
			zap.String("group_id", groupID),
			zap.String("reason", reason),
			zap.Int("lines", released))
		e.publishReleased(ctx, groupID, reason)
	}
	return nil
}

// Adjust applies an admin stock-count change under row lock and records it
// in the ledger. quantityChange is the signed physical-stock delta.
func (e *ReservationEngine) Adjust(ctx context.Context, sku string, quantityChange int, reason, actorID string) (*models.StockRecord, error) {
	ctx, span := util.StartSpan(ctx, "ReservationEngine.Adjust")
	defer span.End()

	var out *models.StockRecord
	err := e.store.InTx(ctx, func(tx port.Tx) error {
		rec, err := tx.StockForUpdate(ctx, sku)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}

		newStock := rec.StockCount + quantityChange
		if newStock < rec.ReservedCount {
			return fmt.Errorf("adjustment would drop stock below reserved count for SKU %s", sku)
		}

		if err := tx.SetStockCounts(ctx, sku, newStock, rec.ReservedCount); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
			ID:             uuid.New().String(),
			SKU:            sku,
			QuantityChange: quantityChange,
			Reason:         models.LedgerReasonAdjustment,
			ReferenceID:    actorID,
		}); err != nil {
			return err
		}

		rec.StockCount = newStock
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Stock adjusted",
		zap.String("sku", sku),
		zap.Int("change", quantityChange),
		zap.String("reason", reason))
	return out, nil
}

func (e *ReservationEngine) publishReleased(ctx context.Context, groupID, reason string) {
	if e.publisher == nil {
		return
	}
	event := &models.ReservationReleasedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReservationReleased,
			Timestamp: time.Now(),
		},
		GroupID: groupID,
		Reason:  reason,
	}
	if err := e.publisher.PublishReservationReleased(ctx, event); err != nil {
		e.logger.Error("Failed to publish ReservationReleased event", zap.Error(err))
	}
}
