package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CapacityEngine books seats against finite-capacity event sessions. Same
// locking discipline as the reservation engine, simpler state: bookings are
// confirmed immediately and never released.
type CapacityEngine struct {
	store  port.Store
	logger *zap.Logger
}

// NewCapacityEngine creates a new capacity engine
func NewCapacityEngine(store port.Store) *CapacityEngine {
	return &CapacityEngine{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ReserveSeats books quantity seats on a session, all in one transaction:
// lock the session row, verify remaining capacity, increment the booked
// count, insert the booking.
func (e *CapacityEngine) ReserveSeats(ctx context.Context, sessionID, email string, quantity int) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "CapacityEngine.ReserveSeats")
	defer span.End()

	var booking *models.Booking
	err := e.store.InTx(ctx, func(tx port.Tx) error {
		session, err := tx.SessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrNotFound
		}

		if session.Capacity-session.BookedCount < quantity {
			return ErrInsufficientCapacity
		}

		if err := tx.SetSessionBookedCount(ctx, sessionID, session.BookedCount+quantity); err != nil {
			return err
		}

		booking = &models.Booking{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			Email:     email,
			Quantity:  quantity,
			Status:    models.BookingStatusConfirmed,
			CreatedAt: time.Now(),
		}
		return tx.InsertBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	util.BookingsCreatedTotal.Inc()
	e.logger.Info("Booking created",
		zap.String("session_id", sessionID),
		zap.Int("quantity", quantity))
	return booking, nil
}
