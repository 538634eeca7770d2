package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/port"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the Postgres-backed ledger store. It is the single source of
// truth for stock, reservations, orders, payments and invoices.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to the database and configures the connection pool.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Tx wraps a database transaction with the operations the engines need.
type Tx struct {
	tx *sqlx.Tx
}

// InTx runs fn inside a single transaction. If fn returns an error the
// transaction is rolled back in full; otherwise it is committed.
func (s *Store) InTx(ctx context.Context, fn func(tx port.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ActiveProducts retrieves all active catalog products
func (s *Store) ActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE is_active = true ORDER BY name")
	return products, err
}

// ProductBySKU retrieves an active product by SKU
func (s *Store) ProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE sku = $1 AND is_active = true", sku)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductByID retrieves a product by ID
func (s *Store) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpcomingSessions retrieves event sessions starting after the given time
func (s *Store) UpcomingSessions(ctx context.Context, after time.Time) ([]models.EventSession, error) {
	var sessions []models.EventSession
	err := s.db.SelectContext(ctx, &sessions,
		"SELECT * FROM event_sessions WHERE starts_at > $1 ORDER BY starts_at", after)
	return sessions, err
}

// SessionForUpdate locks and loads an event session row. Returns nil when
// the session does not exist.
func (t *Tx) SessionForUpdate(ctx context.Context, sessionID string) (*models.EventSession, error) {
	var session models.EventSession
	err := t.tx.GetContext(ctx, &session,
		"SELECT * FROM event_sessions WHERE id = $1 FOR UPDATE", sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	return &session, nil
}

// SetSessionBookedCount updates the booked seat count for a session
func (t *Tx) SetSessionBookedCount(ctx context.Context, sessionID string, bookedCount int) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE event_sessions SET booked_count = $1 WHERE id = $2",
		bookedCount, sessionID)
	return err
}

// InsertBooking inserts a confirmed booking
func (t *Tx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bookings (id, session_id, user_email, quantity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		booking.ID, booking.SessionID, booking.Email, booking.Quantity,
		booking.Status, booking.CreatedAt)
	return err
}
