package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/models"
)

// StockForUpdate locks and loads the stock record for a SKU (FOR UPDATE).
// Returns nil when no record exists yet.
func (t *Tx) StockForUpdate(ctx context.Context, sku string) (*models.StockRecord, error) {
	var rec models.StockRecord
	err := t.tx.GetContext(ctx, &rec,
		"SELECT * FROM inventory WHERE sku = $1 FOR UPDATE", sku)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}
	return &rec, nil
}

// CreateStock inserts a stock record with the given starting stock and zero
// reserved. The row stays locked by the enclosing transaction.
func (t *Tx) CreateStock(ctx context.Context, sku string, stockCount int) (*models.StockRecord, error) {
	var rec models.StockRecord
	err := t.tx.GetContext(ctx, &rec, `
		INSERT INTO inventory (sku, stock_count, reserved_count, updated_at)
		VALUES ($1, $2, 0, NOW())
		RETURNING *`,
		sku, stockCount)
	if err != nil {
		return nil, fmt.Errorf("failed to create stock record: %w", err)
	}
	return &rec, nil
}

// SetStockCounts writes both counters for a SKU
func (t *Tx) SetStockCounts(ctx context.Context, sku string, stockCount, reservedCount int) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE inventory SET stock_count = $1, reserved_count = $2, updated_at = NOW() WHERE sku = $3",
		stockCount, reservedCount, sku)
	return err
}

// InsertReservationLine inserts a hold under its group id
func (t *Tx) InsertReservationLine(ctx context.Context, line *models.ReservationLine) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_reservations (id, group_id, sku, quantity, expires_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		line.ID, line.GroupID, line.SKU, line.Quantity, line.ExpiresAt, line.Status)
	return err
}

// ActiveLinesForUpdate locks and loads all active lines for a group.
// Row-level locks here are what make confirm/release idempotent under
// concurrent callers: only one transaction sees the lines as active.
func (t *Tx) ActiveLinesForUpdate(ctx context.Context, groupID string) ([]models.ReservationLine, error) {
	var lines []models.ReservationLine
	err := t.tx.SelectContext(ctx, &lines, `
		SELECT * FROM inventory_reservations
		WHERE group_id = $1 AND status = $2
		ORDER BY sku
		FOR UPDATE`,
		groupID, models.ReservationStatusActive)
	return lines, err
}

// SetLineStatus updates a reservation line's status
func (t *Tx) SetLineStatus(ctx context.Context, lineID, status string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE inventory_reservations SET status = $1 WHERE id = $2",
		status, lineID)
	return err
}

// InsertLedgerEntry appends an audit row. Entries are never updated or
// deleted.
func (t *Tx) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_ledger (id, sku, quantity_change, reason, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		entry.ID, entry.SKU, entry.QuantityChange, entry.Reason, entry.ReferenceID)
	return err
}

// ActiveLines retrieves active lines for a group without locking
func (s *Store) ActiveLines(ctx context.Context, groupID string) ([]models.ReservationLine, error) {
	var lines []models.ReservationLine
	err := s.db.SelectContext(ctx, &lines, `
		SELECT * FROM inventory_reservations
		WHERE group_id = $1 AND status = $2
		ORDER BY sku`,
		groupID, models.ReservationStatusActive)
	return lines, err
}

// ExpiredActiveGroupIDs retrieves the distinct group ids with at least one
// active line whose expiry has passed
func (s *Store) ExpiredActiveGroupIDs(ctx context.Context, now time.Time) ([]string, error) {
	var groupIDs []string
	err := s.db.SelectContext(ctx, &groupIDs, `
		SELECT DISTINCT group_id FROM inventory_reservations
		WHERE status = $1 AND expires_at < $2`,
		models.ReservationStatusActive, now)
	return groupIDs, err
}
