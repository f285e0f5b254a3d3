// Package repository persists the stock engine's data in PostgreSQL.
// Mutations take the caller's *sqlx.Tx; no repository opens a transaction.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

const stockColumns = `id, lot_id, site_id, hospital_id, quantity, active, created_at, updated_at`

// StockRepository is the WarehouseStockStore: one table per warehouse kind
type StockRepository struct {
	db *database.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *database.DB) *StockRepository {
	return &StockRepository{db: db}
}

func tableFor(kind domain.WarehouseKind) (string, error) {
	if !kind.Valid() {
		return "", errors.ConfigurationMissing("unsupported warehouse kind " + string(kind))
	}
	return kind.Table(), nil
}

// Find returns the row for key, or nil when it does not exist
func (r *StockRepository) Find(ctx context.Context, q database.Querier, key domain.StockKey) (*domain.StockRow, error) {
	table, err := tableFor(key.Kind)
	if err != nil {
		return nil, err
	}

	var row domain.StockRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE lot_id = $1 AND site_id = $2 AND hospital_id = $3`, stockColumns, table)
	if err := sqlx.GetContext(ctx, q, &row, query, key.LotID, key.SiteID, key.HospitalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// lock reads the row for key and holds its lock until tx ends
func (r *StockRepository) lock(ctx context.Context, tx *sqlx.Tx, table string, key domain.StockKey) (*domain.StockRow, error) {
	var row domain.StockRow
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE lot_id = $1 AND site_id = $2 AND hospital_id = $3
		FOR UPDATE`, stockColumns, table)
	if err := tx.GetContext(ctx, &row, query, key.LotID, key.SiteID, key.HospitalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, database.MapError(err)
	}
	return &row, nil
}

// Decrement removes delta units from the row for key. It fails with
// InsufficientStock, writing nothing, when the row is missing or holds
// fewer than delta units.
func (r *StockRepository) Decrement(ctx context.Context, tx *sqlx.Tx, key domain.StockKey, delta int) (*domain.StockRow, error) {
	if delta <= 0 {
		return nil, errors.BadRequest("decrement must be positive")
	}
	table, err := tableFor(key.Kind)
	if err != nil {
		return nil, err
	}

	row, err := r.lock(ctx, tx, table, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.InsufficientStock(key.Kind.String(), key.LotID, 0, delta)
	}
	if row.Quantity < delta {
		return nil, errors.InsufficientStock(key.Kind.String(), key.LotID, row.Quantity, delta)
	}

	var updated domain.StockRow
	query := fmt.Sprintf(`
		UPDATE %s SET
			quantity = quantity - $2,
			active = quantity - $2 > 0,
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, table, stockColumns)
	if err := tx.GetContext(ctx, &updated, query, row.ID, delta); err != nil {
		return nil, database.MapError(err)
	}
	return &updated, nil
}

// Increment adds delta units to the row for key, creating it if absent.
// The upsert takes the row lock for the rest of tx.
func (r *StockRepository) Increment(ctx context.Context, tx *sqlx.Tx, key domain.StockKey, delta int) (*domain.StockRow, error) {
	if delta <= 0 {
		return nil, errors.BadRequest("increment must be positive")
	}
	table, err := tableFor(key.Kind)
	if err != nil {
		return nil, err
	}

	var row domain.StockRow
	query := fmt.Sprintf(`
		INSERT INTO %[1]s AS s (lot_id, site_id, hospital_id, quantity, active)
		VALUES ($1, $2, $3, $4, $4 > 0)
		ON CONFLICT (lot_id, site_id, hospital_id) DO UPDATE SET
			quantity = s.quantity + EXCLUDED.quantity,
			active = s.quantity + EXCLUDED.quantity > 0,
			updated_at = NOW()
		RETURNING %[2]s`, table, stockColumns)
	if err := tx.GetContext(ctx, &row, query, key.LotID, key.SiteID, key.HospitalID, delta); err != nil {
		return nil, database.MapError(err)
	}
	return &row, nil
}

// ListBySite lists positive stock of one warehouse with lot and supply details
func (r *StockRepository) ListBySite(ctx context.Context, w domain.WarehouseRef) ([]domain.StockView, error) {
	table, err := tableFor(w.Kind)
	if err != nil {
		return nil, err
	}

	rows := []domain.StockView{}
	query := fmt.Sprintf(`
		SELECT s.id, s.lot_id, s.site_id, s.hospital_id, s.quantity, s.active, s.created_at, s.updated_at,
			l.supply_id, sp.name AS supply_name, l.batch_number, l.expiry_date
		FROM %s s
		JOIN lots l ON l.id = s.lot_id
		JOIN supplies sp ON sp.id = l.supply_id
		WHERE s.hospital_id = $1 AND s.site_id = $2 AND s.quantity > 0
		ORDER BY sp.name, l.expiry_date NULLS LAST, l.id`, table)
	if err := r.db.SelectContext(ctx, &rows, query, w.HospitalID, w.SiteID); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListFIFO returns the positive rows of one supply in a warehouse ordered
// first-expires-first-out
func (r *StockRepository) ListFIFO(ctx context.Context, q database.Querier, w domain.WarehouseRef, supplyID int64) ([]domain.StockSource, error) {
	table, err := tableFor(w.Kind)
	if err != nil {
		return nil, err
	}

	sources := []domain.StockSource{}
	query := fmt.Sprintf(`
		SELECT s.lot_id, l.supply_id, l.batch_number, l.expiry_date, s.quantity
		FROM %s s
		JOIN lots l ON l.id = s.lot_id
		WHERE s.hospital_id = $1 AND s.site_id = $2 AND l.supply_id = $3 AND s.quantity > 0
		ORDER BY l.expiry_date ASC NULLS LAST, s.lot_id`, table)
	if err := sqlx.SelectContext(ctx, q, &sources, query, w.HospitalID, w.SiteID, supplyID); err != nil {
		return nil, err
	}
	return sources, nil
}
