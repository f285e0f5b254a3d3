package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

const lotColumns = `id, supply_id, batch_number, hospital_id, expiry_date, intake_date, created_at`

// LotRepository reads and registers lots
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// GetByID retrieves a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, q database.Querier, id int64) (*domain.Lot, error) {
	var l domain.Lot
	if err := q.GetContext(ctx, &l, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &l, nil
}

// Ensure returns the lot with this batch number, creating it when absent.
// An existing lot keeps its dates unless they were never set.
func (r *LotRepository) Ensure(ctx context.Context, tx *sqlx.Tx, supplyID int64, batch string, hospitalID int64, expiry, intake *time.Time) (*domain.Lot, error) {
	var l domain.Lot
	err := tx.GetContext(ctx, &l, `
		INSERT INTO lots AS l (supply_id, batch_number, hospital_id, expiry_date, intake_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT lots_supply_batch DO UPDATE SET
			expiry_date = COALESCE(l.expiry_date, EXCLUDED.expiry_date),
			intake_date = COALESCE(l.intake_date, EXCLUDED.intake_date)
		RETURNING `+lotColumns,
		supplyID, batch, hospitalID, expiry, intake)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &l, nil
}
