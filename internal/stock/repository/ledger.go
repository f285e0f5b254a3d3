package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
)

// DiscrepancyRepository stores the append-only discrepancy records
type DiscrepancyRepository struct {
	db *database.DB
}

// NewDiscrepancyRepository creates a new discrepancy repository
func NewDiscrepancyRepository(db *database.DB) *DiscrepancyRepository {
	return &DiscrepancyRepository{db: db}
}

// Create appends one discrepancy record
func (r *DiscrepancyRepository) Create(ctx context.Context, tx *sqlx.Tx, d *domain.Discrepancy) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO movement_discrepancies (movement_id, group_code, lot_id, expected_quantity, received_quantity, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		d.MovementID, d.GroupCode, d.LotID, d.ExpectedQuantity, d.ReceivedQuantity, d.Note,
	).Scan(&d.ID, &d.CreatedAt)
	return database.MapError(err)
}

// ListByMovement returns the discrepancies of one movement
func (r *DiscrepancyRepository) ListByMovement(ctx context.Context, movementID int64) ([]domain.Discrepancy, error) {
	out := []domain.Discrepancy{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, movement_id, group_code, lot_id, expected_quantity, received_quantity, note, created_at
		FROM movement_discrepancies
		WHERE movement_id = $1
		ORDER BY id`, movementID)
	return out, err
}

// TrackingRepository stores the append-only courier tracking log
type TrackingRepository struct {
	db *database.DB
}

// NewTrackingRepository creates a new tracking repository
func NewTrackingRepository(db *database.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// Append records one courier report
func (r *TrackingRepository) Append(ctx context.Context, tx *sqlx.Tx, e *domain.TrackingEvent) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO movement_tracking (movement_id, state, latitude, longitude, address, notes, courier_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		e.MovementID, e.State, e.Latitude, e.Longitude, e.Address, e.Notes, e.CourierUserID,
	).Scan(&e.ID, &e.CreatedAt)
	return database.MapError(err)
}

// ListByMovement returns the tracking log of one movement, oldest first
func (r *TrackingRepository) ListByMovement(ctx context.Context, movementID int64) ([]domain.TrackingEvent, error) {
	out := []domain.TrackingEvent{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, movement_id, state, latitude, longitude, address, notes, courier_user_id, created_at
		FROM movement_tracking
		WHERE movement_id = $1
		ORDER BY created_at, id`, movementID)
	return out, err
}
