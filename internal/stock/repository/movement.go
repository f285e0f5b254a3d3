package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

const movementColumns = `id, kind,
	origin_hospital_id, origin_site_id, origin_warehouse_kind,
	destination_hospital_id, destination_site_id, destination_warehouse_kind,
	outbound_quantity_total, inbound_quantity_total, discrepancy_total,
	group_code, state, dispatched_at, received_at, notes,
	user_id, receiver_user_id, created_at, updated_at`

// MovementRepository is the MovementLedger's store
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create inserts m and fills in its id and timestamps
func (r *MovementRepository) Create(ctx context.Context, tx *sqlx.Tx, m *domain.Movement) error {
	query := `
		INSERT INTO movements (
			kind, origin_hospital_id, origin_site_id, origin_warehouse_kind,
			destination_hospital_id, destination_site_id, destination_warehouse_kind,
			outbound_quantity_total, inbound_quantity_total, discrepancy_total,
			group_code, state, dispatched_at, notes, user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	err := tx.QueryRowxContext(ctx, query,
		m.Kind, m.OriginHospitalID, m.OriginSiteID, m.OriginKind,
		m.DestinationHospitalID, m.DestinationSiteID, m.DestinationKind,
		m.OutboundTotal, m.InboundTotal, m.DiscrepancyTotal,
		m.GroupCode, m.State, m.DispatchedAt, m.Notes, m.UserID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return database.MapError(err)
	}
	return nil
}

// GetByID retrieves a movement by ID
func (r *MovementRepository) GetByID(ctx context.Context, id int64) (*domain.Movement, error) {
	var m domain.Movement
	query := `SELECT ` + movementColumns + ` FROM movements WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("movement")
		}
		return nil, err
	}
	return &m, nil
}

// GetForUpdate retrieves a movement and locks it until tx ends
func (r *MovementRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Movement, error) {
	var m domain.Movement
	query := `SELECT ` + movementColumns + ` FROM movements WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("movement")
		}
		return nil, database.MapError(err)
	}
	return &m, nil
}

// Save writes the mutable fields of m: state, totals, timestamps, notes and receiver
func (r *MovementRepository) Save(ctx context.Context, tx *sqlx.Tx, m *domain.Movement) error {
	query := `
		UPDATE movements SET
			state = $2,
			inbound_quantity_total = $3,
			discrepancy_total = $4,
			dispatched_at = $5,
			received_at = $6,
			notes = $7,
			receiver_user_id = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := tx.QueryRowxContext(ctx, query,
		m.ID, m.State, m.InboundTotal, m.DiscrepancyTotal,
		m.DispatchedAt, m.ReceivedAt, m.Notes, m.ReceiverUserID,
	).Scan(&m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFound("movement")
		}
		return database.MapError(err)
	}
	return nil
}

// List returns one page of movements, newest first, and the total match count
func (r *MovementRepository) List(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, int64, error) {
	filter.Normalize()

	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.State != "" {
		add("state = $%d", filter.State)
	}
	if filter.HospitalID > 0 {
		args = append(args, filter.HospitalID)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(origin_hospital_id = $%d OR destination_hospital_id = $%d)", n, n))
	}
	if filter.SiteID > 0 {
		args = append(args, filter.SiteID)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(origin_site_id = $%d OR destination_site_id = $%d)", n, n))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM movements`+where, args...); err != nil {
		return nil, 0, err
	}

	movements := []domain.Movement{}
	query := fmt.Sprintf(`SELECT %s FROM movements%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		movementColumns, where, len(args)+1, len(args)+2)
	pageArgs := append(append([]interface{}{}, args...), filter.PerPage, filter.Offset())
	if err := r.db.SelectContext(ctx, &movements, query, pageArgs...); err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}
