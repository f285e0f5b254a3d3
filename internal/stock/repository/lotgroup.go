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

const lotGroupItemColumns = `id, code, lot_id, outbound_quantity, inbound_quantity, discrepancy, status, state, created_at, updated_at`

// lotGroupLockKey serializes code generation across concurrent transactions
const lotGroupLockKey = 7340021

// LotGroupRepository persists lot groups: a code plus the lines it carries
type LotGroupRepository struct {
	db      *database.DB
	retries int
}

// NewLotGroupRepository creates a new lot group repository.
// retries bounds how many codes are tried when a generated code collides.
func NewLotGroupRepository(db *database.DB, retries int) *LotGroupRepository {
	if retries < 1 {
		retries = 1
	}
	return &LotGroupRepository{db: db, retries: retries}
}

// Create allocates the next code and inserts one active pending line per item.
// Items must already be merged; see domain.MergeGroupItems.
func (r *LotGroupRepository) Create(ctx context.Context, tx *sqlx.Tx, items []domain.GroupItem) (string, []domain.LotGroupItem, error) {
	if len(items) == 0 {
		return "", nil, errors.BadRequest("a lot group needs at least one item")
	}

	code, err := r.allocateCode(ctx, tx)
	if err != nil {
		return "", nil, err
	}

	lines := make([]domain.LotGroupItem, 0, len(items))
	for _, item := range items {
		var line domain.LotGroupItem
		err := tx.GetContext(ctx, &line, `
			INSERT INTO lot_group_items (code, lot_id, outbound_quantity, status, state)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+lotGroupItemColumns,
			code, item.LotID, item.Quantity, domain.LineActive, domain.LinePending)
		if err != nil {
			return "", nil, database.MapError(err)
		}
		lines = append(lines, line)
	}

	return code, lines, nil
}

// allocateCode reserves max(seq)+1 under a transaction-scoped advisory lock.
// A collision only rolls back to the savepoint, so the caller's tx survives.
func (r *LotGroupRepository) allocateCode(ctx context.Context, tx *sqlx.Tx) (string, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lotGroupLockKey); err != nil {
		return "", database.MapError(err)
	}

	for attempt := 1; attempt <= r.retries; attempt++ {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT lot_group_code`); err != nil {
			return "", err
		}

		var seq int
		if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) + 1 FROM lot_groups`); err != nil {
			return "", err
		}

		code := domain.FormatGroupCode(seq)
		_, err := tx.ExecContext(ctx, `INSERT INTO lot_groups (code, seq) VALUES ($1, $2)`, code, seq)
		if err == nil {
			if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT lot_group_code`); err != nil {
				return "", err
			}
			return code, nil
		}
		if !database.IsUniqueViolation(err, "") {
			return "", database.MapError(err)
		}
		if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT lot_group_code`); err != nil {
			return "", err
		}
	}

	return "", errors.Conflict(fmt.Sprintf("could not allocate a lot group code after %d attempts", r.retries))
}

// FetchByCode returns every line of a group, active or not, in insertion order
func (r *LotGroupRepository) FetchByCode(ctx context.Context, q database.Querier, code string) ([]domain.LotGroupItem, error) {
	lines := []domain.LotGroupItem{}
	query := `SELECT ` + lotGroupItemColumns + ` FROM lot_group_items WHERE code = $1 ORDER BY id`
	if err := q.SelectContext(ctx, &lines, query, code); err != nil {
		return nil, err
	}
	return lines, nil
}

// LockByCode returns the lines of a group and locks them until tx ends
func (r *LotGroupRepository) LockByCode(ctx context.Context, tx *sqlx.Tx, code string) ([]domain.LotGroupItem, error) {
	lines := []domain.LotGroupItem{}
	query := `SELECT ` + lotGroupItemColumns + ` FROM lot_group_items WHERE code = $1 ORDER BY id FOR UPDATE`
	if err := tx.SelectContext(ctx, &lines, query, code); err != nil {
		return nil, database.MapError(err)
	}
	if len(lines) == 0 {
		return nil, errors.InconsistentBatch(code, "group has no lines")
	}
	return lines, nil
}

// MarkReceived records the counted quantity of one line
func (r *LotGroupRepository) MarkReceived(ctx context.Context, tx *sqlx.Tx, itemID int64, inbound int, discrepancy bool) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE lot_group_items SET
			inbound_quantity = $2,
			discrepancy = $3,
			state = $4,
			updated_at = NOW()
		WHERE id = $1 AND status = $5`,
		itemID, inbound, discrepancy, domain.LineReceived, domain.LineActive)
	if err != nil {
		return database.MapError(err)
	}
	return requireRow(result, "lot group line")
}

// AddReceivedLine appends a line for a lot that arrived without being dispatched
func (r *LotGroupRepository) AddReceivedLine(ctx context.Context, tx *sqlx.Tx, code string, lotID int64, inbound int) (*domain.LotGroupItem, error) {
	var line domain.LotGroupItem
	err := tx.GetContext(ctx, &line, `
		INSERT INTO lot_group_items (code, lot_id, outbound_quantity, inbound_quantity, discrepancy, status, state)
		VALUES ($1, $2, 0, $3, TRUE, $4, $5)
		RETURNING `+lotGroupItemColumns,
		code, lotID, inbound, domain.LineActive, domain.LineReceived)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &line, nil
}

// SetState moves every active line of a group to state
func (r *LotGroupRepository) SetState(ctx context.Context, tx *sqlx.Tx, code string, state domain.LineState) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE lot_group_items SET state = $2, updated_at = NOW()
		WHERE code = $1 AND status = $3`,
		code, state, domain.LineActive)
	return database.MapError(err)
}

// Deactivate marks every line of a group inactive
func (r *LotGroupRepository) Deactivate(ctx context.Context, tx *sqlx.Tx, code string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE lot_group_items SET status = $2, updated_at = NOW()
		WHERE code = $1`,
		code, domain.LineInactive)
	return database.MapError(err)
}

func requireRow(result sql.Result, resource string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound(resource)
	}
	return nil
}
