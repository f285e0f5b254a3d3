package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

// Batcher groups the lots of one shipment under a single code
type Batcher struct {
	db     *database.DB
	groups *repository.LotGroupRepository
}

// NewBatcher creates a new lot group batcher
func NewBatcher(db *database.DB, groups *repository.LotGroupRepository) *Batcher {
	return &Batcher{db: db, groups: groups}
}

// CreateGroup validates and merges items, then stores them under the next code
func (b *Batcher) CreateGroup(ctx context.Context, tx *sqlx.Tx, items []domain.GroupItem) (string, []domain.LotGroupItem, error) {
	merged, err := domain.MergeGroupItems(items)
	if err != nil {
		return "", nil, err
	}
	return b.groups.Create(ctx, tx, merged)
}

// FetchByCode returns every line of a group
func (b *Batcher) FetchByCode(ctx context.Context, code string) ([]domain.LotGroupItem, error) {
	if _, ok := domain.ParseGroupCode(code); !ok {
		return nil, errors.BadRequest("malformed lot group code " + code)
	}
	lines, err := b.groups.FetchByCode(ctx, b.db, code)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.NotFound("lot group")
	}
	return lines, nil
}

// markAllReceived settles every line at its outbound quantity
func (b *Batcher) markAllReceived(ctx context.Context, tx *sqlx.Tx, lines []domain.LotGroupItem) error {
	for _, l := range lines {
		if err := b.groups.MarkReceived(ctx, tx, l.ID, l.OutboundQuantity, false); err != nil {
			return err
		}
	}
	return nil
}
