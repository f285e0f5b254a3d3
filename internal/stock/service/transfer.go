package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/metrics"
)

// TransferRequest moves one lot between two warehouses
type TransferRequest struct {
	LotID    int64
	From     domain.WarehouseRef
	To       domain.WarehouseRef
	Quantity int
}

// DirectTransferRequest moves several lots between two warehouses at once,
// with no courier leg
type DirectTransferRequest struct {
	From   domain.WarehouseRef
	To     domain.WarehouseRef
	Items  []domain.GroupItem
	Notes  string
	UserID int64
}

// TransferService applies stock transfers
type TransferService struct {
	db        *database.DB
	stores    *Stores
	batcher   *Batcher
	metrics   *metrics.Metrics
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(
	db *database.DB,
	stores *Stores,
	batcher *Batcher,
	m *metrics.Metrics,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *TransferService {
	return &TransferService{
		db:        db,
		stores:    stores,
		batcher:   batcher,
		metrics:   m,
		publisher: publisher,
		logger:    log.WithComponent("transfer"),
	}
}

// Transfer decrements the origin and increments the destination inside tx.
// When the decrement fails nothing is written.
func (s *TransferService) Transfer(ctx context.Context, tx *sqlx.Tx, req TransferRequest) error {
	if req.LotID <= 0 || req.Quantity <= 0 {
		return errors.Validation(map[string]string{
			"quantity": "lot and a positive quantity are required",
		})
	}
	if err := checkWarehouse(req.From, "origin"); err != nil {
		return err
	}
	if err := checkWarehouse(req.To, "destination"); err != nil {
		return err
	}
	if req.From == req.To {
		return errors.BadRequest("origin and destination are the same warehouse")
	}

	if _, err := s.stores.Stock.Decrement(ctx, tx, req.From.Key(req.LotID), req.Quantity); err != nil {
		recordInsufficient(s.metrics, req.From.Kind, err)
		return err
	}
	_, err := s.stores.Stock.Increment(ctx, tx, req.To.Key(req.LotID), req.Quantity)
	return err
}

// DirectTransfer moves every item in one unit of work and records it as a
// transfer movement that is already received
func (s *TransferService) DirectTransfer(ctx context.Context, req DirectTransferRequest) (*domain.MovementDetail, error) {
	items, err := domain.MergeGroupItems(req.Items)
	if err != nil {
		return nil, err
	}

	var m *domain.Movement
	var lines []domain.LotGroupItem
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			if err := s.Transfer(ctx, tx, TransferRequest{
				LotID: item.LotID, From: req.From, To: req.To, Quantity: item.Quantity,
			}); err != nil {
				return err
			}
		}

		code, created, err := s.batcher.CreateGroup(ctx, tx, items)
		if err != nil {
			return err
		}

		m = domain.NewMovement(domain.MovementTransfer, &req.From, &req.To, code, domain.TotalQuantity(items), req.UserID)
		m.AppendNote(req.Notes)
		if err := s.stores.Movements.Create(ctx, tx, m); err != nil {
			return err
		}

		if err := m.CheckTransition(domain.StateReceived); err != nil {
			return err
		}
		now := time.Now().UTC()
		m.State = domain.StateReceived
		m.DispatchedAt = &now
		m.ReceivedAt = &now
		m.ReceiverUserID = &req.UserID
		m.InboundTotal = m.OutboundTotal
		if err := s.stores.Movements.Save(ctx, tx, m); err != nil {
			return err
		}

		if err := s.batcher.markAllReceived(ctx, tx, created); err != nil {
			return err
		}
		lines, err = s.stores.Groups.FetchByCode(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MovementCreated(string(m.Kind))
	s.metrics.Transition(string(domain.StatePending), string(domain.StateReceived))
	s.publisher.PublishMovementCreated(ctx, m)
	s.publisher.PublishReceived(ctx, m, 0)

	s.logger.WithMovement(m.ID, m.GroupCode).Info().
		Int("quantity", m.OutboundTotal).
		Str("from", req.From.Kind.String()).
		Str("to", req.To.Kind.String()).
		Msg("direct transfer applied")

	return &domain.MovementDetail{Movement: m, Lines: lines}, nil
}
