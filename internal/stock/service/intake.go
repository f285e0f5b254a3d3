package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/metrics"
)

// IntakeLine is one batch arriving from outside the network
type IntakeLine struct {
	SupplyID    int64
	BatchNumber string
	ExpiryDate  *time.Time
	Quantity    int
}

// IntakeRequest registers supplies entering a warehouse from a supplier.
// Confirm defaults to true.
type IntakeRequest struct {
	To         domain.WarehouseRef
	Lines      []IntakeLine
	IntakeDate *time.Time
	Confirm    *bool
	Notes      string
	UserID     int64
}

func (r IntakeRequest) confirmed() bool {
	return r.Confirm == nil || *r.Confirm
}

// IntakeService registers external intake
type IntakeService struct {
	db        *database.DB
	stores    *Stores
	batcher   *Batcher
	metrics   *metrics.Metrics
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewIntakeService creates a new intake service
func NewIntakeService(
	db *database.DB,
	stores *Stores,
	batcher *Batcher,
	m *metrics.Metrics,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *IntakeService {
	return &IntakeService{
		db:        db,
		stores:    stores,
		batcher:   batcher,
		metrics:   m,
		publisher: publisher,
		logger:    log.WithComponent("intake"),
	}
}

// Intake resolves or creates the lots and opens an entry movement with no
// origin. Confirmed intakes credit the destination and close at once;
// unconfirmed ones stay pending until the warehouse receives them.
func (s *IntakeService) Intake(ctx context.Context, req IntakeRequest) (*domain.MovementDetail, error) {
	if err := checkWarehouse(req.To, "destination"); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, errors.BadRequest("an intake needs at least one line")
	}
	for i, l := range req.Lines {
		if l.SupplyID <= 0 || strings.TrimSpace(l.BatchNumber) == "" {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("lines[%d]", i): "supply_id and batch_number are required",
			})
		}
		if l.Quantity <= 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("lines[%d].quantity", i): "must be greater than 0",
			})
		}
	}

	intakeDate := time.Now().UTC()
	if req.IntakeDate != nil {
		intakeDate = req.IntakeDate.UTC()
	}

	var m *domain.Movement
	var lines []domain.LotGroupItem
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		items := make([]domain.GroupItem, 0, len(req.Lines))
		for _, l := range req.Lines {
			lot, err := s.stores.Lots.Ensure(ctx, tx, l.SupplyID, strings.TrimSpace(l.BatchNumber), req.To.HospitalID, l.ExpiryDate, &intakeDate)
			if err != nil {
				return err
			}
			items = append(items, domain.GroupItem{LotID: lot.ID, Quantity: l.Quantity})
		}

		code, created, err := s.batcher.CreateGroup(ctx, tx, items)
		if err != nil {
			return err
		}

		m = domain.NewMovement(domain.MovementEntry, nil, &req.To, code, domain.TotalQuantity(items), req.UserID)
		m.AppendNote(req.Notes)
		if err := s.stores.Movements.Create(ctx, tx, m); err != nil {
			return err
		}

		if req.confirmed() {
			for _, l := range created {
				if _, err := s.stores.Stock.Increment(ctx, tx, req.To.Key(l.LotID), l.OutboundQuantity); err != nil {
					return err
				}
			}
			if err := s.batcher.markAllReceived(ctx, tx, created); err != nil {
				return err
			}
			m.State = domain.StateReceived
			m.ReceivedAt = &intakeDate
			m.ReceiverUserID = &req.UserID
			m.InboundTotal = m.OutboundTotal
			if err := s.stores.Movements.Save(ctx, tx, m); err != nil {
				return err
			}
		}

		lines, err = s.stores.Groups.FetchByCode(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MovementCreated(string(m.Kind))
	s.publisher.PublishMovementCreated(ctx, m)
	if m.State == domain.StateReceived {
		s.metrics.Transition(string(domain.StatePending), string(domain.StateReceived))
		s.publisher.PublishReceived(ctx, m, 0)
	}
	s.logger.WithMovement(m.ID, m.GroupCode).Info().
		Bool("confirmed", req.confirmed()).
		Int("quantity", m.OutboundTotal).
		Msg("intake registered")

	return &domain.MovementDetail{Movement: m, Lines: lines}, nil
}
