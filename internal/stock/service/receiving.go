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

// ReceiveRequest is what the destination warehouse counted
type ReceiveRequest struct {
	MovementID   int64
	ReceivedAt   *time.Time
	UserID       int64
	Lines        []domain.ReceivedLine
	Redistribute bool
	Notes        string
}

// ReceiveResult is the received movement. Discrepancies are reported
// here, they are not errors.
type ReceiveResult struct {
	Movement            *domain.Movement      `json:"movement"`
	Lines               []domain.LotGroupItem `json:"lines"`
	Discrepancies       []domain.Discrepancy  `json:"discrepancies"`
	WithDiscrepancies   bool                  `json:"with_discrepancies"`
	Redistribution      *DistributionResult   `json:"redistribution,omitempty"`
	RedistributionError string                `json:"redistribution_error,omitempty"`
}

// ReceivingService confirms arrivals against what was dispatched
type ReceivingService struct {
	db           *database.DB
	stores       *Stores
	distribution *DistributionService
	metrics      *metrics.Metrics
	publisher    *events.StockEventPublisher
	logger       *logger.Logger
}

// NewReceivingService creates a new receiving service. distribution may be
// nil, in which case AUS redistribution is never attempted.
func NewReceivingService(
	db *database.DB,
	stores *Stores,
	distribution *DistributionService,
	m *metrics.Metrics,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *ReceivingService {
	return &ReceivingService{
		db:           db,
		stores:       stores,
		distribution: distribution,
		metrics:      m,
		publisher:    publisher,
		logger:       log.WithComponent("receiving"),
	}
}

// Receive reconciles the counted lots against the lot group, credits the
// destination with every reported quantity and closes the movement.
func (s *ReceivingService) Receive(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error) {
	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}

	var m *domain.Movement
	var dest *domain.WarehouseRef
	var previous domain.MovementState
	var plan *domain.ReconcilePlan
	var lines []domain.LotGroupItem
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		m, err = s.stores.Movements.GetForUpdate(ctx, tx, req.MovementID)
		if err != nil {
			return err
		}
		if err := m.CheckReceivable(); err != nil {
			return err
		}
		dest = m.Destination()
		if dest == nil {
			return errors.ConfigurationMissing("movement has no destination warehouse")
		}

		locked, err := s.stores.Groups.LockByCode(ctx, tx, m.GroupCode)
		if err != nil {
			return err
		}
		plan, err = domain.Reconcile(m.GroupCode, locked, req.Lines, m.OutboundTotal)
		if err != nil {
			return err
		}

		for _, c := range plan.Credits {
			if _, err := s.stores.Stock.Increment(ctx, tx, dest.Key(c.LotID), c.Quantity); err != nil {
				return err
			}
		}
		for _, l := range plan.Lines {
			if err := s.stores.Groups.MarkReceived(ctx, tx, l.ItemID, l.Received, l.Discrepancy); err != nil {
				return err
			}
		}
		for _, x := range plan.Extras {
			if _, err := s.stores.Groups.AddReceivedLine(ctx, tx, m.GroupCode, x.LotID, x.Quantity); err != nil {
				return err
			}
		}
		for i := range plan.Discrepancies {
			plan.Discrepancies[i].MovementID = m.ID
			if err := s.stores.Discrepancies.Create(ctx, tx, &plan.Discrepancies[i]); err != nil {
				return err
			}
		}

		previous = m.State
		m.State = domain.StateReceived
		m.ReceivedAt = &receivedAt
		m.ReceiverUserID = &req.UserID
		m.InboundTotal = plan.ReportedTotal
		m.DiscrepancyTotal = plan.DiscrepancyTotal
		m.AppendNote(req.Notes)
		if err := s.stores.Movements.Save(ctx, tx, m); err != nil {
			return err
		}

		lines, err = s.stores.Groups.FetchByCode(ctx, tx, m.GroupCode)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(previous), string(m.State))
	s.metrics.DiscrepanciesRecorded(len(plan.Discrepancies))
	s.publisher.PublishReceived(ctx, m, len(plan.Discrepancies))

	result := &ReceiveResult{
		Movement:          m,
		Lines:             lines,
		Discrepancies:     plan.Discrepancies,
		WithDiscrepancies: plan.HasDiscrepancies() || plan.DiscrepancyTotal,
	}

	log := s.logger.WithMovement(m.ID, m.GroupCode)
	log.Info().
		Int("outbound", m.OutboundTotal).
		Int("inbound", m.InboundTotal).
		Int("discrepancies", len(plan.Discrepancies)).
		Msg("movement received")

	if req.Redistribute && dest.Kind == domain.KindAUS && s.distribution != nil {
		s.redistribute(ctx, *dest, plan.Credits, req.UserID, result, log)
	}
	return result, nil
}

// redistribute runs AUS redistribution for the supplies just received. The
// reception stays committed whatever happens here.
func (s *ReceivingService) redistribute(ctx context.Context, aus domain.WarehouseRef, credits []domain.ReceivedLine, userID int64, result *ReceiveResult, log *logger.Logger) {
	seen := make(map[int64]bool)
	var supplies []int64
	for _, c := range credits {
		lot, err := s.stores.Lots.GetByID(ctx, s.db, c.LotID)
		if err != nil {
			_, result.RedistributionError = describe(err)
			log.Warn().Err(err).Int64("lot_id", c.LotID).Msg("redistribution skipped")
			return
		}
		if !seen[lot.SupplyID] {
			seen[lot.SupplyID] = true
			supplies = append(supplies, lot.SupplyID)
		}
	}
	if len(supplies) == 0 {
		return
	}

	dist, err := s.distribution.RedistributeFromAUS(ctx, AUSRequest{
		Origin:    aus,
		SupplyIDs: supplies,
		UserID:    userID,
	})
	if err != nil {
		_, result.RedistributionError = describe(err)
		log.Warn().Err(err).Msg("aus redistribution failed")
		return
	}
	result.Redistribution = dist
}
