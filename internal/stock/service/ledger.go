package service

import (
	"context"
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

// DispatchRequest ships lots from one warehouse to another through a courier
type DispatchRequest struct {
	From   domain.WarehouseRef
	To     domain.WarehouseRef
	Items  []domain.GroupItem
	Notes  string
	UserID int64
}

// CourierUpdateRequest is one courier status report
type CourierUpdateRequest struct {
	MovementID    int64
	State         string
	Latitude      *float64
	Longitude     *float64
	Address       string
	Notes         string
	CourierUserID int64
}

// CancelRequest cancels an open movement
type CancelRequest struct {
	MovementID int64
	Reason     string
	UserID     int64
}

// PatientDispatchRequest hands lots from a site's warehouse to a patient
type PatientDispatchRequest struct {
	From       domain.WarehouseRef
	Items      []domain.GroupItem
	PatientRef string
	Notes      string
	UserID     int64
}

// CourierUpdateResult is the movement after a courier report
type CourierUpdateResult struct {
	Movement *domain.Movement      `json:"movement"`
	Event    *domain.TrackingEvent `json:"event"`
}

// CancelResult is the movement after cancellation
type CancelResult struct {
	Movement         *domain.Movement `json:"movement"`
	RestoredQuantity int              `json:"restored_quantity"`
}

// LedgerService drives the movement lifecycle
type LedgerService struct {
	db        *database.DB
	stores    *Stores
	batcher   *Batcher
	metrics   *metrics.Metrics
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	stores *Stores,
	batcher *Batcher,
	m *metrics.Metrics,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:        db,
		stores:    stores,
		batcher:   batcher,
		metrics:   m,
		publisher: publisher,
		logger:    log.WithComponent("ledger"),
	}
}

// Dispatch decrements the origin, batches the lots and opens a movement.
// Shipments inside one hospital start dispatched, others pending.
func (s *LedgerService) Dispatch(ctx context.Context, req DispatchRequest) (*domain.MovementDetail, error) {
	if err := checkWarehouse(req.From, "origin"); err != nil {
		return nil, err
	}
	if err := checkWarehouse(req.To, "destination"); err != nil {
		return nil, err
	}
	if req.From == req.To {
		return nil, errors.BadRequest("origin and destination are the same warehouse")
	}
	items, err := domain.MergeGroupItems(req.Items)
	if err != nil {
		return nil, err
	}

	var m *domain.Movement
	var lines []domain.LotGroupItem
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			if _, err := s.stores.Stock.Decrement(ctx, tx, req.From.Key(item.LotID), item.Quantity); err != nil {
				recordInsufficient(s.metrics, req.From.Kind, err)
				return err
			}
		}

		code, created, err := s.batcher.CreateGroup(ctx, tx, items)
		if err != nil {
			return err
		}
		lines = created

		m = domain.NewMovement(domain.MovementTransfer, &req.From, &req.To, code, domain.TotalQuantity(items), req.UserID)
		m.AppendNote(req.Notes)
		if req.From.SameHospital(req.To) {
			now := time.Now().UTC()
			m.State = domain.StateDispatched
			m.DispatchedAt = &now
		}
		return s.stores.Movements.Create(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MovementCreated(string(m.Kind))
	s.publisher.PublishMovementCreated(ctx, m)
	s.logger.WithMovement(m.ID, m.GroupCode).Info().
		Str("state", string(m.State)).
		Int("quantity", m.OutboundTotal).
		Msg("movement dispatched")

	return &domain.MovementDetail{Movement: m, Lines: lines}, nil
}

// CourierUpdate applies a courier report: it moves the ledger state and
// appends to the tracking log. Delivery flips the lot-group lines too.
func (s *LedgerService) CourierUpdate(ctx context.Context, req CourierUpdateRequest) (*CourierUpdateResult, error) {
	courier, err := domain.ParseCourierState(req.State)
	if err != nil {
		return nil, err
	}
	next := courier.LedgerState()

	var m *domain.Movement
	var previous domain.MovementState
	event := &domain.TrackingEvent{
		MovementID:    req.MovementID,
		State:         next,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Address:       strings.TrimSpace(req.Address),
		Notes:         strings.TrimSpace(req.Notes),
		CourierUserID: req.CourierUserID,
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		m, err = s.stores.Movements.GetForUpdate(ctx, tx, req.MovementID)
		if err != nil {
			return err
		}
		if err := m.CheckTransition(next); err != nil {
			return err
		}

		previous = m.State
		m.State = next
		if m.DispatchedAt == nil {
			now := time.Now().UTC()
			m.DispatchedAt = &now
		}
		if next == domain.StateDelivered {
			if err := s.stores.Groups.SetState(ctx, tx, m.GroupCode, domain.LineDelivered); err != nil {
				return err
			}
		}
		if err := s.stores.Movements.Save(ctx, tx, m); err != nil {
			return err
		}
		return s.stores.Tracking.Append(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	if previous != m.State {
		s.metrics.Transition(string(previous), string(m.State))
		s.publisher.PublishStateChanged(ctx, m, previous, req.CourierUserID)
	}
	s.logger.WithMovement(m.ID, m.GroupCode).Debug().
		Str("from", string(previous)).
		Str("to", string(m.State)).
		Msg("courier update applied")

	return &CourierUpdateResult{Movement: m, Event: event}, nil
}

// Cancel closes an open movement and puts every dispatched unit back in the
// origin warehouse. Movements without an origin restore nothing.
func (s *LedgerService) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}

	var m *domain.Movement
	var previous domain.MovementState
	restored := 0
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		m, err = s.stores.Movements.GetForUpdate(ctx, tx, req.MovementID)
		if err != nil {
			return err
		}
		if err := m.CheckTransition(domain.StateCancelled); err != nil {
			return err
		}

		lines, err := s.stores.Groups.LockByCode(ctx, tx, m.GroupCode)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if l.Status != domain.LineActive {
				return errors.InconsistentBatch(m.GroupCode, "line is already inactive")
			}
		}

		if origin := m.Origin(); origin != nil {
			for _, l := range lines {
				if l.OutboundQuantity == 0 {
					continue
				}
				if _, err := s.stores.Stock.Increment(ctx, tx, origin.Key(l.LotID), l.OutboundQuantity); err != nil {
					return err
				}
				restored += l.OutboundQuantity
			}
		}

		if err := s.stores.Groups.Deactivate(ctx, tx, m.GroupCode); err != nil {
			return err
		}

		previous = m.State
		m.State = domain.StateCancelled
		m.AppendNote("Cancelled: " + reason)
		return s.stores.Movements.Save(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(previous), string(m.State))
	s.publisher.PublishCancelled(ctx, m, previous, reason, restored, req.UserID)
	s.logger.WithMovement(m.ID, m.GroupCode).Info().
		Int("restored", restored).
		Msg("movement cancelled")

	return &CancelResult{Movement: m, RestoredQuantity: restored}, nil
}

// PatientDispatch hands lots to a patient. The exit movement has no
// destination and is closed in the same unit of work.
func (s *LedgerService) PatientDispatch(ctx context.Context, req PatientDispatchRequest) (*domain.MovementDetail, error) {
	if err := checkWarehouse(req.From, "origin"); err != nil {
		return nil, err
	}
	patient := strings.TrimSpace(req.PatientRef)
	if patient == "" {
		return nil, errors.Validation(map[string]string{"patient_ref": "is required"})
	}
	items, err := domain.MergeGroupItems(req.Items)
	if err != nil {
		return nil, err
	}

	var m *domain.Movement
	var lines []domain.LotGroupItem
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			if _, err := s.stores.Stock.Decrement(ctx, tx, req.From.Key(item.LotID), item.Quantity); err != nil {
				recordInsufficient(s.metrics, req.From.Kind, err)
				return err
			}
		}

		code, created, err := s.batcher.CreateGroup(ctx, tx, items)
		if err != nil {
			return err
		}

		m = domain.NewMovement(domain.MovementExit, &req.From, nil, code, domain.TotalQuantity(items), req.UserID)
		m.AppendNote("Patient: " + patient)
		m.AppendNote(req.Notes)
		if err := s.stores.Movements.Create(ctx, tx, m); err != nil {
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
	s.logger.WithMovement(m.ID, m.GroupCode).Info().
		Int("quantity", m.OutboundTotal).
		Msg("patient dispatch registered")

	return &domain.MovementDetail{Movement: m, Lines: lines}, nil
}

// Get returns a movement with its lines, discrepancies and tracking log
func (s *LedgerService) Get(ctx context.Context, id int64) (*domain.MovementDetail, error) {
	m, err := s.stores.Movements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.stores.Groups.FetchByCode(ctx, s.db, m.GroupCode)
	if err != nil {
		return nil, err
	}
	discrepancies, err := s.stores.Discrepancies.ListByMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	tracking, err := s.stores.Tracking.ListByMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.MovementDetail{
		Movement:      m,
		Lines:         lines,
		Discrepancies: discrepancies,
		Tracking:      tracking,
	}, nil
}

// List returns one page of movements and the total match count
func (s *LedgerService) List(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, int64, error) {
	return s.stores.Movements.List(ctx, filter)
}

// Tracking returns the courier log of a movement, oldest first
func (s *LedgerService) Tracking(ctx context.Context, id int64) ([]domain.TrackingEvent, error) {
	if _, err := s.stores.Movements.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.stores.Tracking.ListByMovement(ctx, id)
}
