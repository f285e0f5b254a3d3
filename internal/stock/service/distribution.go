package service

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-stock/internal/stock/distribution"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
	"github.com/medflow/medflow-stock/pkg/metrics"
)

// ProportionalRequest splits whole central lots among hospitals
type ProportionalRequest struct {
	Origin      domain.WarehouseRef
	HospitalIDs []int64
	LotIDs      []int64
	UserID      int64
}

// BulkLine asks for a total quantity of one supply. The supply is given
// by id, code or name.
type BulkLine struct {
	SupplyID      int64
	SupplyCode    string
	SupplyName    string
	TotalQuantity int
}

// BulkRequest distributes several supplies from central stock at once.
// An empty strategy uses the configured default and empty hospital ids
// mean every active hospital.
type BulkRequest struct {
	Origin      domain.WarehouseRef
	HospitalIDs []int64
	Strategy    string
	Lines       []BulkLine
	UserID      int64
}

// AUSRequest redistributes AUS stock by hospital class. A supply missing
// from Quantities is distributed in full.
type AUSRequest struct {
	Origin      domain.WarehouseRef
	HospitalIDs []int64
	SupplyIDs   []int64
	Quantities  map[int64]int
	UserID      int64
}

// DestinationResult is the outcome for one hospital. Error is set when
// nothing was shipped to it.
type DestinationResult struct {
	HospitalID        int64  `json:"hospital_id"`
	AllocatedQuantity int    `json:"allocated_quantity"`
	MovementID        int64  `json:"movement_id,omitempty"`
	GroupCode         string `json:"group_code,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	Error             string `json:"error,omitempty"`
}

// LineResult is the outcome for one requested supply or lot
type LineResult struct {
	SupplyID  int64  `json:"supply_id,omitempty"`
	LotID     int64  `json:"lot_id,omitempty"`
	Requested int    `json:"requested"`
	Planned   int    `json:"planned"`
	Remainder int    `json:"remainder"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DistributionResult summarises one distribution run
type DistributionResult struct {
	Strategy     string              `json:"strategy"`
	Destinations []DestinationResult `json:"destinations"`
	Lines        []LineResult        `json:"lines"`
	Skipped      []int64             `json:"skipped_hospitals,omitempty"`
	Allocated    int                 `json:"allocated"`
	Remainder    int                 `json:"remainder"`
	Leftovers    map[int64]int       `json:"leftovers,omitempty"`
}

// Failed counts destinations and lines that ended in an error
func (r *DistributionResult) Failed() int {
	n := 0
	for _, d := range r.Destinations {
		if d.Error != "" {
			n++
		}
	}
	for _, l := range r.Lines {
		if l.Error != "" {
			n++
		}
	}
	return n
}

// MovementIDs lists the movements the run created
func (r *DistributionResult) MovementIDs() []int64 {
	ids := []int64{}
	for _, d := range r.Destinations {
		if d.MovementID != 0 {
			ids = append(ids, d.MovementID)
		}
	}
	return ids
}

// shipments collects group lines per hospital in first-planned order
type shipments struct {
	order []int64
	items map[int64][]domain.GroupItem
}

func newShipments() *shipments {
	return &shipments{items: make(map[int64][]domain.GroupItem)}
}

func (s *shipments) add(hospitalID int64, items ...domain.GroupItem) {
	if len(items) == 0 {
		return
	}
	if _, ok := s.items[hospitalID]; !ok {
		s.order = append(s.order, hospitalID)
	}
	s.items[hospitalID] = append(s.items[hospitalID], items...)
}

// DistributionService turns distribution plans into movements
type DistributionService struct {
	db              *database.DB
	stores          *Stores
	batcher         *Batcher
	defaultStrategy string
	metrics         *metrics.Metrics
	publisher       *events.StockEventPublisher
	logger          *logger.Logger
}

// NewDistributionService creates a new distribution service
func NewDistributionService(
	db *database.DB,
	stores *Stores,
	batcher *Batcher,
	defaultStrategy string,
	m *metrics.Metrics,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *DistributionService {
	if defaultStrategy == "" {
		defaultStrategy = distribution.StrategyPerHospitalPercentage
	}
	return &DistributionService{
		db:              db,
		stores:          stores,
		batcher:         batcher,
		defaultStrategy: defaultStrategy,
		metrics:         m,
		publisher:       publisher,
		logger:          log.WithComponent("distribution"),
	}
}

// Percentages returns the configured class percentages
func (s *DistributionService) Percentages(ctx context.Context) (*domain.Percentages, error) {
	return s.stores.Directory.Percentages(ctx)
}

// targets loads percentages and the hospitals a run may ship to
func (s *DistributionService) targets(ctx context.Context, ids []int64) ([]distribution.Target, []int64, domain.Percentages, error) {
	pct, err := s.stores.Directory.Percentages(ctx)
	if err != nil {
		return nil, nil, domain.Percentages{}, err
	}
	if err := distribution.ValidatePercentages(*pct); err != nil {
		return nil, nil, domain.Percentages{}, err
	}

	hospitals, err := s.stores.Directory.ActiveHospitals(ctx, ids)
	if err != nil {
		return nil, nil, domain.Percentages{}, err
	}
	targets, skipped := distribution.Targets(hospitals)

	// requested ids that are inactive or unknown
	found := make(map[int64]bool, len(hospitals))
	for _, h := range hospitals {
		found[h.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			skipped = append(skipped, id)
		}
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i] < skipped[j] })
	return targets, skipped, *pct, nil
}

// DistributeProportional splits the available central stock of every lot
// among the target hospitals. Each hospital gets one movement, shipped in
// plan order; a hospital whose share no longer fits fails on its own.
func (s *DistributionService) DistributeProportional(ctx context.Context, req ProportionalRequest) (*DistributionResult, error) {
	if err := s.checkOrigin(req.Origin, domain.KindCentral); err != nil {
		return nil, err
	}
	if len(req.LotIDs) == 0 {
		return nil, errors.BadRequest("at least one lot is required")
	}

	targets, skipped, pct, err := s.targets(ctx, req.HospitalIDs)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{Strategy: distribution.StrategyProportional, Skipped: skipped}
	plan := newShipments()
	for _, lotID := range req.LotIDs {
		line := LineResult{LotID: lotID}
		row, err := s.stores.Stock.Find(ctx, s.db, req.Origin.Key(lotID))
		if err != nil {
			line.ErrorCode, line.Error = describe(err)
			result.Lines = append(result.Lines, line)
			continue
		}
		if row != nil {
			line.Requested = row.Quantity
		}

		allocations := distribution.ProportionalPlan(line.Requested, targets, pct)
		for _, a := range allocations {
			plan.add(a.HospitalID, domain.GroupItem{LotID: lotID, Quantity: a.Quantity})
		}
		line.Planned = distribution.Sum(allocations)
		line.Remainder = max(line.Requested-line.Planned, 0)
		result.Remainder += line.Remainder
		result.Lines = append(result.Lines, line)
	}

	s.shipAll(ctx, req.Origin, plan, req.UserID, result)
	s.finish(ctx, req.Origin, req.UserID, result)
	return result, nil
}

// DistributeBulk plans each line by hospital class and takes the units
// FIFO from central stock. A line that central stock cannot cover is
// skipped whole. All lots planned for one hospital travel in one movement.
func (s *DistributionService) DistributeBulk(ctx context.Context, req BulkRequest) (*DistributionResult, error) {
	if err := s.checkOrigin(req.Origin, domain.KindCentral); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, errors.BadRequest("at least one line is required")
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.defaultStrategy
	}
	if strategy != distribution.StrategyPerHospitalPercentage && strategy != distribution.StrategyClassSplit {
		return nil, errors.BadRequest("unknown distribution strategy " + strategy)
	}

	targets, skipped, pct, err := s.targets(ctx, req.HospitalIDs)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{Strategy: strategy, Skipped: skipped}
	plan := newShipments()
	pools := make(map[int64]*distribution.Pool)
	for _, l := range req.Lines {
		line := LineResult{SupplyID: l.SupplyID, Requested: l.TotalQuantity}
		if l.TotalQuantity <= 0 {
			line.ErrorCode, line.Error = describe(errors.Validation(map[string]string{
				"total_quantity": "must be greater than 0",
			}))
			result.Lines = append(result.Lines, line)
			continue
		}

		supply, err := s.resolveSupply(ctx, l)
		if err != nil {
			line.ErrorCode, line.Error = describe(err)
			result.Lines = append(result.Lines, line)
			continue
		}
		line.SupplyID = supply.ID

		var allocations []distribution.Allocation
		if strategy == distribution.StrategyClassSplit {
			allocations, line.Remainder = distribution.ClassSplitPlan(l.TotalQuantity, targets, pct)
		} else {
			allocations, line.Remainder = distribution.PerHospitalPercentagePlan(l.TotalQuantity, targets, pct)
		}

		pool, ok := pools[supply.ID]
		if !ok {
			sources, err := s.stores.Stock.ListFIFO(ctx, s.db, req.Origin, supply.ID)
			if err != nil {
				line.ErrorCode, line.Error = describe(err)
				result.Lines = append(result.Lines, line)
				continue
			}
			pool = distribution.NewPool(req.Origin.Kind, supply.ID, sources)
			pools[supply.ID] = pool
		}

		picks, err := distribution.AllocateFIFO(pool, allocations)
		if err != nil {
			s.metrics.Insufficient(req.Origin.Kind.String())
			line.ErrorCode, line.Error = describe(err)
			result.Lines = append(result.Lines, line)
			continue
		}
		for _, a := range allocations {
			plan.add(a.HospitalID, distribution.GroupItems(picks[a.HospitalID])...)
		}
		line.Planned = distribution.Sum(allocations)
		result.Remainder += line.Remainder
		result.Lines = append(result.Lines, line)
	}

	s.shipAll(ctx, req.Origin, plan, req.UserID, result)
	s.finish(ctx, req.Origin, req.UserID, result)
	return result, nil
}

// RedistributeFromAUS splits AUS stock of each supply by hospital class,
// taking lots FIFO. Units the plan does not assign stay in AUS and are
// reported as leftovers.
func (s *DistributionService) RedistributeFromAUS(ctx context.Context, req AUSRequest) (*DistributionResult, error) {
	if err := s.checkOrigin(req.Origin, domain.KindAUS); err != nil {
		return nil, err
	}
	if len(req.SupplyIDs) == 0 {
		return nil, errors.BadRequest("at least one supply is required")
	}

	targets, skipped, pct, err := s.targets(ctx, req.HospitalIDs)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{
		Strategy:  distribution.StrategyClassSplit,
		Skipped:   skipped,
		Leftovers: make(map[int64]int, len(req.SupplyIDs)),
	}
	plan := newShipments()
	for _, supplyID := range req.SupplyIDs {
		line := LineResult{SupplyID: supplyID}
		sources, err := s.stores.Stock.ListFIFO(ctx, s.db, req.Origin, supplyID)
		if err != nil {
			line.ErrorCode, line.Error = describe(err)
			result.Lines = append(result.Lines, line)
			continue
		}
		pool := distribution.NewPool(req.Origin.Kind, supplyID, sources)

		line.Requested = pool.Available()
		if qty, ok := req.Quantities[supplyID]; ok && qty > 0 {
			line.Requested = qty
		}

		allocations, remainder := distribution.ClassSplitPlan(line.Requested, targets, pct)
		picks, err := distribution.AllocateFIFO(pool, allocations)
		if err != nil {
			s.metrics.Insufficient(req.Origin.Kind.String())
			line.ErrorCode, line.Error = describe(err)
			result.Lines = append(result.Lines, line)
			continue
		}
		for _, a := range allocations {
			plan.add(a.HospitalID, distribution.GroupItems(picks[a.HospitalID])...)
		}
		line.Planned = distribution.Sum(allocations)
		line.Remainder = remainder
		result.Leftovers[supplyID] = remainder
		result.Remainder += remainder
		result.Lines = append(result.Lines, line)
	}

	s.shipAll(ctx, req.Origin, plan, req.UserID, result)
	s.finish(ctx, req.Origin, req.UserID, result)
	return result, nil
}

func (s *DistributionService) checkOrigin(origin domain.WarehouseRef, kind domain.WarehouseKind) error {
	if err := checkWarehouse(origin, "origin"); err != nil {
		return err
	}
	if origin.Kind != kind {
		return errors.BadRequest("this distribution ships from the " + kind.String() + " warehouse")
	}
	return nil
}

func (s *DistributionService) resolveSupply(ctx context.Context, l BulkLine) (*domain.Supply, error) {
	if l.SupplyID > 0 {
		return s.stores.Directory.GetSupply(ctx, l.SupplyID)
	}
	return s.stores.Directory.FindSupply(ctx, l.SupplyCode, l.SupplyName)
}

// shipAll sends every planned shipment in its own unit of work, so one
// failing hospital does not stop the others
func (s *DistributionService) shipAll(ctx context.Context, origin domain.WarehouseRef, plan *shipments, userID int64, result *DistributionResult) {
	for _, hospitalID := range plan.order {
		dest := s.ship(ctx, origin, hospitalID, plan.items[hospitalID], userID)
		s.metrics.Allocation(result.Strategy, dest.Error == "")
		if dest.Error == "" {
			result.Allocated += dest.AllocatedQuantity
		}
		result.Destinations = append(result.Destinations, dest)
	}
}

// ship moves items from origin to the hospital's primary warehouse as one
// pending transfer movement
func (s *DistributionService) ship(ctx context.Context, origin domain.WarehouseRef, hospitalID int64, items []domain.GroupItem, userID int64) DestinationResult {
	res := DestinationResult{HospitalID: hospitalID}

	site, err := s.stores.Directory.SiteFor(ctx, hospitalID, domain.KindPrimary)
	if err != nil {
		res.ErrorCode, res.Error = describe(err)
		return res
	}
	to := site.Warehouse()

	items, err = domain.MergeGroupItems(items)
	if err != nil {
		res.ErrorCode, res.Error = describe(err)
		return res
	}

	var m *domain.Movement
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			if _, err := s.stores.Stock.Decrement(ctx, tx, origin.Key(item.LotID), item.Quantity); err != nil {
				recordInsufficient(s.metrics, origin.Kind, err)
				return err
			}
		}
		code, _, err := s.batcher.CreateGroup(ctx, tx, items)
		if err != nil {
			return err
		}
		m = domain.NewMovement(domain.MovementTransfer, &origin, &to, code, domain.TotalQuantity(items), userID)
		return s.stores.Movements.Create(ctx, tx, m)
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("hospital_id", hospitalID).Msg("distribution shipment failed")
		res.ErrorCode, res.Error = describe(err)
		return res
	}

	s.metrics.MovementCreated(string(m.Kind))
	s.publisher.PublishMovementCreated(ctx, m)

	res.AllocatedQuantity = m.OutboundTotal
	res.MovementID = m.ID
	res.GroupCode = m.GroupCode
	return res
}

func (s *DistributionService) finish(ctx context.Context, origin domain.WarehouseRef, userID int64, result *DistributionResult) {
	s.publisher.PublishDistributionCompleted(ctx, messaging.DistributionCompletedEvent{
		Strategy:    result.Strategy,
		Origin:      &messaging.WarehouseRef{HospitalID: origin.HospitalID, SiteID: origin.SiteID, Kind: origin.Kind.String()},
		MovementIDs: result.MovementIDs(),
		Allocated:   result.Allocated,
		Failed:      result.Failed(),
		Remainder:   result.Remainder,
		UserID:      userID,
	})
	s.logger.Info().
		Str("strategy", result.Strategy).
		Int("destinations", len(result.Destinations)).
		Int("allocated", result.Allocated).
		Int("remainder", result.Remainder).
		Int("failed", result.Failed()).
		Msg("distribution processed")
}

// describe flattens an error for per-destination and per-line reports
func describe(err error) (code, message string) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	return "INTERNAL_ERROR", err.Error()
}
