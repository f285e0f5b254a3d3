package distribution

import (
	"sort"
	"time"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/errors"
)

// Pick is a quantity taken from one lot
type Pick struct {
	LotID      int64      `json:"lot_id"`
	Quantity   int        `json:"quantity"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// SortFIFO orders sources by expiry ascending, undated lots last, then lot id
func SortFIFO(sources []domain.StockSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		a, b := sources[i].ExpiryDate, sources[j].ExpiryDate
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return sources[i].LotID < sources[j].LotID
	})
}

// Pool hands out units of one supply first-expires-first-out. Units taken
// by one call are never handed out again.
type Pool struct {
	warehouse domain.WarehouseKind
	supplyID  int64
	sources   []domain.StockSource
	available int
}

// NewPool copies and orders sources
func NewPool(warehouse domain.WarehouseKind, supplyID int64, sources []domain.StockSource) *Pool {
	p := &Pool{
		warehouse: warehouse,
		supplyID:  supplyID,
		sources:   make([]domain.StockSource, 0, len(sources)),
	}
	for _, s := range sources {
		if s.Quantity <= 0 {
			continue
		}
		p.sources = append(p.sources, s)
		p.available += s.Quantity
	}
	SortFIFO(p.sources)
	return p
}

// Available is the number of units not yet taken
func (p *Pool) Available() int {
	return p.available
}

// Take removes qty units, splitting across lots as needed. It takes
// nothing and fails with InsufficientStock when the pool is too small.
func (p *Pool) Take(qty int) ([]Pick, error) {
	if qty <= 0 {
		return nil, nil
	}
	if qty > p.available {
		return nil, errors.InsufficientSupply(p.warehouse.String(), p.supplyID, p.available, qty)
	}

	var picks []Pick
	need := qty
	for i := range p.sources {
		if need == 0 {
			break
		}
		src := &p.sources[i]
		if src.Quantity == 0 {
			continue
		}
		n := min(src.Quantity, need)
		picks = append(picks, Pick{LotID: src.LotID, Quantity: n, ExpiryDate: src.ExpiryDate})
		src.Quantity -= n
		need -= n
	}
	p.available -= qty
	return picks, nil
}

// AllocateFIFO walks allocations in order over one shared pool. It fails
// without taking anything if the pool cannot cover the whole plan.
func AllocateFIFO(pool *Pool, allocations []Allocation) (map[int64][]Pick, error) {
	need := Sum(allocations)
	if need > pool.Available() {
		return nil, errors.InsufficientSupply(pool.warehouse.String(), pool.supplyID, pool.Available(), need)
	}

	out := make(map[int64][]Pick, len(allocations))
	for _, a := range allocations {
		picks, err := pool.Take(a.Quantity)
		if err != nil {
			return nil, err
		}
		out[a.HospitalID] = append(out[a.HospitalID], picks...)
	}
	return out, nil
}

// GroupItems turns picks into lot-group lines
func GroupItems(picks []Pick) []domain.GroupItem {
	items := make([]domain.GroupItem, 0, len(picks))
	for _, p := range picks {
		items = append(items, domain.GroupItem{LotID: p.LotID, Quantity: p.Quantity})
	}
	return items
}
