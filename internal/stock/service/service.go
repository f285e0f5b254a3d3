// Package service holds the stock engine's use cases. Every mutating
// operation runs as one database transaction; events and metrics are
// emitted only after commit.
package service

import (
	"fmt"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/metrics"
)

// Stores bundles the repositories the services share
type Stores struct {
	Stock         *repository.StockRepository
	Groups        *repository.LotGroupRepository
	Movements     *repository.MovementRepository
	Discrepancies *repository.DiscrepancyRepository
	Tracking      *repository.TrackingRepository
	Directory     *repository.DirectoryRepository
	Lots          *repository.LotRepository
}

// NewStores creates every repository on db
func NewStores(db *database.DB, codeRetryAttempts int) *Stores {
	return &Stores{
		Stock:         repository.NewStockRepository(db),
		Groups:        repository.NewLotGroupRepository(db, codeRetryAttempts),
		Movements:     repository.NewMovementRepository(db),
		Discrepancies: repository.NewDiscrepancyRepository(db),
		Tracking:      repository.NewTrackingRepository(db),
		Directory:     repository.NewDirectoryRepository(db),
		Lots:          repository.NewLotRepository(db),
	}
}

// checkWarehouse rejects unknown kinds and missing ids
func checkWarehouse(w domain.WarehouseRef, role string) error {
	if !w.Kind.Valid() {
		return errors.ConfigurationMissing(fmt.Sprintf("unsupported %s warehouse kind %q", role, w.Kind))
	}
	if w.HospitalID <= 0 || w.SiteID <= 0 {
		return errors.Validation(map[string]string{
			role: "hospital_id and site_id are required",
		})
	}
	return nil
}

// recordInsufficient counts a rejected decrement
func recordInsufficient(m *metrics.Metrics, kind domain.WarehouseKind, err error) {
	if errors.Is(err, errors.ErrInsufficientStock) {
		m.Insufficient(kind.String())
	}
}
