// Package handler exposes the stock engine over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/i18n"
	"github.com/medflow/medflow-stock/pkg/logger"
)

const dateLayout = "2006-01-02"

// Services bundles the use cases the handlers call
type Services struct {
	Stores       *service.Stores
	Batcher      *service.Batcher
	Transfers    *service.TransferService
	Ledger       *service.LedgerService
	Receiving    *service.ReceivingService
	Distribution *service.DistributionService
	Intake       *service.IntakeService
}

// Mount registers every stock route on r
func Mount(r chi.Router, svc *Services, log *logger.Logger) {
	warehouses := NewWarehouseHandler(svc.Stores.Stock, svc.Batcher, log)
	movements := NewMovementHandler(svc, log)
	distributions := NewDistributionHandler(svc.Distribution, log)

	r.Get("/warehouses/{kind}/hospitals/{hospitalID}/sites/{siteID}", warehouses.ListStock)
	r.Get("/lot-groups/{code}", warehouses.GetLotGroup)

	r.Post("/transfers", movements.DirectTransfer)
	r.Post("/dispatches/patient", movements.PatientDispatch)
	r.Post("/intakes", movements.Intake)

	r.Route("/movements", func(r chi.Router) {
		r.Get("/", movements.List)
		r.Post("/", movements.Dispatch)
		r.Get("/{id}", movements.Get)
		r.Get("/{id}/tracking", movements.Tracking)
		r.Post("/{id}/tracking", movements.CourierUpdate)
		r.Post("/{id}/receive", movements.Receive)
		r.Post("/{id}/cancel", movements.Cancel)
	})

	r.Route("/distributions", func(r chi.Router) {
		r.Post("/proportional", distributions.Proportional)
		r.Post("/bulk", distributions.Bulk)
		r.Post("/aus", distributions.AUS)
	})
	r.Get("/percentages", distributions.Percentages)
}

// warehouseDTO locates a warehouse in a request body
type warehouseDTO struct {
	Kind       string `json:"warehouse_kind" validate:"required"`
	HospitalID int64  `json:"hospital_id" validate:"required,gt=0"`
	SiteID     int64  `json:"site_id" validate:"required,gt=0"`
}

// ref resolves the kind tag. Unknown kinds are ConfigurationMissing.
func (d warehouseDTO) ref() (domain.WarehouseRef, error) {
	kind, err := domain.ParseWarehouseKind(d.Kind)
	if err != nil {
		return domain.WarehouseRef{}, err
	}
	return domain.WarehouseRef{Kind: kind, HospitalID: d.HospitalID, SiteID: d.SiteID}, nil
}

// parseDate reads an optional yyyy-mm-dd date
func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, errors.Validation(map[string]string{field: "must be a date formatted as " + dateLayout})
	}
	return &t, nil
}

func message(r *http.Request, key string) string {
	return i18n.TFromContext(r.Context(), key)
}
