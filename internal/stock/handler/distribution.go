package handler

import (
	"net/http"

	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/actor"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// DistributionHandler serves distribution runs
type DistributionHandler struct {
	distribution *service.DistributionService
	logger       *logger.Logger
}

// NewDistributionHandler creates a new distribution handler
func NewDistributionHandler(distribution *service.DistributionService, log *logger.Logger) *DistributionHandler {
	return &DistributionHandler{
		distribution: distribution,
		logger:       log,
	}
}

type proportionalRequest struct {
	Origin      warehouseDTO `json:"origin" validate:"required"`
	HospitalIDs []int64      `json:"hospital_ids" validate:"dive,gt=0"`
	LotIDs      []int64      `json:"lot_ids" validate:"required,min=1,dive,gt=0"`
}

type bulkLineRequest struct {
	SupplyID      int64  `json:"supply_id" validate:"gte=0"`
	SupplyCode    string `json:"supply_code" validate:"max=64"`
	SupplyName    string `json:"supply_name" validate:"required_without_all=SupplyID SupplyCode,max=255"`
	TotalQuantity int    `json:"total_quantity" validate:"required,gt=0"`
}

type bulkRequest struct {
	Origin      warehouseDTO      `json:"origin" validate:"required"`
	HospitalIDs []int64           `json:"hospital_ids" validate:"dive,gt=0"`
	Strategy    string            `json:"strategy" validate:"omitempty,oneof=per_hospital_percentage class_split"`
	Lines       []bulkLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type ausRequest struct {
	Origin      warehouseDTO  `json:"origin" validate:"required"`
	HospitalIDs []int64       `json:"hospital_ids" validate:"dive,gt=0"`
	SupplyIDs   []int64       `json:"supply_ids" validate:"required,min=1,dive,gt=0"`
	Quantities  map[int64]int `json:"quantities"`
}

func (h *DistributionHandler) respond(w http.ResponseWriter, r *http.Request, result *service.DistributionResult) {
	key := "distribution.completed"
	if result.Failed() > 0 {
		key = "distribution.completed_with_errors"
	}
	httputil.JSONMessage(w, http.StatusOK, message(r, key), result)
}

// Proportional splits central lots among hospitals by class
func (h *DistributionHandler) Proportional(w http.ResponseWriter, r *http.Request) {
	var req proportionalRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	origin, err := req.Origin.ref()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.distribution.DistributeProportional(r.Context(), service.ProportionalRequest{
		Origin:      origin,
		HospitalIDs: req.HospitalIDs,
		LotIDs:      req.LotIDs,
		UserID:      actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.respond(w, r, result)
}

// Bulk distributes supply totals from central stock
func (h *DistributionHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	origin, err := req.Origin.ref()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	lines := make([]service.BulkLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, service.BulkLine{
			SupplyID:      l.SupplyID,
			SupplyCode:    l.SupplyCode,
			SupplyName:    l.SupplyName,
			TotalQuantity: l.TotalQuantity,
		})
	}

	result, err := h.distribution.DistributeBulk(r.Context(), service.BulkRequest{
		Origin:      origin,
		HospitalIDs: req.HospitalIDs,
		Strategy:    req.Strategy,
		Lines:       lines,
		UserID:      actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.respond(w, r, result)
}

// AUS redistributes AUS stock by hospital class
func (h *DistributionHandler) AUS(w http.ResponseWriter, r *http.Request) {
	var req ausRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	origin, err := req.Origin.ref()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.distribution.RedistributeFromAUS(r.Context(), service.AUSRequest{
		Origin:      origin,
		HospitalIDs: req.HospitalIDs,
		SupplyIDs:   req.SupplyIDs,
		Quantities:  req.Quantities,
		UserID:      actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.respond(w, r, result)
}

// Percentages returns the hospital class percentages
func (h *DistributionHandler) Percentages(w http.ResponseWriter, r *http.Request) {
	pct, err := h.distribution.Percentages(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pct)
}
