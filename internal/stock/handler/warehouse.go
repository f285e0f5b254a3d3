package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// WarehouseHandler serves stock rows and lot groups
type WarehouseHandler struct {
	stock   *repository.StockRepository
	batcher *service.Batcher
	logger  *logger.Logger
}

// NewWarehouseHandler creates a new warehouse handler
func NewWarehouseHandler(stock *repository.StockRepository, batcher *service.Batcher, log *logger.Logger) *WarehouseHandler {
	return &WarehouseHandler{
		stock:   stock,
		batcher: batcher,
		logger:  log,
	}
}

// ListStock lists the stock rows of one warehouse
func (h *WarehouseHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseWarehouseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	hospitalID, err := httputil.PathInt64(r, "hospitalID")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	siteID, err := httputil.PathInt64(r, "siteID")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	rows, err := h.stock.ListBySite(r.Context(), domain.WarehouseRef{Kind: kind, HospitalID: hospitalID, SiteID: siteID})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rows)
}

// GetLotGroup returns every line of a lot group
func (h *WarehouseHandler) GetLotGroup(w http.ResponseWriter, r *http.Request) {
	lines, err := h.batcher.FetchByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lines)
}
