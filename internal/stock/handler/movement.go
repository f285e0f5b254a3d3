package handler

import (
	"net/http"
	"time"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/actor"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// MovementHandler serves the movement lifecycle
type MovementHandler struct {
	svc    *Services
	logger *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *Services, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		svc:    svc,
		logger: log,
	}
}

type shipmentRequest struct {
	From  warehouseDTO       `json:"from" validate:"required"`
	To    warehouseDTO       `json:"to" validate:"required"`
	Items []domain.GroupItem `json:"items" validate:"required,min=1,dive"`
	Notes string             `json:"notes" validate:"max=1000"`
}

func (req shipmentRequest) refs() (from, to domain.WarehouseRef, err error) {
	if from, err = req.From.ref(); err != nil {
		return
	}
	to, err = req.To.ref()
	return
}

type courierUpdateRequest struct {
	State     string   `json:"state" validate:"required,oneof=dispatched en_route delivered"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Address   string   `json:"address" validate:"max=255"`
	Notes     string   `json:"notes" validate:"max=1000"`
}

type receiveRequest struct {
	ReceivedAt   *time.Time            `json:"received_at"`
	Lines        []domain.ReceivedLine `json:"lines" validate:"dive"`
	Redistribute bool                  `json:"redistribute"`
	Notes        string                `json:"notes" validate:"max=1000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type patientDispatchRequest struct {
	From       warehouseDTO       `json:"from" validate:"required"`
	Items      []domain.GroupItem `json:"items" validate:"required,min=1,dive"`
	PatientRef string             `json:"patient_ref" validate:"required,max=100"`
	Notes      string             `json:"notes" validate:"max=1000"`
}

type intakeLineRequest struct {
	SupplyID    int64  `json:"supply_id" validate:"required,gt=0"`
	BatchNumber string `json:"batch_number" validate:"required,max=64"`
	ExpiryDate  string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
}

type intakeRequest struct {
	To         warehouseDTO        `json:"to" validate:"required"`
	Lines      []intakeLineRequest `json:"lines" validate:"required,min=1,dive"`
	IntakeDate string              `json:"intake_date" validate:"omitempty,datetime=2006-01-02"`
	Confirm    *bool               `json:"confirm"`
	Notes      string              `json:"notes" validate:"max=1000"`
}

// DirectTransfer moves lots between two warehouses with no courier leg
func (h *MovementHandler) DirectTransfer(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	from, to, err := req.refs()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	detail, err := h.svc.Transfers.DirectTransfer(r.Context(), service.DirectTransferRequest{
		From:   from,
		To:     to,
		Items:  req.Items,
		Notes:  req.Notes,
		UserID: actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, message(r, "transfers.applied"), detail)
}

// Dispatch opens a courier movement
func (h *MovementHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	from, to, err := req.refs()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	detail, err := h.svc.Ledger.Dispatch(r.Context(), service.DispatchRequest{
		From:   from,
		To:     to,
		Items:  req.Items,
		Notes:  req.Notes,
		UserID: actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, message(r, "movements.dispatched"), detail)
}

// List lists movements, newest first
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MovementFilter{
		HospitalID: int64(httputil.QueryInt(r, "hospital_id", 0)),
		SiteID:     int64(httputil.QueryInt(r, "site_id", 0)),
		Page:       httputil.QueryInt(r, "page", 1),
		PerPage:    httputil.QueryInt(r, "per_page", 20),
	}
	if raw := q.Get("state"); raw != "" {
		state, err := domain.ParseMovementState(raw)
		if err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}
		filter.State = state
	}

	var err error
	if filter.From, err = parseDate("from", q.Get("from")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if filter.To, err = parseDate("to", q.Get("to")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if filter.To != nil {
		// inclusive end date
		end := filter.To.AddDate(0, 0, 1)
		filter.To = &end
	}
	filter.Normalize()

	movements, total, err := h.svc.Ledger.List(r.Context(), filter)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, httputil.NewMeta(filter.Page, filter.PerPage, total))
}

// Get returns a movement with its lines, discrepancies and tracking log
func (h *MovementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	detail, err := h.svc.Ledger.Get(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}

// Tracking returns the courier log of a movement
func (h *MovementHandler) Tracking(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	events, err := h.svc.Ledger.Tracking(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, events)
}

// CourierUpdate records a courier report
func (h *MovementHandler) CourierUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req courierUpdateRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.svc.Ledger.CourierUpdate(r.Context(), service.CourierUpdateRequest{
		MovementID:    id,
		State:         req.State,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Address:       req.Address,
		Notes:         req.Notes,
		CourierUserID: actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONMessage(w, http.StatusOK, message(r, "movements.tracking_updated"), result)
}

// Receive confirms what arrived at the destination
func (h *MovementHandler) Receive(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req receiveRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.svc.Receiving.Receive(r.Context(), service.ReceiveRequest{
		MovementID:   id,
		ReceivedAt:   req.ReceivedAt,
		UserID:       actor.IDFromContext(r.Context()),
		Lines:        req.Lines,
		Redistribute: req.Redistribute,
		Notes:        req.Notes,
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	key := "movements.received"
	if result.WithDiscrepancies {
		key = "movements.received_with_discrepancies"
	}
	httputil.JSONMessage(w, http.StatusOK, message(r, key), result)
}

// Cancel cancels an open movement and restores origin stock
func (h *MovementHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req cancelRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.svc.Ledger.Cancel(r.Context(), service.CancelRequest{
		MovementID: id,
		Reason:     req.Reason,
		UserID:     actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONMessage(w, http.StatusOK, message(r, "movements.cancelled"), result)
}

// PatientDispatch hands lots to a patient
func (h *MovementHandler) PatientDispatch(w http.ResponseWriter, r *http.Request) {
	var req patientDispatchRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	from, err := req.From.ref()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	detail, err := h.svc.Ledger.PatientDispatch(r.Context(), service.PatientDispatchRequest{
		From:       from,
		Items:      req.Items,
		PatientRef: req.PatientRef,
		Notes:      req.Notes,
		UserID:     actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, message(r, "movements.dispatched"), detail)
}

// Intake registers supplies arriving from outside the network
func (h *MovementHandler) Intake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	to, err := req.To.ref()
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	intakeDate, err := parseDate("intake_date", req.IntakeDate)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	lines := make([]service.IntakeLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		expiry, err := parseDate("expiry_date", l.ExpiryDate)
		if err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}
		lines = append(lines, service.IntakeLine{
			SupplyID:    l.SupplyID,
			BatchNumber: l.BatchNumber,
			ExpiryDate:  expiry,
			Quantity:    l.Quantity,
		})
	}

	detail, err := h.svc.Intake.Intake(r.Context(), service.IntakeRequest{
		To:         to,
		Lines:      lines,
		IntakeDate: intakeDate,
		Confirm:    req.Confirm,
		Notes:      req.Notes,
		UserID:     actor.IDFromContext(r.Context()),
	})
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, message(r, "intakes.registered"), detail)
}
