package domain

import (
	"strings"
	"time"

	"github.com/medflow/medflow-stock/pkg/errors"
)

// MovementKind classifies a movement by which ends of it are inside the network
type MovementKind string

const (
	MovementEntry    MovementKind = "entry"    // external intake, no origin
	MovementExit     MovementKind = "exit"     // patient dispatch, no destination
	MovementTransfer MovementKind = "transfer" // warehouse to warehouse
)

// MovementState is the ledger lifecycle state
type MovementState string

const (
	StatePending    MovementState = "pending"
	StateDispatched MovementState = "dispatched"
	StateEnRoute    MovementState = "en_route"
	StateDelivered  MovementState = "delivered"
	StateReceived   MovementState = "received"
	StateCancelled  MovementState = "cancelled"
)

var movementTransitions = map[MovementState][]MovementState{
	StatePending:    {StateDispatched, StateEnRoute, StateDelivered, StateReceived, StateCancelled},
	StateDispatched: {StateEnRoute, StateDelivered, StateReceived, StateCancelled},
	StateEnRoute:    {StateEnRoute, StateDelivered, StateCancelled},
	StateDelivered:  {StateReceived, StateCancelled},
	StateReceived:   nil,
	StateCancelled:  nil,
}

// ParseMovementState validates a state tag
func ParseMovementState(raw string) (MovementState, error) {
	s := MovementState(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := movementTransitions[s]; !ok {
		return "", errors.BadRequest("unknown movement state " + raw)
	}
	return s, nil
}

// Terminal reports whether no transition leaves s
func (s MovementState) Terminal() bool {
	return len(movementTransitions[s]) == 0
}

// CanTransition reports whether the ledger accepts from -> to
func CanTransition(from, to MovementState) bool {
	for _, next := range movementTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CourierState is what the courier app reports for a movement in transit
type CourierState string

const (
	CourierDispatched CourierState = "dispatched"
	CourierEnRoute    CourierState = "en_route"
	CourierDelivered  CourierState = "delivered"
)

// ParseCourierState accepts the three courier tags
func ParseCourierState(raw string) (CourierState, error) {
	switch s := CourierState(strings.ToLower(strings.TrimSpace(raw))); s {
	case CourierDispatched, CourierEnRoute, CourierDelivered:
		return s, nil
	default:
		return "", errors.BadRequest("unknown courier state " + raw)
	}
}

// LedgerState maps a courier report onto the ledger. Dispatched and en route
// both mean in transit.
func (c CourierState) LedgerState() MovementState {
	if c == CourierDelivered {
		return StateDelivered
	}
	return StateEnRoute
}

// receivableStates is keyed by origin kind; the empty key is an external intake.
var receivableStates = map[WarehouseKind][]MovementState{
	KindCentral: {StateDelivered},
	KindPrimary: {StateDispatched, StateDelivered},
	"":          {StatePending, StateDelivered},
}

var defaultReceivableStates = []MovementState{StateDelivered}

// ReceivableStates lists the states in which a movement from origin may be received
func ReceivableStates(origin *WarehouseKind) []MovementState {
	key := WarehouseKind("")
	if origin != nil {
		key = *origin
	}
	if states, ok := receivableStates[key]; ok {
		return states
	}
	return defaultReceivableStates
}

// Movement is one logical shipment. Origin fields are nil for external
// intake and destination fields are nil for patient dispatch.
type Movement struct {
	ID                    int64          `db:"id" json:"id"`
	Kind                  MovementKind   `db:"kind" json:"kind"`
	OriginHospitalID      *int64         `db:"origin_hospital_id" json:"origin_hospital_id,omitempty"`
	OriginSiteID          *int64         `db:"origin_site_id" json:"origin_site_id,omitempty"`
	OriginKind            *WarehouseKind `db:"origin_warehouse_kind" json:"origin_warehouse_kind,omitempty"`
	DestinationHospitalID *int64         `db:"destination_hospital_id" json:"destination_hospital_id,omitempty"`
	DestinationSiteID     *int64         `db:"destination_site_id" json:"destination_site_id,omitempty"`
	DestinationKind       *WarehouseKind `db:"destination_warehouse_kind" json:"destination_warehouse_kind,omitempty"`
	OutboundTotal         int            `db:"outbound_quantity_total" json:"outbound_quantity_total"`
	InboundTotal          int            `db:"inbound_quantity_total" json:"inbound_quantity_total"`
	DiscrepancyTotal      bool           `db:"discrepancy_total" json:"discrepancy_total"`
	GroupCode             string         `db:"group_code" json:"group_code"`
	State                 MovementState  `db:"state" json:"state"`
	DispatchedAt          *time.Time     `db:"dispatched_at" json:"dispatched_at,omitempty"`
	ReceivedAt            *time.Time     `db:"received_at" json:"received_at,omitempty"`
	Notes                 string         `db:"notes" json:"notes,omitempty"`
	UserID                int64          `db:"user_id" json:"user_id"`
	ReceiverUserID        *int64         `db:"receiver_user_id" json:"receiver_user_id,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// NewMovement builds an unsaved pending movement between two optional warehouses
func NewMovement(kind MovementKind, origin, destination *WarehouseRef, code string, outbound int, userID int64) *Movement {
	m := &Movement{
		Kind:          kind,
		GroupCode:     code,
		OutboundTotal: outbound,
		State:         StatePending,
		UserID:        userID,
	}
	if origin != nil {
		o := *origin
		m.OriginHospitalID, m.OriginSiteID, m.OriginKind = &o.HospitalID, &o.SiteID, &o.Kind
	}
	if destination != nil {
		d := *destination
		m.DestinationHospitalID, m.DestinationSiteID, m.DestinationKind = &d.HospitalID, &d.SiteID, &d.Kind
	}
	return m
}

// Origin returns the origin warehouse, or nil for external intake
func (m *Movement) Origin() *WarehouseRef {
	if m.OriginKind == nil || m.OriginHospitalID == nil || m.OriginSiteID == nil {
		return nil
	}
	return &WarehouseRef{Kind: *m.OriginKind, HospitalID: *m.OriginHospitalID, SiteID: *m.OriginSiteID}
}

// Destination returns the destination warehouse, or nil for patient dispatch
func (m *Movement) Destination() *WarehouseRef {
	if m.DestinationKind == nil || m.DestinationHospitalID == nil || m.DestinationSiteID == nil {
		return nil
	}
	return &WarehouseRef{Kind: *m.DestinationKind, HospitalID: *m.DestinationHospitalID, SiteID: *m.DestinationSiteID}
}

// CheckTransition returns InvalidMovementState unless m may move to next
func (m *Movement) CheckTransition(next MovementState) error {
	if !CanTransition(m.State, next) {
		return errors.InvalidMovementState(m.ID, string(m.State), "transition to "+string(next))
	}
	return nil
}

// CheckReceivable returns InvalidMovementState unless the origin kind allows
// receiving in the current state
func (m *Movement) CheckReceivable() error {
	for _, s := range ReceivableStates(m.OriginKind) {
		if s == m.State {
			return nil
		}
	}
	return errors.InvalidMovementState(m.ID, string(m.State), "receive")
}

// AppendNote adds a line to the free-text notes
func (m *Movement) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if m.Notes == "" {
		m.Notes = note
		return
	}
	m.Notes += "\n" + note
}

// TrackingEvent is one courier status report. Append-only.
type TrackingEvent struct {
	ID            int64         `db:"id" json:"id"`
	MovementID    int64         `db:"movement_id" json:"movement_id"`
	State         MovementState `db:"state" json:"state"`
	Latitude      *float64      `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64      `db:"longitude" json:"longitude,omitempty"`
	Address       string        `db:"address" json:"address,omitempty"`
	Notes         string        `db:"notes" json:"notes,omitempty"`
	CourierUserID int64         `db:"courier_user_id" json:"courier_user_id"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// Discrepancy is one mismatched lot discovered at receiving. Append-only.
type Discrepancy struct {
	ID               int64     `db:"id" json:"id"`
	MovementID       int64     `db:"movement_id" json:"movement_id"`
	GroupCode        string    `db:"group_code" json:"group_code"`
	LotID            int64     `db:"lot_id" json:"lot_id"`
	ExpectedQuantity int       `db:"expected_quantity" json:"expected_quantity"`
	ReceivedQuantity int       `db:"received_quantity" json:"received_quantity"`
	Note             string    `db:"note" json:"note"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// MovementFilter narrows movement listings. Zero values mean no filter.
type MovementFilter struct {
	State      MovementState
	HospitalID int64 // origin or destination
	SiteID     int64 // origin or destination
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

// Normalize clamps paging to sane bounds
func (f *MovementFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
}

// Offset is the row offset of the current page
func (f MovementFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// MovementDetail bundles a movement with everything recorded against it
type MovementDetail struct {
	Movement      *Movement       `json:"movement"`
	Lines         []LotGroupItem  `json:"lines"`
	Discrepancies []Discrepancy   `json:"discrepancies"`
	Tracking      []TrackingEvent `json:"tracking"`
}
