package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the stock service
const (
	EventMovementCreated       = "stock.movement.created"
	EventMovementStateChanged  = "stock.movement.state_changed"
	EventMovementReceived      = "stock.movement.received"
	EventMovementCancelled     = "stock.movement.cancelled"
	EventDistributionCompleted = "stock.distribution.completed"
)

// Event types consumed from other services
const (
	EventCourierTrackingUpdated = "courier.tracking.updated"
)

// Exchange names
const (
	ExchangeStockEvents   = "stock.events"
	ExchangeCourierEvents = "courier.events"
)

// Event is the envelope shared by every message on the bus
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// WarehouseRef locates a warehouse; nil refs mean outside the network
type WarehouseRef struct {
	HospitalID int64  `json:"hospital_id"`
	SiteID     int64  `json:"site_id"`
	Kind       string `json:"warehouse_kind"`
}

// MovementCreatedEvent is published after a movement is committed
type MovementCreatedEvent struct {
	MovementID    int64         `json:"movement_id"`
	Kind          string        `json:"kind"`
	State         string        `json:"state"`
	GroupCode     string        `json:"group_code,omitempty"`
	Origin        *WarehouseRef `json:"origin,omitempty"`
	Destination   *WarehouseRef `json:"destination,omitempty"`
	OutboundTotal int           `json:"outbound_quantity_total"`
	UserID        int64         `json:"user_id"`
}

// MovementStateChangedEvent is published on every accepted transition
type MovementStateChangedEvent struct {
	MovementID int64  `json:"movement_id"`
	GroupCode  string `json:"group_code,omitempty"`
	From       string `json:"from"`
	To         string `json:"to"`
	UserID     int64  `json:"user_id"`
}

// MovementReceivedEvent is published when the destination confirms receipt
type MovementReceivedEvent struct {
	MovementID       int64  `json:"movement_id"`
	GroupCode        string `json:"group_code,omitempty"`
	OutboundTotal    int    `json:"outbound_quantity_total"`
	InboundTotal     int    `json:"inbound_quantity_total"`
	Discrepancy      bool   `json:"discrepancy"`
	DiscrepancyCount int    `json:"discrepancy_count"`
	ReceiverUserID   int64  `json:"receiver_user_id"`
}

// MovementCancelledEvent is published once origin stock has been restored
type MovementCancelledEvent struct {
	MovementID       int64  `json:"movement_id"`
	GroupCode        string `json:"group_code,omitempty"`
	PreviousState    string `json:"previous_state"`
	Reason           string `json:"reason"`
	RestoredQuantity int    `json:"restored_quantity"`
	UserID           int64  `json:"user_id"`
}

// DistributionCompletedEvent summarises a distribution run
type DistributionCompletedEvent struct {
	Strategy    string        `json:"strategy"`
	Origin      *WarehouseRef `json:"origin,omitempty"`
	MovementIDs []int64       `json:"movement_ids"`
	Allocated   int           `json:"allocated"`
	Failed      int           `json:"failed"`
	Remainder   int           `json:"remainder"`
	UserID      int64         `json:"user_id"`
}

// CourierTrackingUpdatedEvent is emitted by the courier app for a movement in transit
type CourierTrackingUpdatedEvent struct {
	MovementID    int64    `json:"movement_id"`
	State         string   `json:"state"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Address       string   `json:"address,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	CourierUserID int64    `json:"courier_user_id"`
}
