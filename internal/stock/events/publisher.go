// Package events publishes stock movement events to RabbitMQ.
package events

import (
	"context"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
)

// ServiceName is the event source of everything this service publishes
const ServiceName = "stock-service"

// StockEventPublisher publishes movement and distribution events.
// A nil publisher drops events, so services run without a broker.
type StockEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a publisher on the stock events exchange
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, ServiceName, log)
	if err != nil {
		return nil, err
	}
	return New(publisher, log), nil
}

// New wraps any EventPublisher, e.g. testutil.MockPublisher
func New(publisher messaging.EventPublisher, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{publisher: publisher, logger: log}
}

func warehouseRef(w *domain.WarehouseRef) *messaging.WarehouseRef {
	if w == nil {
		return nil
	}
	return &messaging.WarehouseRef{HospitalID: w.HospitalID, SiteID: w.SiteID, Kind: w.Kind.String()}
}

func (p *StockEventPublisher) publish(ctx context.Context, eventType string, movementID int64, data interface{}) {
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Int64("movement_id", movementID).
			Msg("failed to publish stock event")
	}
}

// PublishMovementCreated publishes a movement created event
func (p *StockEventPublisher) PublishMovementCreated(ctx context.Context, m *domain.Movement) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventMovementCreated, m.ID, messaging.MovementCreatedEvent{
		MovementID:    m.ID,
		Kind:          string(m.Kind),
		State:         string(m.State),
		GroupCode:     m.GroupCode,
		Origin:        warehouseRef(m.Origin()),
		Destination:   warehouseRef(m.Destination()),
		OutboundTotal: m.OutboundTotal,
		UserID:        m.UserID,
	})
}

// PublishStateChanged publishes a movement state change
func (p *StockEventPublisher) PublishStateChanged(ctx context.Context, m *domain.Movement, from domain.MovementState, userID int64) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventMovementStateChanged, m.ID, messaging.MovementStateChangedEvent{
		MovementID: m.ID,
		GroupCode:  m.GroupCode,
		From:       string(from),
		To:         string(m.State),
		UserID:     userID,
	})
}

// PublishReceived publishes a completed reception
func (p *StockEventPublisher) PublishReceived(ctx context.Context, m *domain.Movement, discrepancies int) {
	if p == nil {
		return
	}
	var receiver int64
	if m.ReceiverUserID != nil {
		receiver = *m.ReceiverUserID
	}
	p.publish(ctx, messaging.EventMovementReceived, m.ID, messaging.MovementReceivedEvent{
		MovementID:       m.ID,
		GroupCode:        m.GroupCode,
		OutboundTotal:    m.OutboundTotal,
		InboundTotal:     m.InboundTotal,
		Discrepancy:      m.DiscrepancyTotal,
		DiscrepancyCount: discrepancies,
		ReceiverUserID:   receiver,
	})
}

// PublishCancelled publishes a cancellation and how much stock went back
func (p *StockEventPublisher) PublishCancelled(ctx context.Context, m *domain.Movement, previous domain.MovementState, reason string, restored int, userID int64) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventMovementCancelled, m.ID, messaging.MovementCancelledEvent{
		MovementID:       m.ID,
		GroupCode:        m.GroupCode,
		PreviousState:    string(previous),
		Reason:           reason,
		RestoredQuantity: restored,
		UserID:           userID,
	})
}

// PublishDistributionCompleted publishes the summary of a distribution run
func (p *StockEventPublisher) PublishDistributionCompleted(ctx context.Context, data messaging.DistributionCompletedEvent) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventDistributionCompleted, 0, data)
}
