// Package consumers applies events published by other services.
package consumers

import (
	"context"

	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
)

// CourierUpdater applies courier reports to the movement ledger
type CourierUpdater interface {
	CourierUpdate(ctx context.Context, req service.CourierUpdateRequest) (*service.CourierUpdateResult, error)
}

// CourierEventConsumer consumes courier tracking events
type CourierEventConsumer struct {
	consumer *messaging.Consumer
	ledger   CourierUpdater
	logger   *logger.Logger
}

// NewCourierEventConsumer creates a consumer bound to the courier exchange
func NewCourierEventConsumer(rmq *messaging.RabbitMQ, queue string, ledger CourierUpdater, log *logger.Logger) (*CourierEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, queue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeCourierEvents, messaging.EventCourierTrackingUpdated); err != nil {
		return nil, err
	}

	c := NewCourierHandler(ledger, log)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventCourierTrackingUpdated, c.HandleTrackingUpdated)

	return c, nil
}

// NewCourierHandler creates the event handler without a broker connection
func NewCourierHandler(ledger CourierUpdater, log *logger.Logger) *CourierEventConsumer {
	return &CourierEventConsumer{
		ledger: ledger,
		logger: log.WithComponent("courier-consumer"),
	}
}

// Start starts consuming messages
func (c *CourierEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// HandleTrackingUpdated applies one courier report. Reports the ledger
// rejects are acknowledged and logged; anything else is retried.
func (c *CourierEventConsumer) HandleTrackingUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.CourierTrackingUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	log := c.logger.WithCorrelationID(event.CorrelationID)
	_, err := c.ledger.CourierUpdate(ctx, service.CourierUpdateRequest{
		MovementID:    data.MovementID,
		State:         data.State,
		Latitude:      data.Latitude,
		Longitude:     data.Longitude,
		Address:       data.Address,
		Notes:         data.Notes,
		CourierUserID: data.CourierUserID,
	})
	if err == nil {
		log.Debug().
			Int64("movement_id", data.MovementID).
			Str("state", data.State).
			Msg("courier report applied")
		return nil
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode < 500 {
		log.Warn().Err(err).
			Int64("movement_id", data.MovementID).
			Str("state", data.State).
			Msg("courier report rejected")
		return nil
	}
	return err
}
