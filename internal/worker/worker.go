package worker

import (
	"context"

	"booking-service/internal/broker"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// BookingWorker refreshes event statuses as bookings are confirmed, so FULL
// shows up without waiting for the next scheduler tick
type BookingWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewBookingWorker creates a new booking worker
func NewBookingWorker(consumer *broker.Consumer, lifecycle *service.LifecycleService) *BookingWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnBookingConfirmed(lifecycle.HandleBookingConfirmed)

	return &BookingWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *BookingWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting booking worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *BookingWorker) Stop() error {
	w.logger.Info("Stopping booking worker")
	return w.consumer.Close()
}
