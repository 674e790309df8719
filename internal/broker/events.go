package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func bookingKey(bookingID string) string {
	return "booking-" + bookingID
}

// PublishBookingCreated publishes BookingCreated event
func (ep *EventPublisher) PublishBookingCreated(ctx context.Context, booking *models.Booking) error {
	return ep.producer.PublishEvent(ctx, bookingKey(booking.ID), &models.BookingCreatedEvent{
		BaseEvent: newBaseEvent(models.EventTypeBookingCreated),
		BookingID: booking.ID,
		UserID:    booking.UserID,
		EventRef:  booking.EventID,
	})
}

// PublishBookingConfirmed publishes BookingConfirmed event
func (ep *EventPublisher) PublishBookingConfirmed(ctx context.Context, booking *models.Booking, transactionID string) error {
	return ep.producer.PublishEvent(ctx, bookingKey(booking.ID), &models.BookingConfirmedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeBookingConfirmed),
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		EventRef:      booking.EventID,
		TransactionID: transactionID,
	})
}

// PublishPaymentInitiated publishes PaymentInitiated event
func (ep *EventPublisher) PublishPaymentInitiated(ctx context.Context, payment *models.Payment) error {
	return ep.producer.PublishEvent(ctx, bookingKey(payment.BookingID), &models.PaymentInitiatedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePaymentInitiated),
		BookingID:     payment.BookingID,
		TransactionID: payment.TransactionID,
		Method:        payment.Method,
		Amount:        payment.Amount,
	})
}

// PublishPaymentCompleted publishes PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, payment *models.Payment) error {
	return ep.producer.PublishEvent(ctx, bookingKey(payment.BookingID), &models.PaymentCompletedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePaymentCompleted),
		BookingID:     payment.BookingID,
		TransactionID: payment.TransactionID,
		Amount:        payment.Amount,
	})
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, payment *models.Payment, reason string) error {
	return ep.producer.PublishEvent(ctx, bookingKey(payment.BookingID), &models.PaymentFailedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePaymentFailed),
		BookingID:     payment.BookingID,
		TransactionID: payment.TransactionID,
		Reason:        reason,
	})
}

// PublishEventStatusChanged publishes EventStatusChanged event
func (ep *EventPublisher) PublishEventStatusChanged(ctx context.Context, eventID, from, to string) error {
	return ep.producer.PublishEvent(ctx, "event-"+eventID, &models.EventStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeEventStatusChanged),
		EventRef:  eventID,
		From:      from,
		To:        to,
	})
}

// EventHandler handles incoming events
type EventHandler struct {
	onBookingConfirmed func(context.Context, *models.BookingConfirmedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnBookingConfirmed registers a handler for BookingConfirmed events
func (eh *EventHandler) OnBookingConfirmed(handler func(context.Context, *models.BookingConfirmedEvent) error) {
	eh.onBookingConfirmed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeBookingConfirmed:
		if eh.onBookingConfirmed != nil {
			var event models.BookingConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingConfirmed event: %w", err)
			}
			return eh.onBookingConfirmed(ctx, &event)
		}

	default:
		// other domain events are for downstream consumers
	}

	return nil
}
