package service

import (
	"context"
	"fmt"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingService handles event enrollment
type BookingService struct {
	store     BookingStore
	publisher Publisher
	logger    *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(store BookingStore, publisher Publisher) *BookingService {
	return &BookingService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CreateBookingRequest represents a request to enroll in an event
type CreateBookingRequest struct {
	UserID  string `json:"user_id" binding:"required,uuid"`
	EventID string `json:"event_id" binding:"required,uuid"`
}

// CreateBooking enrolls a user in an event. The booking stays PENDING until a
// payment for it completes, except on free events where there is nothing to
// pay and the booking is confirmed with its seat counted.
func (s *BookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking")
	defer span.End()

	if _, err := uuid.Parse(req.UserID); err != nil {
		return nil, apperrors.BadRequest("invalid user id")
	}
	if _, err := uuid.Parse(req.EventID); err != nil {
		return nil, apperrors.BadRequest("invalid event id")
	}

	event, err := s.store.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !models.AcceptsBookings(event.Status) {
		return nil, apperrors.Conflict("event %s is %s", event.ID, event.Status)
	}
	if event.CurrentParticipants >= event.MaxParticipants {
		return nil, apperrors.Conflict("event %s is full", event.ID)
	}

	booking := &models.Booking{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		EventID:       event.ID,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}

	free := event.Fee == 0
	if free {
		err = s.store.CreateConfirmedBooking(ctx, booking)
	} else {
		err = s.store.CreateBooking(ctx, booking)
	}
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create booking: %w", err))
	}

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("event_id", event.ID),
		zap.String("status", booking.Status))

	if err := s.publisher.PublishBookingCreated(ctx, booking); err != nil {
		s.logger.Error("Failed to publish BookingCreated event", zap.Error(err))
	}
	if free {
		util.BookingsConfirmedTotal.Inc()
		if err := s.publisher.PublishBookingConfirmed(ctx, booking, ""); err != nil {
			s.logger.Error("Failed to publish BookingConfirmed event", zap.Error(err))
		}
	}

	return booking, nil
}

// GetBooking retrieves a booking by ID
func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, apperrors.BadRequest("invalid booking id")
	}
	return s.store.GetBookingByID(ctx, bookingID)
}

// ListUserBookings retrieves a user's bookings, newest first
func (s *BookingService) ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperrors.BadRequest("invalid user id")
	}
	return s.store.GetBookingsByUserID(ctx, userID)
}
