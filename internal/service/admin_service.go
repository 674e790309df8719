package service

import (
	"context"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AdminService exposes operator payment management
type AdminService struct {
	store     AdminStore
	publisher Publisher
	logger    *zap.Logger
}

func NewAdminService(store AdminStore, publisher Publisher) *AdminService {
	return &AdminService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ListPayments returns a page of payments matching filter
func (s *AdminService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	if filter.Status != "" && !models.IsValidPaymentStatus(filter.Status) {
		return nil, apperrors.BadRequest("unknown payment status %q", filter.Status)
	}
	if filter.Offset < 0 {
		return nil, apperrors.BadRequest("offset must not be negative")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPageSize
	case filter.Limit > maxPageSize:
		filter.Limit = maxPageSize
	}

	payments, err := s.store.ListPayments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}

func (s *AdminService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.store.GetPaymentByID(ctx, paymentID)
}

// UpdatePaymentStatus overrides a payment's status. The booking follows in
// the same transaction.
func (s *AdminService) UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdatePaymentStatus")
	defer span.End()

	if !models.IsValidPaymentStatus(status) {
		return nil, apperrors.BadRequest("unknown payment status %q", status)
	}

	tr, err := s.store.UpdatePaymentStatus(ctx, paymentID, status)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	if tr.Applied {
		s.logger.Info("Payment status overridden",
			zap.String("payment_id", paymentID),
			zap.String("status", status),
			zap.String("booking_status", tr.Booking.Status))
	}
	if tr.Confirmed {
		util.BookingsConfirmedTotal.Inc()
		if err := s.publisher.PublishBookingConfirmed(ctx, tr.Booking, tr.Payment.TransactionID); err != nil {
			s.logger.Error("Failed to publish BookingConfirmed event", zap.Error(err))
		}
	}
	return tr.Payment, nil
}

func (s *AdminService) DeletePayment(ctx context.Context, paymentID string) error {
	if err := s.store.DeletePayment(ctx, paymentID); err != nil {
		return err
	}
	s.logger.Info("Payment deleted", zap.String("payment_id", paymentID))
	return nil
}
