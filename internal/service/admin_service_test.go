package service

import (
	"context"
	"testing"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"
	"booking-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdminStore struct {
	lastFilter models.PaymentFilter
	transition *store.PaymentTransition
	err        error
	deleted    []string
}

func (f *fakeAdminStore) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	f.lastFilter = filter
	return nil, f.err
}

func (f *fakeAdminStore) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Payment{ID: id}, nil
}

func (f *fakeAdminStore) UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*store.PaymentTransition, error) {
	return f.transition, f.err
}

func (f *fakeAdminStore) DeletePayment(ctx context.Context, paymentID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, paymentID)
	return nil
}

func TestAdminListPayments_Paging(t *testing.T) {
	st := &fakeAdminStore{}
	svc := NewAdminService(st, &fakePublisher{})

	payments, err := svc.ListPayments(context.Background(), models.PaymentFilter{})
	require.NoError(t, err)
	assert.NotNil(t, payments)
	assert.Equal(t, defaultPageSize, st.lastFilter.Limit)

	_, err = svc.ListPayments(context.Background(), models.PaymentFilter{Limit: 1000, EventID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, st.lastFilter.Limit)
	assert.Equal(t, "e1", st.lastFilter.EventID)

	_, err = svc.ListPayments(context.Background(), models.PaymentFilter{Status: "SETTLED"})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))

	_, err = svc.ListPayments(context.Background(), models.PaymentFilter{Offset: -1})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
}

func TestAdminUpdatePaymentStatus(t *testing.T) {
	st := &fakeAdminStore{transition: &store.PaymentTransition{
		Payment:   &models.Payment{ID: "pay-1", TransactionID: "TXN-1", Status: models.PaymentStatusCompleted},
		Booking:   &models.Booking{ID: "b-1", Status: models.BookingStatusConfirmed},
		Applied:   true,
		Confirmed: true,
	}}
	pub := &fakePublisher{}
	svc := NewAdminService(st, pub)

	payment, err := svc.UpdatePaymentStatus(context.Background(), "pay-1", models.PaymentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 1, pub.count(models.EventTypeBookingConfirmed))

	_, err = svc.UpdatePaymentStatus(context.Background(), "pay-1", "PAID")
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
}

func TestAdminDeletePayment_PropagatesConflict(t *testing.T) {
	st := &fakeAdminStore{err: apperrors.Conflict("payment settles a confirmed booking")}
	svc := NewAdminService(st, &fakePublisher{})

	err := svc.DeletePayment(context.Background(), "pay-1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Empty(t, st.deleted)
}
