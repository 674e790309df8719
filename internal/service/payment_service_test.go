package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventID   = "event-1"
	testBookingID = "booking-abc123"
	testUserID    = "user-1"
)

type fixture struct {
	store    *fakeStore
	stripe   *fakeStripe
	redirect *fakeRedirect
	locker   *fakeLocker
	idem     *fakeIdempotency
	pub      *fakePublisher
	svc      *PaymentService
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		stripe:   newFakeStripe(),
		redirect: &fakeRedirect{},
		locker:   newFakeLocker(),
		idem:     newFakeIdempotency(),
		pub:      &fakePublisher{},
	}
	f.svc = NewPaymentService(f.store, f.stripe, f.redirect, f.locker, f.idem, f.pub, PaymentConfig{
		APIBaseURL:  "https://api.example",
		FrontendURL: "https://app.example",
	})

	f.store.addEvent(models.Event{
		ID:                  testEventID,
		Title:               "Go meetup",
		Date:                time.Now().Add(24 * time.Hour),
		Fee:                 5000,
		MinParticipants:     2,
		MaxParticipants:     10,
		CurrentParticipants: 5,
		Status:              models.EventStatusOngoing,
	})
	f.store.addBooking(models.Booking{
		ID:            testBookingID,
		UserID:        testUserID,
		EventID:       testEventID,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	})
	return f
}

func (f *fixture) onlyPayment(t *testing.T) models.Payment {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	require.Len(t, f.store.payments, 1)
	for _, p := range f.store.payments {
		return *p
	}
	return models.Payment{}
}

func TestInitiate_StripeCheckout(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Initiate(context.Background(), &InitiatePaymentRequest{
		BookingID: testBookingID,
		Method:    models.PaymentMethodStripeCheckout,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.TransactionID, "STRIPE-CHECKOUT-"))
	assert.True(t, strings.HasSuffix(resp.TransactionID, "-abc123"))
	assert.Equal(t, "cs_test", resp.ProviderHandle)
	assert.NotEmpty(t, resp.RedirectURL)
	assert.Equal(t, models.PaymentStatusPending, resp.Status)

	payment := f.onlyPayment(t)
	assert.Equal(t, resp.TransactionID, payment.TransactionID)
	assert.Equal(t, int64(5000), payment.Amount)
	assert.Equal(t, "usd", payment.Currency)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	require.NotNil(t, payment.ProviderRef)
	assert.Equal(t, "cs_test", *payment.ProviderRef)

	require.Len(t, f.stripe.created, 1)
	req := f.stripe.created[0]
	assert.Equal(t, "Go meetup", req.ProductName)
	assert.Contains(t, req.SuccessURL, "https://app.example/payment/success?session_id={CHECKOUT_SESSION_ID}&transaction_id=")
	assert.Contains(t, req.CancelURL, "transaction_id=")

	assert.Equal(t, 1, f.pub.count(models.EventTypePaymentInitiated))
}

func TestInitiate_StripePaymentIntent(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Initiate(context.Background(), &InitiatePaymentRequest{
		BookingID: testBookingID,
		Method:    models.PaymentMethodStripe,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.TransactionID, "STRIPE-"))
	assert.False(t, strings.HasPrefix(resp.TransactionID, "STRIPE-CHECKOUT-"))
	assert.Equal(t, "pi_test", resp.ProviderHandle)
	assert.Equal(t, "pi_test_secret", resp.ClientSecret)
	assert.Equal(t, models.PaymentStatusPending, resp.Status)

	payment := f.onlyPayment(t)
	assert.Equal(t, resp.TransactionID, payment.TransactionID)
	assert.Equal(t, models.PaymentMethodStripe, payment.Method)
	require.NotNil(t, payment.ProviderRef)
	assert.Equal(t, "pi_test", *payment.ProviderRef)

	require.Len(t, f.stripe.created, 1)
	assert.Equal(t, resp.TransactionID, f.stripe.created[0].TransactionID)
	assert.Equal(t, int64(5000), f.stripe.created[0].Amount)

	assert.Equal(t, 1, f.pub.count(models.EventTypePaymentInitiated))
}

func TestInitiate_GatewayUsesCallbackURLs(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Initiate(context.Background(), &InitiatePaymentRequest{
		BookingID: testBookingID,
		Method:    models.PaymentMethodSSLCommerz,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.TransactionID, "TXN-"))
	assert.Equal(t, "https://gw.example/pay/sess-1", resp.RedirectURL)

	require.Len(t, f.redirect.created, 1)
	req := f.redirect.created[0]
	assert.Equal(t, "bdt", req.Currency)
	assert.True(t, strings.HasPrefix(req.SuccessURL, "https://api.example/api/v1/payments/gateway/success?tran_id=TXN-"))
	assert.True(t, strings.HasPrefix(req.FailURL, "https://api.example/api/v1/payments/gateway/fail?"))
	assert.True(t, strings.HasPrefix(req.CancelURL, "https://api.example/api/v1/payments/gateway/cancel?"))
}

func TestInitiate_ProviderFailureMarksPaymentFailed(t *testing.T) {
	f := newFixture()
	f.stripe.createErr = errors.New("stripe unavailable")

	_, err := f.svc.Initiate(context.Background(), &InitiatePaymentRequest{
		BookingID: testBookingID,
		Method:    models.PaymentMethodStripe,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindBadGateway, apperrors.KindOf(err))

	payment := f.onlyPayment(t)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Contains(t, string(payment.GatewayResponse), "stripe unavailable")
	assert.Nil(t, payment.ProviderRef)

	booking := f.store.booking(testBookingID)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, 1, f.pub.count(models.EventTypePaymentFailed))
}

func TestInitiate_PaidBookingIsConflict(t *testing.T) {
	f := newFixture()
	f.store.addBooking(models.Booking{
		ID:            testBookingID,
		EventID:       testEventID,
		Status:        models.BookingStatusConfirmed,
		PaymentStatus: models.PaymentStatusCompleted,
	})

	_, err := f.svc.Initiate(context.Background(), &InitiatePaymentRequest{
		BookingID: testBookingID,
		Method:    models.PaymentMethodStripe,
	})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.Empty(t, f.store.payments)
	assert.Empty(t, f.stripe.created)
}

func TestInitiate_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  InitiatePaymentRequest
		kind apperrors.Kind
	}{
		{"unknown booking", InitiatePaymentRequest{BookingID: "missing", Method: models.PaymentMethodStripe}, apperrors.KindNotFound},
		{"unknown method", InitiatePaymentRequest{BookingID: testBookingID, Method: "PAYPAL"}, apperrors.KindBadRequest},
		{"negative amount", InitiatePaymentRequest{BookingID: testBookingID, Method: models.PaymentMethodStripe, Amount: -1}, apperrors.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Initiate(context.Background(), &tt.req)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
			assert.Empty(t, f.store.payments)
		})
	}
}

func TestInitiate_FreeEventNeedsNoPayment(t *testing.T) {
	f := newFixture()
	f.store.addEvent(models.Event{ID: testEventID, Fee: 0, MaxParticipants: 10, Status: models.EventStatusOpen})

	_, err := f.svc.Initiate(context.Background(), &InitiatePaymentRequest{
		BookingID: testBookingID,
		Method:    models.PaymentMethodStripe,
	})
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
}

func TestNewTransactionID(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	assert.Equal(t, "TXN-1700000000123-abc123", NewTransactionID(PrefixGateway, "booking-abc123", now))
	assert.Equal(t, "STRIPE-1700000000123-xyz", NewTransactionID(PrefixStripe, "xyz", now))
}
