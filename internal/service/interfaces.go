package service

import (
	"context"
	"time"

	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"
)

// BookingStore is the persistence the booking flow needs
type BookingStore interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	CreateConfirmedBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByUserID(ctx context.Context, userID string) ([]models.Booking, error)
}

// PaymentStore is the persistence the initiate and reconcile flows need
type PaymentStore interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	SetPaymentProviderRef(ctx context.Context, transactionID, providerRef string) error
	MarkPaymentFailed(ctx context.Context, transactionID string, response models.JSONB) error
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ApplyPaymentSuccess(ctx context.Context, transactionID string, response models.JSONB, paidAt time.Time) (*store.PaymentTransition, error)
	ApplyPaymentFailure(ctx context.Context, transactionID string, response models.JSONB) (*store.PaymentTransition, error)
}

// AdminStore backs the operator payment endpoints
type AdminStore interface {
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)
	GetPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*store.PaymentTransition, error)
	DeletePayment(ctx context.Context, paymentID string) error
}

// EventStore backs event lifecycle recomputation
type EventStore interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	ListSchedulableEvents(ctx context.Context) ([]models.Event, error)
	UpdateEventStatus(ctx context.Context, eventID, from, to string) (bool, error)
}

// Locker is a short-lived distributed lock. AcquireLock returns a token that
// ReleaseLock must present, so an expired holder cannot free a successor's lock.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// IdempotencyStore remembers processed deliveries
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	DeleteIdempotencyKey(ctx context.Context, key string) error
}

// Publisher emits domain events after state has been committed
type Publisher interface {
	PublishBookingCreated(ctx context.Context, booking *models.Booking) error
	PublishBookingConfirmed(ctx context.Context, booking *models.Booking, transactionID string) error
	PublishPaymentInitiated(ctx context.Context, payment *models.Payment) error
	PublishPaymentCompleted(ctx context.Context, payment *models.Payment) error
	PublishPaymentFailed(ctx context.Context, payment *models.Payment, reason string) error
	PublishEventStatusChanged(ctx context.Context, eventID, from, to string) error
}

// StripeGateway is the card provider: intents and hosted checkout sessions
type StripeGateway interface {
	CreatePaymentIntent(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error)
	CreateCheckoutSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*gateway.Result, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*gateway.Result, error)
}

// RedirectGateway is the regional hosted-page provider
type RedirectGateway interface {
	CreateSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error)
	ValidatePayment(ctx context.Context, valID string) (*gateway.Result, error)
}
