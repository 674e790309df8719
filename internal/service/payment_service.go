package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"booking-service/internal/apperrors"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Transaction id prefixes per payment method
const (
	PrefixGateway        = "TXN"
	PrefixStripe         = "STRIPE"
	PrefixStripeCheckout = "STRIPE-CHECKOUT"
)

// PaymentConfig holds URLs and defaults used when opening provider sessions.
// APIBaseURL is this service's public address and receives gateway
// redirects; FrontendURL is where payers land after a hosted checkout.
type PaymentConfig struct {
	APIBaseURL       string
	FrontendURL      string
	DefaultCurrency  string
	GatewayCurrency  string
	ReconcileLockTTL time.Duration
	WebhookEventTTL  time.Duration
	WebhookCacheSize int
}

// PaymentService opens payments with a provider and reconciles their outcome
type PaymentService struct {
	store       PaymentStore
	stripe      StripeGateway
	redirect    RedirectGateway
	locker      Locker
	idempotency IdempotencyStore
	publisher   Publisher
	cfg         PaymentConfig
	logger      *zap.Logger
	seenEvents  *eventCache
	now         func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store PaymentStore,
	stripe StripeGateway,
	redirect RedirectGateway,
	locker Locker,
	idempotency IdempotencyStore,
	publisher Publisher,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "usd"
	}
	if cfg.GatewayCurrency == "" {
		cfg.GatewayCurrency = "BDT"
	}
	if cfg.ReconcileLockTTL == 0 {
		cfg.ReconcileLockTTL = 30 * time.Second
	}
	if cfg.WebhookEventTTL == 0 {
		cfg.WebhookEventTTL = 72 * time.Hour
	}

	return &PaymentService{
		store:       store,
		stripe:      stripe,
		redirect:    redirect,
		locker:      locker,
		idempotency: idempotency,
		publisher:   publisher,
		cfg:         cfg,
		logger:      util.GetLogger(),
		seenEvents:  newEventCache(cfg.WebhookCacheSize),
		now:         time.Now,
	}
}

// InitiatePaymentRequest opens a payment for a booking
type InitiatePaymentRequest struct {
	BookingID   string           `json:"booking_id" binding:"required"`
	Method      string           `json:"method" binding:"required"`
	Amount      int64            `json:"amount"`
	Currency    string           `json:"currency"`
	Customer    gateway.Customer `json:"customer"`
	ProductName string           `json:"product_name"`
	SuccessURL  string           `json:"success_url"`
	CancelURL   string           `json:"cancel_url"`
}

// InitiatePaymentResponse tells the client how to continue with the provider
type InitiatePaymentResponse struct {
	PaymentID      string `json:"payment_id"`
	TransactionID  string `json:"transaction_id"`
	ProviderHandle string `json:"provider_handle,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	Status         string `json:"status"`
}

// Initiate records a PENDING payment under a fresh transaction id and opens a
// provider session for it. A provider failure marks the payment FAILED.
func (s *PaymentService) Initiate(ctx context.Context, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Initiate",
		attribute.String("booking_id", req.BookingID),
		attribute.String("method", req.Method))
	defer span.End()

	prefix, err := transactionPrefix(req.Method)
	if err != nil {
		return nil, err
	}
	if req.Amount < 0 {
		return nil, apperrors.BadRequest("amount must be positive")
	}

	booking, err := s.store.GetBookingByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.PaymentStatusCompleted || booking.Status == models.BookingStatusConfirmed {
		return nil, apperrors.Conflict("booking %s is already paid", booking.ID)
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, apperrors.Conflict("booking %s is cancelled", booking.ID)
	}

	event, err := s.store.GetEventByID(ctx, booking.EventID)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if amount == 0 {
		amount = event.Fee
	}
	if amount <= 0 {
		return nil, apperrors.BadRequest("event %s requires no payment", event.ID)
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
		if req.Method == models.PaymentMethodSSLCommerz {
			currency = s.cfg.GatewayCurrency
		}
	}

	payment := &models.Payment{
		ID:            uuid.New().String(),
		BookingID:     booking.ID,
		TransactionID: NewTransactionID(prefix, booking.ID, s.now()),
		Amount:        amount,
		Currency:      strings.ToLower(currency),
		Status:        models.PaymentStatusPending,
		Method:        req.Method,
	}

	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create payment: %w", err))
	}

	logger := s.logger.With(
		zap.String("transaction_id", payment.TransactionID),
		zap.String("booking_id", booking.ID),
		zap.String("method", payment.Method))

	productName := req.ProductName
	if productName == "" {
		productName = event.Title
	}

	session, err := s.openSession(ctx, payment, &gateway.SessionRequest{
		TransactionID: payment.TransactionID,
		BookingID:     booking.ID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Customer:      req.Customer,
		ProductName:   productName,
	}, req)
	if err != nil {
		util.PaymentInitiationFailedTotal.WithLabelValues(payment.Method).Inc()
		logger.Error("Provider rejected payment initiation", zap.Error(err))

		// the request context may already be gone; the FAILED mark must still land
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if markErr := s.store.MarkPaymentFailed(failCtx, payment.TransactionID,
			models.MustJSONB(map[string]string{"error": err.Error()})); markErr != nil {
			logger.Error("Failed to mark orphaned payment as failed", zap.Error(markErr))
		}
		if pubErr := s.publisher.PublishPaymentFailed(failCtx, payment, err.Error()); pubErr != nil {
			logger.Error("Failed to publish PaymentFailed event", zap.Error(pubErr))
		}
		return nil, util.RecordError(span, apperrors.BadGateway(err, "payment provider unavailable"))
	}

	if session.Handle != "" {
		if err := s.store.SetPaymentProviderRef(ctx, payment.TransactionID, session.Handle); err != nil {
			// reconcile correlates through metadata, so the payment stays usable
			logger.Warn("Failed to store provider reference", zap.Error(err))
		}
	}

	util.PaymentsInitiatedTotal.WithLabelValues(payment.Method).Inc()
	logger.Info("Payment initiated", zap.String("provider_handle", session.Handle))

	if err := s.publisher.PublishPaymentInitiated(ctx, payment); err != nil {
		logger.Error("Failed to publish PaymentInitiated event", zap.Error(err))
	}

	return &InitiatePaymentResponse{
		PaymentID:      payment.ID,
		TransactionID:  payment.TransactionID,
		ProviderHandle: session.Handle,
		ClientSecret:   session.ClientSecret,
		RedirectURL:    session.RedirectURL,
		Status:         payment.Status,
	}, nil
}

func (s *PaymentService) openSession(ctx context.Context, payment *models.Payment, sr *gateway.SessionRequest, req *InitiatePaymentRequest) (*gateway.Session, error) {
	switch payment.Method {
	case models.PaymentMethodStripe:
		return s.stripe.CreatePaymentIntent(ctx, sr)

	case models.PaymentMethodStripeCheckout:
		sr.SuccessURL = checkoutSuccessURL(firstNonEmpty(req.SuccessURL, s.cfg.FrontendURL+"/payment/success"), payment.TransactionID)
		sr.CancelURL = withQuery(firstNonEmpty(req.CancelURL, s.cfg.FrontendURL+"/payment/cancel"), "transaction_id", payment.TransactionID)
		return s.stripe.CreateCheckoutSession(ctx, sr)

	case models.PaymentMethodSSLCommerz:
		base := strings.TrimRight(s.cfg.APIBaseURL, "/") + "/api/v1/payments/gateway/"
		sr.SuccessURL = withQuery(base+"success", "tran_id", payment.TransactionID)
		sr.FailURL = withQuery(base+"fail", "tran_id", payment.TransactionID)
		sr.CancelURL = withQuery(base+"cancel", "tran_id", payment.TransactionID)
		return s.redirect.CreateSession(ctx, sr)
	}
	return nil, apperrors.BadRequest("unsupported payment method %q", payment.Method)
}

func transactionPrefix(method string) (string, error) {
	switch method {
	case models.PaymentMethodStripe:
		return PrefixStripe, nil
	case models.PaymentMethodStripeCheckout:
		return PrefixStripeCheckout, nil
	case models.PaymentMethodSSLCommerz:
		return PrefixGateway, nil
	}
	return "", apperrors.BadRequest("unsupported payment method %q", method)
}

// NewTransactionID builds {PREFIX}-{unix millis}-{last 6 chars of booking id}
func NewTransactionID(prefix, bookingID string, now time.Time) string {
	suffix := bookingID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

// checkoutSuccessURL keeps Stripe's {CHECKOUT_SESSION_ID} placeholder unescaped
func checkoutSuccessURL(base, transactionID string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "session_id={CHECKOUT_SESSION_ID}&transaction_id=" + url.QueryEscape(transactionID)
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
