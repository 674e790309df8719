package service

import (
	"context"
	"errors"

	"booking-service/internal/apperrors"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Outcome is the payment state a reconcile call leaves behind
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomePending   Outcome = "PENDING"
	OutcomeRefunded  Outcome = "REFUNDED"
)

// ErrReconcileInProgress is returned to a webhook delivery while another
// worker holds the transaction's reconcile lock. Providers redeliver on a
// non-2xx response.
var ErrReconcileInProgress = &apperrors.Error{Kind: apperrors.KindConflict, Message: "reconcile already in progress"}

// Callback is a provider signal about one payment
type Callback interface {
	method() string
}

// CheckoutSessionCallback resolves a hosted Stripe checkout session.
// TransactionID is optional and, when set, must match the session metadata.
// AsyncFailed marks a session whose delayed payment method failed.
type CheckoutSessionCallback struct {
	SessionID     string
	TransactionID string
	AsyncFailed   bool
}

// PaymentIntentCallback resolves a Stripe payment intent
type PaymentIntentCallback struct {
	IntentID string
}

// GatewayRedirect is a regional gateway redirect carrying our transaction id
// in the query string. Status is success, fail or cancel. A success is only
// trusted once the gateway validates ValID for the same transaction.
type GatewayRedirect struct {
	TransactionID string
	Status        string
	Amount        string
	ValID         string
	Params        map[string]string
}

func (CheckoutSessionCallback) method() string { return models.PaymentMethodStripeCheckout }
func (PaymentIntentCallback) method() string   { return models.PaymentMethodStripe }
func (GatewayRedirect) method() string         { return models.PaymentMethodSSLCommerz }

// Gateway redirect statuses
const (
	RedirectSuccess = "success"
	RedirectFail    = "fail"
	RedirectCancel  = "cancel"
)

// ReconcileResult reports the payment and booking after a reconcile
type ReconcileResult struct {
	Outcome      Outcome         `json:"outcome"`
	Payment      *models.Payment `json:"payment"`
	Booking      *models.Booking `json:"booking"`
	AlreadyFinal bool            `json:"already_final"`
}

// Reconcile resolves the provider's view of a payment and applies it. Payment
// and booking change in one transaction; a payment that is already final is
// left untouched, so repeated or concurrent deliveries settle once. A caller
// that finds the reconcile lock held waits on the payment row lock and gets
// the settled result.
func (s *PaymentService) Reconcile(ctx context.Context, cb Callback) (*ReconcileResult, error) {
	return s.reconcile(ctx, cb, false)
}

// reconcile with dropOnContention returns ErrReconcileInProgress instead of
// waiting when another worker holds the reconcile lock.
func (s *PaymentService) reconcile(ctx context.Context, cb Callback, dropOnContention bool) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Reconcile", attribute.String("method", cb.method()))
	defer span.End()

	res, err := s.resolve(ctx, cb)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	span.SetAttributes(attribute.String("transaction_id", res.TransactionID))

	logger := s.logger.With(
		zap.String("transaction_id", res.TransactionID),
		zap.String("method", cb.method()))

	lockKey := "reconcile:" + res.TransactionID
	token, locked, err := s.locker.AcquireLock(ctx, lockKey, s.cfg.ReconcileLockTTL)
	switch {
	case err != nil:
		// the row lock still serializes writers
		logger.Warn("Reconcile lock unavailable, relying on row lock", zap.Error(err))
	case !locked && dropOnContention:
		util.ReconcileDuplicatesTotal.WithLabelValues(cb.method()).Inc()
		logger.Info("Concurrent reconcile in flight, dropping duplicate")
		return nil, ErrReconcileInProgress
	case !locked:
		logger.Info("Concurrent reconcile in flight, waiting on row lock")
	default:
		defer func() {
			if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				logger.Warn("Failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	payment, err := s.store.GetPaymentByTransactionID(ctx, res.TransactionID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if !settles(cb, payment.Method) {
		return nil, apperrors.BadRequest("transaction %s was not opened with %s", payment.TransactionID, cb.method())
	}
	if res.Amount > 0 && res.Amount != payment.Amount {
		logger.Warn("Provider amount does not match payment",
			zap.Int64("expected", payment.Amount),
			zap.Int64("reported", res.Amount))
		return nil, apperrors.BadRequest("amount mismatch for transaction %s", payment.TransactionID)
	}
	if _, ok := cb.(PaymentIntentCallback); ok && payment.Method == models.PaymentMethodStripeCheckout &&
		res.State == gateway.StateFailed {
		// the session stays open for another attempt; its expiry fails the payment
		res.State = gateway.StatePending
	}

	if payment.IsFinal() || res.State == gateway.StatePending {
		booking, err := s.store.GetBookingByID(ctx, payment.BookingID)
		if err != nil {
			return nil, util.RecordError(span, err)
		}
		if payment.IsFinal() {
			util.ReconcileDuplicatesTotal.WithLabelValues(cb.method()).Inc()
			logger.Info("Payment already final", zap.String("status", payment.Status))
		}
		return &ReconcileResult{
			Outcome:      Outcome(payment.Status),
			Payment:      payment,
			Booking:      booking,
			AlreadyFinal: payment.IsFinal(),
		}, nil
	}

	var tr *store.PaymentTransition
	if res.State == gateway.StatePaid {
		tr, err = s.store.ApplyPaymentSuccess(ctx, res.TransactionID, res.Raw, s.now().UTC())
	} else {
		tr, err = s.store.ApplyPaymentFailure(ctx, res.TransactionID, res.Raw)
	}
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	result := &ReconcileResult{
		Outcome:      Outcome(tr.Payment.Status),
		Payment:      tr.Payment,
		Booking:      tr.Booking,
		AlreadyFinal: !tr.Applied,
	}

	if !tr.Applied {
		util.ReconcileDuplicatesTotal.WithLabelValues(cb.method()).Inc()
		logger.Info("Payment settled concurrently", zap.String("status", tr.Payment.Status))
		return result, nil
	}

	util.ReconcileOutcomesTotal.WithLabelValues(cb.method(), string(result.Outcome)).Inc()
	logger.Info("Payment reconciled",
		zap.String("outcome", string(result.Outcome)),
		zap.String("booking_id", tr.Booking.ID),
		zap.Bool("booking_confirmed", tr.Confirmed))

	s.publishOutcome(ctx, tr, logger)
	return result, nil
}

func (s *PaymentService) publishOutcome(ctx context.Context, tr *store.PaymentTransition, logger *zap.Logger) {
	if tr.Payment.Status == models.PaymentStatusFailed {
		if err := s.publisher.PublishPaymentFailed(ctx, tr.Payment, "provider reported failure"); err != nil {
			logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
		return
	}

	if err := s.publisher.PublishPaymentCompleted(ctx, tr.Payment); err != nil {
		logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}
	if tr.Confirmed {
		util.BookingsConfirmedTotal.Inc()
		if err := s.publisher.PublishBookingConfirmed(ctx, tr.Booking, tr.Payment.TransactionID); err != nil {
			logger.Error("Failed to publish BookingConfirmed event", zap.Error(err))
		}
	}
}

// settles reports whether cb may settle a payment opened with method. Checkout
// sessions run on payment intents, so intent events also settle them.
func settles(cb Callback, method string) bool {
	if _, ok := cb.(PaymentIntentCallback); ok && method == models.PaymentMethodStripeCheckout {
		return true
	}
	return cb.method() == method
}

// resolve turns a callback into a provider result carrying our transaction id
func (s *PaymentService) resolve(ctx context.Context, cb Callback) (*gateway.Result, error) {
	switch c := cb.(type) {
	case CheckoutSessionCallback:
		if c.SessionID == "" {
			return nil, apperrors.BadRequest("session id is required")
		}
		res, err := s.stripe.GetCheckoutSession(ctx, c.SessionID)
		if err != nil {
			return nil, providerError(err, "failed to retrieve checkout session")
		}
		if res.TransactionID == "" {
			return nil, apperrors.BadRequest("checkout session %s has no transaction id", c.SessionID)
		}
		if c.TransactionID != "" && c.TransactionID != res.TransactionID {
			return nil, apperrors.BadRequest("checkout session %s does not belong to transaction %s", c.SessionID, c.TransactionID)
		}
		if res.State == gateway.StatePending && c.AsyncFailed {
			res.State = gateway.StateFailed
		}
		return res, nil

	case PaymentIntentCallback:
		if c.IntentID == "" {
			return nil, apperrors.BadRequest("payment intent id is required")
		}
		res, err := s.stripe.GetPaymentIntent(ctx, c.IntentID)
		if err != nil {
			return nil, providerError(err, "failed to retrieve payment intent")
		}
		if res.TransactionID == "" {
			return nil, apperrors.BadRequest("payment intent %s has no transaction id", c.IntentID)
		}
		return res, nil

	case GatewayRedirect:
		if c.TransactionID == "" {
			return nil, apperrors.BadRequest("tran_id is required")
		}
		res := &gateway.Result{
			TransactionID: c.TransactionID,
			Raw:           models.MustJSONB(c.Params),
		}
		switch c.Status {
		case RedirectSuccess:
			return s.validateRedirect(ctx, c)
		case RedirectFail, RedirectCancel:
			res.State = gateway.StateFailed
		default:
			return nil, apperrors.BadRequest("unknown gateway status %q", c.Status)
		}
		if c.Amount != "" {
			amount, err := gateway.ParseAmount(c.Amount)
			if err != nil {
				return nil, apperrors.BadRequest("invalid amount %q", c.Amount)
			}
			res.Amount = amount
		}
		return res, nil
	}

	return nil, apperrors.BadRequest("unsupported callback %T", cb)
}

// validateRedirect confirms a success redirect with the gateway so a forged
// tran_id cannot settle a payment
func (s *PaymentService) validateRedirect(ctx context.Context, c GatewayRedirect) (*gateway.Result, error) {
	if c.ValID == "" {
		return nil, apperrors.BadRequest("val_id is required")
	}
	res, err := s.redirect.ValidatePayment(ctx, c.ValID)
	if err != nil {
		return nil, providerError(err, "failed to validate gateway payment")
	}
	if res.State != gateway.StatePaid || res.TransactionID != c.TransactionID {
		s.logger.Warn("Gateway did not validate success redirect",
			zap.String("transaction_id", c.TransactionID),
			zap.String("val_id", c.ValID),
			zap.String("validated_transaction_id", res.TransactionID))
		return nil, apperrors.BadRequest("val_id %s does not validate transaction %s", c.ValID, c.TransactionID)
	}
	if c.Amount != "" {
		amount, err := gateway.ParseAmount(c.Amount)
		if err != nil || amount != res.Amount {
			return nil, apperrors.BadRequest("invalid amount %q", c.Amount)
		}
	}
	return res, nil
}

// HandleStripeEvent reconciles a verified webhook event. It returns a nil
// result for event types it does not act on and for deliveries it has
// already handled.
func (s *PaymentService) HandleStripeEvent(ctx context.Context, event *gateway.WebhookEvent) (*ReconcileResult, error) {
	var cb Callback
	switch event.Type {
	case gateway.EventCheckoutSessionCompleted, gateway.EventCheckoutSessionAsyncSucceeded, gateway.EventCheckoutSessionExpired:
		cb = CheckoutSessionCallback{SessionID: event.ObjectID}
	case gateway.EventCheckoutSessionAsyncFailed:
		cb = CheckoutSessionCallback{SessionID: event.ObjectID, AsyncFailed: true}
	case gateway.EventPaymentIntentSucceeded, gateway.EventPaymentIntentFailed:
		cb = PaymentIntentCallback{IntentID: event.ObjectID}
	default:
		s.logger.Debug("Ignoring webhook event", zap.String("type", event.Type), zap.String("event_id", event.ID))
		return nil, nil
	}

	logger := s.logger.With(zap.String("event_id", event.ID), zap.String("type", event.Type))

	if s.seenEvents.Seen(event.ID) {
		logger.Info("Webhook event already processed")
		return nil, nil
	}

	key := "stripe-event:" + event.ID
	first, err := s.idempotency.SetIdempotencyKey(ctx, key, event.Type, s.cfg.WebhookEventTTL)
	if err != nil {
		logger.Warn("Idempotency store unavailable", zap.Error(err))
		first = false
	} else if !first {
		logger.Info("Webhook event already processed")
		s.seenEvents.Add(event.ID)
		return nil, nil
	}

	result, err := s.reconcile(ctx, cb, true)
	if err != nil {
		if first {
			// let the provider's redelivery try again
			if delErr := s.idempotency.DeleteIdempotencyKey(context.WithoutCancel(ctx), key); delErr != nil {
				logger.Warn("Failed to clear idempotency key", zap.Error(delErr))
			}
		}
		return nil, err
	}

	s.seenEvents.Add(event.ID)
	return result, nil
}

// providerError keeps classified errors and reports the rest as gateway failures
func providerError(err error, msg string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.BadGateway(err, msg)
}
