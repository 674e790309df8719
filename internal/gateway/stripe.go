package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// MetadataTransactionID is the metadata key carrying our transaction id
const MetadataTransactionID = "transaction_id"

// Stripe webhook event types the service acts on
const (
	EventCheckoutSessionCompleted      = "checkout.session.completed"
	EventCheckoutSessionAsyncFailed    = "checkout.session.async_payment_failed"
	EventCheckoutSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionExpired        = "checkout.session.expired"
	EventPaymentIntentSucceeded        = "payment_intent.succeeded"
	EventPaymentIntentFailed           = "payment_intent.payment_failed"
)

// StripeConfig configures the Stripe client
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base URL when set
	APIURL  string
	Timeout time.Duration
	Retry   RetryConfig
}

// StripeClient opens and inspects Stripe payment intents and checkout sessions
type StripeClient struct {
	api           *client.API
	webhookSecret string
	retry         RetryConfig
	logger        *zap.Logger
}

// WebhookEvent is a verified Stripe event reduced to what reconcile needs
type WebhookEvent struct {
	ID       string
	Type     string
	ObjectID string
}

// NewStripeClient creates a Stripe client. Stripe's own network retries are
// disabled so only the backoff policy here retries. Creates carry an
// idempotency key derived from the transaction id so a retried request
// cannot open a second intent or session.
func NewStripeClient(cfg StripeConfig) *StripeClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	backend := func(t stripe.SupportedBackend) stripe.Backend {
		bc := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
		}
		if cfg.APIURL != "" && t == stripe.APIBackend {
			bc.URL = stripe.String(cfg.APIURL)
		}
		return stripe.GetBackendWithConfig(t, bc)
	}

	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	})

	return &StripeClient{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		retry:         cfg.Retry,
		logger:        util.GetLogger(),
	}
}

// CreatePaymentIntent opens a payment intent tagged with the transaction id
func (sc *StripeClient) CreatePaymentIntent(ctx context.Context, req *SessionRequest) (*Session, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}
	params.AddMetadata(MetadataTransactionID, req.TransactionID)
	params.AddMetadata("booking_id", req.BookingID)
	params.SetIdempotencyKey("payment-intent-" + req.TransactionID)
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err := sc.call(ctx, "create_payment_intent", func() (err error) {
		pi, err = sc.api.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		Handle:       pi.ID,
		ClientSecret: pi.ClientSecret,
		Raw:          models.MustJSONB(pi),
	}, nil
}

// CreateCheckoutSession opens a hosted checkout page for a single line item
func (sc *StripeClient) CreateCheckoutSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	metadata := map[string]string{
		MetadataTransactionID: req.TransactionID,
		"booking_id":          req.BookingID,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey("checkout-session-" + req.TransactionID)
	params.Context = ctx

	var cs *stripe.CheckoutSession
	err := sc.call(ctx, "create_checkout_session", func() (err error) {
		cs, err = sc.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		Handle:      cs.ID,
		RedirectURL: cs.URL,
		Raw:         models.MustJSONB(cs),
	}, nil
}

// GetCheckoutSession retrieves a session and maps it to a Result
func (sc *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*Result, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	var cs *stripe.CheckoutSession
	err := sc.call(ctx, "get_checkout_session", func() (err error) {
		cs, err = sc.api.CheckoutSessions.Get(sessionID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return checkoutSessionResult(cs), nil
}

// GetPaymentIntent retrieves an intent and maps it to a Result
func (sc *StripeClient) GetPaymentIntent(ctx context.Context, intentID string) (*Result, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err := sc.call(ctx, "get_payment_intent", func() (err error) {
		pi, err = sc.api.PaymentIntents.Get(intentID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paymentIntentResult(pi), nil
}

// ParseWebhook verifies the signature header and extracts the event object id
func (sc *StripeClient) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, sc.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, &apperrors.Error{Kind: apperrors.KindUnauthorized, Message: "invalid webhook signature", Err: err}
	}

	if event.Data == nil {
		return nil, apperrors.BadRequest("webhook %s has no data", event.ID)
	}

	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil || object.ID == "" {
		return nil, apperrors.BadRequest("webhook %s object has no id", event.ID)
	}

	return &WebhookEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		ObjectID: object.ID,
	}, nil
}

func (sc *StripeClient) call(ctx context.Context, operation string, op func() error) error {
	start := time.Now()
	defer func() {
		util.ProviderRequestLatency.WithLabelValues("stripe", operation).Observe(time.Since(start).Seconds())
	}()

	err := retry(ctx, sc.retry, func() error {
		err := op()
		if isTransientStripeError(err) {
			sc.logger.Warn("Transient Stripe error, retrying",
				zap.String("operation", operation),
				zap.Error(err))
			return Transient(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("stripe %s: %w", operation, err)
	}
	return nil
}

func isTransientStripeError(err error) bool {
	if err == nil {
		return false
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500
	}
	return IsTransient(err)
}

func checkoutSessionResult(cs *stripe.CheckoutSession) *Result {
	res := &Result{
		TransactionID: cs.Metadata[MetadataTransactionID],
		Handle:        cs.ID,
		Amount:        cs.AmountTotal,
		Raw:           models.MustJSONB(cs),
	}

	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		res.State = StatePaid
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		res.State = StateFailed
	default:
		// open, or complete while an async payment method settles
		res.State = StatePending
	}
	return res
}

func paymentIntentResult(pi *stripe.PaymentIntent) *Result {
	res := &Result{
		TransactionID: pi.Metadata[MetadataTransactionID],
		Handle:        pi.ID,
		Amount:        pi.Amount,
		Raw:           models.MustJSONB(pi),
	}

	switch {
	case pi.Status == stripe.PaymentIntentStatusSucceeded:
		res.State = StatePaid
	case pi.Status == stripe.PaymentIntentStatusCanceled:
		res.State = StateFailed
	default:
		// a declined attempt returns the intent to requires_payment_method and
		// the payer may still retry on it
		res.State = StatePending
	}
	return res
}
