package gateway

import (
	"context"
	"errors"
	"net"
	"time"

	"booking-service/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
)

// State is the payment state a provider reports for a session or intent
type State string

const (
	StatePaid    State = "paid"
	StateFailed  State = "failed"
	StatePending State = "pending"
)

// Customer carries the payer details some providers require
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// SessionRequest opens a provider payment session for one transaction
type SessionRequest struct {
	TransactionID string
	BookingID     string
	Amount        int64
	Currency      string
	Customer      Customer
	ProductName   string
	SuccessURL    string
	FailURL       string
	CancelURL     string
}

// Session is what a provider hands back when a payment is opened
type Session struct {
	Handle       string
	ClientSecret string
	RedirectURL  string
	Raw          models.JSONB
}

// Result is the provider's view of a payment, parsed into a fixed shape
type Result struct {
	TransactionID string
	Handle        string
	State         State
	Amount        int64
	Raw           models.JSONB
}

// RetryConfig bounds retries of transient provider errors
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (rc RetryConfig) withDefaults() RetryConfig {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 3
	}
	if rc.InitialInterval <= 0 {
		rc.InitialInterval = 200 * time.Millisecond
	}
	if rc.MaxInterval <= 0 {
		rc.MaxInterval = 2 * time.Second
	}
	return rc
}

// transientError marks a provider failure worth retrying
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so retry treats it as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a timeout, a network error or was
// explicitly marked transient
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// retry runs op with exponential backoff. Only transient errors are retried.
func retry(ctx context.Context, rc RetryConfig, op func() error) error {
	rc = rc.withDefaults()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = rc.InitialInterval
	eb.MaxInterval = rc.MaxInterval
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(rc.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

var hundred = decimal.NewFromInt(100)

// FormatAmount renders minor units as a two-decimal major unit string
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// ParseAmount converts a major unit decimal string into minor units
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}
