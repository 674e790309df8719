package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Event represents a hosted event that users enroll in
type Event struct {
	ID                  string    `db:"id" json:"id"`
	HostID              string    `db:"host_id" json:"host_id"`
	Title               string    `db:"title" json:"title"`
	Date                time.Time `db:"date" json:"date"`
	Fee                 int64     `db:"fee" json:"fee"`
	MinParticipants     int       `db:"min_participants" json:"min_participants"`
	MaxParticipants     int       `db:"max_participants" json:"max_participants"`
	CurrentParticipants int       `db:"current_participants" json:"current_participants"`
	Status              string    `db:"status" json:"status"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Booking represents a user's enrollment in an event
type Booking struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	EventID       string    `db:"event_id" json:"event_id"`
	Status        string    `db:"status" json:"status"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Payment represents one payment attempt for a booking
type Payment struct {
	ID              string     `db:"id" json:"id"`
	BookingID       string     `db:"booking_id" json:"booking_id"`
	TransactionID   string     `db:"transaction_id" json:"transaction_id"`
	Amount          int64      `db:"amount" json:"amount"`
	Currency        string     `db:"currency" json:"currency"`
	Status          string     `db:"status" json:"status"`
	Method          string     `db:"method" json:"method"`
	ProviderRef     *string    `db:"provider_ref" json:"provider_ref,omitempty"`
	PaidAt          *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	GatewayResponse JSONB      `db:"gateway_response" json:"gateway_response,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Event statuses
const (
	EventStatusUpcoming  = "UPCOMING"
	EventStatusOpen      = "OPEN"
	EventStatusOngoing   = "ONGOING"
	EventStatusFull      = "FULL"
	EventStatusCompleted = "COMPLETED"
	EventStatusCancelled = "CANCELLED"
	EventStatusClosed    = "CLOSED"
)

// Booking statuses
const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCancelled = "CANCELLED"
)

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Payment methods
const (
	PaymentMethodStripe         = "STRIPE"
	PaymentMethodStripeCheckout = "STRIPE_CHECKOUT"
	PaymentMethodSSLCommerz     = "SSLCOMMERZ"
)

// IsValidPaymentStatus reports whether s is a known payment status
func IsValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsFinal reports whether no automatic transition can leave the payment's status
func (p *Payment) IsFinal() bool {
	return p.Status != PaymentStatusPending
}

// PaymentFilter narrows admin payment listings. Zero values are ignored.
type PaymentFilter struct {
	BookingID string
	EventID   string
	UserID    string
	Status    string
	Limit     int
	Offset    int
}

// JSONB holds an opaque JSON document stored in a nullable jsonb column
type JSONB []byte

// Value implements driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner
func (j *JSONB) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
	return nil
}

// MarshalJSON emits the stored document verbatim
func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

// UnmarshalJSON keeps a copy of the raw document
func (j *JSONB) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], data...)
	return nil
}

// MustJSONB marshals v, falling back to an error document so the raw
// provider payload is never silently lost.
func MustJSONB(v interface{}) JSONB {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	return JSONB(b)
}
