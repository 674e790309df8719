package models

import "time"

// Event types
const (
	EventTypeBookingCreated     = "BOOKING_CREATED"
	EventTypeBookingConfirmed   = "BOOKING_CONFIRMED"
	EventTypePaymentInitiated   = "PAYMENT_INITIATED"
	EventTypePaymentCompleted   = "PAYMENT_COMPLETED"
	EventTypePaymentFailed      = "PAYMENT_FAILED"
	EventTypeEventStatusChanged = "EVENT_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published when an enrollment is created
type BookingCreatedEvent struct {
	BaseEvent
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	EventRef  string `json:"event_ref"`
}

// BookingConfirmedEvent published when a payment confirms a booking
type BookingConfirmedEvent struct {
	BaseEvent
	BookingID     string `json:"booking_id"`
	UserID        string `json:"user_id"`
	EventRef      string `json:"event_ref"`
	TransactionID string `json:"transaction_id"`
}

// PaymentInitiatedEvent published once a provider session is open
type PaymentInitiatedEvent struct {
	BaseEvent
	BookingID     string `json:"booking_id"`
	TransactionID string `json:"transaction_id"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
}

// PaymentCompletedEvent published after a successful reconcile
type PaymentCompletedEvent struct {
	BaseEvent
	BookingID     string `json:"booking_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
}

// PaymentFailedEvent published after a failed reconcile or provider error
type PaymentFailedEvent struct {
	BaseEvent
	BookingID     string `json:"booking_id"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// EventStatusChangedEvent published when the scheduler moves an event
type EventStatusChangedEvent struct {
	BaseEvent
	EventRef string `json:"event_ref"`
	From     string `json:"from"`
	To       string `json:"to"`
}
