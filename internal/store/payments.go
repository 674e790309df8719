package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PaymentTransition describes the result of applying an outcome to a payment
type PaymentTransition struct {
	Payment *models.Payment
	Booking *models.Booking
	// Applied is false when the payment was already final and nothing was written
	Applied bool
	// Confirmed is true when this transition moved the booking to CONFIRMED
	Confirmed bool
	// Overbooked is true when the confirmation took the event past max_participants
	Overbooked bool
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, transaction_id, amount, currency, status, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		payment.ID, payment.BookingID, payment.TransactionID, payment.Amount,
		payment.Currency, payment.Status, payment.Method,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment %s: %w", payment.TransactionID, err)
	}
	return nil
}

// SetPaymentProviderRef stores the provider handle for a pending payment
func (s *Store) SetPaymentProviderRef(ctx context.Context, transactionID, providerRef string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET provider_ref = $1, updated_at = NOW() WHERE transaction_id = $2",
		providerRef, transactionID)
	return err
}

// MarkPaymentFailed fails a payment that is still pending. Used when the
// provider call that should follow the insert did not succeed.
func (s *Store) MarkPaymentFailed(ctx context.Context, transactionID string, response models.JSONB) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = 'FAILED', gateway_response = $1, updated_at = NOW()
		WHERE transaction_id = $2 AND status = 'PENDING'`,
		response, transactionID)
	return err
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("payment %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByTransactionID retrieves a payment by its transaction id
func (s *Store) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE transaction_id = $1", transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("payment %s not found", transactionID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPayments returns payments matching filter, newest first
func (s *Store) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.BookingID != "" {
		add("p.booking_id = $%d", filter.BookingID)
	}
	if filter.EventID != "" {
		add("b.event_id = $%d", filter.EventID)
	}
	if filter.UserID != "" {
		add("b.user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("p.status = $%d", filter.Status)
	}

	query := "SELECT p.* FROM payments p JOIN bookings b ON b.id = p.booking_id"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var payments []models.Payment
	if err := s.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, err
	}
	return payments, nil
}

// ApplyPaymentSuccess completes a pending payment and confirms its booking in
// one transaction. The payment row is locked first, so concurrent callers for
// the same transaction id serialize and only the first one writes.
func (s *Store) ApplyPaymentSuccess(ctx context.Context, transactionID string, response models.JSONB, paidAt time.Time) (*PaymentTransition, error) {
	var result *PaymentTransition

	err := s.withTx(ctx, "ApplyPaymentSuccess", func(tx *sqlx.Tx) error {
		payment, booking, err := lockPaymentAndBooking(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		if payment.IsFinal() {
			result = &PaymentTransition{Payment: payment, Booking: booking}
			return nil
		}

		if err := tx.GetContext(ctx, payment, `
			UPDATE payments
			SET status = 'COMPLETED', paid_at = $1, gateway_response = $2, updated_at = NOW()
			WHERE id = $3
			RETURNING *`,
			paidAt, response, payment.ID); err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}

		confirmed, overbooked, err := confirmBooking(ctx, tx, booking)
		if err != nil {
			return err
		}

		result = &PaymentTransition{Payment: payment, Booking: booking, Applied: true, Confirmed: confirmed, Overbooked: overbooked}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.warnOverbooked(result, transactionID)
	if result.Applied && !result.Confirmed {
		s.logger.Warn("Booking already confirmed by another payment",
			zap.String("booking_id", result.Booking.ID),
			zap.String("transaction_id", transactionID))
	}
	return result, nil
}

// ApplyPaymentFailure fails a pending payment. The booking keeps its status
// and only mirrors the payment status when it is not already confirmed.
func (s *Store) ApplyPaymentFailure(ctx context.Context, transactionID string, response models.JSONB) (*PaymentTransition, error) {
	var result *PaymentTransition

	err := s.withTx(ctx, "ApplyPaymentFailure", func(tx *sqlx.Tx) error {
		payment, booking, err := lockPaymentAndBooking(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		if payment.IsFinal() {
			result = &PaymentTransition{Payment: payment, Booking: booking}
			return nil
		}

		if err := tx.GetContext(ctx, payment, `
			UPDATE payments
			SET status = 'FAILED', gateway_response = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING *`,
			response, payment.ID); err != nil {
			return fmt.Errorf("failed to fail payment: %w", err)
		}

		if booking.Status != models.BookingStatusConfirmed {
			if err := tx.GetContext(ctx, booking, `
				UPDATE bookings SET payment_status = 'FAILED', updated_at = NOW()
				WHERE id = $1
				RETURNING *`, booking.ID); err != nil {
				return fmt.Errorf("failed to update booking payment status: %w", err)
			}
		}

		result = &PaymentTransition{Payment: payment, Booking: booking, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePaymentStatus applies an operator status override while keeping the
// booking consistent with the payment.
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*PaymentTransition, error) {
	var result *PaymentTransition

	err := s.withTx(ctx, "UpdatePaymentStatus", func(tx *sqlx.Tx) error {
		var payment models.Payment
		err := tx.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1 FOR UPDATE", paymentID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("payment %s not found", paymentID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		booking, err := lockBooking(ctx, tx, payment.BookingID)
		if err != nil {
			return err
		}

		result = &PaymentTransition{Payment: &payment, Booking: booking}
		if payment.Status == status {
			return nil
		}

		if payment.Status == models.PaymentStatusCompleted && status != models.PaymentStatusRefunded {
			return apperrors.Conflict("completed payment can only be refunded")
		}
		if status == models.PaymentStatusRefunded && payment.Status != models.PaymentStatusCompleted {
			return apperrors.Conflict("only completed payments can be refunded")
		}

		var paidAt interface{}
		if status == models.PaymentStatusCompleted && payment.PaidAt == nil {
			paidAt = time.Now().UTC()
		}

		if err := tx.GetContext(ctx, &payment, `
			UPDATE payments SET status = $1, paid_at = COALESCE(paid_at, $2), updated_at = NOW()
			WHERE id = $3
			RETURNING *`, status, paidAt, payment.ID); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		result.Applied = true

		switch status {
		case models.PaymentStatusCompleted:
			confirmed, overbooked, err := confirmBooking(ctx, tx, booking)
			if err != nil {
				return err
			}
			result.Confirmed = confirmed
			result.Overbooked = overbooked
		case models.PaymentStatusRefunded:
			return refundBooking(ctx, tx, booking)
		default:
			if booking.Status != models.BookingStatusConfirmed {
				if err := tx.GetContext(ctx, booking, `
					UPDATE bookings SET payment_status = $1, updated_at = NOW()
					WHERE id = $2
					RETURNING *`, status, booking.ID); err != nil {
					return fmt.Errorf("failed to mirror booking payment status: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.warnOverbooked(result, result.Payment.TransactionID)
	return result, nil
}

// DeletePayment removes a payment unless it paid for a confirmed booking
func (s *Store) DeletePayment(ctx context.Context, paymentID string) error {
	return s.withTx(ctx, "DeletePayment", func(tx *sqlx.Tx) error {
		var payment models.Payment
		err := tx.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1 FOR UPDATE", paymentID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("payment %s not found", paymentID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		booking, err := lockBooking(ctx, tx, payment.BookingID)
		if err != nil {
			return err
		}

		if payment.Status == models.PaymentStatusCompleted && booking.Status == models.BookingStatusConfirmed {
			return apperrors.Conflict("payment %s settles a confirmed booking", paymentID)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE id = $1", paymentID); err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		return nil
	})
}

func lockPaymentAndBooking(ctx context.Context, tx *sqlx.Tx, transactionID string) (*models.Payment, *models.Booking, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE transaction_id = $1 FOR UPDATE", transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperrors.NotFound("payment %s not found", transactionID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	booking, err := lockBooking(ctx, tx, payment.BookingID)
	if err != nil {
		return nil, nil, err
	}
	return &payment, booking, nil
}

func lockBooking(ctx context.Context, tx *sqlx.Tx, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := tx.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1 FOR UPDATE", bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("booking %s not found", bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// confirmBooking marks the booking paid and confirmed. The event's participant
// count only moves when the booking was not confirmed before. Seats are not
// held while a payment is open, so a late payment can take the count past
// max_participants; overbooked reports it.
func confirmBooking(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) (confirmed, overbooked bool, err error) {
	wasConfirmed := booking.Status == models.BookingStatusConfirmed

	if err := tx.GetContext(ctx, booking, `
		UPDATE bookings SET status = 'CONFIRMED', payment_status = 'COMPLETED', updated_at = NOW()
		WHERE id = $1
		RETURNING *`, booking.ID); err != nil {
		return false, false, fmt.Errorf("failed to confirm booking: %w", err)
	}

	if wasConfirmed {
		return false, false, nil
	}

	over, err := countParticipant(ctx, tx, booking.EventID)
	if err != nil {
		return false, false, err
	}
	return true, over, nil
}

// countParticipant adds one participant to the event and reports whether the
// event is now over capacity
func countParticipant(ctx context.Context, tx *sqlx.Tx, eventID string) (bool, error) {
	var seats struct {
		Current int `db:"current_participants"`
		Max     int `db:"max_participants"`
	}
	if err := tx.GetContext(ctx, &seats, `
		UPDATE events SET current_participants = current_participants + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING current_participants, max_participants`, eventID); err != nil {
		return false, fmt.Errorf("failed to count participant: %w", err)
	}
	return seats.Current > seats.Max, nil
}

func (s *Store) warnOverbooked(tr *PaymentTransition, transactionID string) {
	if tr == nil || !tr.Overbooked {
		return
	}
	util.EventsOverbookedTotal.Inc()
	s.logger.Warn("Payment confirmed a booking past event capacity",
		zap.String("event_id", tr.Booking.EventID),
		zap.String("booking_id", tr.Booking.ID),
		zap.String("transaction_id", transactionID))
}

func refundBooking(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error {
	wasConfirmed := booking.Status == models.BookingStatusConfirmed

	if err := tx.GetContext(ctx, booking, `
		UPDATE bookings SET status = 'CANCELLED', payment_status = 'REFUNDED', updated_at = NOW()
		WHERE id = $1
		RETURNING *`, booking.ID); err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	if !wasConfirmed {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE events SET current_participants = GREATEST(current_participants - 1, 0), updated_at = NOW() WHERE id = $1",
		booking.EventID); err != nil {
		return fmt.Errorf("failed to release participant: %w", err)
	}
	return nil
}
