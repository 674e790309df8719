package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateBooking inserts a new booking
func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (id, user_id, event_id, status, payment_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.EventID, booking.Status, booking.PaymentStatus,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
}

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingsByUserID retrieves bookings for a user
func (s *Store) GetBookingsByUserID(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT * FROM bookings WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return bookings, err
}

// CreateConfirmedBooking enrolls a booking that owes nothing. The event row is
// locked so the seat check and the participant count move together.
func (s *Store) CreateConfirmedBooking(ctx context.Context, booking *models.Booking) error {
	return s.withTx(ctx, "CreateConfirmedBooking", func(tx *sqlx.Tx) error {
		var event models.Event
		err := tx.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1 FOR UPDATE", booking.EventID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("event %s not found", booking.EventID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock event: %w", err)
		}
		if event.CurrentParticipants >= event.MaxParticipants {
			return apperrors.Conflict("event %s is full", event.ID)
		}

		booking.Status = models.BookingStatusConfirmed
		booking.PaymentStatus = models.PaymentStatusCompleted
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO bookings (id, user_id, event_id, status, payment_status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at`,
			booking.ID, booking.UserID, booking.EventID, booking.Status, booking.PaymentStatus,
		).Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		if _, err := countParticipant(ctx, tx, event.ID); err != nil {
			return err
		}
		return nil
	})
}
