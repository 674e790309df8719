package store

import (
	"context"
	"database/sql"
	"errors"

	"booking-service/internal/apperrors"
	"booking-service/internal/models"
)

// GetEventByID retrieves an event by ID
func (s *Store) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := s.db.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("event %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListSchedulableEvents returns every event the lifecycle scheduler may still move
func (s *Store) ListSchedulableEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE status NOT IN ('COMPLETED', 'CANCELLED', 'CLOSED')
		ORDER BY date`)
	return events, err
}

// UpdateEventStatus moves an event from one status to another. It reports
// false when the stored status no longer matches from.
func (s *Store) UpdateEventStatus(ctx context.Context, eventID, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, eventID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
