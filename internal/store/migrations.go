package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RunMigrations creates the schema if it does not exist
func (s *Store) RunMigrations(ctx context.Context) error {
	s.logger.Info("Running database migrations")

	migrations := []string{
		createEventsTable,
		createBookingsTable,
		createPaymentsTable,
		createEventsStatusIndex,
		createPaymentsBookingIndex,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		s.logger.Debug("Migration applied", zap.Int("step", i+1))
	}

	s.logger.Info("All migrations completed", zap.Int("count", len(migrations)))
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id UUID PRIMARY KEY,
    host_id UUID NOT NULL,
    title VARCHAR(255) NOT NULL,
    date TIMESTAMPTZ NOT NULL,
    fee BIGINT NOT NULL DEFAULT 0,
    min_participants INTEGER NOT NULL DEFAULT 0,
    max_participants INTEGER NOT NULL,
    current_participants INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'UPCOMING',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (fee >= 0),
    CHECK (current_participants >= 0),
    CHECK (status IN ('UPCOMING', 'OPEN', 'ONGOING', 'FULL', 'COMPLETED', 'CANCELLED', 'CLOSED'))
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    payment_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('PENDING', 'CONFIRMED', 'CANCELLED')),
    CHECK (payment_status IN ('PENDING', 'COMPLETED', 'FAILED', 'REFUNDED'))
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    booking_id UUID NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
    transaction_id VARCHAR(100) NOT NULL UNIQUE,
    amount BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    method VARCHAR(30) NOT NULL,
    provider_ref VARCHAR(255),
    paid_at TIMESTAMPTZ,
    gateway_response JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (amount > 0),
    CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED', 'REFUNDED'))
);`

const createEventsStatusIndex = `
CREATE INDEX IF NOT EXISTS events_status_idx ON events (status);`

const createPaymentsBookingIndex = `
CREATE INDEX IF NOT EXISTS payments_booking_id_idx ON payments (booking_id);`
