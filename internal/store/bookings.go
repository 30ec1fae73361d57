package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Booking struct {
	ID          uuid.UUID      `db:"id"`
	LeadID      uuid.UUID      `db:"lead_id"`
	CallID      uuid.UUID      `db:"call_id"`
	WindowStart time.Time      `db:"window_start"`
	WindowEnd   time.Time      `db:"window_end"`
	Notes       sql.NullString `db:"notes"`
	CreatedAt   string         `db:"created_at"`
}

const sqlCreateBooking = `
INSERT INTO bookings (lead_id, call_id, window_start, window_end, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING *`

func (s *Store) CreateBooking(ctx context.Context, leadID, callID uuid.UUID,
	windowStart, windowEnd time.Time, notes string) (*Booking, error) {
	var booking Booking
	err := s.db.GetContext(ctx, &booking, sqlCreateBooking,
		leadID, callID, windowStart, windowEnd, sql.NullString{String: notes, Valid: notes != ""})
	if err != nil {
		s.logger.Error(ctx, "failed to create booking", err)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	return &booking, nil
}

const sqlGetBookingByCallID = `
SELECT * FROM bookings WHERE call_id = $1`

func (s *Store) GetBookingByCallID(ctx context.Context, callID uuid.UUID) (*Booking, error) {
	var booking Booking
	err := s.db.GetContext(ctx, &booking, sqlGetBookingByCallID, callID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error(ctx, "failed to get booking by call ID", err)
		return nil, fmt.Errorf("failed to get booking by call ID: %w", err)
	}
	return &booking, nil
}
