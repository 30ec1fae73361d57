package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type Lead struct {
	ID          uuid.UUID      `db:"id"`
	UserID      uuid.UUID      `db:"user_id"`
	Name        string         `db:"name"`
	PhoneNumber string         `db:"phone_number"`
	Address     sql.NullString `db:"address"`
	RoofAgeYrs  sql.NullInt64  `db:"roof_age_years"`
	Priority    sql.NullString `db:"priority"`
	OptedOut    bool           `db:"opted_out"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

const sqlGetLeadByID = `
SELECT * FROM leads WHERE id = $1`

func (s *Store) GetLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	var lead Lead
	err := s.db.GetContext(ctx, &lead, sqlGetLeadByID, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error(ctx, "failed to get lead by ID", err)
		return nil, fmt.Errorf("failed to get lead by ID: %w", err)
	}
	return &lead, nil
}

const sqlCreateLead = `
INSERT INTO leads (user_id, name, phone_number, address, roof_age_years, priority)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING *`

func (s *Store) CreateLead(ctx context.Context, userID uuid.UUID, name, phoneNumber string,
	address sql.NullString, roofAgeYears sql.NullInt64, priority sql.NullString) (*Lead, error) {
	var lead Lead
	err := s.db.GetContext(ctx, &lead, sqlCreateLead, userID, name, phoneNumber, address, roofAgeYears, priority)
	if err != nil {
		s.logger.Error(ctx, "failed to create lead", err)
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}
	return &lead, nil
}

const sqlMarkLeadOptedOut = `
UPDATE leads SET opted_out = TRUE, updated_at = NOW() WHERE id = $1`

// MarkLeadOptedOut permanently records an opt-out on the lead. The flag never
// reverts; future call attempts against the lead are rejected.
func (s *Store) MarkLeadOptedOut(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, sqlMarkLeadOptedOut, id)
	if err != nil {
		s.logger.Error(ctx, "failed to mark lead opted out", err)
		return fmt.Errorf("failed to mark lead opted out: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Error(ctx, "failed to get rows affected", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
