package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	CallStatusInitiated  = "initiated"
	CallStatusInProgress = "in_progress"
	CallStatusRetrying   = "retrying"
	CallStatusCompleted  = "completed"
	CallStatusFailed     = "failed"
)

const (
	CallOutcomeScheduled = "scheduled"
	CallOutcomeFollowUp  = "follow_up"
	CallOutcomeOptOut    = "opt_out"
	CallOutcomeFailed    = "failed"
)

const (
	InterestLevelHigh   = "high"
	InterestLevelMedium = "medium"
	InterestLevelLow    = "low"
)

// FloatSlice stores a []float64 as a JSONB column.
type FloatSlice []float64

func (f FloatSlice) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *FloatSlice) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into FloatSlice", src)
	}
}

type CallSession struct {
	ID                  uuid.UUID       `db:"id"`
	UserID              uuid.UUID       `db:"user_id"`
	LeadID              uuid.UUID       `db:"lead_id"`
	TransportSID        sql.NullString  `db:"transport_sid"`
	Status              string          `db:"status"`
	StartedAt           sql.NullTime    `db:"started_at"`
	EndedAt             sql.NullTime    `db:"ended_at"`
	DurationSeconds     sql.NullInt64   `db:"duration_seconds"`
	RetryAttempts       int             `db:"retry_attempts"`
	LastError           sql.NullString  `db:"last_error"`
	LastErrorAt         sql.NullTime    `db:"last_error_at"`
	SummaryText         sql.NullString  `db:"summary_text"`
	SummaryNextSteps    sql.NullString  `db:"summary_next_steps"`
	SummarySentiment    sql.NullString  `db:"summary_sentiment"`
	Outcome             sql.NullString  `db:"outcome"`
	InterestLevel       sql.NullString  `db:"interest_level"`
	FirstAudioLatencyMs sql.NullInt64   `db:"first_audio_latency_ms"`
	ConfidenceScores    FloatSlice      `db:"confidence_scores"`
	OptOutDetected      bool            `db:"opt_out_detected"`
	EstimatedCostCents  sql.NullInt64   `db:"estimated_cost_cents"`
	CreatedAt           string          `db:"created_at"`
	UpdatedAt           string          `db:"updated_at"`
}

type CallTurn struct {
	ID         uuid.UUID       `db:"id"`
	CallID     uuid.UUID       `db:"call_id"`
	Seq        int             `db:"seq"`
	Role       string          `db:"role"`
	Text       string          `db:"text"`
	AudioRef   sql.NullString  `db:"audio_ref"`
	Confidence sql.NullFloat64 `db:"confidence"`
	CreatedAt  string          `db:"created_at"`
}

const sqlCreateCallSession = `
INSERT INTO call_sessions (user_id, lead_id, status)
VALUES ($1, $2, $3)
RETURNING *`

func (s *Store) CreateCallSession(ctx context.Context, userID, leadID uuid.UUID) (*CallSession, error) {
	var session CallSession
	err := s.db.GetContext(ctx, &session, sqlCreateCallSession, userID, leadID, CallStatusInitiated)
	if err != nil {
		s.logger.Error(ctx, "failed to create call session", err)
		return nil, fmt.Errorf("failed to create call session: %w", err)
	}
	return &session, nil
}

const sqlGetCallSessionByID = `
SELECT * FROM call_sessions WHERE id = $1`

func (s *Store) GetCallSession(ctx context.Context, id uuid.UUID) (*CallSession, error) {
	var session CallSession
	err := s.db.GetContext(ctx, &session, sqlGetCallSessionByID, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error(ctx, "failed to get call session by ID", err)
		return nil, fmt.Errorf("failed to get call session by ID: %w", err)
	}
	return &session, nil
}

const sqlUpdateCallStatus = `
UPDATE call_sessions SET status = $1, updated_at = NOW() WHERE id = $2`

func (s *Store) UpdateCallStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := s.db.ExecContext(ctx, sqlUpdateCallStatus, status, id)
	if err != nil {
		s.logger.Error(ctx, "failed to update call status", err)
		return fmt.Errorf("failed to update call status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlMarkCallStarted = `
UPDATE call_sessions SET status = $1, started_at = NOW(), updated_at = NOW() WHERE id = $2`

func (s *Store) MarkCallStarted(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, sqlMarkCallStarted, CallStatusInProgress, id)
	if err != nil {
		s.logger.Error(ctx, "failed to mark call started", err)
		return fmt.Errorf("failed to mark call started: %w", err)
	}
	return nil
}

const sqlSetCallTransportSID = `
UPDATE call_sessions SET transport_sid = $1, updated_at = NOW() WHERE id = $2`

func (s *Store) SetCallTransportSID(ctx context.Context, id uuid.UUID, sid string) error {
	_, err := s.db.ExecContext(ctx, sqlSetCallTransportSID, sid, id)
	if err != nil {
		s.logger.Error(ctx, "failed to set call transport sid", err)
		return fmt.Errorf("failed to set call transport sid: %w", err)
	}
	return nil
}

const sqlRecordCallFailure = `
UPDATE call_sessions
SET status = $1, retry_attempts = $2, last_error = $3, last_error_at = $4, updated_at = NOW()
WHERE id = $5`

// RecordCallFailure stores the failure and the new attempt count, moving the
// session to retrying or failed.
func (s *Store) RecordCallFailure(ctx context.Context, id uuid.UUID, status string,
	retryAttempts int, lastError string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, sqlRecordCallFailure, status, retryAttempts, lastError, at, id)
	if err != nil {
		s.logger.Error(ctx, "failed to record call failure", err)
		return fmt.Errorf("failed to record call failure: %w", err)
	}
	return nil
}

// CallCompletion carries everything applied to a session when a pipeline run
// finishes.
type CallCompletion struct {
	Status              string
	Outcome             string
	InterestLevel       string
	DurationSeconds     int64
	SummaryText         string
	SummaryNextSteps    string
	SummarySentiment    string
	FirstAudioLatencyMs sql.NullInt64
	ConfidenceScores    FloatSlice
	OptOutDetected      bool
	EstimatedCostCents  int64
}

const sqlCompleteCallSession = `
UPDATE call_sessions
SET status = $1,
    outcome = $2,
    interest_level = $3,
    ended_at = NOW(),
    duration_seconds = $4,
    summary_text = $5,
    summary_next_steps = $6,
    summary_sentiment = $7,
    first_audio_latency_ms = $8,
    confidence_scores = $9,
    opt_out_detected = opt_out_detected OR $10,
    estimated_cost_cents = $11,
    updated_at = NOW()
WHERE id = $12`

func (s *Store) CompleteCallSession(ctx context.Context, id uuid.UUID, c CallCompletion) error {
	_, err := s.db.ExecContext(ctx, sqlCompleteCallSession,
		c.Status, c.Outcome, c.InterestLevel, c.DurationSeconds,
		c.SummaryText, c.SummaryNextSteps, c.SummarySentiment,
		c.FirstAudioLatencyMs, c.ConfidenceScores, c.OptOutDetected,
		c.EstimatedCostCents, id)
	if err != nil {
		s.logger.Error(ctx, "failed to complete call session", err)
		return fmt.Errorf("failed to complete call session: %w", err)
	}
	return nil
}

const sqlDeleteCallTurns = `
DELETE FROM call_turns WHERE call_id = $1`

const sqlInsertCallTurn = `
INSERT INTO call_turns (call_id, seq, role, text, audio_ref, confidence)
VALUES ($1, $2, $3, $4, $5, $6)`

// ReplaceCallTurns atomically swaps the persisted transcript for a call. A
// retried pipeline run starts from scratch, so any turns from the previous
// attempt are dropped.
func (s *Store) ReplaceCallTurns(ctx context.Context, callID uuid.UUID, turns []CallTurn) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlDeleteCallTurns, callID); err != nil {
		s.logger.Error(ctx, "failed to delete call turns", err)
		return fmt.Errorf("failed to delete call turns: %w", err)
	}
	for _, turn := range turns {
		if _, err := tx.ExecContext(ctx, sqlInsertCallTurn,
			callID, turn.Seq, turn.Role, turn.Text, turn.AudioRef, turn.Confidence); err != nil {
			s.logger.Error(ctx, "failed to insert call turn", err)
			return fmt.Errorf("failed to insert call turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit call turns", err)
		return fmt.Errorf("failed to commit call turns: %w", err)
	}
	return nil
}

const sqlGetCallTurns = `
SELECT * FROM call_turns WHERE call_id = $1 ORDER BY seq ASC`

func (s *Store) GetCallTurns(ctx context.Context, callID uuid.UUID) ([]CallTurn, error) {
	var turns []CallTurn
	err := s.db.SelectContext(ctx, &turns, sqlGetCallTurns, callID)
	if err != nil {
		s.logger.Error(ctx, "failed to get call turns", err)
		return nil, fmt.Errorf("failed to get call turns: %w", err)
	}
	return turns, nil
}
