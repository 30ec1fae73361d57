package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DailyCallMetrics is one (day, user) rollup row. The totals and sample count
// back the running averages, so a fold never re-rounds a stored average and
// latency is averaged only over calls that produced a sample.
type DailyCallMetrics struct {
	Day                    time.Time `db:"day"`
	UserID                 uuid.UUID `db:"user_id"`
	Calls                  int       `db:"calls"`
	Connects               int       `db:"connects"`
	Bookings               int       `db:"bookings"`
	DurationTotalS         int64     `db:"duration_total_s"`
	LatencySamples         int       `db:"latency_samples"`
	LatencyTotalMs         int64     `db:"latency_total_ms"`
	AvgDurationS           int64     `db:"avg_duration_s"`
	AvgFirstAudioLatencyMs int64     `db:"avg_first_audio_latency_ms"`
	BookingRate            float64   `db:"booking_rate"`
}

const sqlGetDailyCallMetrics = `
SELECT * FROM daily_call_metrics WHERE day = $1 AND user_id = $2`

func (s *Store) GetDailyCallMetrics(ctx context.Context, day time.Time, userID uuid.UUID) (*DailyCallMetrics, error) {
	var metrics DailyCallMetrics
	err := s.db.GetContext(ctx, &metrics, sqlGetDailyCallMetrics, day, userID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error(ctx, "failed to get daily call metrics", err)
		return nil, fmt.Errorf("failed to get daily call metrics: %w", err)
	}
	return &metrics, nil
}

const sqlGetDailyCallMetricsRange = `
SELECT * FROM daily_call_metrics
WHERE user_id = $1 AND day >= $2 AND day <= $3
ORDER BY day ASC`

func (s *Store) GetDailyCallMetricsRange(ctx context.Context, userID uuid.UUID,
	from, to time.Time) ([]DailyCallMetrics, error) {
	var metrics []DailyCallMetrics
	err := s.db.SelectContext(ctx, &metrics, sqlGetDailyCallMetricsRange, userID, from, to)
	if err != nil {
		s.logger.Error(ctx, "failed to get daily call metrics range", err)
		return nil, fmt.Errorf("failed to get daily call metrics range: %w", err)
	}
	return metrics, nil
}

const sqlUpsertDailyCallMetrics = `
INSERT INTO daily_call_metrics (day, user_id, calls, connects, bookings, duration_total_s, latency_samples, latency_total_ms, avg_duration_s, avg_first_audio_latency_ms, booking_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (day, user_id) DO UPDATE SET
    calls = EXCLUDED.calls,
    connects = EXCLUDED.connects,
    bookings = EXCLUDED.bookings,
    duration_total_s = EXCLUDED.duration_total_s,
    latency_samples = EXCLUDED.latency_samples,
    latency_total_ms = EXCLUDED.latency_total_ms,
    avg_duration_s = EXCLUDED.avg_duration_s,
    avg_first_audio_latency_ms = EXCLUDED.avg_first_audio_latency_ms,
    booking_rate = EXCLUDED.booking_rate`

func (s *Store) UpsertDailyCallMetrics(ctx context.Context, m DailyCallMetrics) error {
	_, err := s.db.ExecContext(ctx, sqlUpsertDailyCallMetrics,
		m.Day, m.UserID, m.Calls, m.Connects, m.Bookings,
		m.DurationTotalS, m.LatencySamples, m.LatencyTotalMs,
		m.AvgDurationS, m.AvgFirstAudioLatencyMs, m.BookingRate)
	if err != nil {
		s.logger.Error(ctx, "failed to upsert daily call metrics", err)
		return fmt.Errorf("failed to upsert daily call metrics: %w", err)
	}
	return nil
}
