package processor

import (
	"math"

	"outcall-server/internal/store"
)

// A call counts as a connect when the conversation lasted at least this long.
const connectThresholdS = 30

// ApplyCall folds one completed call into the daily rollup. The row carries
// running totals so the averages are recomputed exactly on every fold instead
// of re-rounding a stored average. Latency is averaged over the calls that
// produced a sample, not over all calls.
func ApplyCall(m store.DailyCallMetrics, durationS int64, firstAudioMs *int64, booked bool) store.DailyCallMetrics {
	m.Calls++
	m.DurationTotalS += durationS
	m.AvgDurationS = roundedAvg(m.DurationTotalS, int64(m.Calls))

	if firstAudioMs != nil {
		m.LatencySamples++
		m.LatencyTotalMs += *firstAudioMs
		m.AvgFirstAudioLatencyMs = roundedAvg(m.LatencyTotalMs, int64(m.LatencySamples))
	}

	if durationS >= connectThresholdS {
		m.Connects++
	}
	if booked {
		m.Bookings++
	}
	m.BookingRate = float64(m.Bookings) / float64(m.Calls)
	return m
}

func roundedAvg(total, count int64) int64 {
	return int64(math.Round(float64(total) / float64(count)))
}
