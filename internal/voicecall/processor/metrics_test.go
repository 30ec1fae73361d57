package processor

import (
	"testing"
	"time"

	"outcall-server/internal/store"

	"github.com/google/uuid"
)

func TestApplyCall_AverageDurationMatchesMean(t *testing.T) {
	durations := []int64{10, 20, 30, 40, 55, 125}

	m := store.DailyCallMetrics{
		Day:    time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		UserID: uuid.New(),
	}
	var sum int64
	for _, d := range durations {
		m = ApplyCall(m, d, nil, false)
		sum += d
	}

	if m.Calls != len(durations) {
		t.Fatalf("calls = %d, want %d", m.Calls, len(durations))
	}

	mean := float64(sum) / float64(len(durations))
	diff := float64(m.AvgDurationS) - mean
	if diff < -1 || diff > 1 {
		t.Errorf("avg duration = %d, want mean %.2f within 1", m.AvgDurationS, mean)
	}
}

func TestApplyCall_AverageDurationDoesNotDrift(t *testing.T) {
	// Each value rounds upward against the running mean; re-rounding a stored
	// average on every fold would creep past the mean here.
	durations := []int64{10, 9, 9, 8, 8}

	m := store.DailyCallMetrics{UserID: uuid.New()}
	var sum int64
	for _, d := range durations {
		m = ApplyCall(m, d, nil, false)
		sum += d
	}

	mean := float64(sum) / float64(len(durations))
	diff := float64(m.AvgDurationS) - mean
	if diff < -1 || diff > 1 {
		t.Errorf("avg duration = %d, want mean %.2f within 1 (diff %.2f)",
			m.AvgDurationS, mean, diff)
	}
}

func TestApplyCall_ConnectsAndBookings(t *testing.T) {
	m := store.DailyCallMetrics{UserID: uuid.New()}

	m = ApplyCall(m, 10, nil, false)  // too short to connect
	m = ApplyCall(m, 45, nil, true)   // connect + booking
	m = ApplyCall(m, 30, nil, false)  // threshold is inclusive
	m = ApplyCall(m, 200, nil, true)  // connect + booking

	if m.Calls != 4 {
		t.Errorf("calls = %d, want 4", m.Calls)
	}
	if m.Connects != 3 {
		t.Errorf("connects = %d, want 3", m.Connects)
	}
	if m.Bookings != 2 {
		t.Errorf("bookings = %d, want 2", m.Bookings)
	}
	if m.BookingRate != 0.5 {
		t.Errorf("booking rate = %f, want 0.5", m.BookingRate)
	}
}

func TestApplyCall_FirstAudioLatencyIgnoredWhenAbsent(t *testing.T) {
	m := store.DailyCallMetrics{UserID: uuid.New()}

	latency := int64(800)
	m = ApplyCall(m, 60, &latency, false)
	m = ApplyCall(m, 60, nil, false)

	if m.AvgFirstAudioLatencyMs != 800 {
		t.Errorf("avg first audio latency = %d, want 800 (absent samples skipped)",
			m.AvgFirstAudioLatencyMs)
	}
}

func TestApplyCall_LatencyAveragedOverSampledCalls(t *testing.T) {
	m := store.DailyCallMetrics{UserID: uuid.New()}

	// A sample-less call first: it must not dilute the later sample.
	m = ApplyCall(m, 60, nil, false)
	latency := int64(800)
	m = ApplyCall(m, 60, &latency, false)

	if m.LatencySamples != 1 {
		t.Errorf("latency samples = %d, want 1", m.LatencySamples)
	}
	if m.AvgFirstAudioLatencyMs != 800 {
		t.Errorf("avg first audio latency = %d, want 800", m.AvgFirstAudioLatencyMs)
	}

	second := int64(400)
	m = ApplyCall(m, 60, &second, false)
	if m.AvgFirstAudioLatencyMs != 600 {
		t.Errorf("avg first audio latency = %d, want 600", m.AvgFirstAudioLatencyMs)
	}
}
