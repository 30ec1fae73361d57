package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicecall_calls_active",
		Help: "Currently active call sessions",
	})

	CallsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecall_calls_started_total",
		Help: "Total calls started",
	})

	CallsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecall_calls_completed_total",
		Help: "Completed calls by outcome",
	}, []string{"outcome"})

	CallsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecall_calls_failed_total",
		Help: "Calls that exhausted pipeline retries",
	})

	PipelineRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecall_pipeline_retries_total",
		Help: "Pipeline runs rescheduled after a failure",
	})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecall_provider_errors_total",
		Help: "Provider error counts by capability",
	}, []string{"provider", "op"})

	FirstAudioLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicecall_first_audio_latency_seconds",
		Help:    "Latency from session start to first synthesized audio on the wire",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicecall_call_duration_seconds",
		Help:    "Total call duration",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})
)
