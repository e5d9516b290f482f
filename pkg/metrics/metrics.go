// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesDecoded tracks protocol frames extracted from the byte stream.
	FramesDecoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_frames_decoded_total",
			Help: "Protocol frames extracted from query streams",
		},
	)

	// FrameParseFailures tracks frames that could not be parsed into events.
	FrameParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_frame_parse_failures_total",
			Help: "Frames discarded because they could not be parsed",
		},
		[]string{"reason"},
	)

	// EventsTotal tracks parsed events by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_events_total",
			Help: "Parsed stream events by type",
		},
		[]string{"type"},
	)

	// StreamsActive tracks query streams currently open.
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "insight_streams_active",
			Help: "Number of query streams currently open",
		},
	)

	// StreamDuration tracks end-to-end streamed query duration.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_stream_duration_seconds",
			Help:    "Streamed query duration from submit to terminal state",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// QueriesTotal tracks submitted queries by terminal outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_queries_total",
			Help: "Streamed queries by terminal outcome",
		},
		[]string{"outcome"},
	)
)

// RecordQuery records metrics for one completed streamed query.
func RecordQuery(outcome string, durationSec float64) {
	QueriesTotal.WithLabelValues(outcome).Inc()
	StreamDuration.WithLabelValues(outcome).Observe(durationSec)
}

// IncrementActiveStreams increments the open stream count.
func IncrementActiveStreams() {
	StreamsActive.Inc()
}

// DecrementActiveStreams decrements the open stream count.
func DecrementActiveStreams() {
	StreamsActive.Dec()
}
