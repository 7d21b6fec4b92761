// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageEventsTotal counts pipeline instrumentation events by endpoint and stage
	StageEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framelat_stage_events_total",
			Help: "Total number of pipeline stage events ingested",
		},
		[]string{"endpoint", "stage"},
	)

	// StageErrorsTotal counts stage events that could not be applied to a record
	StageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framelat_stage_errors_total",
			Help: "Total number of stage events rejected by the ingestor",
		},
		[]string{"endpoint", "stage", "error_type"},
	)

	// AckMessagesTotal counts acknowledgment datagrams by direction and result
	AckMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framelat_ack_messages_total",
			Help: "Total number of acknowledgment datagrams sent, received or rejected",
		},
		[]string{"endpoint", "result"},
	)

	// CorrelationsTotal counts ack-to-record binding outcomes on the sender
	CorrelationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framelat_correlations_total",
			Help: "Total number of acknowledgments by correlation outcome",
		},
		[]string{"outcome"},
	)

	// FrameLatencyMilliseconds observes derived per-frame latencies
	FrameLatencyMilliseconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framelat_frame_latency_milliseconds",
			Help:    "Per-frame latency breakdown in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 14), // 0.25ms to ~2s
		},
		[]string{"endpoint", "metric"},
	)

	// EncodedFrameBytes observes encoded frame sizes
	EncodedFrameBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framelat_encoded_frame_bytes",
			Help:    "Encoded frame size in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KiB to 2MiB
		},
		[]string{"endpoint"},
	)

	// SessionStatus tracks the current session phase
	SessionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framelat_session_status",
			Help: "Current session phase (0=stopped, 1=handshaking, 2=running, 3=failed)",
		},
		[]string{"endpoint"},
	)
)

// SessionStatusValue represents session phase as a numeric value for the gauge
const (
	SessionStopped     = 0
	SessionHandshaking = 1
	SessionRunning     = 2
	SessionFailed      = 3
)
