package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanlink",
			Subsystem: "pipeline",
			Name:      "frames_total",
			Help:      "Frames leaving the pipeline, by outcome.",
		},
		[]string{"outcome"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scanlink",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage processing duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		},
		[]string{"stage"},
	)
	fragmentsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scanlink",
			Subsystem: "impairment",
			Name:      "fragments_lost_total",
			Help:      "Fragments dropped by the impairment channel.",
		},
	)
	fragmentsCorrupted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scanlink",
			Subsystem: "impairment",
			Name:      "fragments_corrupted_total",
			Help:      "Fragments payload-corrupted by the impairment channel.",
		},
	)
	ringDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scanlink",
			Subsystem: "ring",
			Name:      "slot_reclaims_total",
			Help:      "Buffer-ring slots reclaimed by the oldest-wins policy.",
		},
	)
	authFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scanlink",
			Subsystem: "command",
			Name:      "auth_failures_total",
			Help:      "Inbound command frames discarded before dispatch (length, magic, MAC).",
		},
	)
	replayRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scanlink",
			Subsystem: "command",
			Name:      "replay_rejections_total",
			Help:      "Inbound command frames rejected by the replay gate.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesTotal,
			stageDuration,
			fragmentsLost,
			fragmentsCorrupted,
			ringDrops,
			authFailures,
			replayRejections,
		)
	})
}

// Frame outcome labels for RecordFrame.
const (
	OutcomeDelivered  = "delivered"
	OutcomePartial    = "partial"
	OutcomeIncomplete = "incomplete"
)

func RecordFrame(outcome string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(outcome).Inc()
}

func RecordStage(stage string, duration time.Duration) {
	RegisterMetrics()
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func RecordImpairment(lost, corrupted uint64) {
	RegisterMetrics()
	fragmentsLost.Add(float64(lost))
	fragmentsCorrupted.Add(float64(corrupted))
}

func RecordRingDrops(n uint64) {
	RegisterMetrics()
	ringDrops.Add(float64(n))
}

func RecordAuthFailures(n uint64) {
	RegisterMetrics()
	authFailures.Add(float64(n))
}

func RecordReplayRejections(n uint64) {
	RegisterMetrics()
	replayRejections.Add(float64(n))
}
