// Package metrics exposes Prometheus instruments for the relay and the
// timeline reconciler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks live sessions in the registry.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narration_active_sessions",
		Help: "Number of live narration sessions.",
	})

	// ConnectedListeners tracks joined listener connections across all sessions.
	ConnectedListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narration_connected_listeners",
		Help: "Number of joined listener connections.",
	})

	// FeedbackAccepted counts real samples accepted while Started and unpaused.
	FeedbackAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narration_feedback_accepted_total",
		Help: "Feedback samples accepted and reconciled.",
	})

	// FeedbackDropped counts samples silently dropped by the state filter.
	FeedbackDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narration_feedback_dropped_total",
		Help: "Feedback samples dropped because the session was not running.",
	})

	// HeartbeatsSynthesized counts fill-in samples emitted by the reconciler.
	HeartbeatsSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narration_heartbeats_synthesized_total",
		Help: "Synthetic heartbeat samples emitted to keep series continuous.",
	})

	// ArchiveUploads counts session snapshot uploads by result.
	ArchiveUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narration_archive_uploads_total",
		Help: "Session snapshot archive uploads.",
	}, []string{"result"})
)
