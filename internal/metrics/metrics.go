// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeRecorded        = "recorded"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeInvalid         = "invalid_recipient"
	OutcomePersistFailed   = "persistence_failed"
	OutcomeDispatchFailed  = "dispatch_failed"
)

var (
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_submissions_total",
			Help: "SOS submissions by outcome",
		},
		[]string{"outcome"},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_dispatches_total",
			Help: "Notification dispatch attempts by mode and result",
		},
		[]string{"mode", "result"},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_realtime_events_total",
			Help: "Inserted alerts received from the real-time source",
		},
		[]string{"source"},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_viewer_subscriptions",
			Help: "Open real-time viewer subscriptions",
		},
	)

	DroppedSubscribers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_viewer_dropped_total",
			Help: "Subscriptions closed because the viewer fell behind",
		},
	)
)

// Submission counts one submission outcome.
func Submission(outcome string) {
	Submissions.WithLabelValues(outcome).Inc()
}

// Dispatch counts one dispatch attempt.
func Dispatch(mode string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	Dispatches.WithLabelValues(mode, result).Inc()
}
