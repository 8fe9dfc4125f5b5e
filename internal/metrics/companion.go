// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the streamsift daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompanionRequestsTotal tracks request/response commands sent to the
	// companion process by command and result.
	CompanionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_companion_requests_total",
		Help: "Total number of companion commands by command and result",
	}, []string{"command", "result"})

	// CompanionRequestDuration tracks round-trip latency per command.
	CompanionRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamsift_companion_request_duration_seconds",
		Help:    "Round-trip latency of companion commands",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"command"})

	// CompanionReconnectsTotal tracks reconnect attempts to the companion.
	CompanionReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamsift_companion_reconnects_total",
		Help: "Total number of companion reconnect attempts",
	})

	// CompanionPendingRejected tracks in-flight requests rejected because the
	// companion channel was lost before a reply arrived.
	CompanionPendingRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamsift_companion_pending_rejected_total",
		Help: "Total number of pending requests rejected on channel loss",
	})

	// CompanionPendingRequests tracks requests currently awaiting a reply.
	CompanionPendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamsift_companion_pending_requests",
		Help: "Number of requests awaiting a companion reply",
	})

	// CompanionState reports the connection state as a one-hot gauge.
	CompanionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamsift_companion_state",
		Help: "Companion connection state (1 for the active state)",
	}, []string{"state"})

	// CompanionEventsDropped tracks unsolicited events dropped because a
	// subscriber channel was full.
	CompanionEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_companion_events_dropped_total",
		Help: "Total number of unsolicited events dropped by full subscribers",
	}, []string{"command"})

	// DownloadsTotal tracks download terminations by outcome.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_downloads_total",
		Help: "Total number of finished downloads by outcome",
	}, []string{"outcome"})

	// DownloadsActive tracks downloads currently forwarded to the companion.
	DownloadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamsift_downloads_active",
		Help: "Number of downloads currently running on the companion",
	})

	// DownloadQueueDepth tracks downloads waiting for a free slot.
	DownloadQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamsift_download_queue_depth",
		Help: "Number of downloads queued behind the concurrency limit",
	})
)

// ObserveCompanionRequest records one round trip to the companion.
func ObserveCompanionRequest(command string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	CompanionRequestsTotal.WithLabelValues(command, result).Inc()
	CompanionRequestDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// SetCompanionState flips the one-hot state gauge to the given state.
func SetCompanionState(state string) {
	for _, s := range []string{"disconnected", "connecting", "validating", "connected", "error"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		CompanionState.WithLabelValues(s).Set(v)
	}
}
