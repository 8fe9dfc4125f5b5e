// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservationsTotal tracks incoming URL observations by outcome of the
	// classification stage (accepted, denied, gated, duplicate, invalid).
	ObservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_observations_total",
		Help: "Total number of URL observations by classification outcome",
	}, []string{"outcome"})

	// ParseTotal tracks manifest parse attempts by kind and result.
	ParseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_parse_total",
		Help: "Total number of manifest parse attempts by kind and result",
	}, []string{"kind", "result"})

	// ParseDuration tracks the fetch+parse latency per manifest kind.
	ParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamsift_parse_duration_seconds",
		Help:    "Time from dequeue to parsed registry entry",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	// QueueDepth tracks the number of items waiting for a pipeline worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamsift_pipeline_queue_depth",
		Help: "Number of observations waiting for a pipeline worker",
	})

	// RegistryItems tracks registered media items by state.
	RegistryItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamsift_registry_items",
		Help: "Number of registered media items by state",
	}, []string{"state"})

	// FetchRetriesTotal tracks manifest fetch retries by reason.
	FetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_fetch_retries_total",
		Help: "Total number of manifest fetch retries by reason",
	}, []string{"reason"})

	// CacheOpsTotal tracks probe/thumbnail cache operations by tier and result.
	CacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_cache_ops_total",
		Help: "Total number of cache operations by tier and result",
	}, []string{"tier", "result"})

	// WorkerRecoveriesTotal counts pipeline worker panics that were
	// recovered. Anything above zero deserves a look at the logs.
	WorkerRecoveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamsift_pipeline_recoveries_total",
		Help: "Total number of recovered pipeline worker panics",
	})

	// NotifierDroppedTotal counts coalesced change notices dropped because a
	// subscriber buffer was full.
	NotifierDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_notifier_dropped_total",
		Help: "Total number of change notices dropped by full subscribers",
	}, []string{"topic"})
)

// IncObservation records a classification outcome for one observed URL.
func IncObservation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	ObservationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveParse records one parse attempt with its latency.
func ObserveParse(kind string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ParseTotal.WithLabelValues(kind, result).Inc()
	ParseDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncCacheOp records a cache hit or miss for the given tier.
func IncCacheOp(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheOpsTotal.WithLabelValues(tier, result).Inc()
}
