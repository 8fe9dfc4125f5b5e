// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExportItemsWritten tracks items in the most recent artifact export per
	// page context. Series are deleted when a context's artifacts are pruned.
	ExportItemsWritten = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamsift_export_items_written",
		Help: "Items written to playlist artifacts in the last export per context",
	}, []string{"context"})

	// ExportErrorsTotal tracks artifact write failures by artifact name.
	ExportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamsift_export_errors_total",
		Help: "Total number of artifact export failures by artifact",
	}, []string{"artifact"})
)
