// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/download"
	"github.com/streamsift/streamsift/internal/events"
	"github.com/streamsift/streamsift/internal/export"
	"github.com/streamsift/streamsift/internal/library"
	"github.com/streamsift/streamsift/internal/pipeline"
	"github.com/streamsift/streamsift/internal/store"
	"github.com/streamsift/streamsift/internal/telemetry"
	"github.com/streamsift/streamsift/internal/transport"
)

// Deps contains everything the daemon App runs and tears down. Required
// fields are checked by Validate; optional fields switch whole subsystems
// off when nil.
type Deps struct {
	// Logger is the structured logger for lifecycle events.
	Logger zerolog.Logger

	// Settings carries the live configuration, its file watcher and the
	// reload fan-out. Required.
	Settings *config.Holder

	// APIHandler serves HTTP on the configured listen address. Required.
	APIHandler http.Handler

	// MetricsHandler serves the standalone metrics listener. Only used
	// when metrics are enabled in the settings.
	MetricsHandler http.Handler

	// Pipeline is the discovery pipeline. Required; the App drives its
	// lifecycle and resizes its pool on reload.
	Pipeline *pipeline.Pipeline

	// Transport is the companion channel. Optional; without it the daemon
	// classifies from manifests alone.
	Transport *transport.Client

	// Downloads consumes companion download events from DownloadEvents.
	// Both are optional and only act together.
	Downloads      *download.Manager
	DownloadEvents *transport.Subscription

	// Notifier coalesces change notices; Exporter mirrors registries to
	// disk from them. Both optional, only act together.
	Notifier *events.Notifier
	Exporter *export.Exporter

	// Store is the enrichment store. Optional; when present the App runs
	// its GC loop and closes it after all workers have stopped.
	Store *store.Store

	// Library is the download history. Optional; pruned periodically and
	// closed after all workers have stopped.
	Library *library.Store

	// Telemetry owns the tracer provider. Optional; flushed last.
	Telemetry *telemetry.Provider
}

// Validate checks that the required dependencies are present.
func (d *Deps) Validate() error {
	if d.Settings == nil {
		return ErrMissingSettings
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	if d.Pipeline == nil {
		return ErrMissingPipeline
	}
	return nil
}
