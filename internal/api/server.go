// SPDX-License-Identifier: MIT

// Package api is the daemon's HTTP surface: observation ingest for the
// browser extension, read access to discovered items, download control and
// operator endpoints. All responses are JSON except the playlist and
// thumbnail endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/download"
	"github.com/streamsift/streamsift/internal/library"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/pipeline"
	"github.com/streamsift/streamsift/internal/registry"
	"github.com/streamsift/streamsift/internal/store"
	"github.com/streamsift/streamsift/internal/transport"
)

const (
	// maxBodyBytes bounds JSON request bodies. Observation payloads carry a
	// few headers at most; anything larger is not a legitimate client.
	maxBodyBytes = 1 << 20

	// apiRequestsPerMinute limits operator endpoints per client IP.
	apiRequestsPerMinute = 600

	// observeRequestsPerMinute is deliberately higher: a media-heavy page
	// can emit bursts of observations.
	observeRequestsPerMinute = 3000
)

// Pipeline is the discovery side the API talks to. *pipeline.Pipeline
// satisfies it.
type Pipeline interface {
	Observe(ctx context.Context, obs pipeline.Observation) (*registry.MediaItem, error)
	Retry(contextID, key string) (*registry.MediaItem, error)
	Dismiss(contextID, key string) (*registry.MediaItem, error)
	CloseContext(contextID string) bool
	Contexts() []string
	Registry(contextID string) (*registry.Registry, bool)
	QueueDepth() int
}

// Downloads is the download-control side. *download.Manager satisfies it.
type Downloads interface {
	Start(req download.Request) (*download.Job, bool, error)
	Cancel(ctx context.Context, url string) error
	Jobs() []*download.Job
	Counts() (running, queued int)
}

// History serves finished downloads. *library.Store satisfies it.
type History interface {
	Recent(ctx context.Context, limit, offset int) ([]library.Entry, int, error)
}

// Thumbnails serves cached preview images. *store.Store satisfies it.
type Thumbnails interface {
	GetThumbnail(key string) (*store.Thumbnail, error)
}

// Companion reports the companion connection state. *companion.Client
// satisfies it.
type Companion interface {
	State() transport.State
}

// Options wires the server's collaborators. Settings is required and is read
// per request so reloads take effect without restarting the listener.
// Downloads, History, Thumbs and Companion are optional; their endpoints
// answer 503 while the collaborator is absent.
type Options struct {
	Settings  func() config.Settings
	Pipeline  Pipeline
	Downloads Downloads
	History   History
	Thumbs    Thumbnails
	Companion Companion
}

// Server carries the handler dependencies. Construct with New, expose with
// Handler.
type Server struct {
	settings  func() config.Settings
	pipeline  Pipeline
	downloads Downloads
	history   History
	thumbs    Thumbnails
	companion Companion
	logger    zerolog.Logger
	startedAt time.Time
}

// New validates the options and builds a Server.
func New(opts Options) (*Server, error) {
	if opts.Settings == nil {
		return nil, errMissing("Settings")
	}
	if opts.Pipeline == nil {
		return nil, errMissing("Pipeline")
	}
	return &Server{
		settings:  opts.Settings,
		pipeline:  opts.Pipeline,
		downloads: opts.Downloads,
		history:   opts.History,
		thumbs:    opts.Thumbs,
		companion: opts.Companion,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}, nil
}

// Handler builds the routed handler with the full middleware stack. The
// otelhttp wrapper is outermost so every request gets a server span.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverer)
	r.Use(requestID)
	r.Use(securityHeaders)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	if s.settings().MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Ingest path: authenticated, but with its own generous rate budget.
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(observeRequestsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Use(s.auth)
		r.Post("/api/observations", s.handleObserve)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(apiRequestsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Use(s.auth)

		r.Get("/api/status", s.handleStatus)

		r.Route("/api/contexts", func(r chi.Router) {
			r.Get("/", s.handleContexts)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", s.handleCloseContext)
				r.Get("/items", s.handleItems)
				r.Get("/playlist.m3u", s.handlePlaylist)
				r.Post("/items/{key}/dismiss", s.handleDismiss)
				r.Post("/items/{key}/retry", s.handleRetry)
			})
		})

		r.Get("/api/thumbnails", s.handleThumbnail)

		r.Route("/api/downloads", func(r chi.Router) {
			r.Get("/", s.handleDownloadList)
			r.Post("/", s.handleDownloadStart)
			r.Delete("/", s.handleDownloadCancel)
		})

		r.Get("/api/library", s.handleLibrary)
	})

	return otelhttp.NewHandler(r, "api")
}
