// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/api"
	"github.com/streamsift/streamsift/internal/cache"
	"github.com/streamsift/streamsift/internal/companion"
	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/daemon"
	"github.com/streamsift/streamsift/internal/download"
	"github.com/streamsift/streamsift/internal/events"
	"github.com/streamsift/streamsift/internal/export"
	"github.com/streamsift/streamsift/internal/fetch"
	"github.com/streamsift/streamsift/internal/library"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/pipeline"
	"github.com/streamsift/streamsift/internal/registry"
	"github.com/streamsift/streamsift/internal/store"
	"github.com/streamsift/streamsift/internal/telemetry"
	"github.com/streamsift/streamsift/internal/transport"
)

// recordTimeout bounds the history write for one finished download.
const recordTimeout = 5 * time.Second

// buildDeps constructs every runtime subsystem from the loaded settings and
// wires them together. The returned deps are handed to daemon.New; their
// lifecycle is owned by the daemon App from then on.
func buildDeps(ctx context.Context, holder *config.Holder, logger zerolog.Logger, tp *telemetry.Provider) (daemon.Deps, error) {
	cfg := holder.Current()

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		return daemon.Deps{}, fmt.Errorf("open enrichment store: %w", err)
	}

	lib, err := library.NewStore(cfg.LibraryPath)
	if err != nil {
		return daemon.Deps{}, fmt.Errorf("open download history: %w", err)
	}

	probeCache, err := buildProbeCache(cfg, logger)
	if err != nil {
		return daemon.Deps{}, err
	}

	// Companion channel over the child process stdio. The transport keeps
	// reconnecting on its own; nothing here fails when the companion
	// binary is absent.
	tr := transport.NewClient(companion.NewProcessDialer(cfg.CompanionBin), transport.Options{
		Timeouts:      transport.Timeouts{Short: cfg.RequestTimeout},
		ReconnectBase: cfg.ReconnectBase,
		ReconnectMax:  cfg.ReconnectMax,
	})
	comp := companion.NewClient(tr)

	notifier := events.New(cfg.NotifyWindow)

	// The concurrency limit is read per dispatch so reloads apply without
	// a restart; every terminal job lands in the history.
	downloads := download.NewManager(comp, download.Options{
		Limit:      func() int { return holder.Current().MaxConcurrentDownloads },
		DefaultDir: func() string { return holder.Current().DownloadDir },
		OnTerminal: func(res download.Result) {
			recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
			defer cancel()
			if err := lib.Record(recCtx, res); err != nil {
				logger.Warn().
					Err(err).
					Str(log.FieldEvent, "library.record_failed").
					Msg("failed to record finished download")
			}
		},
		OnUpdate: func() { notifier.Mark(events.TopicDownloads, "") },
	})

	fetcher := fetch.New(fetch.Options{
		Timeout:      cfg.FetchTimeout,
		Retries:      cfg.FetchRetries,
		Backoff:      cfg.FetchBackoff,
		MaxBodyBytes: cfg.FetchMaxBodyBytes,
		Policy: fetch.Policy{
			AllowPrivateHosts: cfg.AllowPrivateHosts,
			AllowedHosts:      cfg.AllowedHosts,
		},
	})

	pipe, err := pipeline.New(pipeline.Options{
		Registries: registry.NewManager(),
		Fetcher:    fetcher,
		Prober:     comp,
		Enrich:     st,
		ProbeCache: probeCache,
		Settings:   holder.Current,
		OnUpdate:   func(contextID string) { notifier.Mark(events.TopicItems, contextID) },
	})
	if err != nil {
		return daemon.Deps{}, err
	}

	apiServer, err := api.New(api.Options{
		Settings:  holder.Current,
		Pipeline:  pipe,
		Downloads: downloads,
		History:   lib,
		Thumbs:    st,
		Companion: comp,
	})
	if err != nil {
		return daemon.Deps{}, err
	}

	return daemon.Deps{
		Logger:         logger,
		Settings:       holder,
		APIHandler:     apiServer.Handler(),
		MetricsHandler: promhttp.Handler(),
		Pipeline:       pipe,
		Transport:      tr,
		Downloads:      downloads,
		DownloadEvents: comp.DownloadEvents(),
		Notifier:       notifier,
		Exporter:       export.New(cfg.DataDir, pipe),
		Store:          st,
		Library:        lib,
		Telemetry:      tp,
	}, nil
}

// buildProbeCache selects the probe cache backend from the settings.
func buildProbeCache(cfg config.Settings, logger zerolog.Logger) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.RedisAddr}, logger)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return rc, nil
	case "none":
		return cache.NewNoOp(), nil
	default:
		return cache.NewMemory(time.Minute), nil
	}
}
