// SPDX-License-Identifier: MIT

// Package daemon owns the process lifecycle: it starts every long-running
// subsystem, applies configuration reloads, and tears the process down in
// dependency order when the run context is canceled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/log"
)

const (
	serviceName = "streamsift"

	// serverShutdownTimeout bounds the drain of each HTTP listener.
	serverShutdownTimeout = 15 * time.Second

	readTimeout    = 15 * time.Second
	writeTimeout   = 30 * time.Second
	idleTimeout    = 60 * time.Second
	maxHeaderBytes = 1 << 20

	// storeGCInterval paces badger value-log GC. GC only reclaims disk,
	// so the cadence is a cost knob, not a correctness one.
	storeGCInterval = 10 * time.Minute

	// libraryRetention caps how long finished downloads stay queryable.
	libraryRetention     = 90 * 24 * time.Hour
	libraryPruneInterval = 12 * time.Hour

	telemetryFlushTimeout = 5 * time.Second
)

// App runs the daemon. Construct with New, then call Run exactly once.
type App struct {
	deps         Deps
	logger       zerolog.Logger
	reloadSignal os.Signal
}

// New validates deps and builds the App.
func New(deps Deps) (*App, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	return &App{
		deps:         deps,
		logger:       deps.Logger,
		reloadSignal: syscall.SIGHUP,
	}, nil
}

// Run starts every subsystem and blocks until ctx is canceled or one of
// them fails. Teardown is ordered: the HTTP listeners and the pipeline
// drain first, the companion transport stays up until the last in-flight
// worker is done, and the stores close only after everything has stopped.
func (a *App) Run(ctx context.Context) error {
	defer a.closeResources()

	cfg := a.deps.Settings.Current()

	g, gctx := errgroup.WithContext(ctx)

	// The config watcher is best-effort: an unwatchable file must not keep
	// the daemon from starting.
	if err := a.deps.Settings.StartWatcher(gctx); err != nil {
		a.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "config.watcher_start_failed").
			Msg("config watcher not running")
	}

	// SIGHUP triggers a manual reload.
	g.Go(func() error {
		a.reloadLoop(gctx)
		return nil
	})

	// Every successful reload is pushed into the subsystems that hold
	// derived state. Everything else reads the holder per call.
	applyCh := make(chan config.Settings, 1)
	a.deps.Settings.RegisterListener(applyCh)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case next := <-applyCh:
				a.applySettings(next)
			}
		}
	})

	// producers counts the goroutines that may still talk to the
	// companion. The transport must outlive them so draining workers can
	// finish their probes.
	var producers sync.WaitGroup

	producers.Add(1)
	g.Go(func() error {
		defer producers.Done()
		return a.deps.Pipeline.Run(gctx)
	})

	if a.deps.Downloads != nil && a.deps.DownloadEvents != nil {
		producers.Add(1)
		g.Go(func() error {
			defer producers.Done()
			return ignoreCanceled(a.deps.Downloads.Run(gctx, a.deps.DownloadEvents.C()))
		})
	}

	if a.deps.Transport != nil {
		// Detached from gctx: the transport stops when the producers are
		// drained, not when the group context falls.
		transportCtx, stopTransport := context.WithCancel(context.WithoutCancel(gctx))
		g.Go(func() error {
			defer stopTransport()
			return ignoreCanceled(a.deps.Transport.Run(transportCtx))
		})
		g.Go(func() error {
			<-gctx.Done()
			producers.Wait()
			stopTransport()
			return nil
		})
	}

	if a.deps.Exporter != nil && a.deps.Notifier != nil {
		// Sweep before subscribing so artifacts from contexts of a
		// previous run disappear even if they never change again.
		if err := a.deps.Exporter.Sweep(); err != nil {
			a.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "export.sweep_failed").
				Msg("stale artifact sweep failed")
		}
		sub := a.deps.Notifier.Subscribe(0)
		g.Go(func() error {
			defer sub.Close()
			return a.deps.Exporter.Run(gctx, sub.C())
		})
	}

	if a.deps.Store != nil {
		g.Go(func() error {
			a.storeGCLoop(gctx)
			return nil
		})
	}

	if a.deps.Library != nil {
		g.Go(func() error {
			a.libraryPruneLoop(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return a.serve(gctx, "api", &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           a.deps.APIHandler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout / 2,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			MaxHeaderBytes:    maxHeaderBytes,
		})
	})

	if cfg.MetricsEnabled && cfg.MetricsAddr != "" && a.deps.MetricsHandler != nil {
		g.Go(func() error {
			return a.serve(gctx, "metrics", &http.Server{
				Addr:              cfg.MetricsAddr,
				Handler:           a.deps.MetricsHandler,
				ReadHeaderTimeout: readTimeout / 2,
			})
		})
	}

	return g.Wait()
}

// serve runs one HTTP listener until ctx is canceled, then drains it on a
// bounded context detached from the canceled parent.
func (a *App) serve(ctx context.Context, name string, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", srv.Addr).
			Str(log.FieldEvent, name+".listening").
			Msg(name + " server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", name, err)
	}
	a.logger.Info().
		Str(log.FieldEvent, name+".stopped").
		Msg(name + " server stopped")
	return nil
}

func (a *App) reloadLoop(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, a.reloadSignal)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			a.logger.Info().
				Str(log.FieldEvent, "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("reload signal received")
			if err := a.deps.Settings.Reload(ctx); err != nil {
				a.logger.Warn().
					Err(err).
					Str(log.FieldEvent, "config.reload_failed").
					Msg("config reload failed")
			}
		}
	}
}

// applySettings pushes a reloaded configuration into the subsystems that
// cannot read the holder on every call. The workers pick the new limits up
// on their next dispatch.
func (a *App) applySettings(cfg config.Settings) {
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: serviceName,
		Version: cfg.Version,
	})
	a.deps.Pipeline.Resize(cfg.WorkerPoolSize)

	a.logger.Info().
		Str(log.FieldEvent, "config.applied").
		Int("workers", cfg.WorkerPoolSize).
		Str("log_level", cfg.LogLevel).
		Msg("configuration applied")
}

func (a *App) storeGCLoop(ctx context.Context) {
	ticker := time.NewTicker(storeGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.deps.Store.RunGC(); err != nil {
				a.logger.Warn().
					Err(err).
					Str(log.FieldEvent, "store.gc_failed").
					Msg("store GC failed")
			}
		}
	}
}

func (a *App) libraryPruneLoop(ctx context.Context) {
	ticker := time.NewTicker(libraryPruneInterval)
	defer ticker.Stop()

	for {
		a.pruneLibrary(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) pruneLibrary(ctx context.Context) {
	removed, err := a.deps.Library.Prune(ctx, libraryRetention)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "library.prune_failed").
				Msg("history prune failed")
		}
		return
	}
	if removed > 0 {
		a.logger.Info().
			Int64("removed", removed).
			Str(log.FieldEvent, "library.pruned").
			Msg("pruned download history")
	}
}

// closeResources releases everything with on-disk or background state. It
// runs after all runtime goroutines have returned, so nothing writes to a
// closed handle.
func (a *App) closeResources() {
	if a.deps.Notifier != nil {
		a.deps.Notifier.Close()
	}
	if a.deps.DownloadEvents != nil {
		a.deps.DownloadEvents.Close()
	}
	if a.deps.Library != nil {
		if err := a.deps.Library.Close(); err != nil {
			a.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "library.close_failed").
				Msg("history close failed")
		}
	}
	if a.deps.Store != nil {
		if err := a.deps.Store.Close(); err != nil {
			a.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "store.close_failed").
				Msg("store close failed")
		}
	}
	if a.deps.Telemetry != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := a.deps.Telemetry.Shutdown(flushCtx); err != nil {
			a.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "telemetry.shutdown_failed").
				Msg("telemetry flush failed")
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
