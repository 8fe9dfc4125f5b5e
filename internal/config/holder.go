// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/streamsift/streamsift/internal/log"
)

// Holder holds settings with atomic reloading capability. It provides
// thread-safe access and supports hot reloading from file or manual trigger
// (SIGHUP, API).
type Holder struct {
	mu         sync.RWMutex
	current    Settings
	loader     *Loader
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- Settings
}

// NewHolder creates a settings holder with the given initial value.
func NewHolder(initial Settings, loader *Loader, configPath string) *Holder {
	return &Holder{
		current:         initial,
		loader:          loader,
		configPath:      configPath,
		logger:          xglog.WithComponent("config"),
		reloadListeners: make([]chan<- Settings, 0),
	}
}

// Current returns the current settings (thread-safe read).
func (h *Holder) Current() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads settings from file and validates them. If loading or
// validation fails, the old settings are kept and an error is returned, so a
// reload is always all-or-nothing.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded successfully")

	return nil
}

// StartWatcher starts watching the settings file for changes.
// If configPath is empty, this is a no-op (settings come from ENV only).
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	h.watcher = watcher

	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str("path", h.configPath).
		Msg("watching config file for changes")

	go h.watchLoop(ctx)

	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	// Debounce to avoid multiple reloads for rapid successive writes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			if h.watcher != nil {
				_ = h.watcher.Close()
			}
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// Write and Create cover vim, nano and plain shell redirects
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().
					Str("event", "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str("event", "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the config watcher (if running).
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive reload notifications.
// The channel receives the new settings whenever a reload succeeds.
// The caller is responsible for closing the channel.
func (h *Holder) RegisterListener(ch chan<- Settings) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *Holder) notifyListeners(newCfg Settings) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(old, newCfg Settings) {
	if old.WorkerPoolSize != newCfg.WorkerPoolSize {
		h.logger.Info().
			Int("old", old.WorkerPoolSize).
			Int("new", newCfg.WorkerPoolSize).
			Msg("config changed: WorkerPoolSize")
	}
	if old.MaxConcurrentDownloads != newCfg.MaxConcurrentDownloads {
		h.logger.Info().
			Int("old", old.MaxConcurrentDownloads).
			Int("new", newCfg.MaxConcurrentDownloads).
			Msg("config changed: MaxConcurrentDownloads")
	}
	if old.MinDirectSizeBytes != newCfg.MinDirectSizeBytes {
		h.logger.Info().
			Int64("old", old.MinDirectSizeBytes).
			Int64("new", newCfg.MinDirectSizeBytes).
			Msg("config changed: MinDirectSizeBytes")
	}
	if old.CoverageThreshold != newCfg.CoverageThreshold {
		h.logger.Info().
			Float64("old", old.CoverageThreshold).
			Float64("new", newCfg.CoverageThreshold).
			Msg("config changed: CoverageThreshold")
	}
	if old.AutoThumbnails != newCfg.AutoThumbnails {
		h.logger.Info().
			Bool("old", old.AutoThumbnails).
			Bool("new", newCfg.AutoThumbnails).
			Msg("config changed: AutoThumbnails")
	}
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: LogLevel")
	}
}
