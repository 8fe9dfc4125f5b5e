// SPDX-License-Identifier: MIT

// Command daemon runs the streamsift daemon: it ingests media sightings
// from the browser extension, classifies and enriches them, and serves the
// results over a local HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/daemon"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/telemetry"
	"github.com/streamsift/streamsift/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamsift %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the real configuration is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "streamsift",
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	explicitPath := strings.TrimSpace(*configPath)
	effectivePath := resolveConfigPath(explicitPath)

	loader := config.NewLoader(effectivePath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	// Re-configure with the loaded settings.
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "streamsift",
		Version: cfg.Version,
	})

	switch {
	case explicitPath != "":
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "file").
			Str("path", explicitPath).
			Msg("loaded configuration from file")
	case effectivePath != "":
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "file(auto)").
			Str("path", effectivePath).
			Msg("loaded configuration from file")
	default:
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.ListenAddr).
		Msg("starting streamsift")

	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Companion: %s", cfg.CompanionBin)
	logger.Info().Msgf("→ Workers: %d", cfg.WorkerPoolSize)
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().Msg("→ API token: NOT configured, API open to local callers. Set SIFT_API_TOKEN to restrict access.")
	}
	if cfg.MetricsEnabled {
		logger.Info().Msgf("→ Metrics: %s", cfg.MetricsAddr)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    "streamsift",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		Exporter:       cfg.TracingExporter,
		Endpoint:       cfg.TracingEndpoint,
		SampleRate:     cfg.TracingSampleRate,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "telemetry.init_failed").
			Msg("failed to initialise tracing")
	}

	// The holder path falls back to the data dir so a config file written
	// later can be picked up with SIGHUP.
	holderPath := effectivePath
	if holderPath == "" {
		holderPath = filepath.Join(cfg.DataDir, "config.yaml")
	}
	holder := config.NewHolder(cfg, config.NewLoader(holderPath, version.Version), holderPath)

	deps, err := buildDeps(ctx, holder, logger, tp)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "startup.wiring_failed").
			Msg("failed to build runtime")
	}

	app, err := daemon.New(deps)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "startup.invalid_deps").
			Msg("failed to create daemon")
	}

	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "daemon.failed").
			Msg("daemon failed")
	}

	logger.Info().Msg("daemon exiting")
}

// resolveConfigPath prefers the explicit -config flag. Without one it picks
// up ${SIFT_DATA_DIR}/config.yaml when that file exists, so a file saved
// next to the data survives restarts without extra flags.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dataDir := strings.TrimSpace(config.ParseString("SIFT_DATA_DIR", "data"))
	if dataDir == "" {
		dataDir = "data"
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
