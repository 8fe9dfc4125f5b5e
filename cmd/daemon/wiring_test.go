// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/telemetry"
)

func testConfig(t *testing.T) config.Settings {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsEnabled = false
	cfg.DataDir = dir
	cfg.StoreDir = filepath.Join(dir, "store")
	cfg.LibraryPath = filepath.Join(dir, "library.db")
	cfg.Version = "test"
	return cfg
}

func TestBuildProbeCache_Backends(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("memory is the default", func(t *testing.T) {
		cfg := config.Defaults()
		c, err := buildProbeCache(cfg, logger)
		require.NoError(t, err)
		c.Set("k", []byte("v"), time.Minute)
		got, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", string(got))
	})

	t.Run("none stores nothing", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.CacheBackend = "none"
		c, err := buildProbeCache(cfg, logger)
		require.NoError(t, err)
		c.Set("k", []byte("v"), time.Minute)
		_, ok := c.Get("k")
		assert.False(t, ok)
	})

	t.Run("redis connects eagerly", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		defer mr.Close()

		cfg := config.Defaults()
		cfg.CacheBackend = "redis"
		cfg.RedisAddr = mr.Addr()
		c, err := buildProbeCache(cfg, logger)
		require.NoError(t, err)
		c.Set("k", []byte("v"), time.Minute)
		got, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", string(got))
	})

	t.Run("unreachable redis fails construction", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.CacheBackend = "redis"
		cfg.RedisAddr = "127.0.0.1:1"
		_, err := buildProbeCache(cfg, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis cache")
	})
}

func TestBuildDeps_WiresEverything(t *testing.T) {
	cfg := testConfig(t)
	holder := config.NewHolder(cfg, config.NewLoader("", "test"), "")

	tp, err := telemetry.NewProvider(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	deps, err := buildDeps(context.Background(), holder, zerolog.Nop(), tp)
	require.NoError(t, err)
	t.Cleanup(func() {
		deps.Notifier.Close()
		deps.DownloadEvents.Close()
		require.NoError(t, deps.Library.Close())
		require.NoError(t, deps.Store.Close())
	})

	assert.NotNil(t, deps.APIHandler)
	assert.NotNil(t, deps.MetricsHandler)
	assert.NotNil(t, deps.Pipeline)
	assert.NotNil(t, deps.Transport)
	assert.NotNil(t, deps.Downloads)
	assert.NotNil(t, deps.Exporter)
	require.NoError(t, deps.Validate())

	// The download limit closure follows the holder, not a snapshot.
	assert.Equal(t, cfg.MaxConcurrentDownloads, holder.Current().MaxConcurrentDownloads)
}
