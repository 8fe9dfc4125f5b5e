// SPDX-License-Identifier: MIT

// Package config loads and validates daemon settings with the precedence
// ENV > file > defaults, and supports hot reloading of the settings file.
package config

import "time"

// Settings is the resolved daemon configuration.
type Settings struct {
	// Core
	ListenAddr string // API listen address
	DataDir    string // root for store, library and export artifacts
	Version    string // populated from the binary
	LogLevel   string
	APIToken   string

	// Classification
	MinDirectSizeBytes int64   // direct media below this size is ignored
	CoverageThreshold  float64 // partial responses must cover at least this fraction

	// Pipeline
	WorkerPoolSize int
	AutoThumbnails bool

	// Manifest fetch
	FetchTimeout      time.Duration
	FetchRetries      int
	FetchBackoff      time.Duration // base delay, grows quadratically per attempt
	FetchMaxBodyBytes int64
	AllowPrivateHosts bool
	AllowedHosts      []string // optional allowlist; empty means any public host

	// Companion transport
	CompanionBin   string
	ReconnectBase  time.Duration
	ReconnectMax   time.Duration
	RequestTimeout time.Duration // default per-request safety timeout

	// Downloads
	MaxConcurrentDownloads int
	DownloadDir            string

	// Change notifications
	NotifyWindow time.Duration

	// Cache / store
	CacheBackend string // "memory", "redis" or "none"
	RedisAddr    string
	StoreDir     string // badger directory; derived from DataDir when empty
	LibraryPath  string // sqlite file; derived from DataDir when empty

	// Metrics
	MetricsEnabled bool
	MetricsAddr    string

	// Tracing
	Environment       string
	TracingEnabled    bool
	TracingExporter   string // "grpc" or "http"
	TracingEndpoint   string
	TracingSampleRate float64
}

// Defaults returns the built-in settings every deployment starts from.
func Defaults() Settings {
	return Settings{
		ListenAddr:             "127.0.0.1:8290",
		DataDir:                "data",
		LogLevel:               "info",
		MinDirectSizeBytes:     1 << 20, // 1 MiB
		CoverageThreshold:      0.95,
		WorkerPoolSize:         3,
		AutoThumbnails:         true,
		FetchTimeout:           15 * time.Second,
		FetchRetries:           3,
		FetchBackoff:           500 * time.Millisecond,
		FetchMaxBodyBytes:      10 << 20, // 10 MiB
		CompanionBin:           "streamsift-companion",
		ReconnectBase:          500 * time.Millisecond,
		ReconnectMax:           30 * time.Second,
		RequestTimeout:         10 * time.Second,
		MaxConcurrentDownloads: 2,
		NotifyWindow:           300 * time.Millisecond,
		CacheBackend:           "memory",
		MetricsEnabled:         true,
		MetricsAddr:            ":9290",
		Environment:            "production",
		TracingExporter:        "grpc",
		TracingEndpoint:        "localhost:4317",
		TracingSampleRate:      1.0,
	}
}
