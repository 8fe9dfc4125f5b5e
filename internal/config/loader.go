// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader resolves Settings with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader for the given settings file path. An empty path
// means ENV-only configuration.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the settings: defaults first, then the file (strict YAML),
// then environment overrides, then validation.
func (l *Loader) Load() (Settings, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fileCfg)
	}

	mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = filepath.Join(cfg.DataDir, "store")
	}
	if cfg.LibraryPath == "" {
		cfg.LibraryPath = filepath.Join(cfg.DataDir, "library.db")
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile parses a YAML settings file in strict mode. Unknown fields are an
// error to surface typos early.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFile(cfg *Settings, f *FileConfig) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.API.ListenAddr != "" {
		cfg.ListenAddr = f.API.ListenAddr
	}
	if f.API.Token != "" {
		cfg.APIToken = f.API.Token
	}
	if f.Classify.MinDirectSizeBytes != nil {
		cfg.MinDirectSizeBytes = *f.Classify.MinDirectSizeBytes
	}
	if f.Classify.CoverageThreshold != nil {
		cfg.CoverageThreshold = *f.Classify.CoverageThreshold
	}
	if f.Pipeline.WorkerPoolSize != nil {
		cfg.WorkerPoolSize = *f.Pipeline.WorkerPoolSize
	}
	if f.Pipeline.AutoThumbnails != nil {
		cfg.AutoThumbnails = *f.Pipeline.AutoThumbnails
	}
	mergeDuration(&cfg.FetchTimeout, f.Fetch.Timeout)
	if f.Fetch.Retries != nil {
		cfg.FetchRetries = *f.Fetch.Retries
	}
	mergeDuration(&cfg.FetchBackoff, f.Fetch.Backoff)
	if f.Fetch.MaxBodyBytes != nil {
		cfg.FetchMaxBodyBytes = *f.Fetch.MaxBodyBytes
	}
	if f.Fetch.AllowPrivateHosts != nil {
		cfg.AllowPrivateHosts = *f.Fetch.AllowPrivateHosts
	}
	if len(f.Fetch.AllowedHosts) > 0 {
		cfg.AllowedHosts = f.Fetch.AllowedHosts
	}
	if f.Companion.Bin != "" {
		cfg.CompanionBin = f.Companion.Bin
	}
	mergeDuration(&cfg.ReconnectBase, f.Companion.ReconnectBase)
	mergeDuration(&cfg.ReconnectMax, f.Companion.ReconnectMax)
	mergeDuration(&cfg.RequestTimeout, f.Companion.RequestTimeout)
	if f.Downloads.MaxConcurrent != nil {
		cfg.MaxConcurrentDownloads = *f.Downloads.MaxConcurrent
	}
	if f.Downloads.Dir != "" {
		cfg.DownloadDir = f.Downloads.Dir
	}
	mergeDuration(&cfg.NotifyWindow, f.Notify.Window)
	if f.Cache.Backend != "" {
		cfg.CacheBackend = f.Cache.Backend
	}
	if f.Cache.RedisAddr != "" {
		cfg.RedisAddr = f.Cache.RedisAddr
	}
	if f.Store.Dir != "" {
		cfg.StoreDir = f.Store.Dir
	}
	if f.Library.Path != "" {
		cfg.LibraryPath = f.Library.Path
	}
	if f.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *f.Metrics.Enabled
	}
	if f.Metrics.Addr != "" {
		cfg.MetricsAddr = f.Metrics.Addr
	}
	if f.Tracing.Enabled != nil {
		cfg.TracingEnabled = *f.Tracing.Enabled
	}
	if f.Tracing.Environment != "" {
		cfg.Environment = f.Tracing.Environment
	}
	if f.Tracing.Exporter != "" {
		cfg.TracingExporter = f.Tracing.Exporter
	}
	if f.Tracing.Endpoint != "" {
		cfg.TracingEndpoint = f.Tracing.Endpoint
	}
	if f.Tracing.SampleRate != nil {
		cfg.TracingSampleRate = *f.Tracing.SampleRate
	}
}

func mergeDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

func mergeEnv(cfg *Settings) {
	cfg.ListenAddr = ParseString("SIFT_LISTEN", cfg.ListenAddr)
	cfg.DataDir = ParseString("SIFT_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = ParseString("SIFT_LOG_LEVEL", cfg.LogLevel)
	cfg.APIToken = ParseString("SIFT_API_TOKEN", cfg.APIToken)
	cfg.MinDirectSizeBytes = ParseInt64("SIFT_MIN_DIRECT_SIZE", cfg.MinDirectSizeBytes)
	cfg.CoverageThreshold = ParseFloat("SIFT_COVERAGE_THRESHOLD", cfg.CoverageThreshold)
	cfg.WorkerPoolSize = ParseInt("SIFT_WORKER_POOL_SIZE", cfg.WorkerPoolSize)
	cfg.AutoThumbnails = ParseBool("SIFT_AUTO_THUMBNAILS", cfg.AutoThumbnails)
	cfg.FetchTimeout = ParseDuration("SIFT_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchRetries = ParseInt("SIFT_FETCH_RETRIES", cfg.FetchRetries)
	cfg.FetchBackoff = ParseDuration("SIFT_FETCH_BACKOFF", cfg.FetchBackoff)
	cfg.FetchMaxBodyBytes = ParseInt64("SIFT_FETCH_MAX_BODY", cfg.FetchMaxBodyBytes)
	cfg.AllowPrivateHosts = ParseBool("SIFT_ALLOW_PRIVATE_HOSTS", cfg.AllowPrivateHosts)
	cfg.AllowedHosts = ParseStringSlice("SIFT_ALLOWED_HOSTS", cfg.AllowedHosts)
	cfg.CompanionBin = ParseString("SIFT_COMPANION_BIN", cfg.CompanionBin)
	cfg.ReconnectBase = ParseDuration("SIFT_RECONNECT_BASE", cfg.ReconnectBase)
	cfg.ReconnectMax = ParseDuration("SIFT_RECONNECT_MAX", cfg.ReconnectMax)
	cfg.RequestTimeout = ParseDuration("SIFT_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxConcurrentDownloads = ParseInt("SIFT_MAX_CONCURRENT_DOWNLOADS", cfg.MaxConcurrentDownloads)
	cfg.DownloadDir = ParseString("SIFT_DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.NotifyWindow = ParseDuration("SIFT_NOTIFY_WINDOW", cfg.NotifyWindow)
	cfg.CacheBackend = ParseString("SIFT_CACHE_BACKEND", cfg.CacheBackend)
	cfg.RedisAddr = ParseString("SIFT_REDIS_ADDR", cfg.RedisAddr)
	cfg.StoreDir = ParseString("SIFT_STORE_DIR", cfg.StoreDir)
	cfg.LibraryPath = ParseString("SIFT_LIBRARY_PATH", cfg.LibraryPath)
	cfg.MetricsEnabled = ParseBool("SIFT_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("SIFT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.TracingEnabled = ParseBool("SIFT_TRACING_ENABLED", cfg.TracingEnabled)
	cfg.Environment = ParseString("SIFT_ENVIRONMENT", cfg.Environment)
	cfg.TracingExporter = ParseString("SIFT_TRACING_EXPORTER", cfg.TracingExporter)
	cfg.TracingEndpoint = ParseString("SIFT_OTLP_ENDPOINT", cfg.TracingEndpoint)
	cfg.TracingSampleRate = ParseFloat("SIFT_TRACING_SAMPLE_RATE", cfg.TracingSampleRate)
}
