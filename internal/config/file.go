// SPDX-License-Identifier: MIT

package config

// FileConfig mirrors the YAML settings file. All fields are optional; unset
// fields keep their default or environment-provided value. Durations are Go
// duration strings (e.g. "10s").
type FileConfig struct {
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	API       APIFileConfig       `yaml:"api,omitempty"`
	Classify  ClassifyFileConfig  `yaml:"classify,omitempty"`
	Pipeline  PipelineFileConfig  `yaml:"pipeline,omitempty"`
	Fetch     FetchFileConfig     `yaml:"fetch,omitempty"`
	Companion CompanionFileConfig `yaml:"companion,omitempty"`
	Downloads DownloadsFileConfig `yaml:"downloads,omitempty"`
	Notify    NotifyFileConfig    `yaml:"notify,omitempty"`
	Cache     CacheFileConfig     `yaml:"cache,omitempty"`
	Store     StoreFileConfig     `yaml:"store,omitempty"`
	Library   LibraryFileConfig   `yaml:"library,omitempty"`
	Metrics   MetricsFileConfig   `yaml:"metrics,omitempty"`
	Tracing   TracingFileConfig   `yaml:"tracing,omitempty"`
}

// APIFileConfig holds API server settings.
type APIFileConfig struct {
	ListenAddr string `yaml:"listenAddr,omitempty"`
	Token      string `yaml:"token,omitempty"`
}

// ClassifyFileConfig holds classifier tunables.
type ClassifyFileConfig struct {
	MinDirectSizeBytes *int64   `yaml:"minDirectSizeBytes,omitempty"`
	CoverageThreshold  *float64 `yaml:"coverageThreshold,omitempty"`
}

// PipelineFileConfig holds processing pipeline tunables.
type PipelineFileConfig struct {
	WorkerPoolSize *int  `yaml:"workerPoolSize,omitempty"`
	AutoThumbnails *bool `yaml:"autoThumbnails,omitempty"`
}

// FetchFileConfig holds manifest fetcher tunables.
type FetchFileConfig struct {
	Timeout           string   `yaml:"timeout,omitempty"`
	Retries           *int     `yaml:"retries,omitempty"`
	Backoff           string   `yaml:"backoff,omitempty"`
	MaxBodyBytes      *int64   `yaml:"maxBodyBytes,omitempty"`
	AllowPrivateHosts *bool    `yaml:"allowPrivateHosts,omitempty"`
	AllowedHosts      []string `yaml:"allowedHosts,omitempty"`
}

// CompanionFileConfig holds companion process settings.
type CompanionFileConfig struct {
	Bin            string `yaml:"bin,omitempty"`
	ReconnectBase  string `yaml:"reconnectBase,omitempty"`
	ReconnectMax   string `yaml:"reconnectMax,omitempty"`
	RequestTimeout string `yaml:"requestTimeout,omitempty"`
}

// DownloadsFileConfig holds download manager settings.
type DownloadsFileConfig struct {
	MaxConcurrent *int   `yaml:"maxConcurrent,omitempty"`
	Dir           string `yaml:"dir,omitempty"`
}

// NotifyFileConfig holds change notification settings.
type NotifyFileConfig struct {
	Window string `yaml:"window,omitempty"`
}

// CacheFileConfig holds probe cache settings.
type CacheFileConfig struct {
	Backend   string `yaml:"backend,omitempty"` // "memory", "redis" or "none"
	RedisAddr string `yaml:"redisAddr,omitempty"`
}

// StoreFileConfig holds persistent store settings.
type StoreFileConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// LibraryFileConfig holds download history settings.
type LibraryFileConfig struct {
	Path string `yaml:"path,omitempty"`
}

// MetricsFileConfig holds metrics endpoint settings.
type MetricsFileConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

// TracingFileConfig holds OTLP trace exporter settings.
type TracingFileConfig struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	Environment string   `yaml:"environment,omitempty"`
	Exporter    string   `yaml:"exporter,omitempty"` // "grpc" or "http"
	Endpoint    string   `yaml:"endpoint,omitempty"`
	SampleRate  *float64 `yaml:"sampleRate,omitempty"`
}
