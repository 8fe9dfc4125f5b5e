// SPDX-License-Identifier: MIT

package config

import (
	"github.com/streamsift/streamsift/internal/validate"
)

// Validate checks a Settings value for internally consistent, safe values.
// It returns all violations at once so operators can fix them in one pass.
func Validate(cfg Settings) error {
	v := validate.New()

	v.ListenAddr("ListenAddr", cfg.ListenAddr)
	v.Directory("DataDir", cfg.DataDir, false)
	v.LogLevel("LogLevel", cfg.LogLevel)

	v.PositiveInt64("MinDirectSizeBytes", cfg.MinDirectSizeBytes)
	v.FloatRange("CoverageThreshold", cfg.CoverageThreshold, 0.5, 1.0)
	v.Range("WorkerPoolSize", cfg.WorkerPoolSize, 1, 16)

	v.PositiveDuration("FetchTimeout", cfg.FetchTimeout)
	v.Range("FetchRetries", cfg.FetchRetries, 0, 10)
	v.PositiveDuration("FetchBackoff", cfg.FetchBackoff)
	v.PositiveInt64("FetchMaxBodyBytes", cfg.FetchMaxBodyBytes)

	v.NotEmpty("CompanionBin", cfg.CompanionBin)
	v.PositiveDuration("ReconnectBase", cfg.ReconnectBase)
	v.PositiveDuration("ReconnectMax", cfg.ReconnectMax)
	if cfg.ReconnectMax < cfg.ReconnectBase {
		v.AddError("ReconnectMax", "must be >= ReconnectBase", cfg.ReconnectMax)
	}
	v.PositiveDuration("RequestTimeout", cfg.RequestTimeout)

	v.Range("MaxConcurrentDownloads", cfg.MaxConcurrentDownloads, 1, 16)
	v.PositiveDuration("NotifyWindow", cfg.NotifyWindow)

	v.OneOf("CacheBackend", cfg.CacheBackend, []string{"memory", "redis", "none"})
	if cfg.CacheBackend == "redis" {
		v.NotEmpty("RedisAddr", cfg.RedisAddr)
	}

	if cfg.MetricsEnabled {
		v.ListenAddr("MetricsAddr", cfg.MetricsAddr)
	}

	if cfg.TracingEnabled {
		v.OneOf("TracingExporter", cfg.TracingExporter, []string{"grpc", "http"})
		v.NotEmpty("TracingEndpoint", cfg.TracingEndpoint)
		v.FloatRange("TracingSampleRate", cfg.TracingSampleRate, 0.0, 1.0)
	}

	return v.Err()
}
