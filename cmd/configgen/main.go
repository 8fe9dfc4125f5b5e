// SPDX-License-Identifier: MIT

// configgen emits a commented example configuration file populated with the
// daemon's defaults. Each key names the environment variable that overrides
// it, so the output doubles as the configuration reference.
//
// Usage:
//
//	configgen            # print to stdout
//	configgen -o data/config.yaml
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("configgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var out string
	var showVersion bool
	fs.StringVar(&out, "o", "", "write to file instead of stdout")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Version)
		return 0
	}

	b, err := render(config.Defaults())
	if err != nil {
		fmt.Fprintf(stderr, "configgen: %v\n", err)
		return 1
	}

	if out == "" {
		_, _ = stdout.Write(b)
		return 0
	}
	if err := os.WriteFile(out, b, 0o600); err != nil {
		fmt.Fprintf(stderr, "configgen: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", out)
	return 0
}

// render encodes cfg as a YAML document whose key set matches exactly what
// the strict loader accepts.
func render(cfg config.Settings) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(exampleConfig(cfg)); err != nil {
		return nil, fmt.Errorf("encode example config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode example config: %w", err)
	}
	return buf.Bytes(), nil
}

func exampleConfig(cfg config.Settings) *yaml.Node {
	root := mapping(
		key("dataDir", ""), str(cfg.DataDir, "SIFT_DATA_DIR, root for store, library and exports"),
		key("logLevel", ""), str(cfg.LogLevel, "SIFT_LOG_LEVEL"),

		key("api", "HTTP API consumed by the browser extension."), mapping(
			key("listenAddr", ""), str(cfg.ListenAddr, "SIFT_LISTEN"),
			key("token", ""), str(cfg.APIToken, "SIFT_API_TOKEN, empty leaves the API open to local callers"),
		),

		key("classify", "Sighting classification thresholds."), mapping(
			key("minDirectSizeBytes", ""), integer(cfg.MinDirectSizeBytes, "SIFT_MIN_DIRECT_SIZE"),
			key("coverageThreshold", ""), float(cfg.CoverageThreshold, "SIFT_COVERAGE_THRESHOLD"),
		),

		key("pipeline", ""), mapping(
			key("workerPoolSize", ""), integer(int64(cfg.WorkerPoolSize), "SIFT_WORKER_POOL_SIZE"),
			key("autoThumbnails", ""), boolean(cfg.AutoThumbnails, "SIFT_AUTO_THUMBNAILS"),
		),

		key("fetch", "Manifest fetching."), mapping(
			key("timeout", ""), duration(cfg.FetchTimeout, "SIFT_FETCH_TIMEOUT"),
			key("retries", ""), integer(int64(cfg.FetchRetries), "SIFT_FETCH_RETRIES"),
			key("backoff", ""), duration(cfg.FetchBackoff, "SIFT_FETCH_BACKOFF"),
			key("maxBodyBytes", ""), integer(cfg.FetchMaxBodyBytes, "SIFT_FETCH_MAX_BODY"),
			key("allowPrivateHosts", ""), boolean(cfg.AllowPrivateHosts, "SIFT_ALLOW_PRIVATE_HOSTS"),
			key("allowedHosts", ""), hostList(cfg.AllowedHosts, "SIFT_ALLOWED_HOSTS, comma separated; empty means any public host"),
		),

		key("companion", "Companion process and its channel."), mapping(
			key("bin", ""), str(cfg.CompanionBin, "SIFT_COMPANION_BIN"),
			key("reconnectBase", ""), duration(cfg.ReconnectBase, "SIFT_RECONNECT_BASE"),
			key("reconnectMax", ""), duration(cfg.ReconnectMax, "SIFT_RECONNECT_MAX"),
			key("requestTimeout", ""), duration(cfg.RequestTimeout, "SIFT_REQUEST_TIMEOUT"),
		),

		key("downloads", ""), mapping(
			key("maxConcurrent", ""), integer(int64(cfg.MaxConcurrentDownloads), "SIFT_MAX_CONCURRENT_DOWNLOADS"),
			key("dir", ""), str(cfg.DownloadDir, "SIFT_DOWNLOAD_DIR, empty asks through the companion save dialog"),
		),

		key("notify", ""), mapping(
			key("window", ""), duration(cfg.NotifyWindow, "SIFT_NOTIFY_WINDOW, change events coalesce within this window"),
		),

		key("cache", "Probe result cache."), mapping(
			key("backend", ""), str(cfg.CacheBackend, "SIFT_CACHE_BACKEND, memory, redis or none"),
			key("redisAddr", ""), str(cfg.RedisAddr, "SIFT_REDIS_ADDR"),
		),

		key("store", ""), mapping(
			key("dir", ""), str(cfg.StoreDir, "SIFT_STORE_DIR, default <dataDir>/store"),
		),

		key("library", ""), mapping(
			key("path", ""), str(cfg.LibraryPath, "SIFT_LIBRARY_PATH, default <dataDir>/library.db"),
		),

		key("metrics", ""), mapping(
			key("enabled", ""), boolean(cfg.MetricsEnabled, "SIFT_METRICS_ENABLED"),
			key("addr", ""), str(cfg.MetricsAddr, "SIFT_METRICS_ADDR"),
		),

		key("tracing", "OpenTelemetry traces, off unless enabled."), mapping(
			key("enabled", ""), boolean(cfg.TracingEnabled, "SIFT_TRACING_ENABLED"),
			key("environment", ""), str(cfg.Environment, "SIFT_ENVIRONMENT"),
			key("exporter", ""), str(cfg.TracingExporter, "SIFT_TRACING_EXPORTER, grpc or http"),
			key("endpoint", ""), str(cfg.TracingEndpoint, "SIFT_OTLP_ENDPOINT"),
			key("sampleRate", ""), float(cfg.TracingSampleRate, "SIFT_TRACING_SAMPLE_RATE"),
		),
	)
	root.HeadComment = "streamsift example configuration.\n" +
		"Every value shown is the default. The environment variable named\n" +
		"beside a key overrides both this file and the default."
	return root
}

func mapping(content ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Content: content}
}

func key(name, head string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name, HeadComment: head}
}

func scalar(tag, value, comment string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value, LineComment: comment}
}

func str(v, comment string) *yaml.Node {
	return scalar("!!str", v, comment)
}

func integer(v int64, comment string) *yaml.Node {
	return scalar("!!int", strconv.FormatInt(v, 10), comment)
}

func float(v float64, comment string) *yaml.Node {
	return scalar("!!float", strconv.FormatFloat(v, 'g', -1, 64), comment)
}

func boolean(v bool, comment string) *yaml.Node {
	return scalar("!!bool", strconv.FormatBool(v), comment)
}

func duration(d time.Duration, comment string) *yaml.Node {
	return scalar("!!str", d.String(), comment)
}

func hostList(hosts []string, comment string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle, LineComment: comment}
	for _, h := range hosts {
		n.Content = append(n.Content, str(h, ""))
	}
	return n
}
