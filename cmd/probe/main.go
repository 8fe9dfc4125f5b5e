// SPDX-License-Identifier: MIT

// probe runs diagnostics against the companion channel and prints a JSON
// report. It spawns the companion binary exactly the way the daemon does,
// walks the request/response surface, and optionally probes a media URL
// through it.
//
// Usage:
//
//	probe [-bin streamsift-companion] [-url https://host/clip.mp4] [-thumbnail]
//
// Exit codes:
//   - 0: every check passed
//   - 1: at least one check failed
//   - 2: usage error
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/streamsift/streamsift/internal/companion"
	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/transport"
	"github.com/streamsift/streamsift/internal/version"
)

type report struct {
	Timestamp    time.Time     `json:"timestamp"`
	CompanionBin string        `json:"companion_bin"`
	Checks       []checkResult `json:"checks"`
}

type checkResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	LatencyMs int64  `json:"latency_ms"`
	Details   string `json:"details,omitempty"`
}

// diagnosis describes one probe run. Dialer is normally the process
// supervisor for Bin; tests substitute an in-memory channel.
type diagnosis struct {
	Bin       string
	URL       string
	Thumbnail bool
	Timeout   time.Duration
	Dialer    transport.Dialer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		bin         string
		mediaURL    string
		thumbnail   bool
		timeout     time.Duration
		verbose     bool
		showVersion bool
	)
	fs.StringVar(&bin, "bin", config.ParseString("SIFT_COMPANION_BIN", config.Defaults().CompanionBin), "companion binary to spawn")
	fs.StringVar(&mediaURL, "url", "", "media URL to probe through the companion")
	fs.BoolVar(&thumbnail, "thumbnail", false, "also capture a thumbnail of -url")
	fs.DurationVar(&timeout, "timeout", config.Defaults().RequestTimeout, "per-check timeout")
	fs.BoolVar(&verbose, "verbose", false, "log channel internals to stderr")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Version)
		return 0
	}

	if thumbnail && mediaURL == "" {
		fmt.Fprintln(stderr, "error: -thumbnail requires -url")
		return 2
	}

	level := "error"
	if verbose {
		level = "debug"
	}
	log.Configure(log.Config{Level: level, Output: stderr, Service: "streamsift-probe", Version: version.Version})

	return diagnose(diagnosis{
		Bin:       bin,
		URL:       mediaURL,
		Thumbnail: thumbnail,
		Timeout:   timeout,
		Dialer:    companion.NewProcessDialer(bin),
	}, stdout, stderr)
}

func diagnose(d diagnosis, stdout, stderr io.Writer) int {
	rep := report{
		Timestamp:    time.Now(),
		CompanionBin: d.Bin,
		Checks:       make([]checkResult, 0),
	}

	tr := transport.NewClient(d.Dialer, transport.Options{
		Timeouts:      transport.Timeouts{Short: d.Timeout},
		ReconnectBase: 200 * time.Millisecond,
		ReconnectMax:  time.Second,
	})
	comp := companion.NewClient(tr)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = tr.Run(ctx)
	}()
	defer func() {
		cancel()
		_ = tr.Close()
		<-runDone
	}()

	check := func(name string, fn func(ctx context.Context) (string, error)) bool {
		cctx, ccancel := context.WithTimeout(ctx, d.Timeout)
		start := time.Now()
		details, err := fn(cctx)
		ccancel()
		latency := time.Since(start).Milliseconds()

		res := checkResult{Name: name, Passed: err == nil, LatencyMs: latency, Details: details}
		if err != nil {
			res.Details = err.Error()
			fmt.Fprintf(stderr, "FAIL: %s (%v)\n", name, err)
		} else {
			fmt.Fprintf(stderr, "PASS: %s (%dms)\n", name, latency)
		}
		rep.Checks = append(rep.Checks, res)
		return res.Passed
	}

	up := check("Companion_Start", func(cctx context.Context) (string, error) {
		tick := time.NewTicker(25 * time.Millisecond)
		defer tick.Stop()
		for {
			if st := tr.State(); st.Usable() {
				return "state " + st.String(), nil
			}
			select {
			case <-cctx.Done():
				return "", fmt.Errorf("channel never became usable, state %s", tr.State())
			case <-tick.C:
			}
		}
	})

	if up {
		check("Companion_Ping", func(cctx context.Context) (string, error) {
			return "", comp.Ping(cctx)
		})

		check("Companion_Version", func(cctx context.Context) (string, error) {
			v, err := comp.Version(cctx)
			if err != nil {
				return "", err
			}
			return "companion " + v, nil
		})

		if d.URL != "" {
			check("Media_Probe", func(cctx context.Context) (string, error) {
				res, err := comp.Probe(cctx, d.URL, nil)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("container=%s video=%t audio=%t subtitles=%t duration=%.1fs size=%d",
					res.Container, res.HasVideo, res.HasAudio, res.HasSubtitles, res.DurationSecs, res.SizeBytes), nil
			})

			if d.Thumbnail {
				check("Thumbnail_Capture", func(cctx context.Context) (string, error) {
					th, err := comp.Thumbnail(cctx, d.URL, nil)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("%s, %d bytes", th.MIME, len(th.Data)), nil
				})
			}
		}
	} else {
		fmt.Fprintln(stderr, "SKIP: channel checks, companion never came up")
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(stderr, "error: encode report: %v\n", err)
		return 1
	}

	for _, c := range rep.Checks {
		if !c.Passed {
			return 1
		}
	}
	return 0
}
