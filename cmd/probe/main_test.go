// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsift/streamsift/internal/transport"
	"github.com/streamsift/streamsift/internal/version"
)

// serveCompanion answers framed requests on the far end of a pipe with
// canned replies for every command the probe exercises.
func serveCompanion(conn net.Conn) {
	go func() {
		defer func() { _ = conn.Close() }()
		for {
			frame, err := transport.ReadFrame(conn)
			if err != nil {
				return
			}
			var req map[string]any
			if err := json.Unmarshal(frame, &req); err != nil {
				continue
			}
			reply := map[string]any{"id": req["id"], "success": true}
			switch req["command"] {
			case transport.CommandVersion:
				reply["version"] = "9.9.9"
			case transport.CommandProbe:
				reply["container"] = "mp4"
				reply["hasVideo"] = true
				reply["hasAudio"] = true
				reply["durationSeconds"] = 12.5
				reply["sizeBytes"] = 2048
			case transport.CommandThumbnail:
				reply["mime"] = "image/jpeg"
				reply["data"] = []byte{0xff, 0xd8, 0xff}
			}
			b, err := json.Marshal(reply)
			if err != nil {
				return
			}
			if err := transport.WriteFrame(conn, b); err != nil {
				return
			}
		}
	}()
}

func pipeDialer() transport.DialerFunc {
	return func(_ context.Context) (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		serveCompanion(server)
		return client, nil
	}
}

func TestDiagnose_AllChecksPass(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := diagnose(diagnosis{
		Bin:       "fake-companion",
		URL:       "https://media.example/clip.mp4",
		Thumbnail: true,
		Timeout:   2 * time.Second,
		Dialer:    pipeDialer(),
	}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())

	var rep report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	require.Len(t, rep.Checks, 5)

	names := make([]string, 0, len(rep.Checks))
	for _, c := range rep.Checks {
		assert.True(t, c.Passed, c.Name)
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Companion_Start", "Companion_Ping", "Companion_Version", "Media_Probe", "Thumbnail_Capture"}, names)
	assert.Equal(t, "companion 9.9.9", rep.Checks[2].Details)
	assert.Contains(t, rep.Checks[3].Details, "container=mp4")
	assert.Contains(t, stderr.String(), "PASS: Media_Probe")
}

func TestDiagnose_SkipsChannelChecksWhenCompanionNeverComesUp(t *testing.T) {
	dead := transport.DialerFunc(func(_ context.Context) (io.ReadWriteCloser, error) {
		return nil, errors.New("no companion installed")
	})

	var stdout, stderr bytes.Buffer
	code := diagnose(diagnosis{Bin: "missing", Timeout: 300 * time.Millisecond, Dialer: dead}, &stdout, &stderr)

	require.Equal(t, 1, code)

	var rep report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	require.Len(t, rep.Checks, 1)
	assert.Equal(t, "Companion_Start", rep.Checks[0].Name)
	assert.False(t, rep.Checks[0].Passed)
	assert.Contains(t, stderr.String(), "SKIP")
}

func TestRun_ThumbnailRequiresURL(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-thumbnail"}, &stdout, &stderr)

	require.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "-thumbnail requires -url")
}

func TestRun_VersionFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-version"}, &stdout, &stderr)

	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), version.Version)
}
