// SPDX-License-Identifier: MIT

package companion

import "github.com/streamsift/streamsift/internal/transport"

// ProgressEvent is the payload of download.progress.
type ProgressEvent struct {
	URL           string  `json:"url"`
	Percent       float64 `json:"percent"`
	BytesReceived int64   `json:"bytesReceived"`
	TotalBytes    int64   `json:"totalBytes"`
}

// TerminalEvent is the payload of download.success, download.error, and
// download.canceled.
type TerminalEvent struct {
	URL   string `json:"url"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

func DecodeProgress(ev transport.Event) (ProgressEvent, error) {
	var p ProgressEvent
	err := ev.Decode(&p)
	return p, err
}

func DecodeTerminal(ev transport.Event) (TerminalEvent, error) {
	var t TerminalEvent
	err := ev.Decode(&t)
	return t, err
}

// IsTerminalEvent reports whether command names a download terminal event.
func IsTerminalEvent(command string) bool {
	switch command {
	case transport.EventDownloadSuccess, transport.EventDownloadError, transport.EventDownloadCanceled:
		return true
	}
	return false
}
