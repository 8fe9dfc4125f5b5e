// SPDX-License-Identifier: MIT

package transport

import "time"

// Request/response commands understood by the companion.
const (
	CommandPing           = "ping"
	CommandProbe          = "probe"
	CommandThumbnail      = "thumbnail"
	CommandSaveDialog     = "dialog.save"
	CommandDownloadStart  = "download.start"
	CommandDownloadCancel = "download.cancel"
	CommandVersion        = "version"
)

// Unsolicited event commands emitted by the companion.
const (
	EventDownloadProgress = "download.progress"
	EventDownloadSuccess  = "download.success"
	EventDownloadError    = "download.error"
	EventDownloadCanceled = "download.canceled"
)

// Timeouts is the per-command-class safety deadline table. The deadlines run
// on this side of the channel, independent of whatever timeouts the
// companion applies itself.
type Timeouts struct {
	// Short covers quick request/response commands (ping, probe,
	// thumbnail, version, download.cancel).
	Short time.Duration
	// Medium covers commands that wait on user interaction (dialog.save).
	Medium time.Duration
	// Long covers commands whose reply arrives only once a download
	// finishes (download.start).
	Long time.Duration
}

// DefaultTimeouts returns the class table used when the configuration does
// not override it.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Short:  10 * time.Second,
		Medium: 2 * time.Minute,
		Long:   2 * time.Hour,
	}
}

// For returns the safety timeout for command.
func (t Timeouts) For(command string) time.Duration {
	switch command {
	case CommandDownloadStart:
		return t.Long
	case CommandSaveDialog:
		return t.Medium
	default:
		return t.Short
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Short <= 0 {
		t.Short = d.Short
	}
	if t.Medium <= 0 {
		t.Medium = d.Medium
	}
	if t.Long <= 0 {
		t.Long = d.Long
	}
	return t
}
