// SPDX-License-Identifier: MIT

// Package download tracks downloads forwarded to the companion: a bounded
// set of running jobs, a FIFO queue behind the concurrency limit, and
// terminal-event driven cleanup.
package download

import (
	"time"

	"github.com/streamsift/streamsift/internal/transport"
)

// State of a tracked job. Jobs leave the manager on their terminal event;
// finished downloads live in the history library.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
)

func (s State) String() string { return string(s) }

// Outcome of a finished download.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeCanceled Outcome = "canceled"
)

func (o Outcome) String() string { return string(o) }

// outcomeForEvent maps a terminal event command to its outcome.
func outcomeForEvent(command string) (Outcome, bool) {
	switch command {
	case transport.EventDownloadSuccess:
		return OutcomeSuccess, true
	case transport.EventDownloadError:
		return OutcomeError, true
	case transport.EventDownloadCanceled:
		return OutcomeCanceled, true
	}
	return "", false
}

// Progress is the latest companion progress report for a job.
type Progress struct {
	Percent       float64   `json:"percent"`
	BytesReceived int64     `json:"bytesReceived"`
	TotalBytes    int64     `json:"totalBytes"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Request asks the manager to download one target URL. URL must already be
// normalized; it is the dedup key.
type Request struct {
	URL     string
	Title   string
	Path    string
	Headers map[string]string
}

// Job is one tracked download. Headers may carry page credentials and are
// never serialized.
type Job struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Title      string            `json:"title,omitempty"`
	Path       string            `json:"path,omitempty"`
	Headers    map[string]string `json:"-"`
	State      State             `json:"state"`
	Progress   Progress          `json:"progress"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
}

func (j *Job) clone() *Job {
	out := *j
	if j.Headers != nil {
		out.Headers = make(map[string]string, len(j.Headers))
		for k, v := range j.Headers {
			out.Headers[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	return &out
}

// Result describes a finished download for hooks and history.
type Result struct {
	Job        Job
	Outcome    Outcome
	Detail     string // target path on success, message on error
	FinishedAt time.Time
}
