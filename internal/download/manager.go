// SPDX-License-Identifier: MIT

package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/companion"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/metrics"
	"github.com/streamsift/streamsift/internal/transport"
)

// ErrUnknownDownload is returned by Cancel for a URL the manager is not
// tracking.
var ErrUnknownDownload = errors.New("download: unknown url")

const defaultLimit = 3

// starter forwards download control to the companion.
type starter interface {
	StartDownload(ctx context.Context, spec companion.DownloadSpec) error
	CancelDownload(ctx context.Context, url string) error
}

// Options configure a Manager. All fields are optional.
type Options struct {
	// Limit returns the live concurrency cap. Read on every dispatch so a
	// config reload takes effect without a restart.
	Limit func() int
	// DefaultDir returns the live target directory for requests that carry
	// no explicit path. Empty leaves the choice to the companion, which
	// asks the user through its save dialog.
	DefaultDir func() string
	// OnTerminal observes every finished job, in completion order.
	OnTerminal func(Result)
	// OnUpdate fires after any visible change to the job set.
	OnUpdate func()
}

// Manager owns the download queue. One job per target URL; starting an
// already-tracked URL returns the existing job. Jobs dispatch immediately
// while running count is below the limit and queue FIFO behind it.
//
// Completion is event driven: the companion's terminal events, not the
// download.start reply, remove jobs and promote the queue.
type Manager struct {
	starter    starter
	limit      func() int
	defaultDir func() string
	onTerminal func(Result)
	onUpdate   func()
	logger     zerolog.Logger

	mu      sync.Mutex
	lifeCtx context.Context
	jobs    map[string]*Job
	queue   []string
	running int
}

func NewManager(st starter, opts Options) *Manager {
	limit := opts.Limit
	if limit == nil {
		limit = func() int { return defaultLimit }
	}
	return &Manager{
		starter:    st,
		limit:      limit,
		defaultDir: opts.DefaultDir,
		onTerminal: opts.OnTerminal,
		onUpdate:   opts.OnUpdate,
		logger:     log.WithComponent("download"),
		jobs:       make(map[string]*Job),
	}
}

// Run consumes companion download events until ctx ends or the channel
// closes. Forwards started before Run use a background context.
func (m *Manager) Run(ctx context.Context, events <-chan transport.Event) error {
	m.mu.Lock()
	m.lifeCtx = ctx
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) handleEvent(ev transport.Event) {
	if outcome, ok := outcomeForEvent(ev.Command); ok {
		term, err := companion.DecodeTerminal(ev)
		if err != nil || term.URL == "" {
			m.logger.Warn().Err(err).Str("command", ev.Command).Msg("download.event.malformed")
			return
		}
		detail := term.Path
		if outcome == OutcomeError {
			detail = term.Error
		}
		m.finish(term.URL, "", outcome, detail)
		return
	}
	if ev.Command == transport.EventDownloadProgress {
		p, err := companion.DecodeProgress(ev)
		if err != nil || p.URL == "" {
			m.logger.Warn().Err(err).Msg("download.event.malformed")
			return
		}
		m.applyProgress(p)
	}
}

// Start tracks req and dispatches or queues it. The second return reports
// whether a new job was created; false means the URL was already tracked
// and the existing job is returned. A request without a path lands in the
// configured download directory; without one the companion asks the user.
func (m *Manager) Start(req Request) (*Job, bool, error) {
	if req.URL == "" {
		return nil, false, errors.New("download: empty url")
	}

	m.mu.Lock()
	if existing, ok := m.jobs[req.URL]; ok {
		out := existing.clone()
		m.mu.Unlock()
		return out, false, nil
	}

	path := req.Path
	if path == "" && req.Title != "" && m.defaultDir != nil {
		if dir := m.defaultDir(); dir != "" {
			path = filepath.Join(dir, req.Title)
		}
	}

	job := &Job{
		ID:         uuid.NewString(),
		URL:        req.URL,
		Title:      req.Title,
		Path:       path,
		Headers:    cloneHeaders(req.Headers),
		State:      StateQueued,
		EnqueuedAt: time.Now(),
	}
	m.jobs[req.URL] = job

	if m.running < m.limit() {
		m.dispatchLocked(job)
	} else {
		m.queue = append(m.queue, job.URL)
		metrics.DownloadQueueDepth.Set(float64(len(m.queue)))
		m.logger.Debug().Str("url", job.URL).Int("position", len(m.queue)).Msg("download.queued")
	}
	out := job.clone()
	m.mu.Unlock()

	m.notifyUpdate()
	return out, true, nil
}

// Cancel removes a queued job immediately or forwards a cancellation for a
// running one. A running job stays tracked until its terminal event arrives.
func (m *Manager) Cancel(ctx context.Context, url string) error {
	m.mu.Lock()
	job, ok := m.jobs[url]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownDownload
	}

	if job.State == StateQueued {
		delete(m.jobs, url)
		m.removeQueuedLocked(url)
		metrics.DownloadQueueDepth.Set(float64(len(m.queue)))
		result := Result{Job: *job.clone(), Outcome: OutcomeCanceled, FinishedAt: time.Now()}
		m.mu.Unlock()

		metrics.DownloadsTotal.WithLabelValues(string(OutcomeCanceled)).Inc()
		m.logger.Info().Str("url", url).Msg("download.canceled.queued")
		if m.onTerminal != nil {
			m.onTerminal(result)
		}
		m.notifyUpdate()
		return nil
	}
	m.mu.Unlock()

	if err := m.starter.CancelDownload(ctx, url); err != nil {
		return fmt.Errorf("cancel %s: %w", url, err)
	}
	return nil
}

// Jobs returns a snapshot: running jobs by start time, then the queue in
// FIFO order.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State == StateRunning {
			out = append(out, j.clone())
		}
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if a.StartedAt != nil && b.StartedAt != nil && !a.StartedAt.Equal(*b.StartedAt) {
			return a.StartedAt.Before(*b.StartedAt)
		}
		return a.URL < b.URL
	})
	for _, url := range m.queue {
		if j, ok := m.jobs[url]; ok {
			out = append(out, j.clone())
		}
	}
	return out
}

// Counts reports the running and queued job totals.
func (m *Manager) Counts() (running, queued int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, len(m.queue)
}

// dispatchLocked marks job running and forwards it. mu held.
func (m *Manager) dispatchLocked(job *Job) {
	job.State = StateRunning
	now := time.Now()
	job.StartedAt = &now
	m.running++
	metrics.DownloadsActive.Set(float64(m.running))

	ctx := m.lifeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	spec := companion.DownloadSpec{URL: job.URL, Path: job.Path, Headers: cloneHeaders(job.Headers)}
	m.logger.Info().Str("url", job.URL).Str("job_id", job.ID).Msg("download.dispatched")
	go m.forward(ctx, job.ID, spec)
}

// forward sends download.start and waits out its reply. The success reply
// carries nothing the terminal event does not; an error means no terminal
// event will ever arrive for this job, so one is synthesized.
func (m *Manager) forward(ctx context.Context, jobID string, spec companion.DownloadSpec) {
	err := m.starter.StartDownload(ctx, spec)
	if err == nil {
		return
	}
	m.logger.Warn().Err(err).Str("url", spec.URL).Msg("download.start.failed")
	m.finish(spec.URL, jobID, OutcomeError, err.Error())
}

// finish removes a job on its terminal outcome and promotes the queue.
// Idempotent: a second call for the same job is a no-op. matchID guards the
// forward error path against a re-enqueued job under the same URL; terminal
// events pass the empty string and match by URL alone.
func (m *Manager) finish(url, matchID string, outcome Outcome, detail string) {
	m.mu.Lock()
	job, ok := m.jobs[url]
	if !ok || (matchID != "" && job.ID != matchID) {
		m.mu.Unlock()
		return
	}

	delete(m.jobs, url)
	if job.State == StateRunning {
		m.running--
	} else {
		m.removeQueuedLocked(url)
	}
	if outcome == OutcomeSuccess && detail != "" {
		job.Path = detail
	}
	result := Result{Job: *job.clone(), Outcome: outcome, Detail: detail, FinishedAt: time.Now()}
	m.promoteLocked()
	metrics.DownloadsActive.Set(float64(m.running))
	m.mu.Unlock()

	metrics.DownloadsTotal.WithLabelValues(string(outcome)).Inc()
	evt := m.logger.Info()
	if outcome == OutcomeError {
		evt = m.logger.Warn()
	}
	evt.Str("url", url).Str("outcome", string(outcome)).Str("detail", detail).Msg("download.finished")
	if m.onTerminal != nil {
		m.onTerminal(result)
	}
	m.notifyUpdate()
}

// promoteLocked dispatches queue heads while capacity allows. mu held.
func (m *Manager) promoteLocked() {
	for m.running < m.limit() && len(m.queue) > 0 {
		url := m.queue[0]
		m.queue = m.queue[1:]
		job, ok := m.jobs[url]
		if !ok {
			continue
		}
		m.dispatchLocked(job)
	}
	metrics.DownloadQueueDepth.Set(float64(len(m.queue)))
}

func (m *Manager) applyProgress(p companion.ProgressEvent) {
	m.mu.Lock()
	job, ok := m.jobs[p.URL]
	if !ok || job.State != StateRunning {
		m.mu.Unlock()
		return
	}
	percent := p.Percent
	if percent == 0 && p.TotalBytes > 0 {
		percent = float64(p.BytesReceived) / float64(p.TotalBytes) * 100
	}
	job.Progress = Progress{
		Percent:       percent,
		BytesReceived: p.BytesReceived,
		TotalBytes:    p.TotalBytes,
		UpdatedAt:     time.Now(),
	}
	m.mu.Unlock()
	m.notifyUpdate()
}

func (m *Manager) removeQueuedLocked(url string) {
	for i, u := range m.queue {
		if u == url {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Manager) notifyUpdate() {
	if m.onUpdate != nil {
		m.onUpdate()
	}
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
