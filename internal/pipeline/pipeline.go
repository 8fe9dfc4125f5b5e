// SPDX-License-Identifier: MIT

// Package pipeline turns raw URL observations into ready registry items. It
// classifies each observation, queues accepted candidates per page context
// and resolves them on a shared worker pool: manifests are fetched and
// parsed, direct files are probed through the companion, and thumbnails are
// generated for video items when enabled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/cache"
	"github.com/streamsift/streamsift/internal/classify"
	"github.com/streamsift/streamsift/internal/companion"
	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/fetch"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/mediaurl"
	"github.com/streamsift/streamsift/internal/metrics"
	"github.com/streamsift/streamsift/internal/registry"
	"github.com/streamsift/streamsift/internal/store"
)

var (
	// ErrUnknownContext is returned for operations on a page context that
	// was never opened or has been closed.
	ErrUnknownContext = errors.New("unknown page context")

	// ErrShutdown is returned once the pipeline has stopped.
	ErrShutdown = errors.New("pipeline shut down")
)

const (
	minWorkers = 1
	maxWorkers = 32
)

// Fetcher retrieves manifest documents. Implemented by *fetch.Client.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (*fetch.Response, error)
}

// Prober inspects direct media files and renders preview images through the
// companion. Implemented by *companion.Client.
type Prober interface {
	Probe(ctx context.Context, url string, headers map[string]string) (*companion.ProbeResult, error)
	Thumbnail(ctx context.Context, url string, headers map[string]string) (*companion.Thumbnail, error)
}

// Enrichment is the durable tier for probe results and thumbnails.
// Implemented by *store.Store.
type Enrichment interface {
	GetProbe(key string) (*store.ProbeRecord, error)
	PutProbe(key string, rec *store.ProbeRecord, ttl time.Duration) error
	HasThumbnail(key string) (bool, error)
	PutThumbnail(key string, th *store.Thumbnail, ttl time.Duration) error
}

var (
	_ Fetcher    = (*fetch.Client)(nil)
	_ Prober     = (*companion.Client)(nil)
	_ Enrichment = (*store.Store)(nil)
)

// Options wires the pipeline's collaborators. Registries, Fetcher and
// Settings are required; Prober, Enrich and ProbeCache are optional tiers
// whose absence narrows behavior instead of failing construction.
type Options struct {
	Registries *registry.Manager
	Fetcher    Fetcher
	Prober     Prober
	Enrich     Enrichment
	ProbeCache cache.Cache
	Settings   func() config.Settings

	// OnUpdate is invoked after any visible item change in the given page
	// context. Callers coalesce; the pipeline fires eagerly.
	OnUpdate func(contextID string)
}

// Pipeline owns the per-context queues and the shared worker pool.
type Pipeline struct {
	reg        *registry.Manager
	fetcher    Fetcher
	prober     Prober
	enrich     Enrichment
	probeCache cache.Cache
	settings   func() config.Settings
	onUpdate   func(string)
	logger     zerolog.Logger

	pool *ants.Pool

	mu       sync.Mutex
	lifeCtx  context.Context
	contexts map[string]*pageContext
	closed   bool

	// wg tracks dispatcher goroutines and submitted tasks.
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds a pipeline with a worker pool sized from the current settings.
func New(opts Options) (*Pipeline, error) {
	if opts.Registries == nil {
		return nil, errors.New("pipeline: registry manager is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if opts.Settings == nil {
		return nil, errors.New("pipeline: settings source is required")
	}

	size := clampWorkers(opts.Settings().WorkerPoolSize)
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("pipeline: worker pool: %w", err)
	}

	return &Pipeline{
		reg:        opts.Registries,
		fetcher:    opts.Fetcher,
		prober:     opts.Prober,
		enrich:     opts.Enrich,
		probeCache: opts.ProbeCache,
		settings:   opts.Settings,
		onUpdate:   opts.OnUpdate,
		logger:     log.WithComponent("pipeline"),
		pool:       pool,
		contexts:   make(map[string]*pageContext),
	}, nil
}

// Run binds the pipeline to ctx and blocks until it is canceled, then tears
// down every open context, waits for in-flight work and releases the pool.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	p.lifeCtx = ctx
	p.mu.Unlock()

	<-ctx.Done()
	p.shutdown()
	return nil
}

func (p *Pipeline) shutdown() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		ctxs := make([]*pageContext, 0, len(p.contexts))
		for _, pc := range p.contexts {
			ctxs = append(ctxs, pc)
		}
		p.contexts = make(map[string]*pageContext)
		p.mu.Unlock()

		for _, pc := range ctxs {
			pc.close()
			p.reg.Close(pc.id)
		}
		p.wg.Wait()
		p.pool.Release()
		p.logger.Info().Str(log.FieldEvent, "pipeline.stopped").Msg("pipeline stopped")
	})
}

// Resize retunes the worker pool, clamped to the supported range. Wired to
// configuration reloads.
func (p *Pipeline) Resize(workers int) {
	size := clampWorkers(workers)
	p.pool.Tune(size)
	p.logger.Info().
		Str(log.FieldEvent, "pipeline.resized").
		Int("workers", size).
		Msg("worker pool resized")
}

// OpenContext registers a page context and starts its dispatcher. Opening an
// already-open context is a no-op that returns the existing registry.
func (p *Pipeline) OpenContext(contextID string) (*registry.Registry, error) {
	if contextID == "" {
		return nil, errors.New("pipeline: empty context id")
	}
	pc, err := p.context(contextID)
	if err != nil {
		return nil, err
	}
	return pc.reg, nil
}

// context returns the page context, creating it on first use. Observations
// may arrive before any explicit open call, so creation is implicit.
func (p *Pipeline) context(contextID string) (*pageContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrShutdown
	}
	if pc, ok := p.contexts[contextID]; ok {
		return pc, nil
	}

	parent := p.lifeCtx
	if parent == nil {
		parent = context.Background()
	}
	pc := newPageContext(contextID, p.reg.Open(contextID), parent)
	p.contexts[contextID] = pc

	p.wg.Add(1)
	go p.dispatch(pc)

	p.logger.Info().
		Str(log.FieldEvent, "pipeline.context.opened").
		Str(log.FieldContextID, contextID).
		Msg("page context opened")
	return pc, nil
}

func (p *Pipeline) lookup(contextID string) (*pageContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc, ok := p.contexts[contextID]
	return pc, ok
}

// CloseContext tears down a page context: the queue is dropped, in-flight
// fetches are canceled and the registry is cleared. Returns false when the
// context was not open.
func (p *Pipeline) CloseContext(contextID string) bool {
	p.mu.Lock()
	pc, ok := p.contexts[contextID]
	delete(p.contexts, contextID)
	p.mu.Unlock()
	if !ok {
		return false
	}

	pc.close()
	p.reg.Close(contextID)
	p.refreshGauges()
	p.notify(contextID)
	p.logger.Info().
		Str(log.FieldEvent, "pipeline.context.closed").
		Str(log.FieldContextID, contextID).
		Msg("page context closed")
	return true
}

// Registry exposes a context's registry for read access by the API layer.
func (p *Pipeline) Registry(contextID string) (*registry.Registry, bool) {
	return p.reg.Get(contextID)
}

// Contexts lists the open page context IDs.
func (p *Pipeline) Contexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.contexts))
	for id := range p.contexts {
		out = append(out, id)
	}
	return out
}

// QueueDepth reports items waiting for a worker across all contexts.
func (p *Pipeline) QueueDepth() int {
	return p.totalDepth()
}

// Observe runs an observation through classification and, when accepted,
// registers it and queues it for resolution. Denied and gated observations
// return (nil, nil): the extension fires thousands of these per page and
// only genuine errors deserve a response. Re-observing a known URL returns
// the existing item without re-queuing it.
func (p *Pipeline) Observe(ctx context.Context, obs Observation) (*registry.MediaItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if obs.ContextID == "" || obs.URL == "" {
		return nil, errors.New("observation requires contextId and url")
	}

	key, err := mediaurl.Normalize(obs.URL)
	if err != nil {
		metrics.IncObservation("invalid")
		return nil, fmt.Errorf("normalize %q: %w", obs.URL, err)
	}

	hints := classify.Hints{
		MIME:          obs.MIME,
		ContentLength: obs.ContentLength,
		ContentRange:  obs.ContentRange,
	}
	cand, ok := classify.Classify(obs.URL, hints)
	if !ok {
		metrics.IncObservation("denied")
		return nil, nil
	}
	cfg := p.settings()
	if !classify.Gate(obs.URL, hints, cand, classify.GateOptions{
		MinDirectSizeBytes: cfg.MinDirectSizeBytes,
		CoverageThreshold:  cfg.CoverageThreshold,
	}) {
		metrics.IncObservation("gated")
		return nil, nil
	}

	pc, err := p.context(obs.ContextID)
	if err != nil {
		return nil, err
	}

	stored, created, err := pc.reg.Observe(&registry.MediaItem{
		Key:             key,
		URL:             obs.URL,
		Kind:            cand.Kind,
		DiscoverySource: obs.DiscoverySource,
		Headers:         obs.Headers,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		metrics.IncObservation("duplicate")
		return stored, nil
	}
	metrics.IncObservation("accepted")

	// Constituents of an already-parsed master are bookkeeping only. They
	// stay pending and never reach a worker or the display list.
	if stored.Role != registry.RoleVariant {
		if pc.enqueue(key) {
			p.logger.Debug().
				Str(log.FieldEvent, "pipeline.item.enqueued").
				Str(log.FieldContextID, obs.ContextID).
				Str(log.FieldItemKey, key).
				Str(log.FieldKind, stored.Kind.String()).
				Msg("item queued for resolution")
		}
	}

	p.refreshGauges()
	p.notify(obs.ContextID)
	return stored, nil
}

// Retry returns a failed item to pending and queues it again. Only explicit
// user action re-runs a failed item; re-observation never does.
func (p *Pipeline) Retry(contextID, key string) (*registry.MediaItem, error) {
	pc, ok := p.lookup(contextID)
	if !ok {
		return nil, ErrUnknownContext
	}
	item, err := pc.reg.Reset(key)
	if err != nil {
		return nil, err
	}
	pc.enqueue(key)
	p.refreshGauges()
	p.notify(contextID)
	return item, nil
}

// Dismiss hides an item. A worker holding the item discards its result at
// the next state checkpoint.
func (p *Pipeline) Dismiss(contextID, key string) (*registry.MediaItem, error) {
	pc, ok := p.lookup(contextID)
	if !ok {
		return nil, ErrUnknownContext
	}
	item, err := pc.reg.Dismiss(key)
	if err != nil {
		return nil, err
	}
	p.refreshGauges()
	p.notify(contextID)
	return item, nil
}

// dispatch drains one context's FIFO into the shared pool. Submit blocks
// while all workers are busy, which preserves per-context ordering and
// applies backpressure without growing goroutines.
func (p *Pipeline) dispatch(pc *pageContext) {
	defer p.wg.Done()
	for {
		key, ok := pc.pop()
		if !ok {
			if pc.isClosed() {
				return
			}
			select {
			case <-pc.notify:
				continue
			case <-pc.ctx.Done():
				return
			}
		}

		p.wg.Add(1)
		err := p.pool.Submit(func() {
			defer p.wg.Done()
			defer pc.done(key)
			p.process(pc, key)
		})
		if err != nil {
			// Pool released during shutdown.
			p.wg.Done()
			pc.done(key)
			return
		}
	}
}

func (p *Pipeline) totalDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	depth := 0
	for _, pc := range p.contexts {
		depth += pc.depth()
	}
	return depth
}

// refreshGauges recomputes the queue depth and per-state item gauges across
// all contexts. Called on every enqueue and transition, so it stays cheap:
// one pass over the item maps, no clones.
func (p *Pipeline) refreshGauges() {
	metrics.QueueDepth.Set(float64(p.totalDepth()))

	counts := make(map[registry.State]int, 5)
	p.reg.Range(func(_ string, reg *registry.Registry) bool {
		reg.CountByState(counts)
		return true
	})
	for _, st := range []registry.State{
		registry.StatePending,
		registry.StateProcessing,
		registry.StateReady,
		registry.StateFailed,
		registry.StateDismissed,
	} {
		metrics.RegistryItems.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
}

func (p *Pipeline) notify(contextID string) {
	if p.onUpdate != nil {
		p.onUpdate(contextID)
	}
}

func clampWorkers(n int) int {
	if n < minWorkers {
		return minWorkers
	}
	if n > maxWorkers {
		return maxWorkers
	}
	return n
}
