// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/manifest"
	"github.com/streamsift/streamsift/internal/manifest/dash"
	"github.com/streamsift/streamsift/internal/manifest/hls"
	"github.com/streamsift/streamsift/internal/metrics"
	"github.com/streamsift/streamsift/internal/registry"
	"github.com/streamsift/streamsift/internal/store"
)

// probeCacheTTL bounds the fast cache tier. The durable badger tier keeps
// its own, much longer TTL.
const probeCacheTTL = time.Hour

// process resolves one queued item. A panic in any stage is contained to
// this item: the worker recovers, records the failure and the pool slot is
// returned.
func (p *Pipeline) process(pc *pageContext, key string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerRecoveriesTotal.Inc()
			p.logger.Error().
				Str(log.FieldEvent, "pipeline.worker.panic").
				Str(log.FieldContextID, pc.id).
				Str(log.FieldItemKey, key).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			_, _ = pc.reg.SetState(key, registry.StateFailed, "internal error")
			p.refreshGauges()
			p.notify(pc.id)
		}
	}()

	item, ok := pc.reg.Get(key)
	if !ok {
		// Context closed between dequeue and here.
		return
	}
	if item.State != registry.StatePending {
		// Dismissed or reset while queued; nothing to do.
		return
	}
	if _, err := pc.reg.SetState(key, registry.StateProcessing, ""); err != nil {
		return
	}
	p.refreshGauges()
	p.notify(pc.id)

	var (
		res *manifest.Result
		err error
	)
	if item.Kind.IsManifest() {
		res, err = p.resolveManifest(pc.ctx, item)
	} else {
		res, err = p.resolveDirect(pc.ctx, item)
	}
	if err != nil {
		p.fail(pc, key, err)
		return
	}

	merged, err := pc.reg.ApplyParse(key, res)
	if err != nil {
		return
	}
	if _, err := pc.reg.SetState(key, registry.StateReady, ""); err != nil {
		// Dismissed mid-flight; the result is discarded here.
		return
	}
	p.refreshGauges()
	p.notify(pc.id)

	p.maybeThumbnail(pc, merged)
}

// fail records a terminal failure. When the transition is rejected the item
// was dismissed first and the reason is dropped with the result.
func (p *Pipeline) fail(pc *pageContext, key string, cause error) {
	if _, err := pc.reg.SetState(key, registry.StateFailed, cause.Error()); err != nil {
		return
	}
	p.logger.Warn().
		Str(log.FieldEvent, "pipeline.item.failed").
		Str(log.FieldContextID, pc.id).
		Str(log.FieldItemKey, key).
		Err(cause).
		Msg("item resolution failed")
	p.refreshGauges()
	p.notify(pc.id)
}

// resolveManifest fetches and parses a manifest document.
func (p *Pipeline) resolveManifest(ctx context.Context, item *registry.MediaItem) (*manifest.Result, error) {
	resp, err := p.fetcher.Get(ctx, item.URL, item.Headers)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if resp.Status >= 400 {
		return nil, fmt.Errorf("fetch: status %d", resp.Status)
	}

	start := time.Now()
	var res *manifest.Result
	switch item.Kind {
	case manifest.KindHLS:
		res, err = hls.Parse(string(resp.Body), item.URL)
	case manifest.KindDASH:
		res, err = dash.Parse(string(resp.Body), item.URL)
	default:
		return nil, fmt.Errorf("no parser for kind %q", item.Kind)
	}
	metrics.ObserveParse(item.Kind.String(), err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return res, nil
}

// resolveDirect answers from the probe tiers. The fast tier (memory or
// redis) is checked first, then the durable badger tier, and only then is
// the companion asked to run ffprobe. Probe results are keyed by the
// normalized URL, so the same file found on two pages probes once.
func (p *Pipeline) resolveDirect(ctx context.Context, item *registry.MediaItem) (*manifest.Result, error) {
	if rec := p.cachedProbe(item.Key); rec != nil {
		return resultFromProbe(rec), nil
	}
	if p.prober == nil {
		return nil, errors.New("probe: companion not connected")
	}

	pr, err := p.prober.Probe(ctx, item.URL, item.Headers)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	rec := &store.ProbeRecord{
		HasVideo:     pr.HasVideo,
		HasAudio:     pr.HasAudio,
		HasSubtitles: pr.HasSubtitles,
		Container:    pr.Container,
		DurationSecs: pr.DurationSecs,
		SizeBytes:    pr.SizeBytes,
	}
	p.storeProbe(item.Key, rec)
	return resultFromProbe(rec), nil
}

func (p *Pipeline) cachedProbe(key string) *store.ProbeRecord {
	if p.probeCache != nil {
		if buf, ok := p.probeCache.Get(probeCacheKey(key)); ok {
			var rec store.ProbeRecord
			if err := json.Unmarshal(buf, &rec); err == nil {
				return &rec
			}
		}
	}
	if p.enrich != nil {
		rec, err := p.enrich.GetProbe(key)
		if err != nil {
			p.logger.Warn().Err(err).Str(log.FieldItemKey, key).Msg("probe store read failed")
			return nil
		}
		if rec != nil {
			p.fillProbeCache(key, rec)
			return rec
		}
	}
	return nil
}

func (p *Pipeline) storeProbe(key string, rec *store.ProbeRecord) {
	p.fillProbeCache(key, rec)
	if p.enrich != nil {
		if err := p.enrich.PutProbe(key, rec, store.DefaultTTL); err != nil {
			p.logger.Warn().Err(err).Str(log.FieldItemKey, key).Msg("probe store write failed")
		}
	}
}

func (p *Pipeline) fillProbeCache(key string, rec *store.ProbeRecord) {
	if p.probeCache == nil {
		return
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return
	}
	p.probeCache.Set(probeCacheKey(key), buf, probeCacheTTL)
}

func probeCacheKey(key string) string {
	return "probe:" + key
}

// maybeThumbnail renders a preview for ready video items when enabled.
// Failures are logged and swallowed; a missing preview never fails an item.
func (p *Pipeline) maybeThumbnail(pc *pageContext, item *registry.MediaItem) {
	if !p.settings().AutoThumbnails || p.prober == nil {
		return
	}
	if item.Live || len(item.TracksOf(manifest.TrackVideo)) == 0 {
		return
	}

	if p.enrich != nil {
		if ok, err := p.enrich.HasThumbnail(item.Key); err == nil && ok {
			p.setPreview(pc, item.Key)
			return
		}
	}

	th, err := p.prober.Thumbnail(pc.ctx, item.URL, item.Headers)
	if err != nil {
		p.logger.Debug().
			Str(log.FieldEvent, "pipeline.thumbnail.failed").
			Str(log.FieldItemKey, item.Key).
			Err(err).
			Msg("thumbnail generation failed")
		return
	}
	if p.enrich != nil {
		if err := p.enrich.PutThumbnail(item.Key, &store.Thumbnail{MIME: th.MIME, Data: th.Data}, store.DefaultTTL); err != nil {
			p.logger.Warn().Err(err).Str(log.FieldItemKey, item.Key).Msg("thumbnail store write failed")
			return
		}
	}
	p.setPreview(pc, item.Key)
}

func (p *Pipeline) setPreview(pc *pageContext, key string) {
	if err := pc.reg.SetPreview(key, previewPath(key)); err != nil {
		return
	}
	p.notify(pc.id)
}

// previewPath is the daemon-relative URL the UI loads the thumbnail from.
func previewPath(key string) string {
	return "/api/thumbnails?key=" + url.QueryEscape(key)
}

// resultFromProbe lifts an ffprobe summary into the shared track model so
// direct files and manifests flow through one registry shape.
func resultFromProbe(rec *store.ProbeRecord) *manifest.Result {
	res := &manifest.Result{Kind: manifest.KindDirect}

	idx := 0
	if rec.HasVideo {
		res.Tracks = append(res.Tracks, manifest.Track{
			ID:          "v0",
			Kind:        manifest.TrackVideo,
			Container:   containerFromProbe(rec.Container, manifest.TrackVideo),
			StreamIndex: idx,
		})
		idx++
	}
	if rec.HasAudio {
		res.Tracks = append(res.Tracks, manifest.Track{
			ID:          "a0",
			Kind:        manifest.TrackAudio,
			Container:   containerFromProbe(rec.Container, manifest.TrackAudio),
			StreamIndex: idx,
		})
		idx++
	}
	if rec.HasSubtitles {
		res.Tracks = append(res.Tracks, manifest.Track{
			ID:          "s0",
			Kind:        manifest.TrackSubtitle,
			Container:   manifest.ContainerVTT,
			StreamIndex: idx,
		})
	}

	if rec.DurationSecs > 0 {
		d := time.Duration(rec.DurationSecs * float64(time.Second))
		res.Duration = &d
	}
	// The file size belongs to the container as a whole; pin it on the
	// primary track so download size estimates stay visible.
	if rec.SizeBytes > 0 && len(res.Tracks) > 0 {
		res.Tracks[0].EstimatedBytes = rec.SizeBytes
	}
	return res
}

// containerFromProbe maps ffprobe format names, which may list several
// aliases like "mov,mp4,m4a,3gp,3g2,mj2", to the canonical container.
func containerFromProbe(raw string, kind manifest.TrackKind) manifest.Container {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "webm"), strings.Contains(s, "matroska"):
		return manifest.ContainerWebM
	case strings.Contains(s, "mp4"), strings.Contains(s, "mov"):
		if kind == manifest.TrackAudio {
			return manifest.ContainerM4A
		}
		return manifest.ContainerMP4
	case strings.Contains(s, "mpegts"):
		return manifest.ContainerTS
	case strings.Contains(s, "mp3"), strings.Contains(s, "mpeg"):
		return manifest.ContainerMP3
	case strings.Contains(s, "ogg"):
		return manifest.ContainerOGG
	case strings.Contains(s, "flac"):
		return manifest.ContainerFLAC
	default:
		c, _ := manifest.InferContainer(kind, "", "")
		return c
	}
}
