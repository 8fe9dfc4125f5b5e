// SPDX-License-Identifier: MIT

// Package hls parses HTTP Live Streaming playlists into the shared track
// model. A master playlist yields one video track per variant plus one track
// per alternative rendition; a media playlist yields a single track with the
// summed segment duration.
package hls

import (
	"bufio"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/streamsift/streamsift/internal/manifest"
)

type variantEntry struct {
	attrs map[string]string
	uri   string
	index int
}

type parser struct {
	base *url.URL

	variants   []variantEntry
	pending    map[string]string
	renditions []manifest.Track
	enc        manifest.Encryption
	idx        int

	segments   int
	total      time.Duration
	nextDur    time.Duration
	sawEXTINF  bool
	vod        bool
	firstSeg   string
	fragmented bool

	urls     []string
	urlsSeen map[string]struct{}
}

// Parse reads an M3U8 playlist and returns the manifest result. Relative
// URIs are resolved against baseURL. The input must start with #EXTM3U;
// XML input is reported as manifest.ErrWrongType.
func Parse(text, baseURL string) (*manifest.Result, error) {
	p := &parser{urlsSeen: make(map[string]struct{})}
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		p.base = base
	}
	if err := p.scan(text); err != nil {
		return nil, err
	}
	return p.assemble()
}

func (p *parser) scan(text string) error {
	scanner := bufio.NewScanner(strings.NewReader(text))
	sawHeader := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sawHeader {
			if strings.HasPrefix(line, "<") {
				return manifest.WrongTypef("not an M3U playlist")
			}
			if !strings.HasPrefix(line, "#EXTM3U") {
				return manifest.Malformedf("missing #EXTM3U header")
			}
			sawHeader = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			p.pending = parseAttrs(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))

		case strings.HasPrefix(line, "#EXT-X-I-FRAME-STREAM-INF:"):
			attrs := parseAttrs(strings.TrimPrefix(line, "#EXT-X-I-FRAME-STREAM-INF:"))
			if uri := attrs["URI"]; uri != "" {
				p.addURL(p.resolve(uri))
			}

		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			p.addRendition(parseAttrs(strings.TrimPrefix(line, "#EXT-X-MEDIA:")))

		case strings.HasPrefix(line, "#EXT-X-KEY:"), strings.HasPrefix(line, "#EXT-X-SESSION-KEY:"):
			_, rest, _ := strings.Cut(line, ":")
			if enc, ok := encryptionFromKey(parseAttrs(rest)); ok {
				p.enc.Merge(enc)
			}

		case strings.HasPrefix(line, "#EXTINF:"):
			dur, err := parseExtInf(line)
			if err != nil {
				return err
			}
			p.nextDur = dur
			p.sawEXTINF = true

		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			p.fragmented = true

		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			if strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:") == "VOD" {
				p.vod = true
			}

		case line == "#EXT-X-ENDLIST":
			p.vod = true

		case strings.HasPrefix(line, "#"):
			// Remaining tags carry nothing the track model needs.

		default:
			p.uriLine(line)
		}
	}
	return scanner.Err()
}

func parseExtInf(line string) (time.Duration, error) {
	part := strings.TrimPrefix(line, "#EXTINF:")
	if idx := strings.IndexByte(part, ','); idx >= 0 {
		part = part[:idx]
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
	if err != nil {
		return 0, manifest.Malformedf("invalid EXTINF duration %q", part)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// uriLine consumes a non-tag line, which closes either the pending variant
// declaration or one media segment.
func (p *parser) uriLine(line string) {
	if p.pending != nil {
		resolved := p.resolve(line)
		p.variants = append(p.variants, variantEntry{attrs: p.pending, uri: resolved, index: p.idx})
		p.idx++
		p.pending = nil
		p.addURL(resolved)
		return
	}
	p.segments++
	p.total += p.nextDur
	p.nextDur = 0
	if p.firstSeg == "" {
		p.firstSeg = line
	}
}

func (p *parser) addRendition(attrs map[string]string) {
	var kind manifest.TrackKind
	switch strings.ToUpper(attrs["TYPE"]) {
	case "AUDIO":
		kind = manifest.TrackAudio
	case "SUBTITLES":
		kind = manifest.TrackSubtitle
	default:
		// CLOSED-CAPTIONS renditions have no fetchable URI.
		return
	}

	tr := manifest.Track{
		Kind:        kind,
		GroupID:     attrs["GROUP-ID"],
		Language:    manifest.NormalizeLanguage(attrs["LANGUAGE"]),
		Label:       manifest.NormalizeLabel(attrs["NAME"]),
		Default:     strings.ToUpper(attrs["DEFAULT"]) == "YES",
		Channels:    channelCount(attrs["CHANNELS"]),
		StreamIndex: p.idx,
	}
	p.idx++
	if uri := attrs["URI"]; uri != "" {
		tr.SourceURL = p.resolve(uri)
		p.addURL(tr.SourceURL)
	}
	if tr.GroupID != "" || tr.Label != "" {
		tr.ID = tr.GroupID + "/" + tr.Label
	} else {
		tr.ID = string(kind) + "-" + strconv.Itoa(tr.StreamIndex)
	}
	p.renditions = append(p.renditions, tr)
}

func (p *parser) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil || p.base == nil {
		return ref
	}
	return p.base.ResolveReference(u).String()
}

func (p *parser) addURL(u string) {
	if _, ok := p.urlsSeen[u]; ok {
		return
	}
	p.urlsSeen[u] = struct{}{}
	p.urls = append(p.urls, u)
}

func (p *parser) assemble() (*manifest.Result, error) {
	if len(p.variants) > 0 {
		return p.assembleMaster(), nil
	}
	if p.sawEXTINF || p.segments > 0 {
		return p.assembleMedia(), nil
	}
	return nil, manifest.Malformedf("playlist has no variants or segments")
}

func (p *parser) assembleMaster() *manifest.Result {
	// Variants declare the codecs their rendition groups use.
	audioCodecs := make(map[string]string)
	subCodecs := make(map[string]string)
	for _, v := range p.variants {
		for _, codec := range splitCodecs(v.attrs["CODECS"]) {
			kind, ok := manifest.KindForCodec(codec)
			if !ok {
				continue
			}
			switch kind {
			case manifest.TrackAudio:
				if group := v.attrs["AUDIO"]; group != "" {
					if _, seen := audioCodecs[group]; !seen {
						audioCodecs[group] = codec
					}
				}
			case manifest.TrackSubtitle:
				if group := v.attrs["SUBTITLES"]; group != "" {
					if _, seen := subCodecs[group]; !seen {
						subCodecs[group] = codec
					}
				}
			}
		}
	}

	// Dedup variants by resolution, keeping the highest bandwidth.
	best := make(map[string]variantEntry)
	var order []string
	for _, v := range p.variants {
		key := strings.ToLower(v.attrs["RESOLUTION"])
		cur, ok := best[key]
		if !ok {
			best[key] = v
			order = append(order, key)
			continue
		}
		if variantBandwidth(v.attrs) > variantBandwidth(cur.attrs) {
			best[key] = v
		}
	}

	var tracks []manifest.Track
	for _, key := range order {
		v := best[key]
		tr := manifest.Track{
			ID:          "variant-" + strconv.Itoa(v.index),
			Kind:        manifest.TrackVideo,
			Bitrate:     variantBandwidth(v.attrs),
			FrameRate:   attrFloat(v.attrs, "FRAME-RATE"),
			SourceURL:   v.uri,
			GroupID:     v.attrs["VIDEO"],
			StreamIndex: v.index,
		}
		tr.Width, tr.Height = parseResolution(v.attrs["RESOLUTION"])
		for _, codec := range splitCodecs(v.attrs["CODECS"]) {
			if kind, ok := manifest.KindForCodec(codec); ok && kind == manifest.TrackVideo {
				tr.Codec = codec
				break
			}
		}
		tr.Container, tr.ContainerReason = manifest.InferContainer(tr.Kind, tr.Codec, "")
		tracks = append(tracks, tr)
	}

	for _, tr := range p.renditions {
		if tr.Codec == "" {
			switch tr.Kind {
			case manifest.TrackAudio:
				tr.Codec = audioCodecs[tr.GroupID]
			case manifest.TrackSubtitle:
				tr.Codec = subCodecs[tr.GroupID]
			}
		}
		tr.Container, tr.ContainerReason = manifest.InferContainer(tr.Kind, tr.Codec, "")
		tracks = append(tracks, tr)
	}

	manifest.SortTracks(tracks)
	return &manifest.Result{
		Kind:        manifest.KindHLS,
		Encryption:  p.enc,
		Tracks:      tracks,
		Master:      true,
		VariantURLs: p.urls,
	}
}

func variantBandwidth(attrs map[string]string) int64 {
	if bw := attrInt(attrs, "BANDWIDTH"); bw > 0 {
		return bw
	}
	return attrInt(attrs, "AVERAGE-BANDWIDTH")
}

func (p *parser) assembleMedia() *manifest.Result {
	res := &manifest.Result{
		Kind:       manifest.KindHLS,
		Live:       !p.vod,
		Encryption: p.enc,
	}
	if p.vod {
		d := p.total
		res.Duration = &d
	}

	kind := segmentKind(p.firstSeg)
	tr := manifest.Track{
		ID:   "media-0",
		Kind: kind,
	}
	tr.Container, tr.ContainerReason = manifest.InferContainer(kind, "", segmentMIME(p.firstSeg, p.fragmented, kind))
	res.Tracks = []manifest.Track{tr}
	return res
}

// segmentKind guesses the media type from a segment URI extension. Transport
// stream and fMP4 segments usually mux audio with video, so video is the
// default.
func segmentKind(uri string) manifest.TrackKind {
	switch segmentExt(uri) {
	case ".aac", ".mp3", ".ac3", ".ec3", ".m4a":
		return manifest.TrackAudio
	case ".vtt", ".webvtt":
		return manifest.TrackSubtitle
	default:
		return manifest.TrackVideo
	}
}

func segmentExt(uri string) string {
	if u, err := url.Parse(strings.TrimSpace(uri)); err == nil && u.Path != "" {
		return strings.ToLower(path.Ext(u.Path))
	}
	return strings.ToLower(path.Ext(uri))
}

func segmentMIME(uri string, fragmented bool, kind manifest.TrackKind) string {
	if fragmented {
		if kind == manifest.TrackAudio {
			return "audio/mp4"
		}
		return "video/mp4"
	}
	switch segmentExt(uri) {
	case ".ts", ".mts", ".m2ts":
		return "video/mp2t"
	case ".mp4", ".m4s", ".m4v":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".mp3":
		return "audio/mpeg"
	case ".vtt", ".webvtt":
		return "text/vtt"
	default:
		return ""
	}
}
