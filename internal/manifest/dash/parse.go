// SPDX-License-Identifier: MIT

// Package dash parses MPEG-DASH MPD documents into the shared track model.
// Each Representation yields one track; AdaptationSet attributes apply to
// every contained Representation unless the Representation overrides them.
package dash

import (
	"encoding/xml"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/streamsift/streamsift/internal/manifest"
)

// maxMPDSize caps decoder input. Real MPDs are a few hundred KB at most.
const maxMPDSize = 10 * 1024 * 1024

type mpd struct {
	XMLName                   xml.Name
	Type                      string   `xml:"type,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	BaseURLs                  []string `xml:"BaseURL"`
	Periods                   []period `xml:"Period"`
}

type period struct {
	Duration       string          `xml:"duration,attr"`
	BaseURLs       []string        `xml:"BaseURL"`
	AdaptationSets []adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	MimeType          string              `xml:"mimeType,attr"`
	ContentType       string              `xml:"contentType,attr"`
	Codecs            string              `xml:"codecs,attr"`
	Lang              string              `xml:"lang,attr"`
	Width             int                 `xml:"width,attr"`
	Height            int                 `xml:"height,attr"`
	FrameRate         string              `xml:"frameRate,attr"`
	AudioSamplingRate string              `xml:"audioSamplingRate,attr"`
	BaseURLs          []string            `xml:"BaseURL"`
	Labels            []string            `xml:"Label"`
	Roles             []role              `xml:"Role"`
	ContentProtection []contentProtection `xml:"ContentProtection"`
	ChannelConfigs    []channelConfig     `xml:"AudioChannelConfiguration"`
	Representations   []representation    `xml:"Representation"`
}

type representation struct {
	ID                string              `xml:"id,attr"`
	Bandwidth         int64               `xml:"bandwidth,attr"`
	Codecs            string              `xml:"codecs,attr"`
	MimeType          string              `xml:"mimeType,attr"`
	Width             int                 `xml:"width,attr"`
	Height            int                 `xml:"height,attr"`
	FrameRate         string              `xml:"frameRate,attr"`
	AudioSamplingRate string              `xml:"audioSamplingRate,attr"`
	BaseURLs          []string            `xml:"BaseURL"`
	ContentProtection []contentProtection `xml:"ContentProtection"`
	ChannelConfigs    []channelConfig     `xml:"AudioChannelConfiguration"`
}

type role struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

type contentProtection struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

type channelConfig struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

// Parse reads an MPD document and returns the manifest result. M3U input is
// reported as manifest.ErrWrongType.
func Parse(xmlText, baseURL string) (*manifest.Result, error) {
	if strings.HasPrefix(strings.TrimSpace(xmlText), "#EXTM3U") {
		return nil, manifest.WrongTypef("not a DASH manifest")
	}

	var doc mpd
	dec := xml.NewDecoder(io.LimitReader(strings.NewReader(xmlText), maxMPDSize))
	dec.Strict = true
	// Disable entity expansion to prevent XXE attacks.
	dec.Entity = make(map[string]string)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, manifest.Malformedf("decode mpd: %v", err)
	}
	if doc.XMLName.Local == "" {
		return nil, manifest.Malformedf("empty document")
	}
	if !strings.EqualFold(doc.XMLName.Local, "MPD") {
		return nil, manifest.WrongTypef("root element %q is not MPD", doc.XMLName.Local)
	}

	res := &manifest.Result{Kind: manifest.KindDASH}
	if strings.EqualFold(doc.Type, "dynamic") {
		res.Live = true
	} else if d, ok := mpdDuration(&doc); ok {
		res.Duration = &d
	}

	base := resolveChain(baseURL, doc.BaseURLs)

	var (
		prot protectionSet
		idx  int
		reps int
	)
	for _, per := range doc.Periods {
		perBase := resolveChain(base, per.BaseURLs)
		for _, set := range per.AdaptationSets {
			setBase := resolveChain(perBase, set.BaseURLs)
			for _, cp := range set.ContentProtection {
				prot.add(cp)
			}
			for _, rep := range set.Representations {
				reps++
				for _, cp := range rep.ContentProtection {
					prot.add(cp)
				}
				tr, ok := buildTrack(&set, &rep, setBase, idx, res.Duration)
				idx++
				if !ok {
					continue
				}
				res.Tracks = append(res.Tracks, tr)
				if tr.SourceURL != "" {
					res.VariantURLs = append(res.VariantURLs, tr.SourceURL)
				}
			}
		}
	}

	if reps == 0 {
		return nil, manifest.Malformedf("mpd has no representations")
	}
	res.Encryption = prot.encryption()
	res.Master = reps > 1
	manifest.SortTracks(res.Tracks)
	return res, nil
}

// mpdDuration returns the static presentation duration, falling back to the
// sum of Period durations when every Period declares one.
func mpdDuration(doc *mpd) (time.Duration, bool) {
	if doc.MediaPresentationDuration != "" {
		if d, err := parseISODuration(doc.MediaPresentationDuration); err == nil {
			return d, true
		}
		return 0, false
	}
	if len(doc.Periods) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, per := range doc.Periods {
		if per.Duration == "" {
			return 0, false
		}
		d, err := parseISODuration(per.Duration)
		if err != nil {
			return 0, false
		}
		total += d
	}
	return total, true
}

// buildTrack flattens AdaptationSet attributes into one Representation. The
// Representation wins wherever both declare a value.
func buildTrack(set *adaptationSet, rep *representation, base string, idx int, duration *time.Duration) (manifest.Track, bool) {
	codec := firstNonEmpty(rep.Codecs, set.Codecs)
	mime := firstNonEmpty(rep.MimeType, set.MimeType)

	kind, ok := classify(mime, set.ContentType, set.Roles, codec)
	if !ok {
		return manifest.Track{}, false
	}

	tr := manifest.Track{
		ID:          rep.ID,
		Kind:        kind,
		Codec:       codec,
		Bitrate:     rep.Bandwidth,
		Language:    manifest.NormalizeLanguage(set.Lang),
		StreamIndex: idx,
	}
	if tr.ID == "" {
		tr.ID = "rep-" + strconv.Itoa(idx)
	}
	tr.Width = rep.Width
	if tr.Width == 0 {
		tr.Width = set.Width
	}
	tr.Height = rep.Height
	if tr.Height == 0 {
		tr.Height = set.Height
	}
	tr.FrameRate = parseFrameRate(firstNonEmpty(rep.FrameRate, set.FrameRate))
	tr.SampleRate = parseSampleRate(firstNonEmpty(rep.AudioSamplingRate, set.AudioSamplingRate))
	tr.Channels = channelCount(rep.ChannelConfigs, set.ChannelConfigs)

	for _, r := range set.Roles {
		if r.Value != "" {
			tr.Role = r.Value
			break
		}
	}
	for _, l := range set.Labels {
		if label := manifest.NormalizeLabel(l); label != "" {
			tr.Label = label
			break
		}
	}

	tr.Container, tr.ContainerReason = manifest.InferContainer(kind, codec, mime)
	tr.EstimatedBytes = manifest.EstimateBytes(tr.Bitrate, duration)
	if len(rep.BaseURLs) > 0 {
		tr.SourceURL = resolveChain(base, rep.BaseURLs)
	}
	return tr, true
}

// classify decides the track kind from mimeType, contentType, Role and codec,
// in that order. Unclassifiable content is skipped.
func classify(mime, contentType string, roles []role, codec string) (manifest.TrackKind, bool) {
	m := strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(m, "video/"):
		return manifest.TrackVideo, true
	case strings.HasPrefix(m, "audio/"):
		return manifest.TrackAudio, true
	case strings.HasPrefix(m, "text/"), m == "application/ttml+xml":
		return manifest.TrackSubtitle, true
	}

	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "video":
		return manifest.TrackVideo, true
	case "audio":
		return manifest.TrackAudio, true
	case "text":
		return manifest.TrackSubtitle, true
	}

	for _, r := range roles {
		switch strings.ToLower(r.Value) {
		case "subtitle", "caption":
			return manifest.TrackSubtitle, true
		}
	}

	for _, c := range strings.Split(codec, ",") {
		if kind, ok := manifest.KindForCodec(c); ok {
			return kind, true
		}
	}
	return "", false
}

// resolveChain folds BaseURL entries onto a base, first entry winning when an
// element carries several.
func resolveChain(base string, refs []string) string {
	ref := ""
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			ref = r
			break
		}
	}
	if ref == "" {
		return base
	}
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return base
	}
	return b.ResolveReference(u).String()
}

// parseFrameRate reads an MPD frame rate, either "25" or "30000/1001".
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseSampleRate reads @audioSamplingRate, which may carry a "min max" pair.
func parseSampleRate(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

func channelCount(repConfigs, setConfigs []channelConfig) int {
	for _, cfg := range repConfigs {
		if n, err := strconv.Atoi(strings.TrimSpace(cfg.Value)); err == nil && n > 0 {
			return n
		}
	}
	for _, cfg := range setConfigs {
		if n, err := strconv.Atoi(strings.TrimSpace(cfg.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
