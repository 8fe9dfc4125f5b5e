// SPDX-License-Identifier: MIT

// Package classify decides whether an observed URL plus response hints looks
// like displayable media, and which flavor. Classify is a fast pure check run
// against every observed request; Gate filters out segments and partial
// responses that would otherwise flood discovery.
package classify

import (
	"net/url"
	"strings"

	"github.com/streamsift/streamsift/internal/manifest"
	"github.com/streamsift/streamsift/internal/mediaurl"
)

// Hints carries the response metadata available at observation time. All
// fields are optional; zero values mean unknown.
type Hints struct {
	MIME          string // Content-Type header, parameters allowed
	ContentLength int64
	ContentRange  string // Content-Range header for 206 responses
}

// Candidate is a positively classified URL.
type Candidate struct {
	Kind manifest.Kind
	MIME string // normalized media type, empty when unknown
	Ext  string // lowercased path extension including the dot
}

// deniedExts are obvious non-media resource types.
var deniedExts = map[string]struct{}{
	".js":    {},
	".mjs":   {},
	".css":   {},
	".map":   {},
	".json":  {},
	".html":  {},
	".htm":   {},
	".png":   {},
	".jpg":   {},
	".jpeg":  {},
	".gif":   {},
	".webp":  {},
	".avif":  {},
	".svg":   {},
	".ico":   {},
	".bmp":   {},
	".woff":  {},
	".woff2": {},
	".ttf":   {},
	".otf":   {},
	".eot":   {},
	".wasm":  {},
}

// deniedPathParts mark analytics and tracking endpoints.
var deniedPathParts = []string{
	"/analytics/",
	"/telemetry/",
	"/beacon",
	"/pixel",
}

var hlsMIMEs = map[string]struct{}{
	"application/vnd.apple.mpegurl": {},
	"application/x-mpegurl":         {},
	"application/mpegurl":           {},
	"audio/mpegurl":                 {},
	"audio/x-mpegurl":               {},
}

var directExts = map[string]struct{}{
	".mp4":  {},
	".m4v":  {},
	".m4a":  {},
	".webm": {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".flv":  {},
	".3gp":  {},
	".ts":   {},
	".mts":  {},
	".m2ts": {},
	".mp3":  {},
	".aac":  {},
	".ogg":  {},
	".oga":  {},
	".ogv":  {},
	".opus": {},
	".flac": {},
	".wav":  {},
}

// Classify inspects a URL and response hints and reports the media candidate,
// if any. Manifest signals win over direct-media signals.
func Classify(rawURL string, h Hints) (Candidate, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Candidate{}, false
	}
	ext := mediaurl.Ext(rawURL)
	mime := normalizeMIME(h.MIME)

	if denied(u, ext, mime) {
		return Candidate{}, false
	}

	if kind, ok := manifestKind(ext, mime); ok {
		return Candidate{Kind: kind, MIME: mime, Ext: ext}, true
	}

	if strings.HasPrefix(mime, "video/") || strings.HasPrefix(mime, "audio/") {
		return Candidate{Kind: manifest.KindDirect, MIME: mime, Ext: ext}, true
	}
	if _, ok := directExts[ext]; ok {
		return Candidate{Kind: manifest.KindDirect, MIME: mime, Ext: ext}, true
	}

	return Candidate{}, false
}

func denied(u *url.URL, ext, mime string) bool {
	if _, ok := deniedExts[ext]; ok {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, part := range deniedPathParts {
		if strings.Contains(p, part) {
			return true
		}
	}
	switch {
	case strings.HasPrefix(mime, "image/"),
		strings.HasPrefix(mime, "font/"),
		mime == "text/html",
		mime == "text/css",
		mime == "text/javascript",
		mime == "application/javascript",
		mime == "application/json":
		return true
	}
	return false
}

func manifestKind(ext, mime string) (manifest.Kind, bool) {
	switch ext {
	case ".m3u8", ".m3u":
		return manifest.KindHLS, true
	case ".mpd":
		return manifest.KindDASH, true
	}
	if _, ok := hlsMIMEs[mime]; ok {
		return manifest.KindHLS, true
	}
	if mime == "application/dash+xml" {
		return manifest.KindDASH, true
	}
	return "", false
}

// normalizeMIME lowercases a Content-Type value and strips parameters.
func normalizeMIME(s string) string {
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		s = s[:idx]
	}
	return strings.ToLower(strings.TrimSpace(s))
}
