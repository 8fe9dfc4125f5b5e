// SPDX-License-Identifier: MIT

package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/streamsift/streamsift/internal/manifest"
	"github.com/streamsift/streamsift/internal/mediaurl"
)

// DefaultCoverageThreshold is the Content-Range coverage a partial response
// must reach to count as the whole resource.
const DefaultCoverageThreshold = 0.95

// GateOptions tune the segment and size filters.
type GateOptions struct {
	// MinDirectSizeBytes rejects direct files with a smaller declared
	// Content-Length. Zero disables the filter.
	MinDirectSizeBytes int64
	// CoverageThreshold overrides DefaultCoverageThreshold when positive.
	CoverageThreshold float64
}

var (
	segmentName = regexp.MustCompile(`(?i)(^|[-_.])(seg|segment|chunk|frag|fragment)[-_]?\d+`)
	initName    = regexp.MustCompile(`(?i)^(init|header)([-_.]|$)`)
	rangeQuery  = regexp.MustCompile(`(?i)(^|&)(range|bytes)=`)
)

// Gate decides whether a classified candidate should enter discovery.
// Segment-shaped names and ranged requests are rejected for non-manifest
// candidates; a partial response passes only when it starts at byte zero or
// covers enough of the declared total.
func Gate(rawURL string, h Hints, c Candidate, opts GateOptions) bool {
	if !c.Kind.IsManifest() {
		if c.Ext == ".m4s" || c.Ext == ".ts" || c.Ext == ".mts" || c.Ext == ".m2ts" {
			return false
		}
		name := mediaurl.Filename(rawURL)
		if segmentName.MatchString(name) || initName.MatchString(name) {
			return false
		}
		if query := queryOf(rawURL); rangeQuery.MatchString(query) {
			return false
		}
	}

	if h.ContentRange != "" {
		if !acceptRange(h.ContentRange, opts.coverage()) {
			return false
		}
	}

	if c.Kind == manifest.KindDirect {
		if opts.MinDirectSizeBytes > 0 && h.ContentLength > 0 && h.ContentLength < opts.MinDirectSizeBytes {
			return false
		}
	}
	return true
}

func (o GateOptions) coverage() float64 {
	if o.CoverageThreshold > 0 {
		return o.CoverageThreshold
	}
	return DefaultCoverageThreshold
}

// acceptRange parses "bytes start-end/total". Responses starting at byte zero
// always pass; otherwise the covered span must reach the threshold share of
// the declared total. Unparseable values carry no signal and pass.
func acceptRange(cr string, threshold float64) bool {
	s := strings.TrimSpace(strings.ToLower(cr))
	s, ok := strings.CutPrefix(s, "bytes")
	if !ok {
		return true
	}
	s = strings.TrimSpace(s)

	span, total, ok := strings.Cut(s, "/")
	if !ok {
		return true
	}
	startStr, endStr, ok := strings.Cut(span, "-")
	if !ok {
		return true
	}
	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil {
		return true
	}
	if start == 0 {
		return true
	}

	end, err := strconv.ParseInt(strings.TrimSpace(endStr), 10, 64)
	if err != nil || end < start {
		return false
	}
	size, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || size <= 0 {
		// "*" or garbage: a mid-stream chunk of unknown total is a segment.
		return false
	}
	covered := float64(end-start+1) / float64(size)
	return covered >= threshold
}

func queryOf(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		return rawURL[idx+1:]
	}
	return ""
}
