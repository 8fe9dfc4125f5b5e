// SPDX-License-Identifier: MIT

package hls

import (
	"strconv"
	"strings"
)

// parseAttrs scans an HLS attribute list into a map with uppercased keys.
// Quoted values keep embedded commas, the surrounding quotes are stripped.
func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ',' || s[i] == ' ' || s[i] == '\t') {
			i++
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			break
		}
		key := strings.ToUpper(strings.TrimSpace(s[i : i+eq]))
		i += eq + 1

		var val string
		if i < len(s) && s[i] == '"' {
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				val = s[i+1:]
				i = len(s)
			} else {
				val = s[i+1 : i+1+end]
				i += end + 2
			}
		} else {
			end := strings.IndexByte(s[i:], ',')
			if end < 0 {
				val = strings.TrimSpace(s[i:])
				i = len(s)
			} else {
				val = strings.TrimSpace(s[i : i+end])
				i += end + 1
			}
		}
		if key != "" {
			attrs[key] = val
		}
	}
	return attrs
}

// attrInt reads a decimal integer attribute, returning 0 when absent or bad.
func attrInt(attrs map[string]string, key string) int64 {
	v, err := strconv.ParseInt(attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// attrFloat reads a float attribute, returning 0 when absent or bad.
func attrFloat(attrs map[string]string, key string) float64 {
	v, err := strconv.ParseFloat(attrs[key], 64)
	if err != nil {
		return 0
	}
	return v
}

// parseResolution splits a WxH attribute value. Both dimensions are 0 when
// the value is absent or malformed.
func parseResolution(s string) (width, height int) {
	x := strings.IndexAny(s, "xX")
	if x < 0 {
		return 0, 0
	}
	w, err := strconv.Atoi(strings.TrimSpace(s[:x]))
	if err != nil {
		return 0, 0
	}
	h, err := strconv.Atoi(strings.TrimSpace(s[x+1:]))
	if err != nil {
		return 0, 0
	}
	return w, h
}

// splitCodecs splits a CODECS attribute into trimmed codec strings.
func splitCodecs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// channelCount reads the leading count of a CHANNELS attribute, which may
// carry slash-separated extras like "6/JOC".
func channelCount(s string) int {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = s[:idx]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
