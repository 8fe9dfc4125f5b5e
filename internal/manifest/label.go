// SPDX-License-Identifier: MIT

package manifest

import (
	"regexp"
	"strings"

	unorm "golang.org/x/text/unicode/norm"
)

var labelSpace = regexp.MustCompile(`\s+`)

// NormalizeLabel canonicalizes a human-readable track label: NFC composed
// form, trimmed, inner whitespace collapsed. Labels arrive from manifests in
// arbitrary encodings and spacing; registries compare them for display dedup.
func NormalizeLabel(s string) string {
	s = unorm.NFC.String(s)
	s = strings.TrimSpace(s)
	s = labelSpace.ReplaceAllString(s, " ")
	return s
}

// NormalizeLanguage lowercases and trims a BCP 47 language tag. Comparisons
// across manifests are case-insensitive.
func NormalizeLanguage(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
