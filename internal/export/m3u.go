// SPDX-License-Identifier: MIT

package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/streamsift/streamsift/internal/mediaurl"
	"github.com/streamsift/streamsift/internal/registry"
)

// WriteM3U renders display-eligible items as an extended M3U playlist.
// Players resolve the entries themselves, so manifest URLs go in verbatim.
func WriteM3U(w io.Writer, items []*registry.MediaItem) error {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	for _, item := range items {
		buf.WriteString(fmt.Sprintf(
			`#EXTINF:%d tvg-id="%s" group-title="%s",%s`+"\n",
			durationSecs(item), stableID(item.Key), item.Kind, displayTitle(item),
		))
		buf.WriteString(item.URL + "\n")
	}
	_, err := io.Copy(w, buf)
	return err
}

// durationSecs returns whole seconds, or -1 for live and unknown durations
// per M3U convention.
func durationSecs(item *registry.MediaItem) int {
	if item.Live || item.Duration == nil {
		return -1
	}
	return int(item.Duration.Seconds())
}

// stableID derives a deterministic playlist id from the item key. Hashing
// avoids special characters and stays stable when titles change.
func stableID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "item-" + hex.EncodeToString(sum[:8])
}

// displayTitle picks a human-readable name: the URL filename when there is
// one, the host otherwise. Unicode is normalized to NFC so composed and
// decomposed spellings of the same name render identically.
func displayTitle(item *registry.MediaItem) string {
	title := mediaurl.Filename(item.URL)
	if title == "" {
		if idx := strings.Index(item.URL, "//"); idx >= 0 {
			rest := item.URL[idx+2:]
			if end := strings.IndexByte(rest, '/'); end >= 0 {
				rest = rest[:end]
			}
			title = rest
		}
	}
	if title == "" {
		title = item.Key
	}
	// Commas split EXTINF attributes from the title; drop newlines outright.
	title = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r':
			return -1
		case ',':
			return ' '
		}
		return r
	}, title)
	return norm.NFC.String(title)
}
