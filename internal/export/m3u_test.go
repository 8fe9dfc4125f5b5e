// SPDX-License-Identifier: MIT

package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsift/streamsift/internal/manifest"
	"github.com/streamsift/streamsift/internal/registry"
)

func dur(d time.Duration) *time.Duration { return &d }

func TestWriteM3U(t *testing.T) {
	tests := []struct {
		name   string
		items  []*registry.MediaItem
		expect []string
	}{
		{
			name: "vod item carries whole-second duration and filename title",
			items: []*registry.MediaItem{{
				Key:      "https://cdn.example.com/show/master.m3u8",
				URL:      "https://cdn.example.com/show/master.m3u8",
				Kind:     manifest.KindHLS,
				Duration: dur(92*time.Second + 500*time.Millisecond),
			}},
			expect: []string{
				"#EXTM3U",
				"#EXTINF:92 ",
				`tvg-id="item-`,
				`group-title="hls"`,
				",master.m3u8",
				"https://cdn.example.com/show/master.m3u8",
			},
		},
		{
			name: "live item uses -1",
			items: []*registry.MediaItem{{
				Key:  "https://cdn.example.com/live/stream.m3u8",
				URL:  "https://cdn.example.com/live/stream.m3u8",
				Kind: manifest.KindHLS,
				Live: true,
			}},
			expect: []string{"#EXTINF:-1 "},
		},
		{
			name: "unknown duration uses -1",
			items: []*registry.MediaItem{{
				Key:  "https://cdn.example.com/clip.mp4",
				URL:  "https://cdn.example.com/clip.mp4",
				Kind: manifest.KindDirect,
			}},
			expect: []string{"#EXTINF:-1 ", `group-title="direct"`, ",clip.mp4"},
		},
		{
			name: "comma in filename cannot split the title field",
			items: []*registry.MediaItem{{
				Key:  "https://cdn.example.com/ep1,final.mp4",
				URL:  "https://cdn.example.com/ep1,final.mp4",
				Kind: manifest.KindDirect,
			}},
			expect: []string{",ep1 final.mp4"},
		},
		{
			name: "no filename falls back to host",
			items: []*registry.MediaItem{{
				Key:  "https://media.example.com/",
				URL:  "https://media.example.com/",
				Kind: manifest.KindDirect,
			}},
			expect: []string{",media.example.com"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var b strings.Builder
			require.NoError(t, WriteM3U(&b, tc.items))
			out := b.String()

			assert.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
			for _, want := range tc.expect {
				assert.Contains(t, out, want)
			}
			assert.Equal(t, len(tc.items), strings.Count(out, "#EXTINF:"))
		})
	}
}

func TestWriteM3U_StableIDsSurviveTitleChanges(t *testing.T) {
	first := &registry.MediaItem{
		Key:  "https://cdn.example.com/v/1.m3u8",
		URL:  "https://cdn.example.com/v/1.m3u8?title=old",
		Kind: manifest.KindHLS,
	}
	second := first.Clone()
	second.URL = "https://cdn.example.com/v/1.m3u8?title=new"

	var a, b strings.Builder
	require.NoError(t, WriteM3U(&a, []*registry.MediaItem{first}))
	require.NoError(t, WriteM3U(&b, []*registry.MediaItem{second}))

	idOf := func(out string) string {
		start := strings.Index(out, `tvg-id="`) + len(`tvg-id="`)
		end := strings.Index(out[start:], `"`)
		return out[start : start+end]
	}
	assert.Equal(t, idOf(a.String()), idOf(b.String()))
	assert.True(t, strings.HasPrefix(idOf(a.String()), "item-"))
}

func TestWriteM3U_NormalizesUnicodeTitles(t *testing.T) {
	// Same name spelled composed and decomposed must render identically.
	composed := &registry.MediaItem{
		Key:  "https://cdn.example.com/a",
		URL:  "https://cdn.example.com/v/café.mp4",
		Kind: manifest.KindDirect,
	}
	decomposed := &registry.MediaItem{
		Key:  "https://cdn.example.com/b",
		URL:  "https://cdn.example.com/v/café.mp4",
		Kind: manifest.KindDirect,
	}

	var a, b strings.Builder
	require.NoError(t, WriteM3U(&a, []*registry.MediaItem{composed}))
	require.NoError(t, WriteM3U(&b, []*registry.MediaItem{decomposed}))

	assert.Contains(t, a.String(), ",café.mp4")
	assert.Contains(t, b.String(), ",café.mp4")
}
