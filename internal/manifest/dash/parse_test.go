// SPDX-License-Identifier: MIT

package dash

import (
	"errors"
	"testing"
	"time"

	"github.com/streamsift/streamsift/internal/manifest"
)

const vodMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT1M40S">
  <Period>
    <AdaptationSet mimeType="video/mp4" frameRate="25">
      <Representation id="v1080" bandwidth="5000000" codecs="avc1.640028" width="1920" height="1080"/>
      <Representation id="v720" bandwidth="2800000" codecs="avc1.64001f" width="1280" height="720"/>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4" lang="en">
      <AudioChannelConfiguration schemeIdUri="urn:mpeg:dash:23003:3:audio_channel_configuration:2011" value="2"/>
      <Representation id="a-en" bandwidth="128000" codecs="mp4a.40.2" audioSamplingRate="48000"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestParse_StaticMPD(t *testing.T) {
	res, err := Parse(vodMPD, "https://cdn.example.com/vod/manifest.mpd")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if res.Kind != manifest.KindDASH {
		t.Errorf("Expected kind dash, got %s", res.Kind)
	}
	if res.Live {
		t.Error("Expected Live=false for static MPD")
	}
	if res.Duration == nil || *res.Duration != 100*time.Second {
		t.Errorf("Expected duration 100s, got %v", res.Duration)
	}
	if !res.Master {
		t.Error("Expected Master=true for multi-representation MPD")
	}

	video := res.TracksOf(manifest.TrackVideo)
	if len(video) != 2 {
		t.Fatalf("Expected 2 video tracks, got %d", len(video))
	}
	if video[0].Bitrate != 5000000 {
		t.Errorf("Video tracks not sorted by descending bandwidth: first is %d", video[0].Bitrate)
	}
	if video[0].FrameRate != 25 {
		t.Errorf("AdaptationSet frameRate not inherited: %v", video[0].FrameRate)
	}
	if video[0].Container != manifest.ContainerMP4 {
		t.Errorf("Expected mp4 container, got %s", video[0].Container)
	}
	// bandwidth/8 bytes per second over 100s
	if video[0].EstimatedBytes != 62500000 {
		t.Errorf("Expected estimated 62500000 bytes, got %d", video[0].EstimatedBytes)
	}

	audio := res.TracksOf(manifest.TrackAudio)
	if len(audio) != 1 {
		t.Fatalf("Expected 1 audio track, got %d", len(audio))
	}
	a := audio[0]
	if a.Language != "en" || a.Channels != 2 || a.SampleRate != 48000 {
		t.Errorf("Audio attributes not carried: %+v", a)
	}
	if a.Container != manifest.ContainerM4A {
		t.Errorf("Expected m4a container, got %s", a.Container)
	}
}

func TestParse_DynamicNoDuration(t *testing.T) {
	mpdText := `<?xml version="1.0"?>
<MPD type="dynamic" minimumUpdatePeriod="PT2S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <Representation id="live" bandwidth="3000000" codecs="avc1.64001f"/>
    </AdaptationSet>
  </Period>
</MPD>`

	res, err := Parse(mpdText, "https://example.com/live.mpd")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.Live {
		t.Error("Expected Live=true for dynamic MPD")
	}
	if res.Duration != nil {
		t.Errorf("Expected nil duration, got %v", *res.Duration)
	}
	if res.Tracks[0].EstimatedBytes != 0 {
		t.Error("Live streams must not carry a size estimate")
	}
}

func TestParse_ClassificationFallbacks(t *testing.T) {
	mpdText := `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT30S">
  <Period>
    <AdaptationSet contentType="video">
      <Representation id="by-content-type" bandwidth="1000000" codecs="avc1.4d401f"/>
    </AdaptationSet>
    <AdaptationSet>
      <Role schemeIdUri="urn:mpeg:dash:role:2011" value="subtitle"/>
      <Representation id="by-role" bandwidth="2000"/>
    </AdaptationSet>
    <AdaptationSet>
      <Representation id="by-codec" bandwidth="96000" codecs="opus"/>
    </AdaptationSet>
    <AdaptationSet>
      <Representation id="unclassifiable" bandwidth="1"/>
    </AdaptationSet>
  </Period>
</MPD>`

	res, err := Parse(mpdText, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	kinds := make(map[string]manifest.TrackKind)
	for _, tr := range res.Tracks {
		kinds[tr.ID] = tr.Kind
	}
	if kinds["by-content-type"] != manifest.TrackVideo {
		t.Errorf("contentType fallback failed: %v", kinds["by-content-type"])
	}
	if kinds["by-role"] != manifest.TrackSubtitle {
		t.Errorf("Role fallback failed: %v", kinds["by-role"])
	}
	if kinds["by-codec"] != manifest.TrackAudio {
		t.Errorf("codec fallback failed: %v", kinds["by-codec"])
	}
	if _, ok := kinds["unclassifiable"]; ok {
		t.Error("Unclassifiable representation should be skipped")
	}

	// Opus rides in WebM, not mp4.
	for _, tr := range res.Tracks {
		if tr.ID == "by-codec" && tr.Container != manifest.ContainerWebM {
			t.Errorf("Expected webm container for opus, got %s", tr.Container)
		}
	}
}

func TestParse_RepresentationOverridesSet(t *testing.T) {
	mpdText := `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT30S">
  <Period>
    <AdaptationSet mimeType="video/mp4" codecs="avc1.4d401f" width="1280" height="720">
      <Representation id="override" bandwidth="4000000" codecs="vp09.00.10.08" width="1920" height="1080"/>
      <Representation id="inherit" bandwidth="1000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

	res, err := Parse(mpdText, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	byID := make(map[string]manifest.Track)
	for _, tr := range res.Tracks {
		byID[tr.ID] = tr
	}
	override := byID["override"]
	if override.Codec != "vp09.00.10.08" || override.Width != 1920 {
		t.Errorf("Representation values must win: %+v", override)
	}
	if override.Container != manifest.ContainerWebM {
		t.Errorf("VP9 codec must beat mp4 mime: %s", override.Container)
	}
	inherit := byID["inherit"]
	if inherit.Codec != "avc1.4d401f" || inherit.Width != 1280 {
		t.Errorf("AdaptationSet values must be inherited: %+v", inherit)
	}
}

func TestParse_ContentProtection(t *testing.T) {
	tests := []struct {
		name       string
		protection string
		wantScheme manifest.Scheme
	}{
		{
			name: "widevine beats generic cenc",
			protection: `<ContentProtection schemeIdUri="urn:mpeg:dash:mp4protection:2011" value="cenc"/>
      <ContentProtection schemeIdUri="urn:uuid:EDEF8BA9-79D6-4ACE-A3C8-27DCD51D21ED"/>`,
			wantScheme: manifest.SchemeWidevine,
		},
		{
			name:       "playready",
			protection: `<ContentProtection schemeIdUri="urn:uuid:9a04f079-9840-4286-ab92-e65be0885f95"/>`,
			wantScheme: manifest.SchemePlayReady,
		},
		{
			name:       "generic cenc only",
			protection: `<ContentProtection schemeIdUri="urn:mpeg:dash:mp4protection:2011" value="cenc"/>`,
			wantScheme: manifest.SchemeCENC,
		},
		{
			name:       "unknown urn flags presence",
			protection: `<ContentProtection schemeIdUri="urn:uuid:00000000-0000-0000-0000-000000000000"/>`,
			wantScheme: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mpdText := `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT30S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      ` + tt.protection + `
      <Representation id="v" bandwidth="1000000" codecs="avc1.4d401f"/>
    </AdaptationSet>
  </Period>
</MPD>`
			res, err := Parse(mpdText, "")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !res.Encryption.Present {
				t.Fatal("Expected encryption present")
			}
			if res.Encryption.Scheme != tt.wantScheme {
				t.Errorf("Expected scheme %q, got %q", tt.wantScheme, res.Encryption.Scheme)
			}
		})
	}
}

func TestParse_MultiPeriodMerge(t *testing.T) {
	mpdText := `<?xml version="1.0"?>
<MPD type="static">
  <Period duration="PT30S">
    <AdaptationSet mimeType="video/mp4">
      <Representation id="p1" bandwidth="1000000" codecs="avc1.4d401f"/>
    </AdaptationSet>
  </Period>
  <Period duration="PT45S">
    <AdaptationSet mimeType="video/mp4">
      <Representation id="p2" bandwidth="1000000" codecs="avc1.4d401f"/>
    </AdaptationSet>
  </Period>
</MPD>`

	res, err := Parse(mpdText, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.Tracks) != 2 {
		t.Fatalf("Expected tracks from both periods, got %d", len(res.Tracks))
	}
	if res.Duration == nil || *res.Duration != 75*time.Second {
		t.Errorf("Expected summed period duration 75s, got %v", res.Duration)
	}
	// Document order survives as the tie-breaker.
	if res.Tracks[0].ID != "p1" || res.Tracks[1].ID != "p2" {
		t.Errorf("Period order lost: %s, %s", res.Tracks[0].ID, res.Tracks[1].ID)
	}
}

func TestParse_BaseURLResolution(t *testing.T) {
	mpdText := `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT30S">
  <BaseURL>media/</BaseURL>
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <Representation id="v" bandwidth="1000000" codecs="avc1.4d401f">
        <BaseURL>video-1080.mp4</BaseURL>
      </Representation>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4">
      <Representation id="a" bandwidth="128000" codecs="mp4a.40.2">
        <BaseURL>https://other.example.com/audio.m4a</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

	res, err := Parse(mpdText, "https://cdn.example.com/vod/manifest.mpd")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	byID := make(map[string]manifest.Track)
	for _, tr := range res.Tracks {
		byID[tr.ID] = tr
	}
	if got := byID["v"].SourceURL; got != "https://cdn.example.com/vod/media/video-1080.mp4" {
		t.Errorf("Relative BaseURL chain broken: %s", got)
	}
	if got := byID["a"].SourceURL; got != "https://other.example.com/audio.m4a" {
		t.Errorf("Absolute BaseURL must replace the chain: %s", got)
	}
}

func TestParse_EntityExpansionRejected(t *testing.T) {
	mpdText := `<?xml version="1.0"?>
<!DOCTYPE lolz [
 <!ENTITY lol "lol">
 <!ENTITY lol1 "&lol;&lol;&lol;&lol;&lol;&lol;&lol;&lol;&lol;&lol;">
 <!ENTITY lol2 "&lol1;&lol1;&lol1;&lol1;&lol1;&lol1;&lol1;&lol1;&lol1;&lol1;">
]>
<MPD type="static">
  <Period>
    <AdaptationSet mimeType="video/mp4" lang="&lol2;">
      <Representation id="v" bandwidth="1" codecs="avc1.4d401f"/>
    </AdaptationSet>
  </Period>
</MPD>`

	if _, err := Parse(mpdText, ""); err == nil {
		t.Fatal("Expected error for entity expansion, got none")
	}
}

func TestParse_WrongType(t *testing.T) {
	_, err := Parse("#EXTM3U\n#EXTINF:10.0,\nseg.ts", "https://example.com/x")
	if !errors.Is(err, manifest.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for M3U input, got %v", err)
	}

	_, err = Parse(`<?xml version="1.0"?><smil></smil>`, "")
	if !errors.Is(err, manifest.ErrWrongType) {
		t.Errorf("Expected ErrWrongType for non-MPD root, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(`<MPD><Period></MPD>`, "")
	if !errors.Is(err, manifest.ErrMalformed) {
		t.Errorf("Expected ErrMalformed for broken XML, got %v", err)
	}

	_, err = Parse(`<MPD type="static"></MPD>`, "")
	if !errors.Is(err, manifest.ErrMalformed) {
		t.Errorf("Expected ErrMalformed for MPD without representations, got %v", err)
	}
}
