// SPDX-License-Identifier: MIT

package manifest

import "strings"

// CodecFamily collapses an RFC 6381 codec string to its family name, e.g.
// "avc1.64001f" to "avc". Unknown codecs map to their first dotted token.
func CodecFamily(codec string) string {
	c := strings.ToLower(strings.TrimSpace(codec))
	if c == "" {
		return ""
	}
	if idx := strings.IndexByte(c, '.'); idx >= 0 {
		c = c[:idx]
	}
	switch c {
	case "avc1", "avc3", "h264", "x264":
		return "avc"
	case "hvc1", "hev1", "hevc", "h265", "dvh1", "dvhe":
		return "hevc"
	case "vp8", "vp08":
		return "vp8"
	case "vp9", "vp09":
		return "vp9"
	case "av01", "av1":
		return "av1"
	case "mp4a", "aac", "heaac":
		return "aac"
	case "opus":
		return "opus"
	case "vorbis":
		return "vorbis"
	case "ac-3", "ac3":
		return "ac3"
	case "ec-3", "ec3", "eac3":
		return "eac3"
	case "flac":
		return "flac"
	case "mp3", "mp4a-40-34":
		return "mp3"
	case "stpp", "ttml":
		return "ttml"
	case "wvtt", "webvtt":
		return "webvtt"
	default:
		return c
	}
}

// KindForCodec guesses the track kind from a codec family. It returns false
// when the codec gives no signal.
func KindForCodec(codec string) (TrackKind, bool) {
	switch CodecFamily(codec) {
	case "avc", "hevc", "vp8", "vp9", "av1":
		return TrackVideo, true
	case "aac", "opus", "vorbis", "ac3", "eac3", "flac", "mp3":
		return TrackAudio, true
	case "ttml", "webvtt":
		return TrackSubtitle, true
	default:
		return "", false
	}
}

// InferContainer decides the canonical container for a track. Codec families
// are consulted first, then the declared MIME type, then a per-kind default.
// The returned reason is one of "codec", "mime" or "default".
func InferContainer(kind TrackKind, codec, mimeType string) (Container, string) {
	switch CodecFamily(codec) {
	case "vp8", "vp9", "av1":
		return ContainerWebM, "codec"
	case "avc", "hevc":
		if kind == TrackVideo {
			return ContainerMP4, "codec"
		}
	case "opus", "vorbis":
		return ContainerWebM, "codec"
	case "flac":
		return ContainerFLAC, "codec"
	case "aac", "ac3", "eac3":
		return ContainerM4A, "codec"
	case "mp3":
		return ContainerMP3, "codec"
	case "ttml":
		return ContainerTTML, "codec"
	case "webvtt":
		return ContainerVTT, "codec"
	}

	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "video/mp4", "application/mp4":
		return ContainerMP4, "mime"
	case "video/webm":
		return ContainerWebM, "mime"
	case "video/mp2t":
		return ContainerTS, "mime"
	case "audio/mp4", "audio/aac":
		return ContainerM4A, "mime"
	case "audio/mpeg", "audio/mp3":
		return ContainerMP3, "mime"
	case "audio/webm":
		return ContainerWebM, "mime"
	case "audio/ogg":
		return ContainerOGG, "mime"
	case "audio/flac", "audio/x-flac":
		return ContainerFLAC, "mime"
	case "text/vtt":
		return ContainerVTT, "mime"
	case "application/ttml+xml":
		return ContainerTTML, "mime"
	}

	switch kind {
	case TrackAudio:
		return ContainerMP3, "default"
	case TrackSubtitle:
		return ContainerVTT, "default"
	default:
		return ContainerMP4, "default"
	}
}

// containerFamily groups containers for the canonical track ordering.
func containerFamily(c Container) string {
	switch c {
	case ContainerMP4, ContainerM4A:
		return "mp4"
	case ContainerWebM:
		return "webm"
	case ContainerTS, ContainerMP3:
		return "mpeg"
	case ContainerOGG, ContainerFLAC:
		return "ogg"
	case ContainerVTT, ContainerTTML, ContainerSRT:
		return "text"
	default:
		return string(c)
	}
}

var containerFamilyRank = map[string]int{
	"mp4":  0,
	"webm": 1,
	"mpeg": 2,
	"ogg":  3,
	"text": 4,
}

var codecFamilyRank = map[string]int{
	"avc":    0,
	"hevc":   1,
	"vp9":    2,
	"av1":    3,
	"vp8":    4,
	"aac":    10,
	"opus":   11,
	"vorbis": 12,
	"ac3":    13,
	"eac3":   14,
	"flac":   15,
	"mp3":    16,
	"webvtt": 20,
	"ttml":   21,
}

func rankOf(table map[string]int, key string, unknown int) int {
	if r, ok := table[key]; ok {
		return r
	}
	return unknown
}
