// SPDX-License-Identifier: MIT

// Package manifest defines the shared track model produced by the HLS and
// DASH parsers, plus the deterministic ordering and container inference rules
// both parsers share.
package manifest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the manifest or media flavor of a discovered resource.
type Kind string

const (
	KindHLS    Kind = "hls"
	KindDASH   Kind = "dash"
	KindDirect Kind = "direct"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks whether the kind is one of the defined constants.
func (k Kind) IsValid() bool {
	switch k {
	case KindHLS, KindDASH, KindDirect:
		return true
	default:
		return false
	}
}

// IsManifest reports whether the kind refers to a streaming manifest rather
// than a directly fetchable media file.
func (k Kind) IsManifest() bool {
	return k == KindHLS || k == KindDASH
}

// MarshalJSON implements json.Marshaler for Kind.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// UnmarshalJSON implements json.Unmarshaler for Kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	kind := Kind(str)
	if !kind.IsValid() {
		return fmt.Errorf("invalid media kind: %q", str)
	}
	*k = kind
	return nil
}

// TrackKind identifies the media type of a single track.
type TrackKind string

const (
	TrackVideo    TrackKind = "video"
	TrackAudio    TrackKind = "audio"
	TrackSubtitle TrackKind = "subtitle"
)

// String returns the string representation of the track kind.
func (k TrackKind) String() string {
	return string(k)
}

// IsValid checks whether the track kind is one of the defined constants.
func (k TrackKind) IsValid() bool {
	switch k {
	case TrackVideo, TrackAudio, TrackSubtitle:
		return true
	default:
		return false
	}
}

// Container identifies the canonical container a track would be saved as.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerM4A  Container = "m4a"
	ContainerWebM Container = "webm"
	ContainerTS   Container = "ts"
	ContainerMP3  Container = "mp3"
	ContainerOGG  Container = "ogg"
	ContainerFLAC Container = "flac"
	ContainerVTT  Container = "vtt"
	ContainerTTML Container = "ttml"
	ContainerSRT  Container = "srt"
)

// Scheme identifies a content protection system.
type Scheme string

const (
	SchemeWidevine  Scheme = "widevine"
	SchemePlayReady Scheme = "playready"
	SchemeFairPlay  Scheme = "fairplay"
	SchemeClearKey  Scheme = "clearkey"
	SchemeMarlin    Scheme = "marlin"
	SchemePrimeTime Scheme = "primetime"
	SchemeAES128    Scheme = "aes-128"
	SchemeSampleAES Scheme = "sample-aes"
	SchemeCENC      Scheme = "cenc"
)

// Encryption describes whether and how a stream is protected. A protected
// stream with an unrecognized scheme URN has Present set and Scheme empty.
type Encryption struct {
	Present bool   `json:"present"`
	Scheme  Scheme `json:"scheme,omitempty"`
}

// Merge folds another encryption signal into this one. Presence is sticky and
// the first recognized scheme wins.
func (e *Encryption) Merge(other Encryption) {
	if other.Present {
		e.Present = true
	}
	if e.Scheme == "" && other.Scheme != "" {
		e.Scheme = other.Scheme
	}
}

// Track is one elementary stream described by a manifest.
type Track struct {
	ID              string    `json:"id"`
	Kind            TrackKind `json:"kind"`
	Codec           string    `json:"codec,omitempty"`
	Bitrate         int64     `json:"bitrate,omitempty"` // bits per second
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	FrameRate       float64   `json:"frameRate,omitempty"`
	Channels        int       `json:"channels,omitempty"`
	SampleRate      int       `json:"sampleRate,omitempty"`
	Container       Container `json:"container,omitempty"`
	ContainerReason string    `json:"containerReason,omitempty"` // "codec", "mime" or "default"
	EstimatedBytes  int64     `json:"estimatedBytes,omitempty"`
	Language        string    `json:"language,omitempty"`
	Role            string    `json:"role,omitempty"`
	Label           string    `json:"label,omitempty"`
	SourceURL       string    `json:"sourceUrl,omitempty"`
	GroupID         string    `json:"groupId,omitempty"`
	Default         bool      `json:"default,omitempty"`

	// StreamIndex is the track's position in manifest document order. It is
	// the final tie-breaker of the canonical ordering and must be stable
	// across re-parses of identical input.
	StreamIndex int `json:"streamIndex"`
}

// Result is the parsed form of a manifest.
type Result struct {
	Kind       Kind           `json:"kind"`
	Live       bool           `json:"live"`
	Duration   *time.Duration `json:"duration,omitempty"`
	Encryption Encryption     `json:"encryption"`
	Tracks     []Track        `json:"tracks"`

	// Master reports whether the document declares variants (HLS master
	// playlist, or any multi-representation MPD).
	Master bool `json:"master"`

	// VariantURLs lists every constituent URL referenced by a master
	// document (variant playlists, alternative audio and subtitle URIs),
	// resolved against the manifest URL. Registries use it to suppress
	// later independent discoveries of the same streams.
	VariantURLs []string `json:"variantUrls,omitempty"`
}

// DurationSeconds returns the duration in seconds, or 0 when unknown.
func (r *Result) DurationSeconds() float64 {
	if r.Duration == nil {
		return 0
	}
	return r.Duration.Seconds()
}

// TracksOf returns the tracks of one kind, preserving canonical order.
func (r *Result) TracksOf(kind TrackKind) []Track {
	var out []Track
	for _, t := range r.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// EstimateBytes derives an approximate stream size from bitrate and duration.
// It returns 0 when either input is unknown.
func EstimateBytes(bitrate int64, duration *time.Duration) int64 {
	if bitrate <= 0 || duration == nil || *duration <= 0 {
		return 0
	}
	return int64(float64(bitrate) / 8 * duration.Seconds())
}
