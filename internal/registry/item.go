// SPDX-License-Identifier: MIT

// Package registry tracks discovered media items per page context. Each
// context owns one Registry instance with an explicit open/close lifecycle;
// the Manager hands them out and tears them down atomically.
package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streamsift/streamsift/internal/manifest"
)

// State is the lifecycle position of a MediaItem.
type State string

const (
	// StatePending indicates the item is discovered and waiting for a worker.
	StatePending State = "pending"

	// StateProcessing indicates a worker currently owns the item.
	StateProcessing State = "processing"

	// StateReady indicates probing finished and the item can be displayed.
	StateReady State = "ready"

	// StateFailed indicates fetch, parse or probe failed. Failed items are
	// only retried through user-initiated re-discovery.
	StateFailed State = "failed"

	// StateDismissed indicates the user hid the item. Dismissed items are
	// excluded from display and from further processing.
	StateDismissed State = "dismissed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsValid checks whether the state is one of the defined constants.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateProcessing, StateReady, StateFailed, StateDismissed:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the state represents a final pipeline outcome.
func (s State) IsTerminal() bool {
	switch s {
	case StateReady, StateFailed, StateDismissed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether the pipeline may move an item from this
// state to the target state.
//
// Valid transitions:
//   - Pending → Processing, Dismissed
//   - Processing → Ready, Failed, Dismissed
//   - Failed → Pending (user re-discovery only)
//
// Dismissal by the user is handled separately and is allowed from any state.
func (s State) CanTransitionTo(target State) bool {
	switch s {
	case StatePending:
		return target == StateProcessing || target == StateDismissed
	case StateProcessing:
		return target == StateReady || target == StateFailed || target == StateDismissed
	case StateFailed:
		return target == StatePending
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler for State.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for State.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state := State(str)
	if !state.IsValid() {
		return fmt.Errorf("invalid item state: %q", str)
	}
	*s = state
	return nil
}

// Role places an item in the master/variant hierarchy. A single explicit
// role plus the optional MasterKey reference replaces ambiguous flag
// combinations like isMaster+isVariant.
type Role string

const (
	// RoleUnknown is the role before the item's manifest has been parsed.
	RoleUnknown Role = "unknown"

	// RoleStandalone is a self-contained item, e.g. a direct file or a
	// media playlist no master references.
	RoleStandalone Role = "standalone"

	// RoleMaster is a manifest that declares variants.
	RoleMaster Role = "master"

	// RoleVariant is a constituent of a registered master. Variants are
	// never display-eligible on their own.
	RoleVariant Role = "variant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks whether the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleUnknown, RoleStandalone, RoleMaster, RoleVariant:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler for Role.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

// UnmarshalJSON implements json.Unmarshaler for Role.
func (r *Role) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	role := Role(str)
	if !role.IsValid() {
		return fmt.Errorf("invalid item role: %q", str)
	}
	*r = role
	return nil
}

// MediaItem is one discovered media resource within a page context. Key is
// the normalized URL and serves as the dedup key everywhere.
type MediaItem struct {
	Key             string              `json:"key"`
	URL             string              `json:"url"`
	Kind            manifest.Kind       `json:"kind"`
	DiscoverySource string              `json:"discoverySource,omitempty"`
	PageContext     string              `json:"pageContext"`
	State           State               `json:"state"`
	Role            Role                `json:"role"`
	MasterKey       string              `json:"masterKey,omitempty"`
	Tracks          []manifest.Track    `json:"tracks,omitempty"`
	Duration        *time.Duration      `json:"duration,omitempty"`
	Live            bool                `json:"live,omitempty"`
	Encryption      manifest.Encryption `json:"encryption"`
	PreviewImage    string              `json:"previewImage,omitempty"`
	FailureReason   string              `json:"failureReason,omitempty"`
	DetectedAt      time.Time           `json:"detectedAt"`

	// Headers are request headers captured at discovery time. They may
	// carry credentials and are never serialized.
	Headers map[string]string `json:"-"`
}

// DisplayEligible reports whether the item should appear in listings: ready,
// not a known variant of a registered master, not dismissed.
func (m *MediaItem) DisplayEligible() bool {
	return m.State == StateReady && m.Role != RoleVariant
}

// TracksOf returns the item's tracks of one kind in canonical order.
func (m *MediaItem) TracksOf(kind manifest.TrackKind) []manifest.Track {
	var out []manifest.Track
	for _, t := range m.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (m *MediaItem) Clone() *MediaItem {
	cp := *m
	if m.Tracks != nil {
		cp.Tracks = make([]manifest.Track, len(m.Tracks))
		copy(cp.Tracks, m.Tracks)
	}
	if m.Duration != nil {
		d := *m.Duration
		cp.Duration = &d
	}
	if m.Headers != nil {
		cp.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			cp.Headers[k] = v
		}
	}
	return &cp
}
