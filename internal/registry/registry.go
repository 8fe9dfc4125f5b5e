// SPDX-License-Identifier: MIT

package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/manifest"
	"github.com/streamsift/streamsift/internal/mediaurl"
)

var (
	// ErrNotFound is returned when no item exists under the given key.
	ErrNotFound = errors.New("item not found")

	// ErrClosed is returned by mutations on a closed registry.
	ErrClosed = errors.New("registry closed")
)

// Registry holds the media items of a single page context. All methods are
// safe for concurrent use; returned items are deep copies.
type Registry struct {
	contextID string
	logger    zerolog.Logger

	mu        sync.RWMutex
	items     map[string]*MediaItem
	variantOf map[string]string // constituent URL → master item key
	closed    bool
}

func newRegistry(contextID string) *Registry {
	return &Registry{
		contextID: contextID,
		logger:    log.WithComponent("registry").With().Str(log.FieldContextID, contextID).Logger(),
		items:     make(map[string]*MediaItem),
		variantOf: make(map[string]string),
	}
}

// ContextID returns the page context this registry belongs to.
func (r *Registry) ContextID() string {
	return r.contextID
}

// Observe registers a discovery. The same normalized URL registers once;
// re-observing returns the existing item with created=false. A URL already
// mapped as a constituent of a registered master enters directly as a
// variant, so it never becomes display-eligible on its own.
func (r *Registry) Observe(item *MediaItem) (*MediaItem, bool, error) {
	if item == nil || item.Key == "" {
		return nil, false, fmt.Errorf("observe: item without key")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrClosed
	}

	if existing, ok := r.items[item.Key]; ok {
		return existing.Clone(), false, nil
	}

	stored := item.Clone()
	stored.PageContext = r.contextID
	if stored.State == "" {
		stored.State = StatePending
	}
	if stored.Role == "" {
		stored.Role = RoleUnknown
	}
	if stored.DetectedAt.IsZero() {
		stored.DetectedAt = time.Now()
	}
	if master, ok := r.variantOf[stored.Key]; ok {
		stored.Role = RoleVariant
		stored.MasterKey = master
	}
	r.items[stored.Key] = stored

	r.logger.Debug().
		Str(log.FieldEvent, "registry.item.observed").
		Str(log.FieldItemKey, stored.Key).
		Str(log.FieldKind, stored.Kind.String()).
		Str("role", stored.Role.String()).
		Msg("media item observed")
	return stored.Clone(), true, nil
}

// ApplyParse merges a parse result into the item. For a master document the
// constituent URLs are recorded in the variant map and any already-registered
// constituents are demoted to variants in the same critical section, so a
// racing discovery of a variant URL can never slip in between.
func (r *Registry) ApplyParse(key string, res *manifest.Result) (*MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	item, ok := r.items[key]
	if !ok {
		return nil, ErrNotFound
	}

	item.Kind = res.Kind
	item.Tracks = make([]manifest.Track, len(res.Tracks))
	copy(item.Tracks, res.Tracks)
	item.Live = res.Live
	if res.Duration != nil {
		d := *res.Duration
		item.Duration = &d
	} else {
		item.Duration = nil
	}
	item.Encryption.Merge(res.Encryption)

	if res.Master {
		item.Role = RoleMaster
		for _, raw := range res.VariantURLs {
			constituent, err := mediaurl.Normalize(raw)
			if err != nil {
				continue
			}
			if constituent == key {
				continue
			}
			r.variantOf[constituent] = key
			if dup, ok := r.items[constituent]; ok {
				dup.Role = RoleVariant
				dup.MasterKey = key
			}
		}
	} else if item.Role == RoleUnknown {
		item.Role = RoleStandalone
	}

	r.logger.Debug().
		Str(log.FieldEvent, "registry.item.parsed").
		Str(log.FieldItemKey, key).
		Str("role", item.Role.String()).
		Int(log.FieldTracks, len(item.Tracks)).
		Msg("parse result merged")
	return item.Clone(), nil
}

// SetState performs a validated pipeline transition. The failure reason is
// recorded when the target state is failed and cleared otherwise.
func (r *Registry) SetState(key string, target State, reason string) (*MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	item, ok := r.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !item.State.CanTransitionTo(target) {
		return nil, fmt.Errorf("invalid transition %s -> %s for %s", item.State, target, key)
	}

	old := item.State
	item.State = target
	if target == StateFailed {
		item.FailureReason = reason
	} else {
		item.FailureReason = ""
	}

	r.logger.Debug().
		Str(log.FieldEvent, "registry.item.state").
		Str(log.FieldItemKey, key).
		Str(log.FieldOldState, old.String()).
		Str(log.FieldNewState, target.String()).
		Msg("state transition")
	return item.Clone(), nil
}

// Dismiss hides an item. Unlike pipeline transitions this is a user action
// and is allowed from any state; dismissing twice is a no-op.
func (r *Registry) Dismiss(key string) (*MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	item, ok := r.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if item.State != StateDismissed {
		old := item.State
		item.State = StateDismissed
		r.logger.Debug().
			Str(log.FieldEvent, "registry.item.dismissed").
			Str(log.FieldItemKey, key).
			Str(log.FieldOldState, old.String()).
			Msg("item dismissed")
	}
	return item.Clone(), nil
}

// Reset returns a failed item to pending for user-initiated re-discovery.
func (r *Registry) Reset(key string) (*MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	item, ok := r.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !item.State.CanTransitionTo(StatePending) {
		return nil, fmt.Errorf("cannot reset item in state %s", item.State)
	}
	item.State = StatePending
	item.FailureReason = ""
	return item.Clone(), nil
}

// SetPreview records the generated thumbnail location.
func (r *Registry) SetPreview(key, preview string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	item, ok := r.items[key]
	if !ok {
		return ErrNotFound
	}
	item.PreviewImage = preview
	return nil
}

// Get returns a copy of the item under key.
func (r *Registry) Get(key string) (*MediaItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// MasterOf resolves a constituent URL to its master's key.
func (r *Registry) MasterOf(constituent string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	master, ok := r.variantOf[constituent]
	return master, ok
}

// List returns copies of all items ordered by detection time, key as
// tie-breaker.
func (r *Registry) List() []*MediaItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MediaItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Displayable returns the display-eligible items in List order.
func (r *Registry) Displayable() []*MediaItem {
	all := r.List()
	out := all[:0]
	for _, item := range all {
		if item.DisplayEligible() {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// CountByState tallies items per state without cloning them. Gauge
// exporters call this on every transition, so it has to stay cheap.
func (r *Registry) CountByState(into map[State]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, item := range r.items {
		into[item.State]++
	}
}

// close marks the registry closed and drops all state. Further mutations
// return ErrClosed.
func (r *Registry) close() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.items)
	r.items = make(map[string]*MediaItem)
	r.variantOf = make(map[string]string)
	r.closed = true
	return n
}
