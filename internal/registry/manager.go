// SPDX-License-Identifier: MIT

package registry

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/log"
)

// Manager owns one Registry per page context. Contexts are opened on first
// use and torn down atomically when the page context is destroyed.
type Manager struct {
	registries *xsync.MapOf[string, *Registry]
	logger     zerolog.Logger
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		registries: xsync.NewMapOf[string, *Registry](),
		logger:     log.WithComponent("registry"),
	}
}

// Open returns the registry for a context, creating it on first use.
func (m *Manager) Open(contextID string) *Registry {
	reg, loaded := m.registries.LoadOrStore(contextID, newRegistry(contextID))
	if !loaded {
		m.logger.Info().
			Str(log.FieldEvent, "registry.context.opened").
			Str(log.FieldContextID, contextID).
			Msg("context opened")
	}
	return reg
}

// Get returns the registry for a context without creating one.
func (m *Manager) Get(contextID string) (*Registry, bool) {
	return m.registries.Load(contextID)
}

// Close tears down a context's registry. All items are dropped and late
// writers receive ErrClosed.
func (m *Manager) Close(contextID string) bool {
	reg, ok := m.registries.LoadAndDelete(contextID)
	if !ok {
		return false
	}
	dropped := reg.close()
	m.logger.Info().
		Str(log.FieldEvent, "registry.context.closed").
		Str(log.FieldContextID, contextID).
		Int("items_dropped", dropped).
		Msg("context closed")
	return true
}

// Range calls fn for every open context until fn returns false.
func (m *Manager) Range(fn func(contextID string, reg *Registry) bool) {
	m.registries.Range(fn)
}

// Len returns the number of open contexts.
func (m *Manager) Len() int {
	return m.registries.Size()
}
