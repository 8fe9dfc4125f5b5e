// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsift/streamsift/internal/registry"
)

func newTestPageContext(t *testing.T) *pageContext {
	t.Helper()
	mgr := registry.NewManager()
	pc := newPageContext("tab-1", mgr.Open("tab-1"), context.Background())
	t.Cleanup(pc.close)
	return pc
}

func TestPageContext_FIFOOrder(t *testing.T) {
	pc := newTestPageContext(t)

	require.True(t, pc.enqueue("a"))
	require.True(t, pc.enqueue("b"))
	require.True(t, pc.enqueue("c"))
	assert.Equal(t, 3, pc.depth())

	for _, want := range []string{"a", "b", "c"} {
		key, ok := pc.pop()
		require.True(t, ok)
		assert.Equal(t, want, key)
		pc.done(key)
	}
	_, ok := pc.pop()
	assert.False(t, ok)
}

func TestPageContext_DoubleEnqueueCollapses(t *testing.T) {
	pc := newTestPageContext(t)

	require.True(t, pc.enqueue("a"))
	assert.False(t, pc.enqueue("a"), "queued key must not enqueue twice")
	assert.Equal(t, 1, pc.depth())

	key, ok := pc.pop()
	require.True(t, ok)
	require.Equal(t, "a", key)

	// Still in flight: re-enqueue is refused until done.
	assert.False(t, pc.enqueue("a"))
	pc.done("a")
	assert.True(t, pc.enqueue("a"))
}

func TestPageContext_CloseDropsQueueAndCancels(t *testing.T) {
	pc := newTestPageContext(t)

	require.True(t, pc.enqueue("a"))
	pc.close()

	assert.True(t, pc.isClosed())
	assert.Equal(t, 0, pc.depth())
	_, ok := pc.pop()
	assert.False(t, ok)
	assert.False(t, pc.enqueue("b"))

	select {
	case <-pc.ctx.Done():
	default:
		t.Fatal("context not canceled on close")
	}

	// Closing twice is safe.
	pc.close()
}
