// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"sync"

	"github.com/streamsift/streamsift/internal/registry"
)

// pageContext is the per-tab work state: a FIFO of item keys plus the
// dedup sets that collapse repeated enqueues of the same key. ctx is
// canceled when the tab closes, which aborts in-flight fetches.
type pageContext struct {
	id     string
	reg    *registry.Registry
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []string
	queued   map[string]struct{}
	inflight map[string]struct{}
	notify   chan struct{}
	closed   bool
}

func newPageContext(id string, reg *registry.Registry, parent context.Context) *pageContext {
	ctx, cancel := context.WithCancel(parent)
	return &pageContext{
		id:       id,
		reg:      reg,
		ctx:      ctx,
		cancel:   cancel,
		queued:   make(map[string]struct{}),
		inflight: make(map[string]struct{}),
		notify:   make(chan struct{}, 1),
	}
}

// enqueue appends key to the FIFO unless it is already waiting or already
// being processed. The caller re-enqueues after the inflight slot clears
// if it wants another pass.
func (pc *pageContext) enqueue(key string) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return false
	}
	if _, ok := pc.queued[key]; ok {
		return false
	}
	if _, ok := pc.inflight[key]; ok {
		return false
	}
	pc.queued[key] = struct{}{}
	pc.queue = append(pc.queue, key)
	pc.wakeLocked()
	return true
}

// pop moves the head of the FIFO into the inflight set. ok is false when
// the queue is empty or the context is closed.
func (pc *pageContext) pop() (key string, ok bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed || len(pc.queue) == 0 {
		return "", false
	}
	key = pc.queue[0]
	pc.queue = pc.queue[1:]
	delete(pc.queued, key)
	pc.inflight[key] = struct{}{}
	return key, true
}

// done releases the inflight slot for key.
func (pc *pageContext) done(key string) {
	pc.mu.Lock()
	delete(pc.inflight, key)
	pc.mu.Unlock()
}

func (pc *pageContext) depth() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.queue)
}

func (pc *pageContext) isClosed() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closed
}

// close drops the queue, cancels in-flight work and wakes the dispatcher
// so it can exit. Idempotent.
func (pc *pageContext) close() {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	pc.closed = true
	pc.queue = nil
	pc.queued = make(map[string]struct{})
	pc.wakeLocked()
	pc.mu.Unlock()
	pc.cancel()
}

func (pc *pageContext) wakeLocked() {
	select {
	case pc.notify <- struct{}{}:
	default:
	}
}
