// SPDX-License-Identifier: MIT

// Package events coalesces change signals into rate-limited notifications.
// Producers mark a topic dirty as often as they like; subscribers see at
// most one flush per window carrying the deduplicated set of changes. A
// busy page emitting hundreds of observations per second costs consumers
// one wakeup per window, not one per observation.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/metrics"
)

// DefaultWindow is the minimum spacing between flushes.
const DefaultWindow = 300 * time.Millisecond

// Topic names a class of change.
type Topic string

const (
	// TopicItems signals registry item changes within one page context.
	TopicItems Topic = "items"

	// TopicDownloads signals download job changes. Downloads are global,
	// so the context id is empty.
	TopicDownloads Topic = "downloads"
)

// Change is one coalesced notice. Equal changes marked within a window
// collapse into a single delivery.
type Change struct {
	Topic     Topic  `json:"topic"`
	ContextID string `json:"contextId,omitempty"`
}

// Subscriber receives coalesced changes. A slow subscriber loses changes
// rather than blocking the flusher; the buffer should cover a few windows.
type Subscriber struct {
	n  *Notifier
	ch chan Change
}

// C returns the receive channel. It is closed when the subscriber or the
// notifier shuts down.
func (s *Subscriber) C() <-chan Change {
	return s.ch
}

// Close detaches the subscriber and closes its channel.
func (s *Subscriber) Close() {
	s.n.unsubscribe(s)
}

// Notifier fans coalesced changes out to subscribers.
type Notifier struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}

	mu     sync.Mutex
	dirty  map[Change]struct{}
	subs   []*Subscriber
	closed bool
}

// New starts a notifier flushing at most once per window. A window of zero
// or less selects DefaultWindow.
func New(window time.Duration) *Notifier {
	if window <= 0 {
		window = DefaultWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		limiter: rate.NewLimiter(rate.Every(window), 1),
		logger:  log.WithComponent("events"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		dirty:   make(map[Change]struct{}),
	}
	go n.run()
	return n
}

// Mark records a change. The flush carrying it happens when the window
// allows; marking an already-dirty change is free.
func (n *Notifier) Mark(topic Topic, contextID string) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.dirty[Change{Topic: topic, ContextID: contextID}] = struct{}{}
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Subscribe attaches a new subscriber. Buffers of zero or less get a
// default that covers a handful of windows.
func (n *Notifier) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	s := &Subscriber{n: n, ch: make(chan Change, buffer)}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(s.ch)
		return s
	}
	n.subs = append(n.subs, s)
	return s
}

func (n *Notifier) unsubscribe(sub *Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Close stops the flusher and closes every subscriber channel. Pending
// dirty changes are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.dirty = make(map[Change]struct{})
	n.mu.Unlock()

	n.cancel()
	<-n.done
	n.mu.Lock()
	for _, s := range subs {
		close(s.ch)
	}
	n.mu.Unlock()
}

func (n *Notifier) run() {
	defer close(n.done)
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.wake:
		}
		// The token wait is where coalescing happens: marks arriving
		// while we sit here all land in the same flush.
		if err := n.limiter.Wait(n.ctx); err != nil {
			return
		}
		n.flush()
	}
}

// flush delivers the dirty set. Sends happen under the lock so a racing
// Close of a subscriber cannot close a channel mid-send; they are
// non-blocking, so the critical section stays short.
func (n *Notifier) flush() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.dirty) == 0 {
		return
	}
	changes := make([]Change, 0, len(n.dirty))
	for c := range n.dirty {
		changes = append(changes, c)
	}
	n.dirty = make(map[Change]struct{})

	for _, c := range changes {
		for _, s := range n.subs {
			select {
			case s.ch <- c:
			default:
				metrics.NotifierDroppedTotal.WithLabelValues(string(c.Topic)).Inc()
				n.logger.Debug().
					Str("topic", string(c.Topic)).
					Str(log.FieldContextID, c.ContextID).
					Msg("subscriber full, change dropped")
			}
		}
	}
}
