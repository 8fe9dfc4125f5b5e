// SPDX-License-Identifier: MIT

package transport

import (
	"sync"

	"github.com/streamsift/streamsift/internal/metrics"
)

// subBuffer is the per-subscription channel capacity. Dispatch never blocks
// the read loop; a full subscriber drops the event.
const subBuffer = 64

// Subscription receives the unsolicited events of one or more commands on a
// single channel.
type Subscription struct {
	reg      *subscriptions
	commands []string
	ch       chan Event
	once     sync.Once
}

// C returns the event channel. It is closed when the subscription closes.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() { s.reg.remove(s) })
}

// subscriptions routes unsolicited events to subscribers by command name.
type subscriptions struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription
}

func newSubscriptions() *subscriptions {
	return &subscriptions{subs: make(map[string][]*Subscription)}
}

func (r *subscriptions) add(commands []string) *Subscription {
	sub := &Subscription{reg: r, commands: commands, ch: make(chan Event, subBuffer)}
	r.mu.Lock()
	for _, command := range commands {
		r.subs[command] = append(r.subs[command], sub)
	}
	r.mu.Unlock()
	return sub
}

// remove closes the channel while holding the lock so dispatch never sends
// on a closed channel.
func (r *subscriptions) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, command := range sub.commands {
		lst := r.subs[command]
		out := lst[:0]
		for _, s := range lst {
			if s != sub {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			delete(r.subs, command)
		} else {
			r.subs[command] = out
		}
	}
	close(sub.ch)
}

// dispatch fans ev out to every subscriber of its command.
func (r *subscriptions) dispatch(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.subs[ev.Command] {
		select {
		case s.ch <- ev:
		default:
			metrics.CompanionEventsDropped.WithLabelValues(ev.Command).Inc()
		}
	}
}
