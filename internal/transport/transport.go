// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/metrics"
)

var (
	// ErrNotConnected is returned by Send and Post while no validated
	// channel is up.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrConnectionLost rejects every pending request when the channel
	// closes before its reply arrives.
	ErrConnectionLost = errors.New("transport: connection lost")
	// ErrClosed is returned once the client has been closed.
	ErrClosed = errors.New("transport: closed")

	errStopped = errors.New("transport: stopped")
)

// TimeoutError reports that a single request exceeded its command-class
// safety timeout. Other pending requests are unaffected.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply within %s", e.Command, e.Timeout)
}

// RemoteError is a companion reply with success=false.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: companion rejected the request", e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Dialer opens the byte stream to the companion. The process supervisor in
// internal/companion implements it over the child's stdio.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (f DialerFunc) Dial(ctx context.Context) (io.ReadWriteCloser, error) { return f(ctx) }

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	Timeouts      Timeouts
	ReconnectBase time.Duration // first reconnect delay, doubles per attempt
	ReconnectMax  time.Duration // reconnect delay cap
}

// pending is one in-flight request awaiting its correlated reply.
type pending struct {
	command string
	sentAt  time.Time
	done    chan outcome // buffered, exactly one outcome is ever delivered
}

type outcome struct {
	resp *Response
	err  error
}

// Client multiplexes request/response commands and unsolicited events over
// one framed byte stream to the companion process. Run owns the connection
// lifecycle; Send and Post may be called from any goroutine.
type Client struct {
	dialer   Dialer
	timeouts Timeouts
	recBase  time.Duration
	recMax   time.Duration
	logger   zerolog.Logger

	nextID  atomic.Uint64
	pending *xsync.MapOf[uint64, *pending]
	subs    *subscriptions

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	state  State
	closed bool

	writeMu sync.Mutex

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewClient builds a client over dialer. Run brings the channel up.
func NewClient(dialer Dialer, opts Options) *Client {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Client{
		dialer:   dialer,
		timeouts: opts.Timeouts.withDefaults(),
		recBase:  opts.ReconnectBase,
		recMax:   opts.ReconnectMax,
		logger:   log.WithComponent("transport"),
		pending:  xsync.NewMapOf[uint64, *pending](),
		subs:     newSubscriptions(),
		state:    StateDisconnected,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers for unsolicited events carrying any of the given
// command names. The caller must Close the subscription when done.
func (c *Client) Subscribe(commands ...string) *Subscription {
	return c.subs.add(commands)
}

// Run dials, validates, and serves the channel until ctx is canceled or
// Close is called, reconnecting with bounded exponential backoff after any
// failure. Run must be called at most once.
func (c *Client) Run(ctx context.Context) error {
	c.started.Store(true)
	defer close(c.done)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.stop:
			c.setState(StateDisconnected)
			return nil
		default:
		}

		validated, err := c.runOnce(ctx)
		if errors.Is(err, errStopped) {
			return nil
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		select {
		case <-c.stop:
			c.setState(StateDisconnected)
			return nil
		default:
		}

		if validated {
			attempt = 0
		}
		attempt++
		delay := backoffDelay(c.recBase, c.recMax, attempt)
		metrics.CompanionReconnectsTotal.Inc()
		c.logger.Warn().
			Err(err).
			Int(log.FieldAttempt, attempt).
			Dur("retry_in", delay).
			Str(log.FieldEvent, "transport.reconnect").
			Msg("companion channel down, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.stop:
			c.setState(StateDisconnected)
			return nil
		}
	}
}

// runOnce serves one connection from dial to loss. It reports whether the
// connection passed validation so the caller can reset its backoff.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	c.setState(StateConnecting)
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		c.setState(StateError)
		return false, fmt.Errorf("dial companion: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false, errStopped
	}
	c.conn = conn
	c.mu.Unlock()

	readErr := make(chan error, 1)
	go c.readLoop(conn, readErr)

	c.setState(StateValidating)
	if err := c.validate(ctx); err != nil {
		c.setState(StateError)
		c.teardown(conn, ErrConnectionLost)
		return false, fmt.Errorf("validate companion: %w", err)
	}
	c.setState(StateConnected)
	c.logger.Info().
		Str(log.FieldEvent, "transport.connected").
		Msg("companion channel ready")

	select {
	case err := <-readErr:
		c.setState(StateError)
		c.teardown(conn, ErrConnectionLost)
		if errors.Is(err, io.EOF) {
			return true, errors.New("companion closed the channel")
		}
		return true, fmt.Errorf("companion channel lost: %w", err)
	case <-ctx.Done():
		c.setState(StateDisconnected)
		c.teardown(conn, ErrClosed)
		return true, ctx.Err()
	case <-c.stop:
		c.setState(StateDisconnected)
		c.teardown(conn, ErrClosed)
		return true, errStopped
	}
}

// validate sends the liveness probe. A nil return means the companion
// produced a well-formed affirmative reply.
func (c *Client) validate(ctx context.Context) error {
	vctx, cancel := context.WithTimeout(ctx, c.timeouts.Short)
	defer cancel()
	_, err := c.send(vctx, CommandPing, nil, true)
	return err
}

// Send issues command with payload and waits for the correlated reply. The
// wait is bounded by ctx and the command-class safety timeout; a timeout
// fails only this request and drops its pending entry.
func (c *Client) Send(ctx context.Context, command string, payload any) (*Response, error) {
	return c.send(ctx, command, payload, false)
}

func (c *Client) send(ctx context.Context, command string, payload any, probing bool) (*Response, error) {
	conn, err := c.usableConn(probing)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	frame, err := encodeRequest(&id, command, payload)
	if err != nil {
		return nil, err
	}

	p := &pending{command: command, sentAt: time.Now(), done: make(chan outcome, 1)}
	c.pending.Store(id, p)
	metrics.CompanionPendingRequests.Inc()

	c.logger.Debug().
		Str(log.FieldCommand, command).
		Uint64(log.FieldMessageID, id).
		Str(log.FieldEvent, "transport.send").
		Msg("sending companion command")

	if err := c.writeFrame(conn, frame); err != nil {
		c.removePending(id)
		metrics.ObserveCompanionRequest(command, err, time.Since(p.sentAt))
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	timeout := c.timeouts.For(command)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-p.done:
	case <-timer.C:
		if _, ok := c.removePending(id); ok {
			out = outcome{err: &TimeoutError{Command: command, Timeout: timeout}}
		} else {
			// The reply raced the timer and is already buffered.
			out = <-p.done
		}
	case <-ctx.Done():
		if _, ok := c.removePending(id); ok {
			out = outcome{err: ctx.Err()}
		} else {
			out = <-p.done
		}
	}
	metrics.ObserveCompanionRequest(command, out.err, time.Since(p.sentAt))
	if out.err != nil {
		return nil, out.err
	}
	return out.resp, nil
}

// Post sends a fire-and-forget notification. No id is assigned and no reply
// is tracked.
func (c *Client) Post(command string, payload any) error {
	conn, err := c.usableConn(false)
	if err != nil {
		return err
	}
	frame, err := encodeRequest(nil, command, payload)
	if err != nil {
		return err
	}
	if err := c.writeFrame(conn, frame); err != nil {
		return fmt.Errorf("post %s: %w", command, err)
	}
	return nil
}

// Close stops the client. The current channel is torn down and every
// pending request is rejected with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.stop)
	if conn != nil {
		_ = conn.Close()
	}
	c.rejectAll(ErrClosed)
	if c.started.Load() {
		<-c.done
	}
	c.setState(StateDisconnected)
	return nil
}

func (c *Client) usableConn(probing bool) (io.ReadWriteCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	usable := c.state.Usable() || (probing && c.state == StateValidating)
	if !usable || c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// writeFrame serializes all outbound frames on the channel.
func (c *Client) writeFrame(conn io.Writer, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(conn, frame)
}

func (c *Client) readLoop(conn io.Reader, readErr chan<- error) {
	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			readErr <- err
			return
		}
		c.handleFrame(frame)
	}
}

// handleFrame routes one inbound frame: a present id resolves the pending
// request, an id-less command dispatches to subscribers.
func (c *Client) handleFrame(frame []byte) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "transport.frame.malformed").
			Msg("dropping malformed companion frame")
		return
	}

	if env.ID == nil {
		if env.Command == "" {
			c.logger.Warn().
				Str(log.FieldEvent, "transport.frame.unroutable").
				Msg("dropping companion message without id or command")
			return
		}
		c.subs.dispatch(Event{Command: env.Command, Raw: frame})
		return
	}

	p, ok := c.removePending(*env.ID)
	if !ok {
		// Reply for a request that already timed out or was rejected.
		c.logger.Debug().
			Uint64(log.FieldMessageID, *env.ID).
			Str(log.FieldEvent, "transport.reply.orphaned").
			Msg("dropping reply with unknown id")
		return
	}
	if !env.Success {
		p.done <- outcome{err: &RemoteError{Command: p.command, Message: env.Error}}
		return
	}
	p.done <- outcome{resp: &Response{ID: *env.ID, Success: true, Raw: frame}}
}

func (c *Client) removePending(id uint64) (*pending, bool) {
	p, ok := c.pending.LoadAndDelete(id)
	if ok {
		metrics.CompanionPendingRequests.Dec()
	}
	return p, ok
}

// rejectAll fails every pending request with cause in a single pass. No
// entry is left behind to hit its safety timeout.
func (c *Client) rejectAll(cause error) {
	n := 0
	c.pending.Range(func(id uint64, _ *pending) bool {
		if p, ok := c.removePending(id); ok {
			p.done <- outcome{err: fmt.Errorf("%s: %w", p.command, cause)}
			n++
		}
		return true
	})
	if n > 0 {
		metrics.CompanionPendingRejected.Add(float64(n))
		c.logger.Warn().
			Int("rejected", n).
			Str(log.FieldEvent, "transport.pending.rejected").
			Msg("rejected pending requests")
	}
}

// teardown closes the connection and rejects everything in flight.
func (c *Client) teardown(conn io.Closer, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
	c.rejectAll(cause)
}

func (c *Client) setState(target State) {
	c.mu.Lock()
	old := c.state
	if old == target {
		c.mu.Unlock()
		return
	}
	c.state = target
	c.mu.Unlock()

	metrics.SetCompanionState(string(target))
	ev := c.logger.Debug()
	if !old.CanTransitionTo(target) {
		ev = c.logger.Warn()
	}
	ev.Str(log.FieldOldState, string(old)).
		Str(log.FieldNewState, string(target)).
		Str(log.FieldEvent, "transport.state").
		Msg("connection state changed")
}

// backoffDelay doubles from base per attempt and caps at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
