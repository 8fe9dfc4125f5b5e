// SPDX-License-Identifier: MIT

// Package fetch retrieves manifest documents over HTTP with bounded
// retries, a response size cap, and outbound address screening.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/metrics"
	"github.com/streamsift/streamsift/internal/version"
)

// ErrTooLarge indicates the response body exceeded the configured cap.
var ErrTooLarge = errors.New("fetch: response body too large")

var errTooManyRedirects = errors.New("fetch: too many redirects")

const (
	defaultTimeout      = 15 * time.Second
	defaultBackoff      = 500 * time.Millisecond
	defaultMaxBodyBytes = 10 << 20
	maxRedirects        = 5
)

// Options configure a Client. Zero Timeout, Backoff, and MaxBodyBytes fall
// back to defaults; Retries is taken as given (0 means a single attempt).
type Options struct {
	Timeout      time.Duration
	Retries      int           // additional attempts after the first
	Backoff      time.Duration // base delay, grows quadratically per attempt
	MaxBodyBytes int64
	Policy       Policy
	UserAgent    string
}

// Response is one fetched manifest document.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client fetches manifest documents. Retries cover transient failures
// only: network errors, 5xx, and 429. Any other status is returned to the
// caller on the first attempt; redirects re-run the outbound policy per
// hop.
type Client struct {
	hc           *http.Client
	policy       Policy
	retries      int
	backoff      time.Duration
	maxBodyBytes int64
	userAgent    string
	logger       zerolog.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "streamsift/" + version.Version
	}

	c := &Client{
		policy:       opts.Policy,
		retries:      opts.Retries,
		backoff:      opts.Backoff,
		maxBodyBytes: opts.MaxBodyBytes,
		userAgent:    opts.UserAgent,
		logger:       log.WithComponent("fetch"),
	}
	c.hc = &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			_, err := c.policy.Validate(req.Context(), req.URL.String())
			return err
		},
	}
	return c
}

// Get fetches rawURL with the observation's captured headers. Every HTTP
// response that survives the retry loop is returned as-is, 4xx included;
// callers decide what a status means. Errors are reserved for policy
// rejections, oversized bodies, and exhausted network failures.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	target, err := c.policy.Validate(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var (
		last    *Response
		lastErr error
		reason  string
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			metrics.FetchRetriesTotal.WithLabelValues(reason).Inc()
			delay := time.Duration(attempt*attempt) * c.backoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.do(ctx, target, headers)
		if err != nil {
			if permanent(err) {
				return nil, err
			}
			last, lastErr, reason = nil, err, "network"
			c.logger.Debug().Err(err).
				Str("url", target).
				Int("attempt", attempt+1).
				Msg("fetch attempt failed")
			continue
		}
		if retryableStatus(resp.Status) {
			last, lastErr, reason = resp, nil, "status"
			c.logger.Debug().
				Int("status", resp.Status).
				Str("url", target).
				Int("attempt", attempt+1).
				Msg("fetch got retryable status")
			continue
		}
		return resp, nil
	}

	if last != nil {
		return last, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", target, lastErr)
}

func (c *Client) do(ctx context.Context, target string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.ContentLength > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: content-length %d", ErrTooLarge, resp.ContentLength)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, c.maxBodyBytes)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// permanent reports whether err can never be cured by another attempt.
func permanent(err error) bool {
	return errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrHostNotAllowed) ||
		errors.Is(err, ErrBlockedAddress) ||
		errors.Is(err, errTooManyRedirects) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
