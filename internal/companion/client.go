// SPDX-License-Identifier: MIT

// Package companion is the typed surface over the framed transport to the
// companion process: media probing, thumbnail capture, save dialogs, and
// download control.
package companion

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamsift/streamsift/internal/transport"
)

// ErrDialogCanceled is returned by SaveDialog when the user dismisses the
// dialog without picking a path.
var ErrDialogCanceled = errors.New("companion: save dialog canceled")

// sender is the transport surface the client needs.
type sender interface {
	Send(ctx context.Context, command string, payload any) (*transport.Response, error)
	Post(command string, payload any) error
	Subscribe(commands ...string) *transport.Subscription
	State() transport.State
}

type Client struct {
	tr sender
}

func NewClient(tr sender) *Client {
	return &Client{tr: tr}
}

// State reports the connection state of the underlying channel.
func (c *Client) State() transport.State {
	return c.tr.State()
}

// Subscribe exposes the transport subscription registry for unsolicited
// download events.
func (c *Client) Subscribe(commands ...string) *transport.Subscription {
	return c.tr.Subscribe(commands...)
}

// DownloadEvents subscribes to every download event the companion emits:
// progress plus the three terminal outcomes, merged on one channel.
func (c *Client) DownloadEvents() *transport.Subscription {
	return c.tr.Subscribe(
		transport.EventDownloadProgress,
		transport.EventDownloadSuccess,
		transport.EventDownloadError,
		transport.EventDownloadCanceled,
	)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.tr.Send(ctx, transport.CommandPing, nil)
	return err
}

// ProbeResult summarizes what the companion found in a direct media URL.
type ProbeResult struct {
	HasVideo     bool    `json:"hasVideo"`
	HasAudio     bool    `json:"hasAudio"`
	HasSubtitles bool    `json:"hasSubtitles"`
	Container    string  `json:"container"`
	DurationSecs float64 `json:"durationSeconds"`
	SizeBytes    int64   `json:"sizeBytes"`
}

func (c *Client) Probe(ctx context.Context, url string, headers map[string]string) (*ProbeResult, error) {
	resp, err := c.tr.Send(ctx, transport.CommandProbe, struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers,omitempty"`
	}{URL: url, Headers: headers})
	if err != nil {
		return nil, err
	}
	var out ProbeResult
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Thumbnail is an encoded preview image. Data crosses the wire base64
// encoded inside the JSON reply.
type Thumbnail struct {
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

func (c *Client) Thumbnail(ctx context.Context, url string, headers map[string]string) (*Thumbnail, error) {
	resp, err := c.tr.Send(ctx, transport.CommandThumbnail, struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers,omitempty"`
	}{URL: url, Headers: headers})
	if err != nil {
		return nil, err
	}
	var out Thumbnail
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("thumbnail %s: empty image", url)
	}
	return &out, nil
}

// SaveDialog asks the user for a target path, suggesting name. It blocks
// until the user answers or the medium-class timeout fires.
func (c *Client) SaveDialog(ctx context.Context, name string) (string, error) {
	resp, err := c.tr.Send(ctx, transport.CommandSaveDialog, struct {
		SuggestedName string `json:"suggestedName"`
	}{SuggestedName: name})
	if err != nil {
		return "", err
	}
	var out struct {
		Path     string `json:"path"`
		Canceled bool   `json:"canceled"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Canceled || out.Path == "" {
		return "", ErrDialogCanceled
	}
	return out.Path, nil
}

// DownloadSpec describes one download forwarded to the companion.
type DownloadSpec struct {
	URL     string            `json:"url"`
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// StartDownload forwards a download. The reply arrives only when the
// download terminates; progress and the terminal outcome also stream as
// unsolicited events, which is what the download manager acts on.
func (c *Client) StartDownload(ctx context.Context, spec DownloadSpec) error {
	_, err := c.tr.Send(ctx, transport.CommandDownloadStart, spec)
	return err
}

// CancelDownload asks the companion to abort the download of url. The
// reply only acknowledges the request; the download is finished when its
// terminal event arrives.
func (c *Client) CancelDownload(ctx context.Context, url string) error {
	_, err := c.tr.Send(ctx, transport.CommandDownloadCancel, struct {
		URL string `json:"url"`
	}{URL: url})
	return err
}

func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.tr.Send(ctx, transport.CommandVersion, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Version string `json:"version"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	return out.Version, nil
}
