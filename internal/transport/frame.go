// SPDX-License-Identifier: MIT

// Package transport implements the framed JSON channel to the companion
// process: 4-byte little-endian length-prefixed frames over one
// bidirectional byte stream, request/response correlation by monotonic id,
// per-command safety timeouts, and a subscription registry for unsolicited
// events.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame payload in either direction.
const MaxFrameSize = 16 << 20

// WriteFrame writes one length-prefixed frame. Prefix and payload are
// assembled into a single buffer and issued as one Write call so a frame is
// never interleaved with another writer's bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("frame exceeds %d bytes: %d", MaxFrameSize, len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and returns its payload. A clean
// peer close surfaces as io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(head[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame exceeds %d bytes: %d", MaxFrameSize, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
