// SPDX-License-Identifier: MIT

package transport

import (
	"encoding/json"
	"fmt"
)

// Response is a companion reply correlated to a request id. Raw carries the
// complete reply object so callers can decode command-specific result fields
// from the same bytes.
type Response struct {
	ID      uint64
	Success bool
	Raw     json.RawMessage
}

// Decode unmarshals the reply object into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("decode reply %d: %w", r.ID, err)
	}
	return nil
}

// Event is an unsolicited companion message. It carries no id; routing is by
// command name.
type Event struct {
	Command string
	Raw     json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("decode %s event: %w", e.Command, err)
	}
	return nil
}

// envelope is the superset of routing fields shared by every inbound wire
// message. A present id marks a reply to a pending request; an absent id
// marks an unsolicited event.
type envelope struct {
	ID      *uint64 `json:"id"`
	Command string  `json:"command"`
	Success bool    `json:"success"`
	Error   string  `json:"error"`
}

// encodeRequest builds a wire request with the payload's fields flattened
// next to id and command. A nil id produces a fire-and-forget notification.
// The payload must marshal to a JSON object or be nil.
func encodeRequest(id *uint64, command string, payload any) ([]byte, error) {
	msg := map[string]any{"command": command}
	if id != nil {
		msg["id"] = *id
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", command, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("%s params must be a JSON object: %w", command, err)
		}
		for k, v := range fields {
			if k == "id" || k == "command" {
				continue
			}
			msg[k] = v
		}
	}
	return json.Marshal(msg)
}
