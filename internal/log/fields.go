// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldContextID = "context_id"
	FieldJobID     = "job_id"
	FieldItemKey   = "item_key"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldCommand   = "command"

	// Media fields
	FieldURL       = "url"
	FieldKind      = "kind"
	FieldCodec     = "codec"
	FieldContainer = "container"
	FieldTracks    = "tracks"
	FieldDuration  = "duration"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Transport fields
	FieldMessageID = "message_id"
	FieldConnState = "conn_state"
	FieldAttempt   = "attempt"
)
