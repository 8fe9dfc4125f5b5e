// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans so traces stay queryable by one name
// per concept.
const (
	ContextIDKey = "page.context_id"

	ItemKeyKey   = "item.key"
	ItemKindKey  = "item.kind"
	ItemStateKey = "item.state"

	ObservationSourceKey  = "observation.source"
	ObservationOutcomeKey = "observation.outcome"

	CompanionCommandKey = "companion.command"

	DownloadIDKey      = "download.id"
	DownloadOutcomeKey = "download.outcome"

	ErrorKey        = "error"
	ErrorMessageKey = "error.message"
)

// ItemAttributes describes a registry item on a span. Empty fields are
// omitted.
func ItemAttributes(contextID, key, kind, state string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if contextID != "" {
		attrs = append(attrs, attribute.String(ContextIDKey, contextID))
	}
	if key != "" {
		attrs = append(attrs, attribute.String(ItemKeyKey, key))
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(ItemKindKey, kind))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(ItemStateKey, state))
	}
	return attrs
}

// ObservationAttributes describes one ingested observation.
func ObservationAttributes(contextID, source, outcome string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if contextID != "" {
		attrs = append(attrs, attribute.String(ContextIDKey, contextID))
	}
	if source != "" {
		attrs = append(attrs, attribute.String(ObservationSourceKey, source))
	}
	if outcome != "" {
		attrs = append(attrs, attribute.String(ObservationOutcomeKey, outcome))
	}
	return attrs
}

// CompanionAttributes describes a companion round trip.
func CompanionAttributes(command string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CompanionCommandKey, command),
	}
}

// DownloadAttributes describes a download job.
func DownloadAttributes(id, outcome string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if id != "" {
		attrs = append(attrs, attribute.String(DownloadIDKey, id))
	}
	if outcome != "" {
		attrs = append(attrs, attribute.String(DownloadOutcomeKey, outcome))
	}
	return attrs
}

// ErrorAttributes flags a span as failed and records the message.
func ErrorAttributes(err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Bool(ErrorKey, true)}
	if err != nil {
		attrs = append(attrs, attribute.String(ErrorMessageKey, err.Error()))
	}
	return attrs
}
