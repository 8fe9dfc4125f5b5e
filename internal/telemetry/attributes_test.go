// SPDX-License-Identifier: MIT

package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestItemAttributes_OmitsEmptyFields(t *testing.T) {
	full := attrMap(ItemAttributes("tab-1", "https://cdn.example.com/a.m3u8", "hls", "ready"))
	assert.Equal(t, map[string]string{
		ContextIDKey: "tab-1",
		ItemKeyKey:   "https://cdn.example.com/a.m3u8",
		ItemKindKey:  "hls",
		ItemStateKey: "ready",
	}, full)

	partial := ItemAttributes("tab-1", "", "", "")
	assert.Len(t, partial, 1)
}

func TestObservationAttributes(t *testing.T) {
	got := attrMap(ObservationAttributes("tab-1", "performance-observer", "accepted"))
	assert.Equal(t, "performance-observer", got[ObservationSourceKey])
	assert.Equal(t, "accepted", got[ObservationOutcomeKey])

	assert.Empty(t, ObservationAttributes("", "", ""))
}

func TestDownloadAttributes(t *testing.T) {
	got := attrMap(DownloadAttributes("job-7", "success"))
	assert.Equal(t, "job-7", got[DownloadIDKey])
	assert.Equal(t, "success", got[DownloadOutcomeKey])
}

func TestErrorAttributes(t *testing.T) {
	got := attrMap(ErrorAttributes(errors.New("probe: exit status 1")))
	assert.Equal(t, "true", got[ErrorKey])
	assert.Equal(t, "probe: exit status 1", got[ErrorMessageKey])

	assert.Len(t, ErrorAttributes(nil), 1)
}
