// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/streamsift/streamsift/internal/transport"
)

type healthResponse struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Service       string         `json:"service"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	Companion     string         `json:"companion"`
	Contexts      int            `json:"contexts"`
	QueueDepth    int            `json:"queueDepth"`
	Downloads     downloadCounts `json:"downloads"`
}

type downloadCounts struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
}

// handleHealthz is the liveness probe: the process answers, nothing more.
// Degraded collaborators (companion down, empty registries) are status
// concerns, not liveness failures.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	companionState := transport.StateDisconnected
	if s.companion != nil {
		companionState = s.companion.State()
	}

	var running, queued int
	if s.downloads != nil {
		running, queued = s.downloads.Counts()
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Service:       "streamsift",
		Version:       s.settings().Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Companion:     companionState.String(),
		Contexts:      len(s.pipeline.Contexts()),
		QueueDepth:    s.pipeline.QueueDepth(),
		Downloads:     downloadCounts{Running: running, Queued: queued},
	})
}
