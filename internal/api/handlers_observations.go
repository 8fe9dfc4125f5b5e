// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/streamsift/streamsift/internal/pipeline"
)

// handleObserve ingests one media sighting from the extension. Accepted
// observations come back as the stored item with 202; sightings the
// classifier rejects are acknowledged with 204 so the extension never
// retries them.
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	var obs pipeline.Observation
	if err := decodeBody(w, r, &obs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := s.pipeline.Observe(r.Context(), obs)
	switch {
	case errors.Is(err, pipeline.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case item == nil:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}
